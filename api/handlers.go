package api

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"sort"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/party"
	"github.com/JiscSD/ram-relationships/query"
	"github.com/JiscSD/ram-relationships/relationship"
	jsonschema "github.com/JiscSD/ram-relationships/schema"

	"github.com/gorilla/schema"
)

func observer(r *http.Request) relationship.Observer {
	return relationship.Observer{
		PartyID:  model.EntityID(r.Header.Get(HeaderPartyID)),
		AgencyID: model.EntityID(r.Header.Get(HeaderAgencyID)),
	}
}

// caller returns the calling party, which the operation requires.
func caller(r *http.Request) (model.EntityID, error) {
	id := r.Header.Get(HeaderPartyID)
	if id == "" {
		return "", model.NewValidationError(HeaderPartyID + " header is required")
	}
	return model.EntityID(id), nil
}

// decodeQuery fills dst from the query string.
func (s *Server) decodeQuery(r *http.Request, dst interface{}) error {
	err := s.decoder.Decode(dst, r.URL.Query())
	if err == nil {
		return nil
	}
	if multi, ok := err.(schema.MultiError); ok {
		messages := make([]string, 0, len(multi))
		for key, err := range multi {
			messages = append(messages, "query parameter "+key+": "+err.Error())
		}
		sort.Strings(messages)
		return model.NewValidationError(messages...)
	}
	return model.NewValidationError(err.Error())
}

// decodeBody reads a JSON body, checking it against doc first when given.
func decodeBody(r *http.Request, doc jsonschema.Document, dst interface{}) error {
	blob, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return model.NewValidationError("request body cannot be read: " + err.Error())
	}
	if doc != "" {
		if err := jsonschema.Validate(doc, blob); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return model.NewValidationError("request body is not valid: " + err.Error())
	}
	return nil
}

func (s *Server) page(r *http.Request) (query.Page, error) {
	var page query.Page
	if err := s.decodeQuery(r, &page); err != nil {
		return page, err
	}
	return page.Normalize(), nil
}

func (s *Server) listRelationshipTypes(w http.ResponseWriter, r *http.Request) {
	sendData(s.logger, w, http.StatusOK, s.relationships.Types().List())
}

func (s *Server) searchRelationships(w http.ResponseWriter, r *http.Request) {
	var params relationship.SearchParams
	if err := s.decodeQuery(r, &params); err != nil {
		sendError(s.logger, w, err)
		return
	}
	page, err := s.page(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	res, err := s.relationships.Search(r.Context(), params, observer(r), page)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, res)
}

type createRelationshipResponse struct {
	Relationship *model.Relationship     `json:"relationship"`
	Invitation   *relationship.Invitation `json:"invitation"`
}

func (s *Server) createRelationship(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	var in relationship.CreateInput
	if err := decodeBody(r, jsonschema.RelationshipDocument, &in); err != nil {
		sendError(s.logger, w, err)
		return
	}
	if in.SubjectPartyID != by {
		sendError(s.logger, w, model.NewValidationError("subjectPartyId must be the calling party"))
		return
	}
	rel, inv, err := s.relationships.CreatePending(r.Context(), in)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusCreated, createRelationshipResponse{Relationship: rel, Invitation: inv})
}

func (s *Server) getRelationship(w http.ResponseWriter, r *http.Request) {
	rel, err := s.relationships.Get(r.Context(), model.EntityID(r.PathValue("id")), observer(r))
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, rel)
}

func (s *Server) updateRelationship(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	var in relationship.UpdateInput
	if err := decodeBody(r, "", &in); err != nil {
		sendError(s.logger, w, err)
		return
	}
	rel, err := s.relationships.UpdateDetails(r.Context(), model.EntityID(r.PathValue("id")), by, in)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, rel)
}

func (s *Server) deleteRelationship(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	rel, err := s.relationships.Delete(r.Context(), model.EntityID(r.PathValue("id")), by)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, rel)
}

func (s *Server) cancelRelationship(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	rel, err := s.relationships.Cancel(r.Context(), model.EntityID(r.PathValue("id")), by)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, rel)
}

func (s *Server) viewInvitation(w http.ResponseWriter, r *http.Request) {
	rel, err := s.relationships.ViewByInvitationCode(r.Context(), r.PathValue("code"))
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, rel)
}

func (s *Server) claimInvitation(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	rel, err := s.relationships.Claim(r.Context(), r.PathValue("code"), by)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, rel)
}

func (s *Server) declineInvitation(w http.ResponseWriter, r *http.Request) {
	rel, err := s.relationships.Decline(r.Context(), r.PathValue("code"))
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, rel)
}

func (s *Server) searchParties(w http.ResponseWriter, r *http.Request) {
	var params party.SearchParams
	if err := s.decodeQuery(r, &params); err != nil {
		sendError(s.logger, w, err)
		return
	}
	page, err := s.page(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	res, err := s.parties.Search(r.Context(), params, page)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	for i, p := range res.List {
		res.List[i] = redacted(p)
	}
	sendData(s.logger, w, http.StatusOK, res)
}

func (s *Server) createParty(w http.ResponseWriter, r *http.Request) {
	var in party.CreateInput
	if err := decodeBody(r, jsonschema.PartyDocument, &in); err != nil {
		sendError(s.logger, w, err)
		return
	}
	p, err := s.parties.Create(r.Context(), in, model.EntityID(r.Header.Get(HeaderPartyID)))
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusCreated, redacted(p))
}

func (s *Server) getParty(w http.ResponseWriter, r *http.Request) {
	p, err := s.parties.Get(r.Context(), model.EntityID(r.PathValue("id")))
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, redacted(p))
}

func (s *Server) deleteParty(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	p, err := s.parties.Delete(r.Context(), model.EntityID(r.PathValue("id")), by)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, redacted(p))
}

func (s *Server) addIdentity(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	var in party.IdentityInput
	if err := decodeBody(r, "", &in); err != nil {
		sendError(s.logger, w, err)
		return
	}
	p, err := s.parties.AddIdentity(r.Context(), model.EntityID(r.PathValue("id")), in, by)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, redacted(p))
}

func (s *Server) addRole(w http.ResponseWriter, r *http.Request) {
	by, err := caller(r)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	var in party.RoleInput
	if err := decodeBody(r, "", &in); err != nil {
		sendError(s.logger, w, err)
		return
	}
	p, err := s.parties.AddRole(r.Context(), model.EntityID(r.PathValue("id")), in, by)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, redacted(p))
}

// redacted hides the value of unclaimed invitation codes, which only the
// subject that created them is handed.
func redacted(p *model.Party) *model.Party {
	c := p.Clone()
	for i := range c.Identities {
		if c.Identities[i].IdentityType == code.IdentityTypeInvitationCode && !c.Identities[i].IsClaimed() {
			c.Identities[i].Value = ""
		}
	}
	return c
}

type purgeResponse struct {
	PartyID model.EntityID `json:"partyId"`
	Archive string         `json:"archive"`
}

// purgeParty is reserved to agencies.
func (s *Server) purgeParty(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get(HeaderAgencyID) == "" {
		sendError(s.logger, w, model.NewValidationError(HeaderAgencyID+" header is required"))
		return
	}
	id := model.EntityID(r.PathValue("id"))
	uri, err := s.parties.Purge(r.Context(), id)
	if err != nil {
		sendError(s.logger, w, err)
		return
	}
	sendData(s.logger, w, http.StatusOK, purgeResponse{PartyID: id, Archive: uri})
}
