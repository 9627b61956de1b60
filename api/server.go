// Package api exposes the relationship and party services over HTTP.
//
// Callers are authenticated upstream and identify themselves with the
// X-Party-Id or X-Agency-Id header.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/JiscSD/ram-relationships/model"
	"github.com/JiscSD/ram-relationships/party"
	"github.com/JiscSD/ram-relationships/query"
	"github.com/JiscSD/ram-relationships/relationship"

	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/sirupsen/logrus"
)

const (
	HeaderPartyID   = "X-Party-Id"
	HeaderAgencyID  = "X-Agency-Id"
	HeaderRequestID = "X-Request-Id"

	maxBodyBytes = 1 << 20
)

type Relationships interface {
	CreatePending(ctx context.Context, in relationship.CreateInput) (*model.Relationship, *relationship.Invitation, error)
	ViewByInvitationCode(ctx context.Context, code string) (*model.Relationship, error)
	Claim(ctx context.Context, code string, claimant model.EntityID) (*model.Relationship, error)
	Decline(ctx context.Context, code string) (*model.Relationship, error)
	Cancel(ctx context.Context, id, by model.EntityID) (*model.Relationship, error)
	Delete(ctx context.Context, id, by model.EntityID) (*model.Relationship, error)
	UpdateDetails(ctx context.Context, id, by model.EntityID, in relationship.UpdateInput) (*model.Relationship, error)
	Get(ctx context.Context, id model.EntityID, obs relationship.Observer) (*model.Relationship, error)
	Search(ctx context.Context, params relationship.SearchParams, obs relationship.Observer, page query.Page) (query.SearchResult[*model.Relationship], error)
	Types() relationship.Catalog
}

type Parties interface {
	Create(ctx context.Context, in party.CreateInput, by model.EntityID) (*model.Party, error)
	Get(ctx context.Context, id model.EntityID) (*model.Party, error)
	AddIdentity(ctx context.Context, id model.EntityID, in party.IdentityInput, by model.EntityID) (*model.Party, error)
	AddRole(ctx context.Context, id model.EntityID, in party.RoleInput, by model.EntityID) (*model.Party, error)
	Delete(ctx context.Context, id, by model.EntityID) (*model.Party, error)
	Purge(ctx context.Context, id model.EntityID) (string, error)
	Search(ctx context.Context, params party.SearchParams, page query.Page) (query.SearchResult[*model.Party], error)
}

var (
	_ Relationships = (*relationship.Service)(nil)
	_ Parties       = (*party.Service)(nil)
)

type Server struct {
	logger        logrus.FieldLogger
	relationships Relationships
	parties       Parties
	decoder       *schema.Decoder
	mux           *http.ServeMux
}

func New(logger logrus.FieldLogger, relationships Relationships, parties Parties) *Server {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	s := &Server{
		logger:        logger.WithField("component", "api"),
		relationships: relationships,
		parties:       parties,
		decoder:       decoder,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.mux.HandleFunc("GET /v1/relationship-types", s.listRelationshipTypes)
	s.mux.HandleFunc("GET /v1/relationships", s.searchRelationships)
	s.mux.HandleFunc("POST /v1/relationships", s.createRelationship)
	s.mux.HandleFunc("GET /v1/relationships/{id}", s.getRelationship)
	s.mux.HandleFunc("PUT /v1/relationships/{id}", s.updateRelationship)
	s.mux.HandleFunc("DELETE /v1/relationships/{id}", s.deleteRelationship)
	s.mux.HandleFunc("POST /v1/relationships/{id}/cancel", s.cancelRelationship)

	s.mux.HandleFunc("GET /v1/invitations/{code}", s.viewInvitation)
	s.mux.HandleFunc("POST /v1/invitations/{code}/claim", s.claimInvitation)
	s.mux.HandleFunc("POST /v1/invitations/{code}/decline", s.declineInvitation)

	s.mux.HandleFunc("GET /v1/parties", s.searchParties)
	s.mux.HandleFunc("POST /v1/parties", s.createParty)
	s.mux.HandleFunc("GET /v1/parties/{id}", s.getParty)
	s.mux.HandleFunc("DELETE /v1/parties/{id}", s.deleteParty)
	s.mux.HandleFunc("POST /v1/parties/{id}/identities", s.addIdentity)
	s.mux.HandleFunc("POST /v1/parties/{id}/roles", s.addRole)
	s.mux.HandleFunc("POST /v1/parties/{id}/purge", s.purgeParty)
}

// ServeHTTP tags each request with an id and logs its outcome.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set(HeaderRequestID, requestID)
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	started := time.Now()
	s.mux.ServeHTTP(rec, r)
	s.logger.WithFields(logrus.Fields{
		"request": requestID,
		"method":  r.Method,
		"path":    r.URL.Path,
		"status":  rec.status,
		"elapsed": time.Since(started),
	}).Debug("Request served")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
