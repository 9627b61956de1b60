package relationship

import (
	"sort"

	"github.com/JiscSD/ram-relationships/code"
	"github.com/JiscSD/ram-relationships/model"
)

// Relationship type identifiers.
const (
	TypeUniversalRepresentative model.EntityID = "UNIVERSAL_REPRESENTATIVE"
	TypeCustomRepresentative    model.EntityID = "CUSTOM_REPRESENTATIVE"
	TypeOSP                     model.EntityID = "OSP"
)

// Catalog holds the relationship types relationships may refer to.
type Catalog map[model.EntityID]model.RelationshipType

// DefaultCatalog returns the built-in relationship types.
func DefaultCatalog() Catalog {
	return NewCatalog(
		relationshipType(TypeUniversalRepresentative, "Universal Representative", code.RelationshipTypeCategoryAuthorisation,
			model.AttributeDef{
				Namable:                 model.Namable{MachineName: "DELEGATE_MANAGE_AUTHORISATION_ALLOWED_IND", HumanName: "Delegate can manage authorisations"},
				ListOfAcceptableOptions: []string{"true", "false"},
			},
			model.AttributeDef{
				Namable:    model.Namable{MachineName: "DELEGATE_RELATIONSHIP_TYPE_DECLARATION", HumanName: "Declaration"},
				IsFreeText: true,
			},
		),
		relationshipType(TypeCustomRepresentative, "Custom Representative", code.RelationshipTypeCategoryAuthorisation,
			model.AttributeDef{
				Namable:                 model.Namable{MachineName: "PERMISSION_CUSTOMISATION_ALLOWED_IND", HumanName: "Permissions can be customised"},
				ListOfAcceptableOptions: []string{"true", "false"},
				IsRequired:              true,
			},
			model.AttributeDef{
				Namable:    model.Namable{MachineName: "DELEGATE_RELATIONSHIP_TYPE_DECLARATION", HumanName: "Declaration"},
				IsFreeText: true,
			},
		),
		relationshipType(TypeOSP, "Online Service Provider", code.RelationshipTypeCategoryNotification,
			model.AttributeDef{
				Namable:    model.Namable{MachineName: "SSID", HumanName: "Software Service ID"},
				IsFreeText: true,
				IsRequired: true,
			},
			model.AttributeDef{
				Namable:    model.Namable{MachineName: "SELECTED_GOVERNMENT_SERVICES_LIST", HumanName: "Selected government services"},
				IsFreeText: true,
			},
		),
	)
}

// NewCatalog indexes types by id.
func NewCatalog(types ...model.RelationshipType) Catalog {
	c := make(Catalog, len(types))
	for _, t := range types {
		c[t.ID] = t
	}
	return c
}

func relationshipType(id model.EntityID, name string, category code.RelationshipTypeCategory, attrs ...model.AttributeDef) model.RelationshipType {
	return model.RelationshipType{
		EntityWithAttributeDef: model.EntityWithAttributeDef{
			VersionedEntity:  model.VersionedEntity{ID: id},
			Namable:          model.Namable{MachineName: string(id), HumanName: name},
			ListOfAttributes: attrs,
		},
		Category: category,
	}
}

// Get returns the type registered under id.
func (c Catalog) Get(id model.EntityID) (model.RelationshipType, bool) {
	t, ok := c[id]
	return t, ok
}

// List returns the types ordered by id.
func (c Catalog) List() []model.RelationshipType {
	types := make([]model.RelationshipType, 0, len(c))
	for _, t := range c {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types
}
