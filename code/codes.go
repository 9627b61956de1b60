package code

import (
	"encoding/json"
)

type RelationshipStatus string

const (
	RelationshipStatusInvalid   RelationshipStatus = "INVALID"
	RelationshipStatusPending   RelationshipStatus = "PENDING"
	RelationshipStatusActive    RelationshipStatus = "ACTIVE"
	RelationshipStatusDeleted   RelationshipStatus = "DELETED"
	RelationshipStatusCancelled RelationshipStatus = "CANCELLED"
)

var RelationshipStatuses = NewSet("relationship status",
	Decode[RelationshipStatus]{Code: RelationshipStatusInvalid, ShortDecodeText: "Invalid"},
	Decode[RelationshipStatus]{Code: RelationshipStatusPending, ShortDecodeText: "Pending"},
	Decode[RelationshipStatus]{Code: RelationshipStatusActive, ShortDecodeText: "Active"},
	Decode[RelationshipStatus]{Code: RelationshipStatusDeleted, ShortDecodeText: "Deleted"},
	Decode[RelationshipStatus]{Code: RelationshipStatusCancelled, ShortDecodeText: "Cancelled"},
)

func (c *RelationshipStatus) UnmarshalJSON(b []byte) error {
	return unmarshal(RelationshipStatuses, b, c)
}

type AccessLevel string

const (
	AccessLevelUniversal     AccessLevel = "UNIVERSAL"
	AccessLevelLimited       AccessLevel = "LIMITED"
	AccessLevelFixed         AccessLevel = "FIXED"
	AccessLevelLegalAttorney AccessLevel = "LEGAL_ATTORNEY"
)

var AccessLevels = NewSet("access level",
	Decode[AccessLevel]{Code: AccessLevelUniversal, ShortDecodeText: "Universal"},
	Decode[AccessLevel]{Code: AccessLevelLimited, ShortDecodeText: "Limited"},
	Decode[AccessLevel]{Code: AccessLevelFixed, ShortDecodeText: "Fixed"},
	Decode[AccessLevel]{Code: AccessLevelLegalAttorney, ShortDecodeText: "Legal Attorney"},
)

func (c *AccessLevel) UnmarshalJSON(b []byte) error {
	return unmarshal(AccessLevels, b, c)
}

type PartyType string

const (
	PartyTypeIndividual   PartyType = "INDIVIDUAL"
	PartyTypeOrganisation PartyType = "ORGANISATION"
)

var PartyTypes = NewSet("party type",
	Decode[PartyType]{Code: PartyTypeIndividual, ShortDecodeText: "Individual"},
	Decode[PartyType]{Code: PartyTypeOrganisation, ShortDecodeText: "Organisation"},
)

func (c *PartyType) UnmarshalJSON(b []byte) error {
	return unmarshal(PartyTypes, b, c)
}

type IdentityType string

const (
	IdentityTypeInvitationCode IdentityType = "INVITATION_CODE"
	IdentityTypeABN            IdentityType = "ABN"
	IdentityTypeAUSkey         IdentityType = "AUSKEY"
)

var IdentityTypes = NewSet("identity type",
	Decode[IdentityType]{Code: IdentityTypeInvitationCode, ShortDecodeText: "Invitation Code"},
	Decode[IdentityType]{Code: IdentityTypeABN, ShortDecodeText: "ABN", LongDecodeText: "Australian Business Number"},
	Decode[IdentityType]{Code: IdentityTypeAUSkey, ShortDecodeText: "AUSkey"},
)

func (c *IdentityType) UnmarshalJSON(b []byte) error {
	return unmarshal(IdentityTypes, b, c)
}

type RelationshipTypeCategory string

const (
	RelationshipTypeCategoryAuthorisation RelationshipTypeCategory = "AUTHORISATION"
	RelationshipTypeCategoryNotification  RelationshipTypeCategory = "NOTIFICATION"
)

var RelationshipTypeCategories = NewSet("relationship type category",
	Decode[RelationshipTypeCategory]{Code: RelationshipTypeCategoryAuthorisation, ShortDecodeText: "Authorisation"},
	Decode[RelationshipTypeCategory]{Code: RelationshipTypeCategoryNotification, ShortDecodeText: "Notification"},
)

func (c *RelationshipTypeCategory) UnmarshalJSON(b []byte) error {
	return unmarshal(RelationshipTypeCategories, b, c)
}

type RelationshipInitiatedBy string

const (
	RelationshipInitiatedBySubject  RelationshipInitiatedBy = "SUBJECT"
	RelationshipInitiatedByDelegate RelationshipInitiatedBy = "DELEGATE"
)

var RelationshipInitiators = NewSet("relationship initiator",
	Decode[RelationshipInitiatedBy]{Code: RelationshipInitiatedBySubject, ShortDecodeText: "Subject"},
	Decode[RelationshipInitiatedBy]{Code: RelationshipInitiatedByDelegate, ShortDecodeText: "Delegate"},
)

func (c *RelationshipInitiatedBy) UnmarshalJSON(b []byte) error {
	return unmarshal(RelationshipInitiators, b, c)
}

type RelationshipAttributeNameClassifier string

const (
	RelationshipAttributeNameClassifierPermission RelationshipAttributeNameClassifier = "PERMISSION"
	RelationshipAttributeNameClassifierOther      RelationshipAttributeNameClassifier = "OTHER"
)

var RelationshipAttributeNameClassifiers = NewSet("relationship attribute classifier",
	Decode[RelationshipAttributeNameClassifier]{Code: RelationshipAttributeNameClassifierPermission, ShortDecodeText: "Permission"},
	Decode[RelationshipAttributeNameClassifier]{Code: RelationshipAttributeNameClassifierOther, ShortDecodeText: "Other"},
)

func (c *RelationshipAttributeNameClassifier) UnmarshalJSON(b []byte) error {
	return unmarshal(RelationshipAttributeNameClassifiers, b, c)
}

type RoleStatus string

const (
	RoleStatusActive RoleStatus = "ACTIVE"
)

var RoleStatuses = NewSet("role status",
	Decode[RoleStatus]{Code: RoleStatusActive, ShortDecodeText: "Active"},
)

func (c *RoleStatus) UnmarshalJSON(b []byte) error {
	return unmarshal(RoleStatuses, b, c)
}

type RoleAttributeNameClassifier string

const (
	RoleAttributeNameClassifierAgencyService RoleAttributeNameClassifier = "AGENCY_SERVICE"
	RoleAttributeNameClassifierOther         RoleAttributeNameClassifier = "OTHER"
)

var RoleAttributeNameClassifiers = NewSet("role attribute classifier",
	Decode[RoleAttributeNameClassifier]{Code: RoleAttributeNameClassifierAgencyService, ShortDecodeText: "Agency Service"},
	Decode[RoleAttributeNameClassifier]{Code: RoleAttributeNameClassifierOther, ShortDecodeText: "Other"},
)

func (c *RoleAttributeNameClassifier) UnmarshalJSON(b []byte) error {
	return unmarshal(RoleAttributeNameClassifiers, b, c)
}

type SharedSecretCode string

const (
	SharedSecretCodeDateOfBirth SharedSecretCode = "DATE_OF_BIRTH"
)

var SharedSecretCodes = NewSet("shared secret",
	Decode[SharedSecretCode]{Code: SharedSecretCodeDateOfBirth, ShortDecodeText: "Date of Birth"},
)

func (c *SharedSecretCode) UnmarshalJSON(b []byte) error {
	return unmarshal(SharedSecretCodes, b, c)
}

// unmarshal decodes a JSON string into a member of s. The empty string is
// accepted and leaves the zero value, which callers treat as "not set".
func unmarshal[T ~string](s Set[T], data []byte, v *T) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	if str == "" {
		*v = ""
		return nil
	}
	c, err := s.Parse(str)
	if err != nil {
		return err
	}
	*v = c
	return nil
}
