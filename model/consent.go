package model

// LegislativeProgram is a government program under which agencies observe
// relationships.
type LegislativeProgram struct {
	Name string `json:"name" dynamodbav:"name"`
}

// Consent records that a party agreed to share data with the agencies that
// administer a legislative program.
type Consent struct {
	VersionedEntity
	LegislativeProgram LegislativeProgram `json:"legislativeProgram" dynamodbav:"legislativeProgram"`
}

// Agency is an observer of relationships.
type Agency struct {
	ID                  EntityID             `json:"id" dynamodbav:"id"`
	Name                string               `json:"name" dynamodbav:"name"`
	LegislativePrograms []LegislativeProgram `json:"legislativePrograms" dynamodbav:"legislativePrograms"`
}

func (a Agency) ProgramNames() []string {
	names := make([]string, len(a.LegislativePrograms))
	for i, p := range a.LegislativePrograms {
		names[i] = p.Name
	}
	return names
}
