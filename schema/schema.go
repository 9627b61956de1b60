// Package schema validates the JSON documents accepted when parties and
// relationships are created.
package schema

import (
	"embed"
	"fmt"

	"github.com/JiscSD/ram-relationships/model"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var files embed.FS

// Document names a JSON schema.
type Document string

const (
	PartyDocument        Document = "party"
	RelationshipDocument Document = "relationship"
)

var schemas = map[Document]*gojsonschema.Schema{}

func init() {
	for _, doc := range Documents() {
		blob, err := files.ReadFile("schemas/" + string(doc) + ".json")
		if err != nil {
			panic(err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(blob))
		if err != nil {
			panic(fmt.Sprintf("schema %s cannot be compiled: %v", doc, err))
		}
		schemas[doc] = s
	}
}

// Documents lists the documents with a schema.
func Documents() []Document {
	return []Document{PartyDocument, RelationshipDocument}
}

// Source returns the raw schema of doc.
func Source(doc Document) ([]byte, error) {
	if _, ok := schemas[doc]; !ok {
		return nil, errors.Errorf("unknown document %q", doc)
	}
	return files.ReadFile("schemas/" + string(doc) + ".json")
}

// Validate checks data against the schema of doc. Issues are reported as a
// *model.ValidationError with one message per issue.
func Validate(doc Document, data []byte) error {
	s, ok := schemas[doc]
	if !ok {
		return errors.Errorf("unknown document %q", doc)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return model.NewValidationError("document is not valid JSON: " + err.Error())
	}
	if result.Valid() {
		return nil
	}
	messages := make([]string, 0, len(result.Errors()))
	for _, issue := range result.Errors() {
		messages = append(messages, issue.String())
	}
	return model.NewValidationError(messages...)
}
