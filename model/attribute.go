package model

import (
	"fmt"
)

// Namable pairs the stable machine name with its display text.
type Namable struct {
	MachineName string `json:"machineName" dynamodbav:"machineName"`
	HumanName   string `json:"humanName" dynamodbav:"humanName"`
}

type AttributeValue struct {
	MachineName string `json:"machineName" dynamodbav:"machineName"`
	Value       string `json:"value" dynamodbav:"value"`
}

// SharableAttributeValue is an attribute that carries its own agency sharing
// list on top of the one held by its owner.
type SharableAttributeValue struct {
	AttributeValue
	Sharing []EntityID `json:"sharing,omitempty" dynamodbav:"sharing,omitempty"`
}

type EntityWithAttributes struct {
	EntityWithAttributeDefID EntityID         `json:"entityWithAttributeDefId" dynamodbav:"entityWithAttributeDefId"`
	Attributes               []AttributeValue `json:"attributes,omitempty" dynamodbav:"attributes,omitempty"`
}

// Attribute returns the value stored under name.
func (e EntityWithAttributes) Attribute(name string) (string, bool) {
	for _, a := range e.Attributes {
		if a.MachineName == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttribute replaces the value stored under name or appends it.
func (e *EntityWithAttributes) SetAttribute(name, value string) {
	for i := range e.Attributes {
		if e.Attributes[i].MachineName == name {
			e.Attributes[i].Value = value
			return
		}
	}
	e.Attributes = append(e.Attributes, AttributeValue{MachineName: name, Value: value})
}

func (e EntityWithAttributes) validate() []string {
	names := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		names[i] = a.MachineName
	}
	return checkMachineNames(names)
}

func (e EntityWithAttributes) clone() EntityWithAttributes {
	e.Attributes = append([]AttributeValue(nil), e.Attributes...)
	return e
}

// SharableEntityWithAttributes is an entity with attributes whose visibility
// is restricted to the agencies listed in Sharing.
type SharableEntityWithAttributes struct {
	EntityWithAttributeDefID EntityID                 `json:"entityWithAttributeDefId" dynamodbav:"entityWithAttributeDefId"`
	Attributes               []SharableAttributeValue `json:"attributes,omitempty" dynamodbav:"attributes,omitempty"`
	Sharing                  []EntityID               `json:"sharing,omitempty" dynamodbav:"sharing,omitempty"`
}

func (e SharableEntityWithAttributes) Attribute(name string) (string, bool) {
	for _, a := range e.Attributes {
		if a.MachineName == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e *SharableEntityWithAttributes) SetAttribute(name, value string) {
	for i := range e.Attributes {
		if e.Attributes[i].MachineName == name {
			e.Attributes[i].Value = value
			return
		}
	}
	e.Attributes = append(e.Attributes, SharableAttributeValue{
		AttributeValue: AttributeValue{MachineName: name, Value: value},
	})
}

// SharedWith reports whether agency appears in the sharing list.
func (e SharableEntityWithAttributes) SharedWith(agency EntityID) bool {
	for _, id := range e.Sharing {
		if id == agency {
			return true
		}
	}
	return false
}

func (e SharableEntityWithAttributes) plain() []AttributeValue {
	values := make([]AttributeValue, len(e.Attributes))
	for i, a := range e.Attributes {
		values[i] = a.AttributeValue
	}
	return values
}

func (e SharableEntityWithAttributes) validate() []string {
	names := make([]string, len(e.Attributes))
	for i, a := range e.Attributes {
		names[i] = a.MachineName
	}
	return checkMachineNames(names)
}

func (e SharableEntityWithAttributes) clone() SharableEntityWithAttributes {
	attrs := make([]SharableAttributeValue, len(e.Attributes))
	for i, a := range e.Attributes {
		a.Sharing = cloneIDs(a.Sharing)
		attrs[i] = a
	}
	if e.Attributes == nil {
		attrs = nil
	}
	e.Attributes = attrs
	e.Sharing = cloneIDs(e.Sharing)
	return e
}

// AttributeDef declares one attribute an entity type accepts.
type AttributeDef struct {
	Namable
	ListOfAcceptableOptions []string `json:"listOfAcceptableOptions,omitempty" dynamodbav:"listOfAcceptableOptions,omitempty"`
	IsFreeText              bool     `json:"isFreeText" dynamodbav:"isFreeText"`
	IsRequired              bool     `json:"isRequired" dynamodbav:"isRequired"`
}

// EntityWithAttributeDef is the type definition an EntityWithAttributes
// refers to through EntityWithAttributeDefID.
type EntityWithAttributeDef struct {
	VersionedEntity
	Namable
	ListOfAttributes []AttributeDef `json:"listOfAttributes,omitempty" dynamodbav:"listOfAttributes,omitempty"`
}

// Check validates attribute values against the definition: required values
// must be present, closed lists must contain the value and names must be
// declared.
func (d EntityWithAttributeDef) Check(values []AttributeValue) error {
	var c checker
	names := make([]string, len(values))
	byName := make(map[string]string, len(values))
	for i, v := range values {
		names[i] = v.MachineName
		byName[v.MachineName] = v.Value
	}
	c.merge(checkMachineNames(names))

	declared := make(map[string]bool, len(d.ListOfAttributes))
	for _, def := range d.ListOfAttributes {
		declared[def.MachineName] = true
		value, ok := byName[def.MachineName]
		if !ok || value == "" {
			c.check(!def.IsRequired, "attribute %s is required by %s", def.MachineName, d.MachineName)
			continue
		}
		if !def.IsFreeText && len(def.ListOfAcceptableOptions) > 0 {
			c.check(contains(def.ListOfAcceptableOptions, value), "attribute %s does not accept %q", def.MachineName, value)
		}
	}
	for _, n := range names {
		c.check(declared[n], "attribute %s is not defined by %s", n, d.MachineName)
	}
	return c.err()
}

func checkMachineNames(names []string) []string {
	var messages []string
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			messages = append(messages, "attribute machine name is empty")
			continue
		}
		if seen[n] {
			messages = append(messages, fmt.Sprintf("attribute %s is duplicated", n))
		}
		seen[n] = true
	}
	return messages
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
