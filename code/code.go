// Package code implements closed sets of enumerated codes. Every category is
// declared once at package initialisation and looked up by its exact code
// string. Codes are persisted and exchanged as their string form.
package code

import (
	"fmt"

	"github.com/pkg/errors"
)

// Decode describes a single code value.
type Decode[T ~string] struct {
	Code            T
	ShortDecodeText string
	LongDecodeText  string
}

// Set is an ordered, immutable table of codes.
type Set[T ~string] struct {
	name    string
	decodes []Decode[T]
	index   map[string]int
}

// NewSet returns a set holding the given decodes in declaration order. It
// panics when a code is declared twice, which can only happen at init time.
func NewSet[T ~string](name string, decodes ...Decode[T]) Set[T] {
	s := Set[T]{
		name:    name,
		decodes: make([]Decode[T], 0, len(decodes)),
		index:   make(map[string]int, len(decodes)),
	}
	for _, d := range decodes {
		if _, ok := s.index[string(d.Code)]; ok {
			panic(fmt.Sprintf("code: duplicated code %q in %s", d.Code, name))
		}
		if d.LongDecodeText == "" {
			d.LongDecodeText = d.ShortDecodeText
		}
		s.index[string(d.Code)] = len(s.decodes)
		s.decodes = append(s.decodes, d)
	}
	return s
}

// Name of the code category.
func (s Set[T]) Name() string {
	return s.name
}

// Values returns every code in declaration order.
func (s Set[T]) Values() []T {
	values := make([]T, len(s.decodes))
	for i, d := range s.decodes {
		values[i] = d.Code
	}
	return values
}

// ValueStrings returns the code strings in declaration order.
func (s Set[T]) ValueStrings() []string {
	values := make([]string, len(s.decodes))
	for i, d := range s.decodes {
		values[i] = string(d.Code)
	}
	return values
}

// ValueOf looks up a code. The comparison is exact and case-sensitive.
func (s Set[T]) ValueOf(c string) (T, bool) {
	i, ok := s.index[c]
	if !ok {
		var zero T
		return zero, false
	}
	return s.decodes[i].Code, true
}

// Decode returns the full description of a code.
func (s Set[T]) Decode(c T) (Decode[T], bool) {
	i, ok := s.index[string(c)]
	if !ok {
		return Decode[T]{}, false
	}
	return s.decodes[i], true
}

// ShortDecodeText returns the short display text or an empty string when the
// code is not part of the set.
func (s Set[T]) ShortDecodeText(c T) string {
	d, _ := s.Decode(c)
	return d.ShortDecodeText
}

// Contains reports whether c is a member of the set.
func (s Set[T]) Contains(c T) bool {
	_, ok := s.index[string(c)]
	return ok
}

// Parse is like ValueOf but returns a descriptive error.
func (s Set[T]) Parse(c string) (T, error) {
	v, ok := s.ValueOf(c)
	if !ok {
		return v, errors.Errorf("%q is not a valid %s", c, s.name)
	}
	return v, nil
}
