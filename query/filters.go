package query

import (
	"time"

	"github.com/spf13/cast"
)

// Filters maps filter names to resolved values.
type Filters map[string]interface{}

func (f Filters) Has(name string) bool {
	_, ok := f[name]
	return ok
}

func (f Filters) String(name string) (string, bool) {
	v, ok := f[name]
	if !ok {
		return "", false
	}
	s, err := cast.ToStringE(v)
	return s, err == nil
}

func (f Filters) Bool(name string) bool {
	v, ok := f[name]
	if !ok {
		return false
	}
	return cast.ToBool(v)
}

func (f Filters) Time(name string) (time.Time, bool) {
	v, ok := f[name]
	if !ok {
		return time.Time{}, false
	}
	t, err := cast.ToTimeE(v)
	return t, err == nil
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Page selects a window of results. Numbers start at 1.
type Page struct {
	Number int `schema:"page"`
	Size   int `schema:"pageSize"`
}

// Normalize applies defaults and bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Bounds returns the slice indices of the page within total items.
func (p Page) Bounds(total int) (int, int) {
	p = p.Normalize()
	if p.Number-1 > total/p.Size {
		return total, total
	}
	start := (p.Number - 1) * p.Size
	if start > total {
		start = total
	}
	end := start + p.Size
	if end > total {
		end = total
	}
	return start, end
}

// SearchResult is one page of results together with the total match count.
type SearchResult[T any] struct {
	TotalCount int `json:"totalCount"`
	List       []T `json:"list"`
}

// Paginate slices items according to page.
func Paginate[T any](items []T, page Page) SearchResult[T] {
	start, end := page.Bounds(len(items))
	list := make([]T, end-start)
	copy(list, items[start:end])
	return SearchResult[T]{TotalCount: len(items), List: list}
}
