// Package query assembles search filters whose values may have to be resolved
// asynchronously, e.g. by looking up another entity first.
package query

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Resolver produces the value of a filter fragment.
type Resolver func(ctx context.Context) (interface{}, error)

// Value returns a Resolver for a value that is already known.
func Value(v interface{}) Resolver {
	return func(context.Context) (interface{}, error) {
		return v, nil
	}
}

// Builder collects conditional filter fragments. Fragments are only started
// by Build, and a name registered more than once keeps the last fragment.
//
// Builders are not safe for concurrent registration.
type Builder struct {
	names     []string
	resolvers map[string]Resolver
}

func New() *Builder {
	return &Builder{resolvers: make(map[string]Resolver)}
}

// When registers fn under name if cond holds.
func (b *Builder) When(cond bool, name string, fn Resolver) *Builder {
	if !cond {
		return b
	}
	if _, ok := b.resolvers[name]; !ok {
		b.names = append(b.names, name)
	}
	b.resolvers[name] = fn
	return b
}

// WhenNotEmpty registers fn under name if s is not empty.
func (b *Builder) WhenNotEmpty(s string, name string, fn Resolver) *Builder {
	return b.When(s != "", name, fn)
}

// Len returns the number of registered fragments.
func (b *Builder) Len() int {
	return len(b.names)
}

// Build resolves every fragment concurrently and returns the filters once all
// of them have succeeded. The first failure is returned and the context given
// to the remaining resolvers is cancelled; no partial result is produced.
func (b *Builder) Build(ctx context.Context) (Filters, error) {
	filters := make(Filters, len(b.names))
	if len(b.names) == 0 {
		return filters, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range b.names {
		name, fn := name, b.resolvers[name]
		g.Go(func() error {
			v, err := fn(gctx)
			if err != nil {
				return errors.Wrapf(err, "resolving %s", name)
			}
			mu.Lock()
			filters[name] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}
