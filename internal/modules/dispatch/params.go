// README: Hot-swappable dispatch parameters for the admin surface.
package dispatch

import (
	"sync/atomic"

	"dispatch/internal/config"
)

// ParamStore holds the live DispatchParams. Readers load a consistent copy;
// the admin surface validates and swaps the whole set atomically, so a
// dispatch in flight keeps the parameters it started its round with.
type ParamStore struct {
	p atomic.Pointer[config.DispatchParams]
}

func NewParamStore(p config.DispatchParams) *ParamStore {
	s := &ParamStore{}
	s.p.Store(&p)
	return s
}

// Load returns the current parameter set by value.
func (s *ParamStore) Load() config.DispatchParams {
	return *s.p.Load()
}

// Update validates and installs a new parameter set.
func (s *ParamStore) Update(p config.DispatchParams) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.p.Store(&p)
	return nil
}
