// Package registry manages the set of managers eligible to be assigned
// to activities, one of whom is the director. The registry is read from
// the store on every call so edits made by the CLI are visible to a
// running server without a restart.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"actionboard/internal/domain"
	"actionboard/internal/store"
)

type Service struct {
	Store store.Store
}

func New(s store.Store) *Service {
	return &Service{Store: s}
}

// Snapshot returns the current registry. A zero-valued result means the
// registry has not been initialized yet.
func (s *Service) Snapshot(ctx context.Context) (domain.Registry, error) {
	return s.Store.LoadRegistry(ctx)
}

func (s *Service) IsDirector(ctx context.Context, name string) (bool, error) {
	r, err := s.Store.LoadRegistry(ctx)
	if err != nil {
		return false, err
	}
	return r.IsDirector(name), nil
}

func (s *Service) IsManager(ctx context.Context, name string) (bool, error) {
	r, err := s.Store.LoadRegistry(ctx)
	if err != nil {
		return false, err
	}
	return r.HasManager(name), nil
}

// Init seeds the registry with a director and an optional initial set of
// managers. It refuses to run twice.
func (s *Service) Init(ctx context.Context, director string, managers []string) error {
	director = strings.TrimSpace(director)
	if director == "" {
		return domain.ValidationError{Field: "director", Reason: "director name is required"}
	}
	r, err := s.Store.LoadRegistry(ctx)
	if err != nil {
		return err
	}
	if r.Director != "" {
		return domain.InvalidStateError{Reason: fmt.Sprintf("registry already initialized with director %s", r.Director)}
	}
	seen := map[string]bool{}
	all := []string{}
	for _, m := range append([]string{director}, managers...) {
		m = strings.TrimSpace(m)
		if m == "" {
			return domain.ValidationError{Field: "managers", Reason: "manager name must not be empty"}
		}
		if seen[m] {
			return domain.ValidationError{Field: "managers", Reason: fmt.Sprintf("duplicate manager %s", m)}
		}
		seen[m] = true
		all = append(all, m)
	}
	sort.Strings(all)
	return s.Store.SaveRegistry(ctx, domain.Registry{Managers: all, Director: director})
}

// Add registers a new manager, keeping the list sorted.
func (s *Service) Add(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ValidationError{Field: "name", Reason: "manager name is required"}
	}
	r, err := s.Store.LoadRegistry(ctx)
	if err != nil {
		return err
	}
	if r.Director == "" {
		return domain.InvalidStateError{Reason: "registry not initialized"}
	}
	if r.HasManager(name) {
		return domain.ValidationError{Field: "name", Reason: fmt.Sprintf("manager %s already registered", name)}
	}
	r.Managers = append(r.Managers, name)
	sort.Strings(r.Managers)
	return s.Store.SaveRegistry(ctx, r)
}

// Remove deregisters a manager. The director cannot be removed, and
// neither can anyone still responsible for an activity.
func (s *Service) Remove(ctx context.Context, name string) error {
	r, err := s.Store.LoadRegistry(ctx)
	if err != nil {
		return err
	}
	if !r.HasManager(name) {
		return domain.NotFoundError{Kind: "manager", Ref: name}
	}
	if r.IsDirector(name) {
		return domain.InvalidStateError{Reason: "the director cannot be removed"}
	}
	c, err := s.Store.LoadActivities(ctx)
	if err != nil {
		return err
	}
	for _, a := range c.Activities {
		if a.IsResponsible(name) {
			return domain.InvalidStateError{Reason: fmt.Sprintf("%s is responsible for activity %d", name, a.ID)}
		}
	}
	kept := r.Managers[:0]
	for _, m := range r.Managers {
		if m != name {
			kept = append(kept, m)
		}
	}
	r.Managers = kept
	return s.Store.SaveRegistry(ctx, r)
}

// Counts returns, for every registered manager, how many activities they
// are responsible for.
func (s *Service) Counts(ctx context.Context) (map[string]int, error) {
	r, err := s.Store.LoadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.Store.LoadActivities(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(r.Managers))
	for _, m := range r.Managers {
		counts[m] = 0
	}
	for _, a := range c.Activities {
		for _, p := range a.Responsible {
			if _, ok := counts[p]; ok {
				counts[p]++
			}
		}
	}
	return counts, nil
}
