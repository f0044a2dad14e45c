// Package engine implements the activity repository: every mutation is a
// full load-validate-mutate-save cycle over the persisted collection,
// serialized behind one mutex so two writers never interleave.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"actionboard/internal/domain"
	"actionboard/internal/registry"
	"actionboard/internal/store"
)

type Engine struct {
	Store    store.Store
	Registry *registry.Service
	Logger   *log.Logger

	// Now is the clock; tests override it.
	Now func() time.Time

	mu sync.Mutex
}

func New(s store.Store, reg *registry.Service, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		Store:    s,
		Registry: reg,
		Logger:   logger,
		Now:      time.Now,
	}
}

func (e *Engine) timestamp() string {
	return e.Now().UTC().Format(time.RFC3339)
}

type CreateOptions struct {
	Title       string
	Description string
	Deadline    string
	Responsible []string
	Actor       string
}

type StatusUpdateOptions struct {
	ID            int
	Person        string
	Status        domain.Status
	Comment       string
	Justification string
	Actor         string
}

// Decision is the director's verdict on a pending justification.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type ReviewOptions struct {
	ID       int
	Person   string
	Decision Decision
	Comment  string
	Actor    string
}

type EditOptions struct {
	ID          int
	Title       string
	Description string
	Deadline    string
	Responsible []string
	Actor       string
}

// PendingJustification is one item on the director's review queue.
type PendingJustification struct {
	ActivityID    int
	Title         string
	Person        string
	Justification string
	Comment       string
}

// Create validates the fields, assigns the next id and persists the new
// activity. Ids are never reused, even after deletion.
func (e *Engine) Create(ctx context.Context, opts CreateOptions) (domain.Activity, error) {
	if err := validateFields(opts.Title, opts.Description, opts.Deadline); err != nil {
		return domain.Activity{}, err
	}
	if err := e.validateResponsible(ctx, opts.Responsible); err != nil {
		return domain.Activity{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	id := c.NextID
	for _, a := range c.Activities {
		if a.ID >= id {
			id = a.ID + 1
		}
	}
	now := e.timestamp()
	act := domain.Activity{
		ID:          id,
		Title:       opts.Title,
		Description: opts.Description,
		Deadline:    opts.Deadline,
		Responsible: append([]string(nil), opts.Responsible...),
		CreatedBy:   opts.Actor,
		CreatedAt:   now,
	}
	for _, p := range act.Responsible {
		act.InitPerson(p)
	}
	act.AppendHistory(now, "Created", opts.Actor, "")

	c.Activities = append(c.Activities, act)
	c.NextID = id + 1
	if err := e.Store.SaveActivities(ctx, c); err != nil {
		return domain.Activity{}, err
	}
	e.Logger.Printf("engine: activity %d created by %s", id, opts.Actor)
	return act, nil
}

// UpdateStatus changes one person's status. Only that person or the
// director may do it.
func (e *Engine) UpdateStatus(ctx context.Context, opts StatusUpdateOptions) (domain.Activity, error) {
	if opts.Actor != opts.Person {
		ok, err := e.Registry.IsDirector(ctx, opts.Actor)
		if err != nil {
			return domain.Activity{}, err
		}
		if !ok {
			return domain.Activity{}, domain.PermissionError{Actor: opts.Actor, Action: fmt.Sprintf("change the status of %s", opts.Person)}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	act := c.Find(opts.ID)
	if act == nil {
		return domain.Activity{}, domain.NotFoundError{Kind: "activity", Ref: fmt.Sprint(opts.ID)}
	}
	old, err := act.SetPersonStatus(opts.Person, opts.Status, opts.Comment, opts.Justification)
	if err != nil {
		return domain.Activity{}, err
	}
	act.AppendHistory(e.timestamp(),
		fmt.Sprintf("%s: status changed from %s to %s", opts.Person, old, opts.Status),
		opts.Actor, opts.Comment)

	if err := e.Store.SaveActivities(ctx, c); err != nil {
		return domain.Activity{}, err
	}
	return *act, nil
}

// Review approves or rejects a pending justification. Director only.
// Approving requires a justification awaiting review; approving twice
// fails rather than silently appending a duplicate history entry.
// Rejecting forces the person's status back to InProgress and leaves the
// justification text in place for the record.
func (e *Engine) Review(ctx context.Context, opts ReviewOptions) (domain.Activity, error) {
	if opts.Decision != DecisionApprove && opts.Decision != DecisionReject {
		return domain.Activity{}, domain.ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", string(opts.Decision))}
	}
	if err := domain.ValidateComment(opts.Comment); err != nil {
		return domain.Activity{}, err
	}
	ok, err := e.Registry.IsDirector(ctx, opts.Actor)
	if err != nil {
		return domain.Activity{}, err
	}
	if !ok {
		return domain.Activity{}, domain.PermissionError{Actor: opts.Actor, Action: "review justifications"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	act := c.Find(opts.ID)
	if act == nil {
		return domain.Activity{}, domain.NotFoundError{Kind: "activity", Ref: fmt.Sprint(opts.ID)}
	}
	ps, okPerson := act.ResponsibleStatus[opts.Person]
	if !okPerson {
		return domain.Activity{}, domain.NotFoundError{Kind: "responsible", Ref: opts.Person}
	}
	if ps.Status != domain.StatusPending || ps.Justification == "" || ps.JustificationApproved {
		return domain.Activity{}, domain.InvalidStateError{Reason: fmt.Sprintf("%s has no justification awaiting review", opts.Person)}
	}

	switch opts.Decision {
	case DecisionApprove:
		ps.JustificationApproved = true
		act.ResponsibleStatus[opts.Person] = ps
		act.AppendHistory(e.timestamp(),
			fmt.Sprintf("justification of %s approved", opts.Person),
			opts.Actor, opts.Comment)
	case DecisionReject:
		ps.Status = domain.StatusInProgress
		ps.JustificationApproved = false
		act.ResponsibleStatus[opts.Person] = ps
		act.AppendHistory(e.timestamp(),
			fmt.Sprintf("justification of %s rejected, status reset to %s", opts.Person, domain.StatusInProgress),
			opts.Actor, opts.Comment)
	}

	if err := e.Store.SaveActivities(ctx, c); err != nil {
		return domain.Activity{}, err
	}
	return *act, nil
}

// Edit replaces the activity's fields. Director only. Newly responsible
// people start at Pending; removed people lose their per-person entry
// while the activity-level history stays intact.
func (e *Engine) Edit(ctx context.Context, opts EditOptions) (domain.Activity, error) {
	if err := validateFields(opts.Title, opts.Description, opts.Deadline); err != nil {
		return domain.Activity{}, err
	}
	if err := e.validateResponsible(ctx, opts.Responsible); err != nil {
		return domain.Activity{}, err
	}
	ok, err := e.Registry.IsDirector(ctx, opts.Actor)
	if err != nil {
		return domain.Activity{}, err
	}
	if !ok {
		return domain.Activity{}, domain.PermissionError{Actor: opts.Actor, Action: "edit activities"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	act := c.Find(opts.ID)
	if act == nil {
		return domain.Activity{}, domain.NotFoundError{Kind: "activity", Ref: fmt.Sprint(opts.ID)}
	}

	var changed []string
	if act.Title != opts.Title {
		changed = append(changed, "title")
	}
	if act.Description != opts.Description {
		changed = append(changed, "description")
	}
	if act.Deadline != opts.Deadline {
		changed = append(changed, "deadline")
	}
	added, removed := diffResponsible(act.Responsible, opts.Responsible)
	if len(added) > 0 || len(removed) > 0 {
		var parts []string
		for _, p := range added {
			parts = append(parts, "+"+p)
		}
		for _, p := range removed {
			parts = append(parts, "-"+p)
		}
		changed = append(changed, fmt.Sprintf("responsible (%s)", strings.Join(parts, ", ")))
	}
	if len(changed) == 0 {
		return *act, nil
	}

	act.Title = opts.Title
	act.Description = opts.Description
	act.Deadline = opts.Deadline
	act.Responsible = append([]string(nil), opts.Responsible...)
	for _, p := range added {
		act.InitPerson(p)
	}
	for _, p := range removed {
		act.RemovePerson(p)
	}
	act.AppendHistory(e.timestamp(),
		"activity edited: "+strings.Join(changed, ", "),
		opts.Actor, "")

	if err := e.Store.SaveActivities(ctx, c); err != nil {
		return domain.Activity{}, err
	}
	return *act, nil
}

// Delete removes the activity and its history for good. Director only.
func (e *Engine) Delete(ctx context.Context, id int, actor string) error {
	ok, err := e.Registry.IsDirector(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return domain.PermissionError{Actor: actor, Action: "delete activities"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return err
	}
	if !c.Remove(id) {
		return domain.NotFoundError{Kind: "activity", Ref: fmt.Sprint(id)}
	}
	if err := e.Store.SaveActivities(ctx, c); err != nil {
		return err
	}
	e.Logger.Printf("engine: activity %d deleted by %s", id, actor)
	return nil
}

// ListFor returns the activities visible to user: everything for the
// director, otherwise only those the user is responsible for.
func (e *Engine) ListFor(ctx context.Context, user string) ([]domain.Activity, error) {
	director, err := e.Registry.IsDirector(ctx, user)
	if err != nil {
		return nil, err
	}
	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return nil, err
	}
	if director {
		return c.Activities, nil
	}
	visible := []domain.Activity{}
	for _, a := range c.Activities {
		if a.IsResponsible(user) {
			visible = append(visible, a)
		}
	}
	return visible, nil
}

// Get returns one activity if user may see it.
func (e *Engine) Get(ctx context.Context, id int, user string) (domain.Activity, error) {
	director, err := e.Registry.IsDirector(ctx, user)
	if err != nil {
		return domain.Activity{}, err
	}
	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return domain.Activity{}, err
	}
	act := c.Find(id)
	if act == nil {
		return domain.Activity{}, domain.NotFoundError{Kind: "activity", Ref: fmt.Sprint(id)}
	}
	if !director && !act.IsResponsible(user) {
		return domain.Activity{}, domain.PermissionError{Actor: user, Action: fmt.Sprintf("view activity %d", id)}
	}
	return *act, nil
}

// PendingJustifications lists every justification awaiting the
// director's review, ordered by activity id then person.
func (e *Engine) PendingJustifications(ctx context.Context, actor string) ([]PendingJustification, error) {
	ok, err := e.Registry.IsDirector(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.PermissionError{Actor: actor, Action: "review justifications"}
	}
	c, err := e.Store.LoadActivities(ctx)
	if err != nil {
		return nil, err
	}
	pending := []PendingJustification{}
	for _, a := range c.Activities {
		people := make([]string, 0, len(a.ResponsibleStatus))
		for p := range a.ResponsibleStatus {
			people = append(people, p)
		}
		sort.Strings(people)
		for _, p := range people {
			ps := a.ResponsibleStatus[p]
			if ps.Status == domain.StatusPending && ps.Justification != "" && !ps.JustificationApproved {
				pending = append(pending, PendingJustification{
					ActivityID:    a.ID,
					Title:         a.Title,
					Person:        p,
					Justification: ps.Justification,
					Comment:       ps.Comment,
				})
			}
		}
	}
	return pending, nil
}

func validateFields(title, description, deadline string) error {
	if strings.TrimSpace(title) == "" {
		return domain.ValidationError{Field: "title", Reason: "title is required"}
	}
	if strings.TrimSpace(description) == "" {
		return domain.ValidationError{Field: "description", Reason: "description is required"}
	}
	if strings.TrimSpace(deadline) == "" {
		return domain.ValidationError{Field: "deadline", Reason: "deadline is required"}
	}
	if _, err := time.Parse("2006-01-02", deadline); err != nil {
		return domain.ValidationError{Field: "deadline", Reason: fmt.Sprintf("deadline %q is not a YYYY-MM-DD date", deadline)}
	}
	return nil
}

func (e *Engine) validateResponsible(ctx context.Context, responsible []string) error {
	if len(responsible) == 0 {
		return domain.ValidationError{Field: "responsible", Reason: "at least one responsible person is required"}
	}
	reg, err := e.Registry.Snapshot(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, p := range responsible {
		if seen[p] {
			return domain.ValidationError{Field: "responsible", Reason: fmt.Sprintf("duplicate responsible %s", p)}
		}
		seen[p] = true
		if !reg.HasManager(p) {
			return domain.ValidationError{Field: "responsible", Reason: fmt.Sprintf("%s is not a registered manager", p)}
		}
	}
	return nil
}

func diffResponsible(old, new []string) (added, removed []string) {
	oldSet := map[string]bool{}
	for _, p := range old {
		oldSet[p] = true
	}
	newSet := map[string]bool{}
	for _, p := range new {
		newSet[p] = true
		if !oldSet[p] {
			added = append(added, p)
		}
	}
	for _, p := range old {
		if !newSet[p] {
			removed = append(removed, p)
		}
	}
	return added, removed
}
