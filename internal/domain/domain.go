package domain

import (
	"fmt"
	"strings"
)

// CommentWordLimit caps the free-text comment attached to a status change.
const CommentWordLimit = 5

// PersonStatus is one responsible person's view of an activity.
type PersonStatus struct {
	Status                Status `json:"status"`
	Comment               string `json:"comment"`
	Justification         string `json:"justification"`
	JustificationApproved bool   `json:"justification_approved"`
}

// HistoryEntry is an append-only audit record on an activity.
type HistoryEntry struct {
	Timestamp string `json:"timestamp" format:"date-time"`
	Action    string `json:"action"`
	User      string `json:"user"`
	Comment   string `json:"comment"`
}

type Activity struct {
	ID                int                     `json:"id"`
	Title             string                  `json:"title"`
	Description       string                  `json:"description"`
	Deadline          string                  `json:"deadline"`
	Responsible       []string                `json:"responsible"`
	ResponsibleStatus map[string]PersonStatus `json:"responsible_status"`
	CreatedBy         string                  `json:"created_by"`
	CreatedAt         string                  `json:"created_at" format:"date-time"`
	History           []HistoryEntry          `json:"history"`
}

// Collection is the full persisted activity set plus the id counter.
// The counter only moves forward; ids are never reused after deletion.
type Collection struct {
	Activities []Activity `json:"activities"`
	NextID     int        `json:"next_id"`
}

// Registry holds the managers eligible to be assigned as responsible;
// exactly one member is the director once initialized. A zero Registry
// means "not yet initialized".
type Registry struct {
	Managers []string `json:"managers"`
	Director string   `json:"director"`
}

func (r Registry) HasManager(name string) bool {
	for _, m := range r.Managers {
		if m == name {
			return true
		}
	}
	return false
}

func (r Registry) IsDirector(name string) bool {
	return name != "" && name == r.Director
}

// Find returns a pointer into the collection, or nil if the id is unknown.
func (c *Collection) Find(id int) *Activity {
	for i := range c.Activities {
		if c.Activities[i].ID == id {
			return &c.Activities[i]
		}
	}
	return nil
}

// Remove deletes an activity by id and reports whether it was present.
func (c *Collection) Remove(id int) bool {
	for i := range c.Activities {
		if c.Activities[i].ID == id {
			c.Activities = append(c.Activities[:i], c.Activities[i+1:]...)
			return true
		}
	}
	return false
}

func (a Activity) IsResponsible(person string) bool {
	for _, p := range a.Responsible {
		if p == person {
			return true
		}
	}
	return false
}

// Overall derives the activity status from the per-person statuses.
func (a Activity) Overall() Status {
	statuses := make([]Status, 0, len(a.ResponsibleStatus))
	for _, ps := range a.ResponsibleStatus {
		statuses = append(statuses, ps.Status)
	}
	return OverallStatus(statuses)
}

// InitPerson creates the tracker entry for a newly responsible person.
func (a *Activity) InitPerson(person string) {
	if a.ResponsibleStatus == nil {
		a.ResponsibleStatus = map[string]PersonStatus{}
	}
	a.ResponsibleStatus[person] = PersonStatus{Status: StatusPending}
}

// RemovePerson drops the tracker entry. History stays; it is activity-level.
func (a *Activity) RemovePerson(person string) {
	delete(a.ResponsibleStatus, person)
}

// SetPersonStatus updates one person's status. It validates the comment
// length and the Pending-requires-justification rule, clears the stored
// justification when leaving Pending, and always resets the approval flag.
// It returns the prior status for history purposes.
func (a *Activity) SetPersonStatus(person string, status Status, comment, justification string) (Status, error) {
	if !status.Valid() {
		return "", ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", string(status))}
	}
	if err := ValidateComment(comment); err != nil {
		return "", err
	}
	if _, ok := a.ResponsibleStatus[person]; !ok {
		return "", NotFoundError{Kind: "responsible", Ref: person}
	}
	if status == StatusPending && strings.TrimSpace(justification) == "" {
		return "", ValidationError{Field: "justification", Reason: "justification required for pending status"}
	}
	if status != StatusPending {
		justification = ""
	}
	old := a.ResponsibleStatus[person].Status
	a.ResponsibleStatus[person] = PersonStatus{
		Status:        status,
		Comment:       comment,
		Justification: justification,
	}
	return old, nil
}

// AppendHistory records a mutation; entries are never edited or removed.
func (a *Activity) AppendHistory(timestamp, action, user, comment string) {
	a.History = append(a.History, HistoryEntry{
		Timestamp: timestamp,
		Action:    action,
		User:      user,
		Comment:   comment,
	})
}

// ValidateComment enforces the word limit; an empty comment is always valid.
func ValidateComment(comment string) error {
	if words := strings.Fields(comment); len(words) > CommentWordLimit {
		return ValidationError{
			Field:  "comment",
			Reason: fmt.Sprintf("comment must have at most %d words, got %d", CommentWordLimit, len(words)),
		}
	}
	return nil
}
