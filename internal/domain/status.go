package domain

import "fmt"

// Status is one person's progress state on an activity. The wire form is
// the lowercase snake value; Label gives the human form for display.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusNotApplicable Status = "not_applicable"
)

// AllStatuses lists every valid status in display order.
var AllStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNotApplicable,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled, StatusNotApplicable:
		return true
	}
	return false
}

// Label returns the display name for the status.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusNotApplicable:
		return "Not Applicable"
	}
	return string(s)
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

// OverallStatus aggregates per-person statuses into one activity status.
// The result does not depend on input order:
//
//	no statuses                          -> Pending
//	all Completed                        -> Completed
//	all Cancelled or NotApplicable       -> Cancelled
//	any InProgress                       -> InProgress
//	otherwise                            -> Pending
func OverallStatus(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusPending
	}
	allCompleted := true
	allInactive := true
	anyInProgress := false
	for _, s := range statuses {
		if s != StatusCompleted {
			allCompleted = false
		}
		if s != StatusCancelled && s != StatusNotApplicable {
			allInactive = false
		}
		if s == StatusInProgress {
			anyInProgress = true
		}
	}
	switch {
	case allCompleted:
		return StatusCompleted
	case allInactive:
		return StatusCancelled
	case anyInProgress:
		return StatusInProgress
	}
	return StatusPending
}
