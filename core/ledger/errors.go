package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("entry not found")
	// ErrAlreadyExists is returned when adding an entry whose identity is taken.
	ErrAlreadyExists = errors.New("entry already exists")
	// ErrNameTaken is returned when a rename collides with an existing entry.
	ErrNameTaken = errors.New("name already taken")
	// ErrMaterialNotFound is returned when a recipe line references a missing raw entry.
	ErrMaterialNotFound = errors.New("recipe material not found")
	// ErrTagNotFound is returned when a tag does not exist in the entry's registry.
	ErrTagNotFound = errors.New("tag not found")
	// ErrInvalidLink is returned when a linked item does not point at the opposite registry.
	ErrInvalidLink = errors.New("invalid linked item")
	// ErrInvalidInput is returned for malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable marks transient store failures (timeouts, lost connections).
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

// Shortfall describes one material that cannot cover a consumption.
type Shortfall struct {
	Material  string `json:"material"`
	Available int    `json:"available"`
	Needed    int    `json:"needed"`
	Deficit   int    `json:"deficit"`
}

// String renders the shortfall the way it is shown to users.
func (s Shortfall) String() string {
	return fmt.Sprintf("%s: available %d, needed %d, deficit %d", s.Material, s.Available, s.Needed, s.Deficit)
}

// InsufficientMaterialsError lists every material line that cannot be covered.
type InsufficientMaterialsError struct {
	Result     Identity
	Shortfalls []Shortfall
}

func (e *InsufficientMaterialsError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("insufficient materials for %s: %s", e.Result, strings.Join(parts, "; "))
}

// AlreadyAssignedError is returned when another user holds the entry.
type AlreadyAssignedError struct {
	Entry  Identity
	Holder Assignment
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("%s is already assigned to %s", e.Entry, e.Holder.UserName)
}

// PartialApplyError reports a batch that applied only in part. It is never
// retried automatically.
type PartialApplyError struct {
	Applied    int
	Submitted  int
	AppliedOps []UpdateOp
	FailedOps  []UpdateOp
	// Cause is set when a transient failure interrupted the batch.
	Cause error
}

func (e *PartialApplyError) Error() string {
	msg := fmt.Sprintf("partial apply: %d of %d ops applied", e.Applied, e.Submitted)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PartialApplyError) Unwrap() error {
	return e.Cause
}

// Message maps an error from this package to the single line a front-end
// shows to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var short *InsufficientMaterialsError
	if errors.As(err, &short) {
		lines := make([]string, 0, len(short.Shortfalls)+1)
		lines = append(lines, fmt.Sprintf("Not enough materials to craft %s.", short.Result.Name))
		for _, s := range short.Shortfalls {
			lines = append(lines, s.String())
		}
		return strings.Join(lines, "\n")
	}

	var assigned *AlreadyAssignedError
	if errors.As(err, &assigned) {
		return fmt.Sprintf("%s is already being worked on by %s.", assigned.Entry.Name, assigned.Holder.UserName)
	}

	var partial *PartialApplyError
	if errors.As(err, &partial) {
		return "Some changes may not have been saved, please re-check."
	}

	switch {
	case errors.Is(err, ErrAlreadyExists):
		return "An entry with that name already exists."
	case errors.Is(err, ErrNameTaken):
		return "That name is already taken."
	case errors.Is(err, ErrMaterialNotFound):
		return "A recipe material does not exist: " + err.Error()
	case errors.Is(err, ErrTagNotFound):
		return "That tag does not exist."
	case errors.Is(err, ErrNotFound):
		return "The entry could not be found."
	case errors.Is(err, ErrInvalidLink):
		return "Linked items must point at the other registry."
	case errors.Is(err, ErrInvalidInput):
		return "Invalid input: " + err.Error()
	case errors.Is(err, ErrStoreUnavailable):
		return "The ledger is temporarily unavailable, please try again."
	default:
		return "Something went wrong."
	}
}
