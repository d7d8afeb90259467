package chore

import (
	"errors"
	"fmt"

	"github.com/hearthside/chorebank/internal/model"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusApproved  Status = "approved"
	StatusHelp      Status = "help"
	StatusMissed    Status = "missed"
	StatusSkipped   Status = "skipped"
)

var (
	// ErrInvalidTransition means the requested move is not legal for any actor.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotAuthorized means the move is legal but this actor may not make it.
	ErrNotAuthorized = errors.New("actor not authorized for this transition")
)

// Actor identifies who is requesting a transition.
type Actor struct {
	ID   int64
	Role model.Role
}

func (a Actor) privileged() bool { return a.Role.Privileged() }

// legalTargets enumerates every transition any actor could make. Pairs not
// listed here are invalid regardless of role.
var legalTargets = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusApproved, StatusHelp, StatusMissed, StatusSkipped},
	StatusCompleted: {StatusApproved, StatusPending},
	StatusApproved:  {StatusPending, StatusCompleted},
	StatusHelp:      {StatusApproved, StatusSkipped, StatusPending},
	StatusMissed:    {StatusPending},
	StatusSkipped:   {StatusPending},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusApproved, StatusHelp, StatusMissed, StatusSkipped:
		return true
	}
	return false
}

// Resolve validates the requested transition against the current log and the
// actor's role, and returns the effective resulting status. The result can
// differ from the request: completing an auto-approve chore lands directly
// on approved.
//
// Resolve is pure; the caller owns stamping completion/approval metadata and
// persisting the change.
func Resolve(def model.ChoreDefinition, log model.ChoreLog, desired Status, actor Actor) (Status, error) {
	if !desired.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, desired)
	}
	from := Status(log.Status)
	if !from.Valid() {
		return "", fmt.Errorf("%w: log has unknown status %q", ErrInvalidTransition, log.Status)
	}

	if !targetLegal(from, desired) {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, desired)
	}

	switch from {
	case StatusPending:
		switch desired {
		case StatusCompleted, StatusApproved:
			// Anyone may complete; auto-approve skips manual review.
			if def.AutoApprove {
				return StatusApproved, nil
			}
			return StatusCompleted, nil
		case StatusHelp:
			return StatusHelp, nil
		case StatusMissed, StatusSkipped:
			if !actor.privileged() {
				return "", transitionDenied(from, desired)
			}
			return desired, nil
		}

	case StatusCompleted:
		switch desired {
		case StatusApproved:
			if !actor.privileged() {
				return "", transitionDenied(from, desired)
			}
			return StatusApproved, nil
		case StatusPending:
			// A member may take back their own not-yet-approved completion.
			if !actor.privileged() && !completedBy(log, actor) {
				return "", transitionDenied(from, desired)
			}
			return StatusPending, nil
		}

	case StatusApproved:
		switch desired {
		case StatusPending:
			// Parents always; the member only when their completion was
			// auto-approved in the first place.
			if actor.privileged() || (def.AutoApprove && ownAction(def, log, actor)) {
				return StatusPending, nil
			}
			return "", transitionDenied(from, desired)
		case StatusCompleted:
			if !actor.privileged() {
				return "", transitionDenied(from, desired)
			}
			return StatusCompleted, nil
		}

	case StatusHelp:
		// Resolving a help request is always a parent's call.
		if !actor.privileged() {
			return "", transitionDenied(from, desired)
		}
		return desired, nil

	case StatusMissed, StatusSkipped:
		if !actor.privileged() {
			return "", transitionDenied(from, desired)
		}
		return StatusPending, nil
	}

	return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, desired)
}

func targetLegal(from, to Status) bool {
	for _, t := range legalTargets[from] {
		if t == to {
			return true
		}
	}
	return false
}

func transitionDenied(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrNotAuthorized, from, to)
}

func completedBy(log model.ChoreLog, actor Actor) bool {
	return log.CompletedBy != nil && *log.CompletedBy == actor.ID
}

// ownAction reports whether the actor either performed the completion or is
// the chore's assignee (for unassigned chores only the completer counts).
func ownAction(def model.ChoreDefinition, log model.ChoreLog, actor Actor) bool {
	if completedBy(log, actor) {
		return true
	}
	return def.AssignedTo != nil && *def.AssignedTo == actor.ID
}
