package service

import (
	"fmt"
	"strings"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-tasks/internal/repository"
)

type party int

const (
	partyMaker party = iota
	partyChecker
)

// transition is one edge of the task lifecycle.
type transition struct {
	from            repository.TaskStatus
	to              repository.TaskStatus
	actor           party
	remarksRequired bool
}

var transitions = map[Event]transition{
	EventSubmit:   {from: repository.StatusDraft, to: repository.StatusSubmitted, actor: partyMaker, remarksRequired: true},
	EventApprove:  {from: repository.StatusSubmitted, to: repository.StatusApproved, actor: partyChecker},
	EventReject:   {from: repository.StatusSubmitted, to: repository.StatusRejected, actor: partyChecker},
	EventSendBack: {from: repository.StatusSubmitted, to: repository.StatusDraft, actor: partyChecker, remarksRequired: true},
	EventReopen:   {from: repository.StatusRejected, to: repository.StatusDraft, actor: partyMaker},
}

// CanTransition evaluates the guards for event on task without side effects.
// Actor is checked first, then current status, then remarks.
func CanTransition(task *repository.TaskInstance, event Event, viewer Viewer, remarks string) error {
	tr, ok := transitions[event]
	if !ok {
		return errors.InvalidInput("event", fmt.Sprintf("unknown workflow event %q", event))
	}

	if !isParty(task, tr.actor, viewer) {
		return guardError(errors.Forbidden(fmt.Sprintf("only the assigned %s or an admin may %s this task", tr.actor, event)), task, event, viewer)
	}

	if task.Status != tr.from {
		return guardError(errors.Precondition(fmt.Sprintf("cannot %s a task in %s status", event, task.Status)), task, event, viewer)
	}

	if tr.remarksRequired && strings.TrimSpace(remarks) == "" {
		return guardError(errors.InvalidInput("remarks", fmt.Sprintf("remarks are required to %s", event)), task, event, viewer)
	}

	return nil
}

func isParty(task *repository.TaskInstance, p party, viewer Viewer) bool {
	if viewer.IsAdmin() {
		return true
	}
	switch p {
	case partyMaker:
		return viewer.EmployeeID != "" && task.MakerID == viewer.EmployeeID
	case partyChecker:
		return viewer.EmployeeID != "" && task.HasChecker(viewer.EmployeeID)
	}
	return false
}

func (p party) String() string {
	if p == partyChecker {
		return "checker"
	}
	return "maker"
}

func guardError(err *errors.AppError, task *repository.TaskInstance, event Event, viewer Viewer) error {
	return err.
		WithDetail("task_id", task.ID).
		WithDetail("event", string(event)).
		WithDetail("actor_id", viewer.EmployeeID)
}
