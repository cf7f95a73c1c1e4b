package service

import "github.com/pesio-ai/be-compliance-tasks/internal/repository"

// Viewer is the verified identity behind a request.
type Viewer struct {
	EmployeeID string
	Role       repository.Role
}

// IsAdmin reports whether the viewer holds the admin role.
func (v Viewer) IsAdmin() bool { return v.Role == repository.RoleAdmin }

// Visible reports whether viewer may see task.
//
// Admins see everything. Makers see tasks they own. Checkers see tasks they
// are assigned to once the maker has submitted. Anyone else sees nothing.
func Visible(task *repository.TaskInstance, viewer Viewer) bool {
	if task == nil || viewer.EmployeeID == "" {
		return false
	}
	switch viewer.Role {
	case repository.RoleAdmin:
		return true
	case repository.RoleMaker:
		return task.MakerID == viewer.EmployeeID
	case repository.RoleChecker:
		if !task.HasChecker(viewer.EmployeeID) {
			return false
		}
		switch task.Status {
		case repository.StatusSubmitted, repository.StatusApproved, repository.StatusRejected:
			return true
		}
		return false
	default:
		return false
	}
}

// Filter returns the subset of tasks visible to viewer, preserving order.
func Filter(tasks []*repository.TaskInstance, viewer Viewer) []*repository.TaskInstance {
	out := make([]*repository.TaskInstance, 0, len(tasks))
	for _, t := range tasks {
		if Visible(t, viewer) {
			out = append(out, t)
		}
	}
	return out
}

// scopeFor narrows a store query to what the viewer could possibly see, so
// the filter runs over a small set. ok is false when nothing can match.
func scopeFor(viewer Viewer, f repository.TaskFilter) (repository.TaskFilter, bool) {
	switch viewer.Role {
	case repository.RoleAdmin:
		return f, true
	case repository.RoleMaker:
		if f.MakerID != "" && f.MakerID != viewer.EmployeeID {
			return f, false
		}
		f.MakerID = viewer.EmployeeID
		return f, true
	case repository.RoleChecker:
		if f.CheckerID != "" && f.CheckerID != viewer.EmployeeID {
			return f, false
		}
		f.CheckerID = viewer.EmployeeID
		return f, true
	default:
		return f, false
	}
}
