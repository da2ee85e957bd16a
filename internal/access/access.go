// Package access decides whether an actor may mutate a task or a team.
package access

import (
	"sync/atomic"

	"taskflow.dev/internal/auth"
)

// Kind is the resource family an operation targets.
type Kind string

const (
	KindTask Kind = "task"
	KindTeam Kind = "team"
)

// Operation is a mutating action subject to policy.
type Operation string

const (
	OpCreate           Operation = "create"
	OpUpdate           Operation = "update"
	OpChangeStatus     Operation = "change_status"
	OpDelete           Operation = "delete"
	OpReassign         Operation = "reassign"
	OpManageMembership Operation = "manage_membership"
)

// Facts describe the actor's relation to a resource. They are built fresh for
// every decision and never cached.
type Facts struct {
	Kind       Kind
	IsOwner    bool
	IsAssignee bool
	Role       auth.Role
}

// TaskFacts derives facts for a task. Empty ids never match.
func TaskFacts(actorID string, role auth.Role, createdBy, assignedTo string) Facts {
	return Facts{
		Kind:       KindTask,
		IsOwner:    actorID != "" && createdBy != "" && actorID == createdBy,
		IsAssignee: actorID != "" && assignedTo != "" && actorID == assignedTo,
		Role:       role,
	}
}

// TeamFacts derives facts for a team. Team rules depend on role alone.
func TeamFacts(role auth.Role) Facts {
	return Facts{Kind: KindTeam, Role: role}
}

// CanMutate is the policy table. Unknown kinds, operations and roles deny.
func CanMutate(f Facts, op Operation) bool {
	if !f.Role.Valid() {
		return false
	}
	manager := f.Role.AtLeast(auth.RoleManager)
	switch f.Kind {
	case KindTask:
		switch op {
		case OpCreate:
			return true
		case OpUpdate, OpChangeStatus:
			return f.IsOwner || f.IsAssignee || manager
		case OpDelete, OpReassign:
			return f.IsOwner || manager
		}
	case KindTeam:
		switch op {
		case OpCreate, OpUpdate, OpManageMembership:
			return manager
		case OpDelete:
			return f.Role == auth.RoleAdmin
		}
	}
	return false
}

// Authorize returns auth.ErrForbidden when CanMutate denies. The error never
// says which fact was missing.
func Authorize(f Facts, op Operation) error {
	allowed := CanMutate(f, op)
	observe(f.Kind, op, allowed)
	if !allowed {
		return auth.ErrForbidden
	}
	return nil
}

// Observer receives every Authorize decision.
type Observer func(kind Kind, op Operation, allowed bool)

var observer atomic.Pointer[Observer]

// SetObserver installs fn for every later Authorize decision. It is safe to
// call while requests are being served; nil removes the observer.
func SetObserver(fn func(kind Kind, op Operation, allowed bool)) {
	if fn == nil {
		observer.Store(nil)
		return
	}
	o := Observer(fn)
	observer.Store(&o)
}

func observe(kind Kind, op Operation, allowed bool) {
	if fn := observer.Load(); fn != nil {
		(*fn)(kind, op, allowed)
	}
}
