/*
Package authz decides whether an actor may perform an operation on behalf of
an employee.

PURPOSE:
  Services ask one question before mutating state:

      authorizer.Authorize(ctx, actor, authz.CapApproveLeave, subjectEmployee)

  Roles are mapped to capabilities with a scope. Business logic never
  compares role strings; it only names the capability it needs.

SCOPES:
  - ScopeSelf: subject is the actor's own employee record
  - ScopeTeam: subject is the actor or one of their direct reports
  - ScopeAll:  any subject, including company-wide operations (subject "")

  Decisions on someone's request (approving leave or time) are never
  allowed on the actor's own records, whatever the scope.

SEE ALSO:
  - claims.go: Building an Actor from JWT claims
*/
package authz

import (
	"context"
	"fmt"
	"slices"

	"github.com/solomon-wilson/hrmis-sub002/generic"
)

// =============================================================================
// CAPABILITIES AND ROLES
// =============================================================================

type Capability string

const (
	CapClock           Capability = "time.clock"
	CapSubmitManual    Capability = "time.manual"
	CapApproveTime     Capability = "time.approve"
	CapSweepTime       Capability = "time.sweep"
	CapRequestLeave    Capability = "leave.request"
	CapApproveLeave    Capability = "leave.approve"
	CapCancelLeave     Capability = "leave.cancel"
	CapAdjustBalance   Capability = "leave.adjust"
	CapRunAccrual      Capability = "leave.accrual"
	CapViewReports     Capability = "reports.view"
	CapManagePolicies  Capability = "policies.manage"
	CapManageEmployees Capability = "employees.manage"
)

// decisionCapabilities cannot be exercised on the actor's own records.
var decisionCapabilities = []Capability{CapApproveTime, CapApproveLeave}

type Role string

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleHR       Role = "HR"
	RoleAdmin    Role = "ADMIN"
	RoleSystem   Role = "SYSTEM"
)

type Scope int

const (
	ScopeNone Scope = iota
	ScopeSelf
	ScopeTeam
	ScopeAll
)

// Actor is the authenticated caller.
type Actor struct {
	ID         string
	EmployeeID generic.EmployeeID
	Roles      []Role
}

func (a Actor) HasRole(r Role) bool { return slices.Contains(a.Roles, r) }

// System is the actor used by scheduled jobs.
var System = Actor{ID: "system", Roles: []Role{RoleSystem}}

// ActorType classifies the actor for ledger audit fields.
func (a Actor) ActorType() string {
	switch {
	case a.HasRole(RoleSystem):
		return "system"
	case a.HasRole(RoleAdmin):
		return "admin"
	case a.HasRole(RoleHR):
		return "hr"
	case a.HasRole(RoleManager):
		return "manager"
	default:
		return "employee"
	}
}

// =============================================================================
// AUTHORIZER
// =============================================================================

// Authorizer returns nil when allowed, or an error wrapping generic.ErrForbidden.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, capability Capability, subject generic.EmployeeID) error
}

// ForbiddenError names the refused capability.
type ForbiddenError struct {
	ActorID    string
	Capability Capability
	Subject    generic.EmployeeID
	Reason     string
}

func (e *ForbiddenError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("actor %s may not %s: %s", e.ActorID, e.Capability, e.Reason)
	}
	return fmt.Sprintf("actor %s may not %s for employee %s: %s", e.ActorID, e.Capability, e.Subject, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return generic.ErrForbidden }

// Grants maps each role to the scope it holds per capability.
type Grants map[Role]map[Capability]Scope

// DefaultGrants is the standard role matrix.
func DefaultGrants() Grants {
	all := map[Capability]Scope{}
	for _, c := range []Capability{
		CapClock, CapSubmitManual, CapApproveTime, CapSweepTime, CapRequestLeave,
		CapApproveLeave, CapCancelLeave, CapAdjustBalance, CapRunAccrual,
		CapViewReports, CapManagePolicies, CapManageEmployees,
	} {
		all[c] = ScopeAll
	}

	return Grants{
		RoleEmployee: {
			CapClock:        ScopeSelf,
			CapSubmitManual: ScopeSelf,
			CapRequestLeave: ScopeSelf,
			CapCancelLeave:  ScopeSelf,
			CapViewReports:  ScopeSelf,
		},
		RoleManager: {
			CapClock:        ScopeSelf,
			CapSubmitManual: ScopeSelf,
			CapRequestLeave: ScopeSelf,
			CapApproveTime:  ScopeTeam,
			CapApproveLeave: ScopeTeam,
			CapCancelLeave:  ScopeTeam,
			CapViewReports:  ScopeTeam,
		},
		RoleHR: {
			CapClock:           ScopeSelf,
			CapSubmitManual:    ScopeAll,
			CapRequestLeave:    ScopeAll,
			CapApproveTime:     ScopeAll,
			CapApproveLeave:    ScopeAll,
			CapCancelLeave:     ScopeAll,
			CapAdjustBalance:   ScopeAll,
			CapRunAccrual:      ScopeAll,
			CapViewReports:     ScopeAll,
			CapManagePolicies:  ScopeAll,
			CapManageEmployees: ScopeAll,
		},
		RoleAdmin: all,
		RoleSystem: {
			CapSweepTime:  ScopeAll,
			CapRunAccrual: ScopeAll,
		},
	}
}

// RoleAuthorizer evaluates Grants, resolving team scope through the directory.
type RoleAuthorizer struct {
	Grants    Grants
	Directory generic.Directory
}

func NewRoleAuthorizer(dir generic.Directory) *RoleAuthorizer {
	return &RoleAuthorizer{Grants: DefaultGrants(), Directory: dir}
}

func (a *RoleAuthorizer) Authorize(ctx context.Context, actor Actor, capability Capability, subject generic.EmployeeID) error {
	deny := func(reason string) error {
		return &ForbiddenError{ActorID: actor.ID, Capability: capability, Subject: subject, Reason: reason}
	}

	scope := ScopeNone
	for _, r := range actor.Roles {
		if s := a.Grants[r][capability]; s > scope {
			scope = s
		}
	}
	if scope == ScopeNone {
		return deny("capability not granted")
	}

	isSelf := subject != "" && subject == actor.EmployeeID
	if isSelf && slices.Contains(decisionCapabilities, capability) {
		return deny("cannot decide on own records")
	}

	switch scope {
	case ScopeAll:
		return nil
	case ScopeSelf:
		if isSelf {
			return nil
		}
		return deny("limited to own records")
	case ScopeTeam:
		if isSelf {
			return nil
		}
		if subject == "" || a.Directory == nil {
			return deny("limited to own team")
		}
		managerID, err := a.Directory.GetManagerID(ctx, subject)
		if err != nil {
			return fmt.Errorf("resolve manager of %s: %w", subject, err)
		}
		if managerID != "" && managerID == actor.EmployeeID {
			return nil
		}
		return deny("not a direct report")
	}
	return deny("capability not granted")
}

// AllowAll permits everything. For tests and single-user tooling.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Actor, Capability, generic.EmployeeID) error { return nil }
