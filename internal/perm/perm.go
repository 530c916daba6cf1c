// Package perm decides whether an actor may perform an action. Every
// predicate is a pure function of the actor, the resource and nothing else;
// callers pass an explicit actor value instead of consulting shared state.
package perm

// Permissions is the per-account capability block. Capabilities default to
// true for new accounts; suspension defaults to false.
type Permissions struct {
	CanRead   bool `json:"canRead"`
	CanPost   bool `json:"canPost"`
	CanEdit   bool `json:"canEdit"`
	CanDelete bool `json:"canDelete"`
	Suspended bool `json:"suspended"`
}

// DefaultPermissions returns the capability block assigned at registration.
func DefaultPermissions() Permissions {
	return Permissions{CanRead: true, CanPost: true, CanEdit: true, CanDelete: true}
}

// Actor is the authenticated identity a request acts as.
type Actor struct {
	ID           string
	Email        string
	IsAdmin      bool
	IsSuperAdmin bool
	Permissions  Permissions
}

// Authenticated reports whether the actor represents a signed-in account.
func (a Actor) Authenticated() bool {
	return a.ID != ""
}

type Reason string

const (
	ReasonNotAuthenticated  Reason = "not_authenticated"
	ReasonSuspended         Reason = "suspended"
	ReasonNotOwnerOrAdmin   Reason = "not_owner_or_admin"
	ReasonMissingCapability Reason = "missing_capability"
	ReasonNotAdmin          Reason = "not_admin"
	ReasonNotSuperAdmin     Reason = "not_super_admin"
	ReasonProtectedTarget   Reason = "protected_target"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// MutationKind distinguishes the two post mutations that share an
// ownership-or-admin rule but gate on different capabilities.
type MutationKind string

const (
	MutationEdit   MutationKind = "edit"
	MutationDelete MutationKind = "delete"
)

// PostOwnership is the slice of a post the model needs: who really wrote it.
type PostOwnership struct {
	ActualAuthor string
}

// CanCreatePost allows authenticated, non-suspended actors holding the post
// capability or any admin rank.
func CanCreatePost(actor Actor) Decision {
	if !actor.Authenticated() {
		return deny(ReasonNotAuthenticated)
	}
	if actor.Permissions.Suspended {
		return deny(ReasonSuspended)
	}
	if actor.Permissions.CanPost || actor.IsAdmin || actor.IsSuperAdmin {
		return allow()
	}
	return deny(ReasonMissingCapability)
}

// CanMutatePost gates edit and delete. Suspension is a hard veto checked
// first: it blocks owners and admins alike. Ownership or admin rank comes
// next, then the per-kind capability (admins bypass the capability check,
// never the suspension check).
func CanMutatePost(actor Actor, post PostOwnership, kind MutationKind) Decision {
	if !actor.Authenticated() {
		return deny(ReasonNotAuthenticated)
	}
	if actor.Permissions.Suspended {
		return deny(ReasonSuspended)
	}
	isAdmin := actor.IsAdmin || actor.IsSuperAdmin
	if actor.Email != post.ActualAuthor && !isAdmin {
		return deny(ReasonNotOwnerOrAdmin)
	}
	switch kind {
	case MutationEdit:
		if actor.Permissions.CanEdit || isAdmin {
			return allow()
		}
	case MutationDelete:
		if actor.Permissions.CanDelete || isAdmin {
			return allow()
		}
	}
	return deny(ReasonMissingCapability)
}

// CanRestoreContent and CanPurgeContent are super-admin only, no exceptions.
func CanRestoreContent(actor Actor) Decision {
	return superAdminOnly(actor)
}

func CanPurgeContent(actor Actor) Decision {
	return superAdminOnly(actor)
}

// CanViewDeletedContent mirrors restore/purge: the deleted sets are only
// visible to super-admins.
func CanViewDeletedContent(actor Actor) Decision {
	return superAdminOnly(actor)
}

// TargetAccount is the slice of an account role checks inspect.
type TargetAccount struct {
	ID           string
	IsSuperAdmin bool
}

// CanToggleAdmin allows super-admins to grant or revoke admin rank.
func CanToggleAdmin(actor Actor, target TargetAccount) Decision {
	if d := superAdminOnly(actor); !d.Allowed {
		return d
	}
	// A super-admin target's admin flag is off limits unless it is the
	// actor demoting themselves.
	if target.IsSuperAdmin && target.ID != actor.ID {
		return deny(ReasonProtectedTarget)
	}
	return allow()
}

// CanToggleSuperAdmin allows a super-admin to promote anyone, but to demote
// only themselves. One super-admin can never strip another's rank.
func CanToggleSuperAdmin(actor Actor, target TargetAccount) Decision {
	if d := superAdminOnly(actor); !d.Allowed {
		return d
	}
	if target.IsSuperAdmin && target.ID != actor.ID {
		return deny(ReasonProtectedTarget)
	}
	return allow()
}

// CanEditPermissions allows any admin rank to replace a capability block.
func CanEditPermissions(actor Actor) Decision {
	return adminOnly(actor)
}

// CanDeleteAccount allows super-admins to delete anyone, and every account
// to delete itself. Self-service deletion additionally requires
// reauthentication, which is enforced by the lifecycle engine rather than
// here.
func CanDeleteAccount(actor Actor, target TargetAccount) Decision {
	if !actor.Authenticated() {
		return deny(ReasonNotAuthenticated)
	}
	if actor.IsSuperAdmin || actor.ID == target.ID {
		return allow()
	}
	return deny(ReasonNotSuperAdmin)
}

// CanViewAuditLogs allows any admin rank to read the activity log.
func CanViewAuditLogs(actor Actor) Decision {
	return adminOnly(actor)
}

// CanViewLoginLogs is super-admin only.
func CanViewLoginLogs(actor Actor) Decision {
	return superAdminOnly(actor)
}

// CanManageSupportTicket allows any admin rank to reply, close and reopen.
func CanManageSupportTicket(actor Actor) Decision {
	return adminOnly(actor)
}

func adminOnly(actor Actor) Decision {
	if !actor.Authenticated() {
		return deny(ReasonNotAuthenticated)
	}
	if actor.IsAdmin || actor.IsSuperAdmin {
		return allow()
	}
	return deny(ReasonNotAdmin)
}

func superAdminOnly(actor Actor) Decision {
	if !actor.Authenticated() {
		return deny(ReasonNotAuthenticated)
	}
	if actor.IsSuperAdmin {
		return allow()
	}
	return deny(ReasonNotSuperAdmin)
}
