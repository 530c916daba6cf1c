package app

import (
	"context"
	"net/http"

	"inkwell/api/internal/audit"
	"inkwell/api/internal/perm"
	"inkwell/api/internal/store"
)

// DeleteAccount soft-deletes another user's account. Like posts, the copy
// into the deleted set happens before the live record is removed.
func (s *Service) DeleteAccount(ctx context.Context, session Session, targetID, reason string) error {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return err
	}
	target, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("account", targetID)
		}
		return s.storeErr(err, "load target account")
	}
	if d := perm.CanDeleteAccount(actor, perm.TargetAccount{ID: target.ID, IsSuperAdmin: target.IsSuperAdmin}); !d.Allowed {
		return permissionDenied(d)
	}
	// Deleting one's own account always goes through SelfDeleteAccount,
	// which confirms the password first. This path never carries one.
	if target.ID == actor.ID {
		return domainError(http.StatusForbidden, "REAUTH_FAILED", "Deleting your own account requires password confirmation", nil)
	}
	if reason == "" {
		reason = "admin_deletion"
	}

	entry := store.DeletedAccount{
		Account:        target,
		DeletedBy:      actor.ID,
		DeletedByEmail: actor.Email,
		DeletedAt:      s.now().UTC(),
		DeletionReason: reason,
	}
	if err := s.store.InsertDeletedAccount(ctx, entry); err != nil {
		return s.storeErr(err, "copy account to deleted set")
	}
	if err := s.store.DeleteAccount(ctx, target.ID); err != nil {
		return s.storeErr(err, "delete account")
	}
	if err := s.identity.DeleteIdentity(ctx, target.Email); err != nil {
		s.log.Error().Err(err).Str("email", target.Email).Msg("credential removal failed")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionDeleteUser, map[string]any{
		"targetUserId":    target.ID,
		"targetUserEmail": target.Email,
		"reason":          reason,
	})
	return nil
}

// SelfDeleteAccount deletes the caller's own account after a fresh password
// check. The current access token is revoked so the session dies with the
// account.
func (s *Service) SelfDeleteAccount(ctx context.Context, session Session, password string) error {
	_, account, err := s.actorFor(ctx, session)
	if err != nil {
		return err
	}
	ok, err := s.identity.Reauthenticate(ctx, account.Email, password)
	if err != nil {
		return s.storeErr(err, "reauthenticate")
	}
	if !ok {
		return reauthFailed()
	}

	entry := store.DeletedAccount{
		Account:        account,
		DeletedBy:      account.ID,
		DeletedByEmail: account.Email,
		DeletedAt:      s.now().UTC(),
		DeletionReason: "self_deletion",
	}
	if err := s.store.InsertDeletedAccount(ctx, entry); err != nil {
		return s.storeErr(err, "copy account to deleted set")
	}
	if err := s.store.DeleteAccount(ctx, account.ID); err != nil {
		return s.storeErr(err, "delete account")
	}
	if err := s.identity.DeleteIdentity(ctx, account.Email); err != nil {
		s.log.Error().Err(err).Str("email", account.Email).Msg("credential removal failed")
	}
	if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
		s.log.Error().Err(err).Msg("access token revoke after self-delete failed")
	}

	s.audit.Record(ctx, account.ID, account.Email, audit.ActionSelfDeleteAccount, map[string]any{
		"email": account.Email,
	})
	return nil
}

// RestoreAccount moves an account from the deleted set back to the live
// set. The restore is refused while a live account holds the same email;
// both records stay untouched in that case. The restored account is marked
// verified because its original credential was removed at deletion time;
// the owner regains access through the password-reset flow.
func (s *Service) RestoreAccount(ctx context.Context, session Session, targetID string) (store.Account, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.Account{}, err
	}
	if d := perm.CanRestoreContent(actor); !d.Allowed {
		return store.Account{}, permissionDenied(d)
	}

	entry, err := s.store.GetDeletedAccount(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Account{}, notFound("deleted account", targetID)
		}
		return store.Account{}, s.storeErr(err, "load deleted account")
	}

	if _, err := s.store.GetAccountByEmail(ctx, entry.Email); err == nil {
		return store.Account{}, emailConflict(entry.Email)
	} else if !store.IsNotFound(err) {
		return store.Account{}, s.storeErr(err, "check live email")
	}

	account := entry.Account
	account.EmailVerified = true
	if err := s.store.InsertAccount(ctx, account); err != nil {
		return store.Account{}, s.storeErr(err, "restore account")
	}
	if err := s.store.RemoveDeletedAccount(ctx, targetID); err != nil {
		return store.Account{}, s.storeErr(err, "remove restored account from deleted set")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionRestoreUser, map[string]any{
		"targetUserId":    account.ID,
		"targetUserEmail": account.Email,
	})
	return account, nil
}

// PurgeAccount permanently removes an account from the deleted set.
func (s *Service) PurgeAccount(ctx context.Context, session Session, targetID string) error {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return err
	}
	if d := perm.CanPurgeContent(actor); !d.Allowed {
		return permissionDenied(d)
	}
	entry, err := s.store.GetDeletedAccount(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("deleted account", targetID)
		}
		return s.storeErr(err, "load deleted account")
	}
	if err := s.store.RemoveDeletedAccount(ctx, targetID); err != nil {
		return s.storeErr(err, "purge account")
	}
	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionDeleteUser, map[string]any{
		"targetUserId":    entry.ID,
		"targetUserEmail": entry.Email,
		"purged":          true,
	})
	return nil
}

// ToggleAdminStatus flips the target's admin flag. Revoking admin from a
// super admin (self-demotion is the only permitted case) also clears the
// super-admin flag, since super admin implies admin.
func (s *Service) ToggleAdminStatus(ctx context.Context, session Session, targetID string) (store.Account, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.Account{}, err
	}
	target, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Account{}, notFound("account", targetID)
		}
		return store.Account{}, s.storeErr(err, "load target account")
	}
	if d := perm.CanToggleAdmin(actor, perm.TargetAccount{ID: target.ID, IsSuperAdmin: target.IsSuperAdmin}); !d.Allowed {
		return store.Account{}, permissionDenied(d)
	}

	newAdmin := !target.IsAdmin
	newSuper := target.IsSuperAdmin
	if !newAdmin {
		newSuper = false
	}
	if err := s.store.UpdateAccountRoles(ctx, target.ID, newAdmin, newSuper); err != nil {
		return store.Account{}, s.storeErr(err, "update roles")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionToggleAdmin, map[string]any{
		"targetUserId":    target.ID,
		"targetUserEmail": target.Email,
		"before":          map[string]any{"isAdmin": target.IsAdmin, "isSuperAdmin": target.IsSuperAdmin},
		"after":           map[string]any{"isAdmin": newAdmin, "isSuperAdmin": newSuper},
	})

	target.IsAdmin = newAdmin
	target.IsSuperAdmin = newSuper
	return target, nil
}

// SetSuperAdminStatus grants or revokes super admin. A super admin may act
// directly; anyone holding the configured master key may act without the
// role, and the audit trail records which path authorized the change.
// Neither path may demote another super admin.
func (s *Service) SetSuperAdminStatus(ctx context.Context, session Session, targetID string, status bool, masterKey string) (store.Account, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.Account{}, err
	}
	target, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Account{}, notFound("account", targetID)
		}
		return store.Account{}, s.storeErr(err, "load target account")
	}

	targetRef := perm.TargetAccount{ID: target.ID, IsSuperAdmin: target.IsSuperAdmin}
	method := "by_super_admin"
	if d := perm.CanToggleSuperAdmin(actor, targetRef); !d.Allowed {
		masterKeyOK := s.cfg.SuperAdminMasterKey != "" && masterKey == s.cfg.SuperAdminMasterKey
		if !masterKeyOK {
			return store.Account{}, permissionDenied(d)
		}
		if target.IsSuperAdmin && target.ID != actor.ID {
			return store.Account{}, permissionDenied(perm.Decision{Reason: perm.ReasonProtectedTarget})
		}
		method = "by_master_key"
	}

	newAdmin := target.IsAdmin
	if status {
		newAdmin = true
	}
	if err := s.store.UpdateAccountRoles(ctx, target.ID, newAdmin, status); err != nil {
		return store.Account{}, s.storeErr(err, "update roles")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionSetSuperAdmin, map[string]any{
		"targetUserId":    target.ID,
		"targetUserEmail": target.Email,
		"before":          map[string]any{"isAdmin": target.IsAdmin, "isSuperAdmin": target.IsSuperAdmin},
		"after":           map[string]any{"isAdmin": newAdmin, "isSuperAdmin": status},
		"method":          method,
	})

	target.IsAdmin = newAdmin
	target.IsSuperAdmin = status
	return target, nil
}

func (s *Service) UpdatePermissions(ctx context.Context, session Session, targetID string, perms perm.Permissions) (store.Account, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.Account{}, err
	}
	if d := perm.CanEditPermissions(actor); !d.Allowed {
		return store.Account{}, permissionDenied(d)
	}
	target, err := s.store.GetAccount(ctx, targetID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Account{}, notFound("account", targetID)
		}
		return store.Account{}, s.storeErr(err, "load target account")
	}
	before := target.Permissions
	if err := s.store.UpdateAccountPermissions(ctx, target.ID, perms); err != nil {
		return store.Account{}, s.storeErr(err, "update permissions")
	}

	s.audit.Record(ctx, actor.ID, actor.Email, audit.ActionUpdatePermissions, map[string]any{
		"targetUserId":    target.ID,
		"targetUserEmail": target.Email,
		"before":          before,
		"after":           perms,
	})

	target.Permissions = perms
	return target, nil
}

func (s *Service) ListAccounts(ctx context.Context, session Session) ([]store.Account, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if d := perm.CanEditPermissions(actor); !d.Allowed {
		return nil, permissionDenied(d)
	}
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, s.storeErr(err, "list accounts")
	}
	return accounts, nil
}

func (s *Service) ListDeletedAccounts(ctx context.Context, session Session) ([]store.DeletedAccount, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if d := perm.CanViewDeletedContent(actor); !d.Allowed {
		return nil, permissionDenied(d)
	}
	entries, err := s.store.ListDeletedAccounts(ctx)
	if err != nil {
		return nil, s.storeErr(err, "list deleted accounts")
	}
	return entries, nil
}

func (s *Service) ListActivityLog(ctx context.Context, session Session, limit int) ([]store.ActivityLogEntry, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if d := perm.CanViewAuditLogs(actor); !d.Allowed {
		return nil, permissionDenied(d)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.store.ListActivityLog(ctx, limit)
	if err != nil {
		return nil, s.storeErr(err, "list activity log")
	}
	return entries, nil
}

func (s *Service) ListLoginLog(ctx context.Context, session Session, limit int) ([]store.LoginLogEntry, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if d := perm.CanViewLoginLogs(actor); !d.Allowed {
		return nil, permissionDenied(d)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries, err := s.store.ListLoginLog(ctx, limit)
	if err != nil {
		return nil, s.storeErr(err, "list login log")
	}
	return entries, nil
}
