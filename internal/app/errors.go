package app

import (
	"fmt"
	"net/http"

	"inkwell/api/internal/perm"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func permissionDenied(d perm.Decision) *DomainError {
	return domainError(http.StatusForbidden, "PERMISSION_DENIED", deniedMessage(d.Reason), map[string]any{
		"reason": string(d.Reason),
	})
}

func deniedMessage(reason perm.Reason) string {
	switch reason {
	case perm.ReasonNotAuthenticated:
		return "You must be signed in to do this"
	case perm.ReasonSuspended:
		return "Your account is suspended"
	case perm.ReasonNotOwnerOrAdmin:
		return "You can only modify your own posts"
	case perm.ReasonMissingCapability:
		return "You don't have permission to do this"
	case perm.ReasonProtectedTarget:
		return "Cannot modify another super admin's status"
	default:
		return "Forbidden"
	}
}

func notFound(entity, id string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", entity+" not found", map[string]any{
		"entity": entity,
		"id":     id,
	})
}

func emailConflict(email string) *DomainError {
	return domainError(http.StatusConflict, "EMAIL_CONFLICT", "A live account already uses this email", map[string]any{
		"email": email,
	})
}

func idConflict(entity, id string) *DomainError {
	return domainError(http.StatusConflict, "ID_CONFLICT", "A live "+entity+" already uses this id", map[string]any{
		"entity": entity,
		"id":     id,
	})
}

func ticketClosed() *DomainError {
	return domainError(http.StatusConflict, "TICKET_CLOSED", "This ticket is closed; it must be reopened before replying", nil)
}

func invalidInput(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func reauthFailed() *DomainError {
	return domainError(http.StatusForbidden, "REAUTH_FAILED", "Password confirmation failed", nil)
}

// upstream hides store and identity-provider failures behind a generic
// retry-later message; the cause goes to the operational log only.
func upstream() *DomainError {
	return domainError(http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Service temporarily unavailable, please try again", nil)
}
