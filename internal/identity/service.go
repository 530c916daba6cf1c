// Package identity provides the email/password identity provider: credential
// registration, authentication, email verification and password reset. It
// owns credentials only; account documents live in the store.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Identity is the authenticated principal handed back to callers.
type Identity struct {
	ID       string
	Email    string
	Verified bool
}

// CredentialStore is the storage the provider needs.
type CredentialStore interface {
	GetCredentialByEmail(ctx context.Context, email string) (store.Credential, error)
	InsertCredential(ctx context.Context, cred store.Credential) error
	UpdateCredentialPassword(ctx context.Context, email, passwordHash string) error
	UpdateVerificationToken(ctx context.Context, email, token string, expiresAt time.Time) error
	VerifyCredential(ctx context.Context, token string) (string, error)
	DeleteCredential(ctx context.Context, email string) error
	CreatePasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

type Provider struct {
	store CredentialStore
}

func NewProvider(store CredentialStore) *Provider {
	return &Provider{store: store}
}

// Register creates a credential and returns the identity plus the email
// verification token the caller should deliver.
func (p *Provider) Register(ctx context.Context, email, password string) (Identity, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, "", errors.New("email and password are required")
	}
	if len(password) < 8 {
		return Identity{}, "", ErrWeakPassword
	}

	if _, err := p.store.GetCredentialByEmail(ctx, email); err == nil {
		return Identity{}, "", ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Identity{}, "", fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return Identity{}, "", fmt.Errorf("generate verification token: %w", err)
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	cred := store.Credential{
		ID:                    util.NewID("idp"),
		Email:                 email,
		PasswordHash:          string(hash),
		EmailVerified:         false,
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	}
	if err := p.store.InsertCredential(ctx, cred); err != nil {
		return Identity{}, "", fmt.Errorf("create credential: %w", err)
	}

	return Identity{ID: cred.ID, Email: email, Verified: false}, verificationToken, nil
}

// Authenticate checks a password and returns the identity with its current
// verification state. Callers decide what an unverified identity may do.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	cred, err := p.store.GetCredentialByEmail(ctx, email)
	if err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{ID: cred.ID, Email: cred.Email, Verified: cred.EmailVerified}, nil
}

// Reauthenticate re-checks the password of an already signed-in identity.
// Used as the confirmation step before self-service account deletion.
func (p *Provider) Reauthenticate(ctx context.Context, email, password string) (bool, error) {
	cred, err := p.store.GetCredentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("lookup credential: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) == nil, nil
}

// VerifyEmail consumes a verification token; returns the verified email.
func (p *Provider) VerifyEmail(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	email, err := p.store.VerifyCredential(ctx, token)
	if err != nil {
		return "", ErrInvalidToken
	}
	return email, nil
}

// ResendVerification rotates the verification token for an unverified
// credential and returns the new token. Returns empty without error when the
// credential is unknown or already verified, so callers cannot enumerate emails.
func (p *Provider) ResendVerification(ctx context.Context, email string) (string, error) {
	cred, err := p.store.GetCredentialByEmail(ctx, normalizeEmail(email))
	if err != nil || cred.EmailVerified {
		return "", nil
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := p.store.UpdateVerificationToken(ctx, cred.Email, token, time.Now().Add(24*time.Hour)); err != nil {
		return "", err
	}
	return token, nil
}

// RequestPasswordReset creates a reset token. Returns empty without error
// for unknown emails.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	cred, err := p.store.GetCredentialByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil
	}
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := p.store.CreatePasswordReset(ctx, cred.Email, token, time.Now().Add(1*time.Hour)); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword consumes a reset token and installs the new password. A
// credential that no longer exists (deleted account awaiting restore) is
// recreated verified, which is how restored users regain access.
func (p *Provider) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" || newPassword == "" {
		return errors.New("token and new password are required")
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}

	email, err := p.store.GetPasswordReset(ctx, token)
	if err != nil {
		return ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := p.store.GetCredentialByEmail(ctx, email); err != nil {
		if !store.IsNotFound(err) {
			return fmt.Errorf("lookup credential: %w", err)
		}
		if err := p.store.InsertCredential(ctx, store.Credential{
			ID:            util.NewID("idp"),
			Email:         email,
			PasswordHash:  string(hash),
			EmailVerified: true,
		}); err != nil {
			return fmt.Errorf("recreate credential: %w", err)
		}
	} else if err := p.store.UpdateCredentialPassword(ctx, email, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := p.store.MarkPasswordResetUsed(ctx, token); err != nil {
		// Password was changed; a stale reset row is tolerable.
		return nil
	}
	return nil
}

// DeleteIdentity removes the credential. The account document keeps its own
// lifecycle; a later restore cannot resurrect this credential (see the
// reset-on-restore flow).
func (p *Provider) DeleteIdentity(ctx context.Context, email string) error {
	return p.store.DeleteCredential(ctx, normalizeEmail(email))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
