package identity

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"inkwell/api/internal/store"
)

type fakeCredStore struct {
	creds  map[string]store.Credential
	resets map[string]string
	used   map[string]bool
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{
		creds:  make(map[string]store.Credential),
		resets: make(map[string]string),
		used:   make(map[string]bool),
	}
}

func (f *fakeCredStore) GetCredentialByEmail(_ context.Context, email string) (store.Credential, error) {
	cred, ok := f.creds[email]
	if !ok {
		return store.Credential{}, sql.ErrNoRows
	}
	return cred, nil
}

func (f *fakeCredStore) InsertCredential(_ context.Context, cred store.Credential) error {
	f.creds[cred.Email] = cred
	return nil
}

func (f *fakeCredStore) UpdateCredentialPassword(_ context.Context, email, hash string) error {
	cred := f.creds[email]
	cred.PasswordHash = hash
	f.creds[email] = cred
	return nil
}

func (f *fakeCredStore) UpdateVerificationToken(_ context.Context, email, token string, expiresAt time.Time) error {
	cred := f.creds[email]
	cred.VerificationToken = token
	cred.VerificationExpiresAt = &expiresAt
	f.creds[email] = cred
	return nil
}

func (f *fakeCredStore) VerifyCredential(_ context.Context, token string) (string, error) {
	for email, cred := range f.creds {
		if cred.VerificationToken != "" && cred.VerificationToken == token {
			cred.EmailVerified = true
			cred.VerificationToken = ""
			f.creds[email] = cred
			return email, nil
		}
	}
	return "", sql.ErrNoRows
}

func (f *fakeCredStore) DeleteCredential(_ context.Context, email string) error {
	delete(f.creds, email)
	return nil
}

func (f *fakeCredStore) CreatePasswordReset(_ context.Context, email, token string, _ time.Time) error {
	f.resets[token] = email
	return nil
}

func (f *fakeCredStore) GetPasswordReset(_ context.Context, token string) (string, error) {
	if f.used[token] {
		return "", sql.ErrNoRows
	}
	email, ok := f.resets[token]
	if !ok {
		return "", sql.ErrNoRows
	}
	return email, nil
}

func (f *fakeCredStore) MarkPasswordResetUsed(_ context.Context, token string) error {
	f.used[token] = true
	return nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(newFakeCredStore())

	id, token, err := provider.Register(ctx, "Sam@Inkwell.dev", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if id.Email != "sam@inkwell.dev" {
		t.Fatalf("email not normalized: %q", id.Email)
	}
	if id.Verified {
		t.Fatal("new identity should be unverified")
	}
	if token == "" {
		t.Fatal("expected a verification token")
	}

	got, err := provider.Authenticate(ctx, "sam@inkwell.dev", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != id.ID {
		t.Fatalf("identity mismatch: %q vs %q", got.ID, id.ID)
	}

	if _, err := provider.Authenticate(ctx, "sam@inkwell.dev", "wrong-password"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterRejectsDuplicateAndWeakPassword(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(newFakeCredStore())

	if _, _, err := provider.Register(ctx, "a@x.dev", "short"); err != ErrWeakPassword {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if _, _, err := provider.Register(ctx, "a@x.dev", "long-enough-pw"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, _, err := provider.Register(ctx, "a@x.dev", "long-enough-pw"); err != ErrEmailTaken {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(newFakeCredStore())

	_, token, err := provider.Register(ctx, "a@x.dev", "long-enough-pw")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	email, err := provider.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	if email != "a@x.dev" {
		t.Fatalf("verified wrong email: %q", email)
	}

	id, err := provider.Authenticate(ctx, "a@x.dev", "long-enough-pw")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !id.Verified {
		t.Fatal("identity should report verified after VerifyEmail")
	}

	if _, err := provider.VerifyEmail(ctx, token); err != ErrInvalidToken {
		t.Fatalf("token should be single use, got %v", err)
	}
}

func TestReauthenticate(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(newFakeCredStore())

	if _, _, err := provider.Register(ctx, "a@x.dev", "long-enough-pw"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ok, err := provider.Reauthenticate(ctx, "a@x.dev", "long-enough-pw")
	if err != nil || !ok {
		t.Fatalf("Reauthenticate = %v, %v", ok, err)
	}
	ok, err = provider.Reauthenticate(ctx, "a@x.dev", "wrong")
	if err != nil || ok {
		t.Fatalf("Reauthenticate with wrong password = %v, %v", ok, err)
	}
	ok, err = provider.Reauthenticate(ctx, "missing@x.dev", "whatever")
	if err != nil || ok {
		t.Fatalf("Reauthenticate for missing credential = %v, %v", ok, err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ctx := context.Background()
	provider := NewProvider(newFakeCredStore())

	if _, _, err := provider.Register(ctx, "a@x.dev", "original-password"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	token, err := provider.RequestPasswordReset(ctx, "a@x.dev")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected a reset token")
	}

	// Unknown emails are not revealed.
	if token, err := provider.RequestPasswordReset(ctx, "nobody@x.dev"); err != nil || token != "" {
		t.Fatalf("unknown email: token=%q err=%v", token, err)
	}

	if err := provider.ResetPassword(ctx, token, "replacement-pw"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}
	if _, err := provider.Authenticate(ctx, "a@x.dev", "replacement-pw"); err != nil {
		t.Fatalf("Authenticate with new password failed: %v", err)
	}
	if _, err := provider.Authenticate(ctx, "a@x.dev", "original-password"); err != ErrInvalidCredentials {
		t.Fatalf("old password still works: %v", err)
	}
	if err := provider.ResetPassword(ctx, token, "third-password"); err != ErrInvalidToken {
		t.Fatalf("reset token should be single use, got %v", err)
	}
}

func TestResetPasswordRecreatesDeletedCredential(t *testing.T) {
	ctx := context.Background()
	credStore := newFakeCredStore()
	provider := NewProvider(credStore)

	if _, _, err := provider.Register(ctx, "a@x.dev", "original-password"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	token, err := provider.RequestPasswordReset(ctx, "a@x.dev")
	if err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}

	// Account deletion removes the credential; the pending reset token is
	// the restored user's way back in.
	if err := provider.DeleteIdentity(ctx, "a@x.dev"); err != nil {
		t.Fatalf("DeleteIdentity failed: %v", err)
	}
	if err := provider.ResetPassword(ctx, token, "fresh-password"); err != nil {
		t.Fatalf("ResetPassword after delete failed: %v", err)
	}

	id, err := provider.Authenticate(ctx, "a@x.dev", "fresh-password")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !id.Verified {
		t.Fatal("recreated credential should be verified")
	}
}

func TestResendVerification(t *testing.T) {
	ctx := context.Background()
	credStore := newFakeCredStore()
	provider := NewProvider(credStore)

	_, first, err := provider.Register(ctx, "a@x.dev", "long-enough-pw")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	second, err := provider.ResendVerification(ctx, "a@x.dev")
	if err != nil {
		t.Fatalf("ResendVerification failed: %v", err)
	}
	if second == "" || second == first {
		t.Fatalf("expected a rotated token, got %q", second)
	}
	if _, err := provider.VerifyEmail(ctx, first); err != ErrInvalidToken {
		t.Fatalf("stale token should be rejected, got %v", err)
	}
	if _, err := provider.VerifyEmail(ctx, second); err != nil {
		t.Fatalf("VerifyEmail with rotated token failed: %v", err)
	}

	// Verified credentials and unknown emails both yield no token.
	if token, err := provider.ResendVerification(ctx, "a@x.dev"); err != nil || token != "" {
		t.Fatalf("verified credential: token=%q err=%v", token, err)
	}

	// bcrypt sanity: the stored hash is not the raw password.
	if cred := credStore.creds["a@x.dev"]; cred.PasswordHash == "long-enough-pw" {
		t.Fatal("password stored in the clear")
	} else if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte("long-enough-pw")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
}
