package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"inkwell/api/internal/config"
	"inkwell/api/internal/identity"
	"inkwell/api/internal/perm"
	"inkwell/api/internal/store"
)

// memStore is an in-memory dataStore. Individual operations can be forced to
// fail through the fail map, keyed by method name.
type memStore struct {
	accounts        map[string]store.Account
	deletedAccounts map[string]store.DeletedAccount
	posts           map[string]store.Post
	deletedPosts    map[string]store.DeletedPost
	activity        []store.ActivityLogEntry
	logins          []store.LoginLogEntry
	tickets         map[string]store.SupportTicket
	refresh         map[string]string
	revoked         map[string]bool
	fail            map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:        map[string]store.Account{},
		deletedAccounts: map[string]store.DeletedAccount{},
		posts:           map[string]store.Post{},
		deletedPosts:    map[string]store.DeletedPost{},
		tickets:         map[string]store.SupportTicket{},
		refresh:         map[string]string{},
		revoked:         map[string]bool{},
		fail:            map[string]error{},
	}
}

func (m *memStore) failure(op string) error { return m.fail[op] }

func (m *memStore) Ping(context.Context) error { return m.failure("Ping") }

func (m *memStore) GetAccount(_ context.Context, id string) (store.Account, error) {
	if err := m.failure("GetAccount"); err != nil {
		return store.Account{}, err
	}
	account, ok := m.accounts[id]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m *memStore) GetAccountByEmail(_ context.Context, email string) (store.Account, error) {
	if err := m.failure("GetAccountByEmail"); err != nil {
		return store.Account{}, err
	}
	for _, account := range m.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return store.Account{}, sql.ErrNoRows
}

func (m *memStore) InsertAccount(_ context.Context, a store.Account) error {
	if err := m.failure("InsertAccount"); err != nil {
		return err
	}
	m.accounts[a.ID] = a
	return nil
}

func (m *memStore) ListAccounts(context.Context) ([]store.Account, error) {
	out := make([]store.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) UpdateAccountRoles(_ context.Context, id string, isAdmin, isSuperAdmin bool) error {
	if err := m.failure("UpdateAccountRoles"); err != nil {
		return err
	}
	account, ok := m.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	account.IsAdmin = isAdmin
	account.IsSuperAdmin = isSuperAdmin
	m.accounts[id] = account
	return nil
}

func (m *memStore) UpdateAccountPermissions(_ context.Context, id string, p perm.Permissions) error {
	account, ok := m.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	account.Permissions = p
	m.accounts[id] = account
	return nil
}

func (m *memStore) TouchAccountLogin(_ context.Context, id string, at time.Time, verified bool) error {
	account, ok := m.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	account.LastLogin = &at
	account.EmailVerified = verified
	m.accounts[id] = account
	return nil
}

func (m *memStore) DeleteAccount(_ context.Context, id string) error {
	if err := m.failure("DeleteAccount"); err != nil {
		return err
	}
	delete(m.accounts, id)
	return nil
}

func (m *memStore) SuperAdminExists(context.Context) (bool, error) {
	for _, a := range m.accounts {
		if a.IsSuperAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertDeletedAccount(_ context.Context, a store.DeletedAccount) error {
	if err := m.failure("InsertDeletedAccount"); err != nil {
		return err
	}
	m.deletedAccounts[a.ID] = a
	return nil
}

func (m *memStore) GetDeletedAccount(_ context.Context, id string) (store.DeletedAccount, error) {
	entry, ok := m.deletedAccounts[id]
	if !ok {
		return store.DeletedAccount{}, sql.ErrNoRows
	}
	return entry, nil
}

func (m *memStore) ListDeletedAccounts(context.Context) ([]store.DeletedAccount, error) {
	out := make([]store.DeletedAccount, 0, len(m.deletedAccounts))
	for _, a := range m.deletedAccounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) RemoveDeletedAccount(_ context.Context, id string) error {
	if err := m.failure("RemoveDeletedAccount"); err != nil {
		return err
	}
	delete(m.deletedAccounts, id)
	return nil
}

func (m *memStore) InsertPost(_ context.Context, p store.Post) error {
	if err := m.failure("InsertPost"); err != nil {
		return err
	}
	m.posts[p.ID] = p
	return nil
}

func (m *memStore) GetPost(_ context.Context, id string) (store.Post, error) {
	post, ok := m.posts[id]
	if !ok {
		return store.Post{}, sql.ErrNoRows
	}
	return post, nil
}

func (m *memStore) PostExists(_ context.Context, id string) (bool, error) {
	_, ok := m.posts[id]
	return ok, nil
}

func (m *memStore) ListPosts(context.Context) ([]store.Post, error) {
	out := make([]store.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) ListPostsByAuthor(_ context.Context, email string) ([]store.Post, error) {
	var out []store.Post
	for _, p := range m.posts {
		if p.ActualAuthor == email {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpdatePost(_ context.Context, postID, title, content string, at time.Time) error {
	post, ok := m.posts[postID]
	if !ok {
		return sql.ErrNoRows
	}
	post.Title = title
	post.Content = content
	post.UpdatedAt = at
	m.posts[postID] = post
	return nil
}

func (m *memStore) DeletePost(_ context.Context, id string) error {
	if err := m.failure("DeletePost"); err != nil {
		return err
	}
	delete(m.posts, id)
	return nil
}

func (m *memStore) InsertDeletedPost(_ context.Context, p store.DeletedPost) error {
	if err := m.failure("InsertDeletedPost"); err != nil {
		return err
	}
	m.deletedPosts[p.ID] = p
	return nil
}

func (m *memStore) GetDeletedPost(_ context.Context, id string) (store.DeletedPost, error) {
	entry, ok := m.deletedPosts[id]
	if !ok {
		return store.DeletedPost{}, sql.ErrNoRows
	}
	return entry, nil
}

func (m *memStore) ListDeletedPosts(context.Context) ([]store.DeletedPost, error) {
	out := make([]store.DeletedPost, 0, len(m.deletedPosts))
	for _, p := range m.deletedPosts {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) RemoveDeletedPost(_ context.Context, id string) error {
	if err := m.failure("RemoveDeletedPost"); err != nil {
		return err
	}
	delete(m.deletedPosts, id)
	return nil
}

func (m *memStore) ListActivityLog(_ context.Context, limit int) ([]store.ActivityLogEntry, error) {
	if limit > len(m.activity) {
		limit = len(m.activity)
	}
	return m.activity[:limit], nil
}

func (m *memStore) InsertLoginLog(_ context.Context, e store.LoginLogEntry) error {
	if err := m.failure("InsertLoginLog"); err != nil {
		return err
	}
	m.logins = append(m.logins, e)
	return nil
}

func (m *memStore) ListLoginLog(_ context.Context, limit int) ([]store.LoginLogEntry, error) {
	if limit > len(m.logins) {
		limit = len(m.logins)
	}
	return m.logins[:limit], nil
}

func (m *memStore) InsertTicket(_ context.Context, t store.SupportTicket) error {
	if err := m.failure("InsertTicket"); err != nil {
		return err
	}
	m.tickets[t.ID] = t
	return nil
}

func (m *memStore) GetTicket(_ context.Context, id string) (store.SupportTicket, error) {
	ticket, ok := m.tickets[id]
	if !ok {
		return store.SupportTicket{}, sql.ErrNoRows
	}
	return ticket, nil
}

func (m *memStore) ListTickets(context.Context) ([]store.SupportTicket, error) {
	out := make([]store.SupportTicket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) AppendTicketResponse(_ context.Context, ticketID string, r store.TicketResponse, status string, at time.Time) error {
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return sql.ErrNoRows
	}
	ticket.Responses = append(ticket.Responses, r)
	ticket.Status = status
	ticket.UpdatedAt = at
	m.tickets[ticketID] = ticket
	return nil
}

func (m *memStore) UpdateTicketStatus(_ context.Context, ticketID, status string, at time.Time) error {
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return sql.ErrNoRows
	}
	ticket.Status = status
	ticket.UpdatedAt = at
	m.tickets[ticketID] = ticket
	return nil
}

func (m *memStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	m.revoked[jti] = true
	return nil
}

func (m *memStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return m.revoked[jti], nil
}

// memSessions is an in-memory refresh-token store.
type memSessions struct {
	refresh map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{refresh: map[string]string{}}
}

func (m *memSessions) SaveRefreshSession(_ context.Context, tokenHash, accountID string, _ time.Time) error {
	m.refresh[tokenHash] = accountID
	return nil
}

func (m *memSessions) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	accountID, ok := m.refresh[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return accountID, nil
}

func (m *memSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(m.refresh, tokenHash)
	return nil
}

type fakeIdentity struct {
	registerFn       func(ctx context.Context, email, password string) (identity.Identity, string, error)
	authenticateFn   func(ctx context.Context, email, password string) (identity.Identity, error)
	reauthenticateFn func(ctx context.Context, email, password string) (bool, error)
	deletedEmails    []string
}

func (f *fakeIdentity) Register(ctx context.Context, email, password string) (identity.Identity, string, error) {
	if f.registerFn != nil {
		return f.registerFn(ctx, email, password)
	}
	return identity.Identity{ID: "acc_" + email, Email: email}, "tok_verify", nil
}

func (f *fakeIdentity) Authenticate(ctx context.Context, email, password string) (identity.Identity, error) {
	if f.authenticateFn != nil {
		return f.authenticateFn(ctx, email, password)
	}
	return identity.Identity{ID: "acc_" + email, Email: email, Verified: true}, nil
}

func (f *fakeIdentity) Reauthenticate(ctx context.Context, email, password string) (bool, error) {
	if f.reauthenticateFn != nil {
		return f.reauthenticateFn(ctx, email, password)
	}
	return true, nil
}

func (f *fakeIdentity) VerifyEmail(context.Context, string) (string, error) { return "", nil }
func (f *fakeIdentity) ResendVerification(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakeIdentity) RequestPasswordReset(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakeIdentity) ResetPassword(context.Context, string, string) error { return nil }
func (f *fakeIdentity) DeleteIdentity(_ context.Context, email string) error {
	f.deletedEmails = append(f.deletedEmails, email)
	return nil
}

type auditEntry struct {
	ActorEmail string
	Action     string
	Details    map[string]any
}

type captureAudit struct {
	entries []auditEntry
}

func (c *captureAudit) Record(_ context.Context, _, actorEmail, action string, details map[string]any) {
	c.entries = append(c.entries, auditEntry{ActorEmail: actorEmail, Action: action, Details: details})
}

func (c *captureAudit) last() auditEntry {
	if len(c.entries) == 0 {
		return auditEntry{}
	}
	return c.entries[len(c.entries)-1]
}

func (c *captureAudit) actions() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Action)
	}
	return out
}

type testEnv struct {
	service  *Service
	store    *memStore
	sessions *memSessions
	identity *fakeIdentity
	audit    *captureAudit
}

func newTestEnv() *testEnv {
	ms := newMemStore()
	sessions := newMemSessions()
	idp := &fakeIdentity{}
	audit := &captureAudit{}
	cfg := config.Config{
		JWTSecret:           "test-secret",
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          720 * time.Hour,
		SuperAdminMasterKey: "master-key-123",
		BaseURL:             "http://localhost:5173",
	}
	svc := New(cfg, ms, sessions, idp, audit, nil, zerolog.Nop())
	return &testEnv{service: svc, store: ms, sessions: sessions, identity: idp, audit: audit}
}

func (e *testEnv) seedAccount(a store.Account) Session {
	if a.Permissions == (perm.Permissions{}) {
		a.Permissions = perm.DefaultPermissions()
	}
	e.store.accounts[a.ID] = a
	return Session{
		AccountID:    a.ID,
		Email:        a.Email,
		Name:         a.Name,
		IsAdmin:      a.IsAdmin,
		IsSuperAdmin: a.IsSuperAdmin,
		JTI:          "jti_" + a.ID,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func (e *testEnv) seedPost(p store.Post) store.Post {
	e.store.posts[p.ID] = p
	return p
}

func domainCode(t interface{ Fatalf(string, ...any) }, err error) string {
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	domainErr, ok := err.(*DomainError)
	if !ok {
		t.Fatalf("expected DomainError, got %T: %v", err, err)
	}
	return domainErr.Code
}

func deniedReason(t interface{ Fatalf(string, ...any) }, err error) string {
	domainErr, ok := err.(*DomainError)
	if !ok {
		t.Fatalf("expected DomainError, got %T: %v", err, err)
	}
	details, ok := domainErr.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details map, got %T", domainErr.Details)
	}
	reason, _ := details["reason"].(string)
	return reason
}
