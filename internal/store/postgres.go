package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inkwell/api/internal/perm"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Accounts

const accountColumns = `id, email, name, mobile, is_admin, is_super_admin, email_verified, permissions, created_at, last_login`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var (
		account  Account
		permsRaw []byte
	)
	err := row.Scan(&account.ID, &account.Email, &account.Name, &account.Mobile,
		&account.IsAdmin, &account.IsSuperAdmin, &account.EmailVerified,
		&permsRaw, &account.CreatedAt, &account.LastLogin)
	if err != nil {
		return Account{}, err
	}
	if err := json.Unmarshal(permsRaw, &account.Permissions); err != nil {
		return Account{}, fmt.Errorf("decode permissions: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, accountID)
	return scanAccount(row)
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, email)
	return scanAccount(row)
}

func (s *PostgresStore) InsertAccount(ctx context.Context, account Account) error {
	permsRaw, err := json.Marshal(account.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, mobile, is_admin, is_super_admin, email_verified, permissions, created_at, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`, account.ID, account.Email, account.Name, account.Mobile, account.IsAdmin,
		account.IsSuperAdmin, account.EmailVerified, permsRaw, account.CreatedAt, account.LastLogin)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	items := make([]Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		items = append(items, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateAccountRoles(ctx context.Context, accountID string, isAdmin, isSuperAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET is_admin=$2, is_super_admin=$3 WHERE id=$1
	`, accountID, isAdmin, isSuperAdmin)
	if err != nil {
		return fmt.Errorf("update account roles: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateAccountPermissions(ctx context.Context, accountID string, permissions perm.Permissions) error {
	permsRaw, err := json.Marshal(permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE accounts SET permissions=$2 WHERE id=$1`, accountID, permsRaw)
	if err != nil {
		return fmt.Errorf("update account permissions: %w", err)
	}
	return nil
}

func (s *PostgresStore) TouchAccountLogin(ctx context.Context, accountID string, at time.Time, verified bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET last_login=$2, email_verified=$3 WHERE id=$1
	`, accountID, at, verified)
	if err != nil {
		return fmt.Errorf("touch account login: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id=$1`, accountID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (s *PostgresStore) SuperAdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE is_super_admin)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check super admin: %w", err)
	}
	return exists, nil
}

// ---------------------------------------------------------------------------
// Deleted accounts

const deletedAccountColumns = accountColumns + `, deleted_by, deleted_by_email, deleted_at, deletion_reason`

func scanDeletedAccount(row interface{ Scan(...any) error }) (DeletedAccount, error) {
	var (
		item     DeletedAccount
		permsRaw []byte
	)
	err := row.Scan(&item.ID, &item.Email, &item.Name, &item.Mobile,
		&item.IsAdmin, &item.IsSuperAdmin, &item.EmailVerified,
		&permsRaw, &item.CreatedAt, &item.LastLogin,
		&item.DeletedBy, &item.DeletedByEmail, &item.DeletedAt, &item.DeletionReason)
	if err != nil {
		return DeletedAccount{}, err
	}
	if err := json.Unmarshal(permsRaw, &item.Permissions); err != nil {
		return DeletedAccount{}, fmt.Errorf("decode permissions: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertDeletedAccount(ctx context.Context, item DeletedAccount) error {
	permsRaw, err := json.Marshal(item.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	// Upsert keeps the additive phase of a soft delete idempotent.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deleted_accounts (id, email, name, mobile, is_admin, is_super_admin, email_verified, permissions, created_at, last_login, deleted_by, deleted_by_email, deleted_at, deletion_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET deleted_by=EXCLUDED.deleted_by, deleted_by_email=EXCLUDED.deleted_by_email, deleted_at=EXCLUDED.deleted_at, deletion_reason=EXCLUDED.deletion_reason
	`, item.ID, item.Email, item.Name, item.Mobile, item.IsAdmin, item.IsSuperAdmin,
		item.EmailVerified, permsRaw, item.CreatedAt, item.LastLogin,
		item.DeletedBy, item.DeletedByEmail, item.DeletedAt, item.DeletionReason)
	if err != nil {
		return fmt.Errorf("insert deleted account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDeletedAccount(ctx context.Context, accountID string) (DeletedAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deletedAccountColumns+` FROM deleted_accounts WHERE id=$1`, accountID)
	return scanDeletedAccount(row)
}

func (s *PostgresStore) ListDeletedAccounts(ctx context.Context) ([]DeletedAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deletedAccountColumns+` FROM deleted_accounts ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deleted accounts: %w", err)
	}
	defer rows.Close()

	items := make([]DeletedAccount, 0)
	for rows.Next() {
		item, err := scanDeletedAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deleted account: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted accounts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RemoveDeletedAccount(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deleted_accounts WHERE id=$1`, accountID)
	if err != nil {
		return fmt.Errorf("remove deleted account: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Posts

const postColumns = `id, title, content, author, actual_author, is_anonymous, created_at, updated_at`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var post Post
	err := row.Scan(&post.ID, &post.Title, &post.Content, &post.Author,
		&post.ActualAuthor, &post.IsAnonymous, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return Post{}, err
	}
	return post, nil
}

func (s *PostgresStore) InsertPost(ctx context.Context, post Post) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, title, content, author, actual_author, is_anonymous, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, post.ID, post.Title, post.Content, post.Author, post.ActualAuthor,
		post.IsAnonymous, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, postID string) (Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, postID)
	return scanPost(row)
}

func (s *PostgresStore) PostExists(ctx context.Context, postID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id=$1)`, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check post: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts ORDER BY created_at DESC`)
}

func (s *PostgresStore) ListPostsByAuthor(ctx context.Context, email string) ([]Post, error) {
	return s.queryPosts(ctx, `SELECT `+postColumns+` FROM posts WHERE actual_author=$1 ORDER BY created_at DESC`, email)
}

func (s *PostgresStore) queryPosts(ctx context.Context, query string, args ...any) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	items := make([]Post, 0)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		items = append(items, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdatePost(ctx context.Context, postID, title, content string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE posts SET title=$2, content=$3, updated_at=$4 WHERE id=$1
	`, postID, title, content, at)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id=$1`, postID)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Deleted posts

const deletedPostColumns = postColumns + `, deleted_by, deleted_by_email, deleted_at`

func scanDeletedPost(row interface{ Scan(...any) error }) (DeletedPost, error) {
	var item DeletedPost
	err := row.Scan(&item.ID, &item.Title, &item.Content, &item.Author,
		&item.ActualAuthor, &item.IsAnonymous, &item.CreatedAt, &item.UpdatedAt,
		&item.DeletedBy, &item.DeletedByEmail, &item.DeletedAt)
	if err != nil {
		return DeletedPost{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertDeletedPost(ctx context.Context, item DeletedPost) error {
	// Upsert keeps the additive phase of a soft delete idempotent.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deleted_posts (id, title, content, author, actual_author, is_anonymous, created_at, updated_at, deleted_by, deleted_by_email, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET deleted_by=EXCLUDED.deleted_by, deleted_by_email=EXCLUDED.deleted_by_email, deleted_at=EXCLUDED.deleted_at
	`, item.ID, item.Title, item.Content, item.Author, item.ActualAuthor,
		item.IsAnonymous, item.CreatedAt, item.UpdatedAt,
		item.DeletedBy, item.DeletedByEmail, item.DeletedAt)
	if err != nil {
		return fmt.Errorf("insert deleted post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDeletedPost(ctx context.Context, postID string) (DeletedPost, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deletedPostColumns+` FROM deleted_posts WHERE id=$1`, postID)
	return scanDeletedPost(row)
}

func (s *PostgresStore) ListDeletedPosts(ctx context.Context) ([]DeletedPost, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deletedPostColumns+` FROM deleted_posts ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list deleted posts: %w", err)
	}
	defer rows.Close()

	items := make([]DeletedPost, 0)
	for rows.Next() {
		item, err := scanDeletedPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deleted post: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deleted posts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) RemoveDeletedPost(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM deleted_posts WHERE id=$1`, postID)
	if err != nil {
		return fmt.Errorf("remove deleted post: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Logs

func (s *PostgresStore) InsertActivityLog(ctx context.Context, entry ActivityLogEntry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsRaw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO activity_log (actor_id, actor_email, action, details)
		VALUES ($1, $2, $3, $4)
	`, entry.ActorID, entry.ActorEmail, entry.Action, detailsRaw)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListActivityLog(ctx context.Context, limit int) ([]ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_email, action, details, created_at
		FROM activity_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity log: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityLogEntry, 0)
	for rows.Next() {
		var (
			entry      ActivityLogEntry
			detailsRaw []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorEmail, &entry.Action, &detailsRaw, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		if err := json.Unmarshal(detailsRaw, &entry.Details); err != nil {
			return nil, fmt.Errorf("decode details: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity log: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertLoginLog(ctx context.Context, entry LoginLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_log (account_id, email, user_agent, remote_ip)
		VALUES ($1, $2, $3, $4)
	`, entry.AccountID, entry.Email, entry.UserAgent, entry.RemoteIP)
	if err != nil {
		return fmt.Errorf("insert login log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLoginLog(ctx context.Context, limit int) ([]LoginLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, email, user_agent, remote_ip, created_at
		FROM login_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list login log: %w", err)
	}
	defer rows.Close()

	items := make([]LoginLogEntry, 0)
	for rows.Next() {
		var entry LoginLogEntry
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Email, &entry.UserAgent, &entry.RemoteIP, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan login log: %w", err)
		}
		items = append(items, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login log: %w", err)
	}
	return items, nil
}

// ---------------------------------------------------------------------------
// Support tickets

const ticketColumns = `id, subject, message, submitter_email, is_suspended, status, responses, created_at, updated_at`

func scanTicket(row interface{ Scan(...any) error }) (SupportTicket, error) {
	var (
		ticket       SupportTicket
		responsesRaw []byte
	)
	err := row.Scan(&ticket.ID, &ticket.Subject, &ticket.Message, &ticket.SubmitterEmail,
		&ticket.IsSuspended, &ticket.Status, &responsesRaw, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return SupportTicket{}, err
	}
	if err := json.Unmarshal(responsesRaw, &ticket.Responses); err != nil {
		return SupportTicket{}, fmt.Errorf("decode responses: %w", err)
	}
	return ticket, nil
}

func (s *PostgresStore) InsertTicket(ctx context.Context, ticket SupportTicket) error {
	responses := ticket.Responses
	if responses == nil {
		responses = []TicketResponse{}
	}
	responsesRaw, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO support_tickets (id, subject, message, submitter_email, is_suspended, status, responses, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ticket.ID, ticket.Subject, ticket.Message, ticket.SubmitterEmail,
		ticket.IsSuspended, ticket.Status, responsesRaw, ticket.CreatedAt, ticket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTicket(ctx context.Context, ticketID string) (SupportTicket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id=$1`, ticketID)
	return scanTicket(row)
}

func (s *PostgresStore) ListTickets(ctx context.Context) ([]SupportTicket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM support_tickets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	items := make([]SupportTicket, 0)
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		items = append(items, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tickets: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AppendTicketResponse(ctx context.Context, ticketID string, response TicketResponse, status string, at time.Time) error {
	responseRaw, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE support_tickets
		SET responses = responses || $2::jsonb, status=$3, updated_at=$4
		WHERE id=$1
	`, ticketID, responseRaw, status, at)
	if err != nil {
		return fmt.Errorf("append ticket response: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTicketStatus(ctx context.Context, ticketID, status string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE support_tickets SET status=$2, updated_at=$3 WHERE id=$1
	`, ticketID, status, at)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Refresh sessions and token revocation

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, accountID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, account_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET account_id=EXCLUDED.account_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, accountID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var accountID string
	err := s.db.QueryRowContext(ctx, `
		SELECT account_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&accountID)
	if err != nil {
		return "", err
	}
	return accountID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---------------------------------------------------------------------------
// Credentials (identity provider storage)

func (s *PostgresStore) GetCredentialByEmail(ctx context.Context, email string) (Credential, error) {
	var cred Credential
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, email_verified, verification_token, verification_expires_at, created_at
		FROM credentials WHERE email=$1
	`, email).Scan(&cred.ID, &cred.Email, &cred.PasswordHash, &cred.EmailVerified,
		&cred.VerificationToken, &cred.VerificationExpiresAt, &cred.CreatedAt)
	if err != nil {
		return Credential{}, err
	}
	return cred, nil
}

func (s *PostgresStore) InsertCredential(ctx context.Context, cred Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, email, password_hash, email_verified, verification_token, verification_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, cred.ID, cred.Email, cred.PasswordHash, cred.EmailVerified,
		cred.VerificationToken, cred.VerificationExpiresAt)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCredentialPassword(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE credentials SET password_hash=$2 WHERE email=$1`, email, passwordHash)
	if err != nil {
		return fmt.Errorf("update credential password: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateVerificationToken(ctx context.Context, email, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET verification_token=$2, verification_expires_at=$3 WHERE email=$1
	`, email, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyCredential(ctx context.Context, token string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `
		UPDATE credentials
		SET email_verified=TRUE, verification_token=''
		WHERE verification_token=$1 AND verification_token <> '' AND (verification_expires_at IS NULL OR verification_expires_at > NOW())
		RETURNING email
	`, token).Scan(&email)
	if err != nil {
		return "", err
	}
	return email, nil
}

func (s *PostgresStore) MarkCredentialVerified(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE credentials SET email_verified=TRUE WHERE email=$1`, email)
	if err != nil {
		return fmt.Errorf("mark credential verified: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE email=$1`, email)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, email, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, email, expires_at)
		VALUES ($1, $2, $3)
	`, token, email, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var email string
	err := s.db.QueryRowContext(ctx, `
		SELECT email FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&email)
	if err != nil {
		return "", err
	}
	return email, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
