package store

import (
	"time"

	"inkwell/api/internal/perm"
)

type Account struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	Name          string           `json:"name"`
	Mobile        string           `json:"mobile,omitempty"`
	IsAdmin       bool             `json:"isAdmin"`
	IsSuperAdmin  bool             `json:"isSuperAdmin"`
	EmailVerified bool             `json:"emailVerified"`
	Permissions   perm.Permissions `json:"permissions"`
	CreatedAt     time.Time        `json:"createdAt"`
	LastLogin     *time.Time       `json:"lastLogin,omitempty"`
}

// DeletedAccount is an account archived in the deleted set. The embedded
// record keeps every live field so a restore loses nothing.
type DeletedAccount struct {
	Account
	DeletedBy      string    `json:"deletedBy"`
	DeletedByEmail string    `json:"deletedByEmail"`
	DeletedAt      time.Time `json:"deletedAt"`
	DeletionReason string    `json:"deletionReason"`
}

type Post struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	// Author is the display identity, possibly the "Anonymous" pseudonym.
	// ActualAuthor is the owning account email and is always retained in
	// storage, but is blanked before unprivileged callers see the post.
	Author       string    `json:"author"`
	ActualAuthor string    `json:"actualAuthor,omitempty"`
	IsAnonymous  bool      `json:"isAnonymous"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type DeletedPost struct {
	Post
	DeletedBy      string    `json:"deletedBy"`
	DeletedByEmail string    `json:"deletedByEmail"`
	DeletedAt      time.Time `json:"deletedAt"`
}

// ActivityLogEntry is append-only; nothing updates or deletes these rows.
type ActivityLogEntry struct {
	ID         int64          `json:"id"`
	ActorID    string         `json:"actorId"`
	ActorEmail string         `json:"actorEmail"`
	Action     string         `json:"action"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type LoginLogEntry struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"accountId"`
	Email     string    `json:"email"`
	UserAgent string    `json:"userAgent"`
	RemoteIP  string    `json:"remoteIp"`
	CreatedAt time.Time `json:"createdAt"`
}

type TicketResponse struct {
	Text       string    `json:"text"`
	From       string    `json:"from"`
	AdminEmail string    `json:"adminEmail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type SupportTicket struct {
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	SubmitterEmail string `json:"submitterEmail"`
	// Snapshot of the submitter's suspension state at submission time.
	IsSuspended bool             `json:"isSuspended"`
	Status      string           `json:"status"`
	Responses   []TicketResponse `json:"responses"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Credential is an identity-provider record, kept apart from the account
// document it authenticates.
type Credential struct {
	ID                    string
	Email                 string
	PasswordHash          string
	EmailVerified         bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
}
