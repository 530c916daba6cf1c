package app

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inkwell/api/internal/audit"
	"inkwell/api/internal/auth"
	"inkwell/api/internal/config"
	"inkwell/api/internal/identity"
	"inkwell/api/internal/perm"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

// dataStore is the persistence surface the service depends on. PostgresStore
// implements all of it; tests swap in fakes per method group.
type dataStore interface {
	Ping(ctx context.Context) error

	GetAccount(ctx context.Context, id string) (store.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (store.Account, error)
	InsertAccount(ctx context.Context, a store.Account) error
	ListAccounts(ctx context.Context) ([]store.Account, error)
	UpdateAccountRoles(ctx context.Context, id string, isAdmin, isSuperAdmin bool) error
	UpdateAccountPermissions(ctx context.Context, id string, p perm.Permissions) error
	TouchAccountLogin(ctx context.Context, id string, at time.Time, verified bool) error
	DeleteAccount(ctx context.Context, id string) error
	SuperAdminExists(ctx context.Context) (bool, error)

	InsertDeletedAccount(ctx context.Context, a store.DeletedAccount) error
	GetDeletedAccount(ctx context.Context, id string) (store.DeletedAccount, error)
	ListDeletedAccounts(ctx context.Context) ([]store.DeletedAccount, error)
	RemoveDeletedAccount(ctx context.Context, id string) error

	InsertPost(ctx context.Context, p store.Post) error
	GetPost(ctx context.Context, id string) (store.Post, error)
	PostExists(ctx context.Context, id string) (bool, error)
	ListPosts(ctx context.Context) ([]store.Post, error)
	ListPostsByAuthor(ctx context.Context, email string) ([]store.Post, error)
	UpdatePost(ctx context.Context, postID, title, content string, at time.Time) error
	DeletePost(ctx context.Context, id string) error

	InsertDeletedPost(ctx context.Context, p store.DeletedPost) error
	GetDeletedPost(ctx context.Context, id string) (store.DeletedPost, error)
	ListDeletedPosts(ctx context.Context) ([]store.DeletedPost, error)
	RemoveDeletedPost(ctx context.Context, id string) error

	ListActivityLog(ctx context.Context, limit int) ([]store.ActivityLogEntry, error)
	InsertLoginLog(ctx context.Context, e store.LoginLogEntry) error
	ListLoginLog(ctx context.Context, limit int) ([]store.LoginLogEntry, error)

	InsertTicket(ctx context.Context, t store.SupportTicket) error
	GetTicket(ctx context.Context, id string) (store.SupportTicket, error)
	ListTickets(ctx context.Context) ([]store.SupportTicket, error)
	AppendTicketResponse(ctx context.Context, ticketID string, r store.TicketResponse, status string, at time.Time) error
	UpdateTicketStatus(ctx context.Context, ticketID, status string, at time.Time) error

	RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// sessionStore holds refresh tokens. Backed by Redis when configured,
// otherwise by the refresh_sessions table.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, accountID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type identityProvider interface {
	Register(ctx context.Context, email, password string) (identity.Identity, string, error)
	Authenticate(ctx context.Context, email, password string) (identity.Identity, error)
	Reauthenticate(ctx context.Context, email, password string) (bool, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	ResendVerification(ctx context.Context, email string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	DeleteIdentity(ctx context.Context, email string) error
}

type auditRecorder interface {
	Record(ctx context.Context, actorID, actorEmail, action string, details map[string]any)
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	identity identityProvider
	audit    auditRecorder
	mailer   mailer
	log      zerolog.Logger
	now      func() time.Time
}

func New(cfg config.Config, ds dataStore, sessions sessionStore, idp identityProvider, audit auditRecorder, mail mailer, log zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    ds,
		sessions: sessions,
		identity: idp,
		audit:    audit,
		mailer:   mail,
		log:      log,
		now:      time.Now,
	}
}

// Session is the caller identity attached to every authenticated request.
// Role flags and permissions are re-read from the store per operation, so a
// suspension or demotion takes effect on the next call, not the next login.
type Session struct {
	AccountID    string     `json:"accountId"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	IsAdmin      bool       `json:"isAdmin"`
	IsSuperAdmin bool       `json:"isSuperAdmin"`
	JTI          string     `json:"-"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Token        string     `json:"token,omitempty"`
	RefreshToken string     `json:"refreshToken,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// actorFor loads the caller's current account record and builds the
// authorization view used by the permission predicates.
func (s *Service) actorFor(ctx context.Context, session Session) (perm.Actor, store.Account, error) {
	account, err := s.store.GetAccount(ctx, session.AccountID)
	if err != nil {
		if store.IsNotFound(err) {
			return perm.Actor{}, store.Account{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Account no longer exists", nil)
		}
		return perm.Actor{}, store.Account{}, s.storeErr(err, "load actor account")
	}
	return perm.Actor{
		ID:           account.ID,
		Email:        account.Email,
		IsAdmin:      account.IsAdmin,
		IsSuperAdmin: account.IsSuperAdmin,
		Permissions:  account.Permissions,
	}, account, nil
}

func (s *Service) storeErr(err error, op string) error {
	s.log.Error().Err(err).Str("op", op).Msg("store operation failed")
	return upstream()
}

func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return s.storeErr(err, "ping")
	}
	return nil
}

var mobilePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,14}$`)

func validMobile(mobile string) bool {
	return mobile == "" || mobilePattern.MatchString(mobile)
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Mobile   string `json:"mobile"`
}

type RegisterResult struct {
	Account store.Account `json:"account"`
	// DevVerificationToken is only populated when no SMTP relay is
	// configured, so local setups can complete verification by hand.
	DevVerificationToken string `json:"devVerificationToken,omitempty"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.Mobile = strings.TrimSpace(in.Mobile)
	if in.Email == "" {
		return RegisterResult{}, invalidInput("email is required")
	}
	if !validMobile(in.Mobile) {
		return RegisterResult{}, invalidInput("mobile number must be 7-15 digits, optionally starting with +")
	}

	id, verificationToken, err := s.identity.Register(ctx, in.Email, in.Password)
	switch {
	case err == nil:
	case err == identity.ErrEmailTaken:
		return RegisterResult{}, emailConflict(in.Email)
	case err == identity.ErrWeakPassword:
		return RegisterResult{}, invalidInput("password must be at least 8 characters")
	default:
		return RegisterResult{}, s.storeErr(err, "register credential")
	}

	account := store.Account{
		ID:          id.ID,
		Email:       in.Email,
		Name:        in.Name,
		Mobile:      in.Mobile,
		Permissions: perm.DefaultPermissions(),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertAccount(ctx, account); err != nil {
		return RegisterResult{}, s.storeErr(err, "insert account")
	}

	s.audit.Record(ctx, account.ID, account.Email, audit.ActionUserRegistration, map[string]any{
		"email": account.Email,
		"name":  account.Name,
	})

	result := RegisterResult{Account: account}
	if s.mailer != nil && s.mailer.IsConfigured() {
		url := s.cfg.BaseURL + "/verify-email?token=" + verificationToken
		if err := s.mailer.SendVerificationEmail(account.Email, account.Name, url); err != nil {
			s.log.Error().Err(err).Str("email", account.Email).Msg("verification email failed")
		}
	} else {
		result.DevVerificationToken = verificationToken
	}
	return result, nil
}

type LoginInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserAgent string `json:"-"`
	RemoteIP  string `json:"-"`
}

func (s *Service) Login(ctx context.Context, in LoginInput) (Session, error) {
	id, err := s.identity.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		if err == identity.ErrInvalidCredentials {
			return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		}
		return Session{}, s.storeErr(err, "authenticate")
	}
	if !id.Verified {
		return Session{}, domainError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "Verify your email address before signing in", nil)
	}

	account, err := s.store.GetAccountByEmail(ctx, id.Email)
	if store.IsNotFound(err) {
		// Credential exists without an account record; create one with
		// default grants on first successful sign-in.
		account = store.Account{
			ID:          id.ID,
			Email:       id.Email,
			Permissions: perm.DefaultPermissions(),
			CreatedAt:   s.now().UTC(),
		}
		err = s.store.InsertAccount(ctx, account)
	}
	if err != nil {
		return Session{}, s.storeErr(err, "load account for login")
	}

	loginAt := s.now().UTC()
	if err := s.store.TouchAccountLogin(ctx, account.ID, loginAt, true); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("touch last login failed")
	}
	if err := s.store.InsertLoginLog(ctx, store.LoginLogEntry{
		AccountID: account.ID,
		Email:     account.Email,
		UserAgent: in.UserAgent,
		RemoteIP:  in.RemoteIP,
		CreatedAt: loginAt,
	}); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("login log write failed")
	}
	account.LastLogin = &loginAt

	return s.issueSession(ctx, account)
}

func (s *Service) issueSession(ctx context.Context, account store.Account) (Session, error) {
	jti := util.NewID("jti")
	expiresAt := s.now().Add(s.cfg.AccessTTL)
	claims := auth.NewClaims(account.ID, account.Email, account.Name, account.IsAdmin, account.IsSuperAdmin, jti, expiresAt)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, s.storeErr(err, "issue access token")
	}

	refreshToken := util.NewID("rft")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refreshToken), account.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, s.storeErr(err, "save refresh session")
	}

	return Session{
		AccountID:    account.ID,
		Email:        account.Email,
		Name:         account.Name,
		IsAdmin:      account.IsAdmin,
		IsSuperAdmin: account.IsSuperAdmin,
		JTI:          jti,
		ExpiresAt:    expiresAt,
		Token:        token,
		RefreshToken: refreshToken,
		LastLogin:    account.LastLogin,
	}, nil
}

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired session", nil)

// SessionFromToken validates a bearer token and rehydrates the caller's
// session. Role flags come from the token; permissions are loaded fresh by
// each operation.
func (s *Service) SessionFromToken(ctx context.Context, raw string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), raw)
	if err != nil {
		return Session{}, errUnauthorized
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, s.storeErr(err, "check token revocation")
	}
	if revoked {
		return Session{}, errUnauthorized
	}
	return Session{
		AccountID:    claims.Subject,
		Email:        claims.Email,
		Name:         claims.Name,
		IsAdmin:      claims.IsAdmin,
		IsSuperAdmin: claims.IsSuperAdmin,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	hash := auth.HashToken(refreshToken)
	accountID, err := s.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return Session{}, errUnauthorized
	}
	if err := s.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		s.log.Error().Err(err).Msg("refresh token rotation revoke failed")
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, errUnauthorized
		}
		return Session{}, s.storeErr(err, "load account for refresh")
	}
	return s.issueSession(ctx, account)
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.log.Error().Err(err).Msg("refresh revoke on logout failed")
		}
	}
	if err := s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
		return s.storeErr(err, "revoke access token")
	}
	return nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	email, err := s.identity.VerifyEmail(ctx, token)
	if err != nil {
		if err == identity.ErrInvalidToken {
			return domainError(http.StatusBadRequest, "INVALID_TOKEN", "Verification link is invalid or expired", nil)
		}
		return s.storeErr(err, "verify email")
	}
	account, err := s.store.GetAccountByEmail(ctx, email)
	if err == nil {
		if err := s.store.TouchAccountLogin(ctx, account.ID, s.now().UTC(), true); err != nil {
			s.log.Error().Err(err).Str("email", email).Msg("mark account verified failed")
		}
	}
	return nil
}

func (s *Service) ResendVerification(ctx context.Context, email string) error {
	token, err := s.identity.ResendVerification(ctx, email)
	if err != nil {
		return s.storeErr(err, "resend verification")
	}
	if token == "" {
		// Unknown or already-verified address; respond as if sent.
		return nil
	}
	if s.mailer != nil && s.mailer.IsConfigured() {
		url := s.cfg.BaseURL + "/verify-email?token=" + token
		if err := s.mailer.SendVerificationEmail(email, "", url); err != nil {
			s.log.Error().Err(err).Str("email", email).Msg("verification email failed")
		}
	}
	return nil
}

func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	token, err := s.identity.RequestPasswordReset(ctx, email)
	if err != nil {
		return s.storeErr(err, "request password reset")
	}
	if token == "" {
		return nil
	}
	if s.mailer != nil && s.mailer.IsConfigured() {
		url := s.cfg.BaseURL + "/reset-password?token=" + token
		if err := s.mailer.SendPasswordResetEmail(email, "", url); err != nil {
			s.log.Error().Err(err).Str("email", email).Msg("password reset email failed")
		}
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	err := s.identity.ResetPassword(ctx, token, newPassword)
	switch {
	case err == nil:
		return nil
	case err == identity.ErrInvalidToken:
		return domainError(http.StatusBadRequest, "INVALID_TOKEN", "Reset link is invalid or expired", nil)
	case err == identity.ErrWeakPassword:
		return invalidInput("password must be at least 8 characters")
	default:
		return s.storeErr(err, "reset password")
	}
}

// BootstrapFirstSuperAdmin promotes the caller when no super admin exists
// yet. Once one exists this is a no-op, so racing calls cannot mint a second
// founder.
func (s *Service) BootstrapFirstSuperAdmin(ctx context.Context, session Session) (bool, error) {
	exists, err := s.store.SuperAdminExists(ctx)
	if err != nil {
		return false, s.storeErr(err, "check super admin exists")
	}
	if exists {
		return false, nil
	}
	_, account, err := s.actorFor(ctx, session)
	if err != nil {
		return false, err
	}
	if err := s.store.UpdateAccountRoles(ctx, account.ID, true, true); err != nil {
		return false, s.storeErr(err, "bootstrap super admin")
	}
	s.audit.Record(ctx, account.ID, account.Email, audit.ActionSetSuperAdmin, map[string]any{
		"targetUserId":    account.ID,
		"targetUserEmail": account.Email,
		"before":          map[string]any{"isAdmin": account.IsAdmin, "isSuperAdmin": account.IsSuperAdmin},
		"after":           map[string]any{"isAdmin": true, "isSuperAdmin": true},
		"method":          "bootstrap",
	})
	return true, nil
}
