// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/pkg/masking"
	"github.com/taibuivan/yomira-auth/pkg/uuid"
)

// # Contracts & Types

// Database is a connection pool that can also open transactions.
type Database interface {
	dbx.DBTX
	dbx.Beginner
}

// FieldCipher reversibly encrypts contact fields and refresh tokens.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// BlindIndexer derives the deterministic lookup key of a plaintext.
type BlindIndexer interface {
	Index(plaintext string) string
}

// TokenIssuer issues token pairs and checks refresh tokens. [*sec.TokenService] satisfies it.
type TokenIssuer interface {
	IssuePair(subject string) (sec.TokenPair, error)
	VerifyRefreshToken(token string) error
}

// LockoutPolicy bounds failed logins per email.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// ServiceDeps groups the collaborators of [Service].
type ServiceDeps struct {
	DB       Database
	Users    UserRepository
	Tokens   TokenRepository
	History  LoginHistoryRepository
	Attempts LoginAttemptRepository
	Cipher   FieldCipher
	Indexer  BlindIndexer
	Issuer   TokenIssuer
	Verifier *CredentialVerifier
	Hasher   sec.PasswordHasher
	Lockout  LockoutPolicy
}

// Service implements the identity and token lifecycle use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, token
// persistence or rotation must be reviewed by the security team.
type Service struct {
	db       Database
	users    UserRepository
	tokens   TokenRepository
	history  LoginHistoryRepository
	attempts LoginAttemptRepository
	cipher   FieldCipher
	indexer  BlindIndexer
	issuer   TokenIssuer
	verifier *CredentialVerifier
	hasher   sec.PasswordHasher
	lockout  LockoutPolicy
	now      func() time.Time
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(deps ServiceDeps) *Service {
	return &Service{
		db:       deps.DB,
		users:    deps.Users,
		tokens:   deps.Tokens,
		history:  deps.History,
		attempts: deps.Attempts,
		cipher:   deps.Cipher,
		indexer:  deps.Indexer,
		issuer:   deps.Issuer,
		verifier: deps.Verifier,
		hasher:   deps.Hasher,
		lockout:  deps.Lockout,
		now:      time.Now,
	}
}

// WithClock returns a copy of the service reading time from now.
func (service *Service) WithClock(now func() time.Time) *Service {
	clone := *service
	clone.now = now
	return &clone
}

// Session is the outcome of a successful login or refresh.
type Session struct {
	UserID string
	Tokens sec.TokenPair
}

// # Normalization

// NormalizeEmail lowercases and trims an email so equal addresses index equally.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeMobile drops separators so "010-1234-5678" and "01012345678" index equally.
func NormalizeMobile(mobile string) string {
	return strings.NewReplacer("-", "", ".", "", " ", "").Replace(strings.TrimSpace(mobile))
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Name     string
	Email    string
	Mobile   string
	Password string
}

/*
Register encrypts, indexes and persists a brand new local account.

Description: Derived fields (blind indices, ciphertext, password hash) are
computed before the record is built. Uniqueness is checked inside the
transaction and again by the unique indexes for concurrent registrations.

Parameters:
  - ctx: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: Conflict (email_taken or mobile_taken), PersistenceFailure or Internal
*/
func (service *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	email := NormalizeEmail(input.Email)
	mobile := NormalizeMobile(input.Mobile)

	// 1. Derive everything before touching storage
	passwordHash, err := service.hasher.Hash(input.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_hash_failed: %w", err))
	}

	user, err := service.newUser(input.Name, email, mobile, ProviderLocal)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = passwordHash

	// 2. Check and insert atomically
	err = dbx.WithTx(ctx, service.db, func(ctx context.Context, tx dbx.DBTX) error {
		taken, err := service.users.ExistsByEmailKey(ctx, tx, user.EmailKey)
		if err != nil {
			return err
		}
		if taken {
			return registrationConflict(ReasonEmailTaken)
		}

		if user.MobileKey != "" {
			taken, err = service.users.ExistsByMobileKey(ctx, tx, user.MobileKey)
			if err != nil {
				return err
			}
			if taken {
				return registrationConflict(ReasonMobileTaken)
			}
		}

		return service.createUser(ctx, tx, user)
	})

	if err != nil {
		if apperr.HasCode(err, apperr.CodeConflict) {
			ctxutil.GetLogger(ctx).Info("auth_register_conflict",
				slog.String("email", masking.Mask(email, masking.DefaultRate)),
				slog.String("reason", conflictReason(err)),
			)
		}
		return nil, asPersistence(err)
	}

	ctxutil.GetLogger(ctx).Info("auth_register_succeeded", slog.String("user_id", user.ID))
	return user, nil
}

// newUser builds an active account with encrypted and indexed contact fields.
func (service *Service) newUser(name, email, mobile string, provider Provider) (*User, error) {
	encryptedEmail, err := service.cipher.Encrypt(email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_encrypt_email_failed: %w", err))
	}

	user := &User{
		ID:             uuid.New(),
		Name:           name,
		EncryptedEmail: encryptedEmail,
		EmailKey:       service.indexer.Index(email),
		Provider:       provider,
		IsActive:       true,
	}

	if mobile != "" {
		encryptedMobile, err := service.cipher.Encrypt(mobile)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("auth_service_encrypt_mobile_failed: %w", err))
		}
		user.EncryptedMobile = encryptedMobile
		user.MobileKey = service.indexer.Index(mobile)
	}

	return user, nil
}

// createUser inserts user, turning a lost uniqueness race into the matching conflict.
func (service *Service) createUser(ctx context.Context, tx dbx.DBTX, user *User) error {
	err := service.users.Create(ctx, tx, user)
	if err == nil {
		return nil
	}

	if dberr.IsUniqueViolation(err) {
		switch dberr.ConstraintName(err) {
		case "uq_account_emailkey":
			return registrationConflict(ReasonEmailTaken).WithCause(err)
		case "uq_account_mobilekey":
			return registrationConflict(ReasonMobileTaken).WithCause(err)
		}
	}

	return dberr.Wrap(err, ResourceUser)
}

func registrationConflict(reason string) *apperr.AppError {
	field, message := FieldEmail, "Email is already registered"
	if reason == ReasonMobileTaken {
		field, message = FieldMobile, "Mobile number is already registered"
	}

	conflict := apperr.Conflict(message)
	conflict.Details = []apperr.FieldError{{Field: field, Message: reason}}
	return conflict
}

func conflictReason(err error) string {
	if appErr := apperr.As(err); appErr != nil && len(appErr.Details) > 0 {
		return appErr.Details[0].Message
	}
	return ""
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
}

/*
Login validates credentials and issues a persisted token pair.

Description: A locked-out email is refused before any password check. An
unknown email and a wrong password produce the same error after the same
amount of hashing work.

Parameters:
  - ctx: context.Context
  - input: LoginInput

Returns:
  - *Session: Issued tokens
  - error: RateLimited, Unauthorized, Forbidden or PersistenceFailure
*/
func (service *Service) Login(ctx context.Context, input LoginInput) (*Session, error) {
	logger := ctxutil.GetLogger(ctx)
	email := NormalizeEmail(input.Email)
	emailKey := service.indexer.Index(email)

	// 1. Lockout
	if err := service.checkLockout(ctx, emailKey); err != nil {
		logger.Warn("auth_login_locked", slog.String("email", masking.Mask(email, masking.DefaultRate)))
		return nil, err
	}

	// 2. Lookup by blind index only
	user, err := service.users.FindByEmailKey(ctx, service.db, emailKey)
	if err != nil && !apperr.HasCode(err, apperr.CodeNotFound) {
		return nil, asPersistence(err)
	}

	// 3. Verify
	if !service.verifier.Authenticate(user, input.Password) {
		service.recordFailure(ctx, emailKey, user, input.IPAddress)
		logger.Info("auth_login_failed", slog.String("email", masking.Mask(email, masking.DefaultRate)))
		return nil, apperr.Unauthorized("Incorrect email or password")
	}

	if !user.IsActive {
		return nil, apperr.Forbidden("Account is disabled")
	}

	// 4. Issue and persist
	session, err := service.issueSession(ctx, user.ID, input.IPAddress)
	if err != nil {
		return nil, err
	}

	if err := service.attempts.Reset(ctx, emailKey); err != nil {
		logger.Warn("auth_login_attempts_reset_failed", slog.Any("error", err))
	}

	logger.Info("auth_login_succeeded", slog.String("user_id", user.ID))
	return session, nil
}

// checkLockout refuses the attempt when the window's failure budget is spent.
// A counter outage is logged and does not block logins.
func (service *Service) checkLockout(ctx context.Context, emailKey string) error {
	count, err := service.attempts.Count(ctx, emailKey)
	if err != nil {
		ctxutil.GetLogger(ctx).Warn("auth_login_attempts_unavailable", slog.Any("error", err))
		return nil
	}
	if count >= service.lockout.MaxAttempts {
		return apperr.RateLimited(int(service.lockout.Window / time.Second))
	}
	return nil
}

// recordFailure counts the failure and, for a known account, appends history.
func (service *Service) recordFailure(ctx context.Context, emailKey string, user *User, ip string) {
	logger := ctxutil.GetLogger(ctx)

	if _, err := service.attempts.Increment(ctx, emailKey, service.lockout.Window); err != nil {
		logger.Warn("auth_login_attempts_increment_failed", slog.Any("error", err))
	}

	if user == nil {
		return
	}

	entry := LoginHistory{UserID: user.ID, AttemptedAt: service.now().UTC(), Succeeded: false, IPAddress: ip}
	if err := service.history.Append(ctx, service.db, entry); err != nil {
		logger.Warn("auth_login_history_append_failed", slog.Any("error", err))
	}
}

/*
issueSession issues a pair and persists it as the user's only record.

Description: The prior record is deleted and the new one inserted in the same
transaction as the login history entry and the last-login stamp; a failure in
any of them rolls back all of them.
*/
func (service *Service) issueSession(ctx context.Context, userID, ip string) (*Session, error) {
	pair, err := service.issuer.IssuePair(userID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_issue_failed: %w", err))
	}

	record, err := service.sealRecord(userID, pair)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, service.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := service.tokens.DeleteByUser(ctx, tx, userID); err != nil {
			return err
		}
		if err := service.tokens.Insert(ctx, tx, record); err != nil {
			return err
		}

		entry := LoginHistory{UserID: userID, AttemptedAt: pair.IssuedAt, Succeeded: true, IPAddress: ip}
		if err := service.history.Append(ctx, tx, entry); err != nil {
			return err
		}
		return service.users.UpdateLastLogin(ctx, tx, userID, pair.IssuedAt, ip)
	})
	if err != nil {
		return nil, asPersistence(err)
	}

	return &Session{UserID: userID, Tokens: pair}, nil
}

// sealRecord encrypts and indexes the refresh token of pair.
func (service *Service) sealRecord(userID string, pair sec.TokenPair) (*RefreshTokenRecord, error) {
	encrypted, err := service.cipher.Encrypt(pair.RefreshToken)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_encrypt_refresh_failed: %w", err))
	}

	return &RefreshTokenRecord{
		UserID:                userID,
		AccessToken:           pair.AccessToken,
		EncryptedRefreshToken: encrypted,
		RefreshTokenKey:       service.indexer.Index(pair.RefreshToken),
		IssuedAt:              pair.IssuedAt,
		ExpiresAt:             pair.RefreshExpiresAt,
	}, nil
}

// # Session Termination

/*
Logout deletes the record paired with the caller's access token.

Parameters:
  - ctx: context.Context
  - principal: *sec.Principal (from a standard guard)

Returns:
  - error: NotFound when no record matched, PersistenceFailure
*/
func (service *Service) Logout(ctx context.Context, principal *sec.Principal) error {
	deleted, err := service.tokens.Delete(ctx, service.db, principal.Subject, principal.AccessToken)
	if err != nil {
		return asPersistence(err)
	}

	if !deleted {
		ctxutil.GetLogger(ctx).Info("auth_logout_record_missing", slog.String("user_id", principal.Subject))
		return apperr.NotFound(ResourceRefreshToken)
	}

	ctxutil.GetLogger(ctx).Info("auth_logout", slog.String("user_id", principal.Subject))
	return nil
}

// # Token Rotation

/*
Refresh reissues both tokens and rotates the stored record in place.

Description: The record is looked up by (subject, access token), its refresh
token decrypted and compared with the presented one. The rotation itself is a
conditional update; if a concurrent refresh already rotated the record, no
row matches and this one rolls back with TokenMismatch.

Parameters:
  - ctx: context.Context
  - principal: *sec.Principal (from a refresh guard, expiry tolerated)
  - presented: string (refresh token from body or cookie)

Returns:
  - *Session: Reissued tokens
  - error: CredentialsMissing, InvalidToken, TokenMismatch, TokenExpired or PersistenceFailure
*/
func (service *Service) Refresh(ctx context.Context, principal *sec.Principal, presented string) (*Session, error) {
	logger := ctxutil.GetLogger(ctx)

	if presented == "" {
		return nil, apperr.CredentialsMissing()
	}
	if err := service.issuer.VerifyRefreshToken(presented); err != nil {
		return nil, apperr.InvalidToken("Invalid refresh token").WithCause(err)
	}

	presentedKey := service.indexer.Index(presented)
	var session *Session

	err := dbx.WithTx(ctx, service.db, func(ctx context.Context, tx dbx.DBTX) error {

		// 1. Load the pairing
		record, err := service.tokens.Get(ctx, tx, principal.Subject, principal.AccessToken)
		if err != nil {
			if apperr.HasCode(err, apperr.CodeNotFound) {
				logger.Info("auth_refresh_mismatch", slog.String("user_id", principal.Subject), slog.String("reason", "no_record"))
				return apperr.TokenMismatch()
			}
			return err
		}

		// 2. Compare against the decrypted stored value
		stored, err := service.cipher.Decrypt(record.EncryptedRefreshToken)
		if err != nil {
			return apperr.InvalidToken("Invalid refresh token").WithCause(err)
		}
		if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 || record.RefreshTokenKey != presentedKey {
			logger.Info("auth_refresh_mismatch", slog.String("user_id", principal.Subject), slog.String("reason", "value"))
			return apperr.TokenMismatch()
		}

		// 3. The pairing itself must still be alive
		if record.Expired(service.now()) {
			return apperr.TokenExpired()
		}

		// 4. Reissue and rotate conditionally
		pair, err := service.issuer.IssuePair(principal.Subject)
		if err != nil {
			return apperr.Internal(fmt.Errorf("auth_service_issue_failed: %w", err))
		}
		next, err := service.sealRecord(principal.Subject, pair)
		if err != nil {
			return err
		}

		rotated, err := service.tokens.Rotate(ctx, tx, RotationCriteria{
			UserID:          record.UserID,
			AccessToken:     record.AccessToken,
			RefreshTokenKey: record.RefreshTokenKey,
		}, next)
		if err != nil {
			return err
		}
		if !rotated {
			logger.Info("auth_refresh_mismatch", slog.String("user_id", principal.Subject), slog.String("reason", "concurrent_rotation"))
			return apperr.TokenMismatch()
		}

		session = &Session{UserID: principal.Subject, Tokens: pair}
		return nil
	})
	if err != nil {
		return nil, asPersistence(err)
	}

	logger.Info("auth_refresh_succeeded", slog.String("user_id", principal.Subject))
	return session, nil
}

// # External Providers

// ProviderLogin is an identity already verified by an external provider client.
type ProviderLogin struct {
	Provider  Provider
	Subject   string
	Name      string
	Email     string
	IPAddress string
}

/*
LoginWithProvider logs in through an external identity, creating the account
on first use.

Description: The identity is resolved by (provider, subject). An unseen
identity gets a new password-less account. Its email must not belong to any
existing account; such a clash is rejected rather than linked. Tokens are
then issued exactly like a local login.

Returns:
  - *Session: Issued tokens
  - error: ValidationError, Conflict, Forbidden or PersistenceFailure
*/
func (service *Service) LoginWithProvider(ctx context.Context, input ProviderLogin) (*Session, error) {
	if !input.Provider.Valid() || input.Provider == ProviderLocal {
		return nil, apperr.ValidationError("Unsupported identity provider")
	}
	if input.Subject == "" || strings.TrimSpace(input.Email) == "" {
		return nil, apperr.ValidationError("Provider identity is incomplete")
	}

	email := NormalizeEmail(input.Email)
	var user *User

	err := dbx.WithTx(ctx, service.db, func(ctx context.Context, tx dbx.DBTX) error {
		found, err := service.users.FindByOAuthIdentity(ctx, tx, input.Provider, input.Subject)
		if err == nil {
			user = found
			return nil
		}
		if !apperr.HasCode(err, apperr.CodeNotFound) {
			return err
		}

		// First login through this identity
		_, err = service.users.FindByEmailKey(ctx, tx, service.indexer.Index(email))
		if err == nil {
			return registrationConflict(ReasonEmailTaken)
		}
		if !apperr.HasCode(err, apperr.CodeNotFound) {
			return err
		}

		if user, err = service.newUser(providerDisplayName(input.Name), email, "", input.Provider); err != nil {
			return err
		}
		if err := service.createUser(ctx, tx, user); err != nil {
			return err
		}

		return service.users.LinkOAuthIdentity(ctx, tx, OAuthIdentity{
			Provider: input.Provider,
			Subject:  input.Subject,
			UserID:   user.ID,
		})
	})
	if err != nil {
		return nil, asPersistence(err)
	}

	if !user.IsActive {
		return nil, apperr.Forbidden("Account is disabled")
	}

	session, err := service.issueSession(ctx, user.ID, input.IPAddress)
	if err != nil {
		return nil, err
	}

	ctxutil.GetLogger(ctx).Info("auth_provider_login_succeeded",
		slog.String("user_id", user.ID),
		slog.String("provider", string(input.Provider)),
	)
	return session, nil
}

// providerDisplayName fits a provider-supplied name into the account name column.
func providerDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Member"
	}
	if runes := []rune(name); len(runes) > NameMaxLength {
		return string(runes[:NameMaxLength])
	}
	return name
}

// # Profile

// Profile returns the account of userID with contact fields decrypted.
func (service *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := service.users.FindByID(ctx, service.db, userID)
	if err != nil {
		return nil, asPersistence(err)
	}

	email, err := service.cipher.Decrypt(user.EncryptedEmail)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("auth_service_decrypt_email_failed: %w", err))
	}

	profile := &Profile{
		ID:          user.ID,
		Name:        user.Name,
		Email:       email,
		Provider:    user.Provider,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}

	if user.EncryptedMobile != "" {
		if profile.Mobile, err = service.cipher.Decrypt(user.EncryptedMobile); err != nil {
			return nil, apperr.Internal(fmt.Errorf("auth_service_decrypt_mobile_failed: %w", err))
		}
	}

	return profile, nil
}

// FindByEmail resolves an account through the blind index of its normalized email.
func (service *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := service.users.FindByEmailKey(ctx, service.db, service.indexer.Index(NormalizeEmail(email)))
	if err != nil {
		return nil, asPersistence(err)
	}
	return user, nil
}

// # Helpers

// asPersistence passes classified errors through and marks the rest as not applied.
func asPersistence(err error) error {
	if appErr := apperr.As(err); appErr != nil {
		return appErr
	}
	return apperr.PersistenceFailure(err)
}
