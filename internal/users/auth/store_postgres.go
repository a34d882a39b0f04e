// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

// Repositories in this file implement the domain-defined interfaces over pgx.
//
// Storage errors are classified through [dberr.Wrap] so pgx.ErrNoRows and
// unique violations reach the service as apperr kinds.

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
	"github.com/taibuivan/yomira-auth/pkg/pointer"
)

// # User Repository

// PostgresUserRepository implements [UserRepository] using pgx.
type PostgresUserRepository struct{}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository() *PostgresUserRepository {
	return &PostgresUserRepository{}
}

const userColumns = `
	id, name, email, emailkey, COALESCE(mobile, ''), COALESCE(mobilekey, ''),
	COALESCE(passwordhash, ''), provider, isactive, lastloginat, COALESCE(lastloginip, ''),
	createdat, updatedat`

/*
Create persists a new account into users.account.

Description: Empty mobile and password hash are stored as NULL so the unique
mobile index only covers accounts that registered one.

Parameters:
  - context: context.Context
  - db: dbx.DBTX
  - user: *User (Entity to persist)

Returns:
  - error: Raw unique violations (callers read the constraint) or persistence errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, db dbx.DBTX, user *User) error {
	const query = `
		INSERT INTO users.account (
			id, name, email, emailkey, mobile, mobilekey, passwordhash, provider, isactive, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := db.Exec(context, query,
		user.ID,
		user.Name,
		user.EncryptedEmail,
		user.EmailKey,
		nullable(user.EncryptedMobile),
		nullable(user.MobileKey),
		nullable(user.PasswordHash),
		user.Provider,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

// FindByID retrieves an account by its primary key.
func (repository *PostgresUserRepository) FindByID(context context.Context, db dbx.DBTX, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account WHERE id = $1`
	return scanUser(db.QueryRow(context, query, id))
}

/*
FindByEmailKey retrieves an account by the blind index of its email.

Parameters:
  - context: context.Context
  - db: dbx.DBTX
  - emailKey: string (HMAC of the normalized email)

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmailKey(context context.Context, db dbx.DBTX, emailKey string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users.account WHERE emailkey = $1`
	return scanUser(db.QueryRow(context, query, emailKey))
}

// ExistsByEmailKey reports whether the email index is taken.
func (repository *PostgresUserRepository) ExistsByEmailKey(context context.Context, db dbx.DBTX, emailKey string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users.account WHERE emailkey = $1)`

	var exists bool
	if err := db.QueryRow(context, query, emailKey).Scan(&exists); err != nil {
		return false, dberr.Wrap(fmt.Errorf("postgres_user_repo_exists_email_failed: %w", err), ResourceUser)
	}
	return exists, nil
}

// ExistsByMobileKey reports whether the mobile index is taken.
func (repository *PostgresUserRepository) ExistsByMobileKey(context context.Context, db dbx.DBTX, mobileKey string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users.account WHERE mobilekey = $1)`

	var exists bool
	if err := db.QueryRow(context, query, mobileKey).Scan(&exists); err != nil {
		return false, dberr.Wrap(fmt.Errorf("postgres_user_repo_exists_mobile_failed: %w", err), ResourceUser)
	}
	return exists, nil
}

// UpdateLastLogin stamps lastloginat and lastloginip.
func (repository *PostgresUserRepository) UpdateLastLogin(context context.Context, db dbx.DBTX, userID string, at time.Time, ip string) error {
	const query = `
		UPDATE users.account
		SET lastloginat = $2, lastloginip = $3, updatedat = $2
		WHERE id = $1`

	tag, err := db.Exec(context, query, userID, at, nullable(ip))
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_user_repo_update_last_login_failed: %w", err), ResourceUser)
	}
	if tag.RowsAffected() == 0 {
		return dberr.Wrap(pgx.ErrNoRows, ResourceUser)
	}
	return nil
}

// FindByOAuthIdentity resolves an account through users.oauthidentity.
func (repository *PostgresUserRepository) FindByOAuthIdentity(context context.Context, db dbx.DBTX, provider Provider, subject string) (*User, error) {
	query := `SELECT ` + userColumns + `
		FROM users.account
		WHERE id = (SELECT userid FROM users.oauthidentity WHERE provider = $1 AND subject = $2)`
	return scanUser(db.QueryRow(context, query, provider, subject))
}

// LinkOAuthIdentity inserts the (provider, subject) link.
func (repository *PostgresUserRepository) LinkOAuthIdentity(context context.Context, db dbx.DBTX, identity OAuthIdentity) error {
	const query = `INSERT INTO users.oauthidentity (provider, subject, userid) VALUES ($1, $2, $3)`

	if _, err := db.Exec(context, query, identity.Provider, identity.Subject, identity.UserID); err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_user_repo_link_oauth_failed: %w", err), "OAuth identity")
	}
	return nil
}

// nullable maps the empty string to SQL NULL.
func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	user := &User{}

	// Provider-only accounts carry no mobile, hash or login IP.
	var encryptedMobile, mobileKey, passwordHash, lastLoginIP *string

	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.EncryptedEmail,
		&user.EmailKey,
		&encryptedMobile,
		&mobileKey,
		&passwordHash,
		&user.Provider,
		&user.IsActive,
		&user.LastLoginAt,
		&lastLoginIP,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, ResourceUser)
	}

	user.EncryptedMobile = pointer.Val(encryptedMobile)
	user.MobileKey = pointer.Val(mobileKey)
	user.PasswordHash = pointer.Val(passwordHash)
	user.LastLoginIP = pointer.Val(lastLoginIP)
	return user, nil
}

// # Token Repository

// PostgresTokenRepository implements [TokenRepository] over users.refreshtoken.
type PostgresTokenRepository struct{}

// NewTokenRepository creates a new PostgreSQL implementation of the TokenRepository.
func NewTokenRepository() *PostgresTokenRepository {
	return &PostgresTokenRepository{}
}

// Exists reports whether (userID, accessToken) is a stored pairing.
func (repository *PostgresTokenRepository) Exists(context context.Context, db dbx.DBTX, userID, accessToken string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM users.refreshtoken WHERE userid = $1 AND accesstoken = $2
		)`

	var exists bool
	if err := db.QueryRow(context, query, userID, accessToken).Scan(&exists); err != nil {
		return false, dberr.Wrap(fmt.Errorf("postgres_token_repo_exists_failed: %w", err), ResourceRefreshToken)
	}
	return exists, nil
}

/*
Get retrieves the record pairing the user with the access token.

Description: FOR UPDATE locks the row for the rest of the caller's transaction,
so a concurrent refresh of the same pairing waits for this one to settle.

Parameters:
  - context: context.Context
  - db: dbx.DBTX
  - userID: string
  - accessToken: string

Returns:
  - *RefreshTokenRecord: Hydrated record
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresTokenRepository) Get(context context.Context, db dbx.DBTX, userID, accessToken string) (*RefreshTokenRecord, error) {
	const query = `
		SELECT userid, accesstoken, refreshtoken, refreshtokenkey, issuedat, expiresat
		FROM users.refreshtoken
		WHERE userid = $1 AND accesstoken = $2
		FOR UPDATE`

	record := &RefreshTokenRecord{}
	err := db.QueryRow(context, query, userID, accessToken).Scan(
		&record.UserID,
		&record.AccessToken,
		&record.EncryptedRefreshToken,
		&record.RefreshTokenKey,
		&record.IssuedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, ResourceRefreshToken)
	}
	return record, nil
}

/*
Insert persists record as the user's only pairing.

Description: A row committed for the same user by a concurrent login is
overwritten in place, so the last login wins instead of failing on the key.
*/
func (repository *PostgresTokenRepository) Insert(context context.Context, db dbx.DBTX, record *RefreshTokenRecord) error {
	const query = `
		INSERT INTO users.refreshtoken (
			userid, accesstoken, refreshtoken, refreshtokenkey, issuedat, expiresat
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (userid) DO UPDATE SET
			accesstoken     = EXCLUDED.accesstoken,
			refreshtoken    = EXCLUDED.refreshtoken,
			refreshtokenkey = EXCLUDED.refreshtokenkey,
			issuedat        = EXCLUDED.issuedat,
			expiresat       = EXCLUDED.expiresat`

	_, err := db.Exec(context, query,
		record.UserID,
		record.AccessToken,
		record.EncryptedRefreshToken,
		record.RefreshTokenKey,
		record.IssuedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_token_repo_insert_failed: %w", err), ResourceRefreshToken)
	}
	return nil
}

/*
Rotate replaces the pairing in one match-and-update statement.

Description: The WHERE clause re-checks the old access token and refresh index,
so of two concurrent rotations only the first to commit matches a row.

Returns:
  - bool: true when exactly the matched row was rotated
  - error: Persistence failures
*/
func (repository *PostgresTokenRepository) Rotate(context context.Context, db dbx.DBTX, criteria RotationCriteria, next *RefreshTokenRecord) (bool, error) {
	const query = `
		UPDATE users.refreshtoken
		SET accesstoken = $4, refreshtoken = $5, refreshtokenkey = $6, issuedat = $7, expiresat = $8
		WHERE userid = $1 AND accesstoken = $2 AND refreshtokenkey = $3`

	tag, err := db.Exec(context, query,
		criteria.UserID,
		criteria.AccessToken,
		criteria.RefreshTokenKey,
		next.AccessToken,
		next.EncryptedRefreshToken,
		next.RefreshTokenKey,
		next.IssuedAt,
		next.ExpiresAt,
	)
	if err != nil {
		return false, dberr.Wrap(fmt.Errorf("postgres_token_repo_rotate_failed: %w", err), ResourceRefreshToken)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes the exact pairing and reports whether one existed.
func (repository *PostgresTokenRepository) Delete(context context.Context, db dbx.DBTX, userID, accessToken string) (bool, error) {
	const query = `DELETE FROM users.refreshtoken WHERE userid = $1 AND accesstoken = $2`

	tag, err := db.Exec(context, query, userID, accessToken)
	if err != nil {
		return false, dberr.Wrap(fmt.Errorf("postgres_token_repo_delete_failed: %w", err), ResourceRefreshToken)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteByUser removes every record of the user.
func (repository *PostgresTokenRepository) DeleteByUser(context context.Context, db dbx.DBTX, userID string) (int64, error) {
	const query = `DELETE FROM users.refreshtoken WHERE userid = $1`

	tag, err := db.Exec(context, query, userID)
	if err != nil {
		return 0, dberr.Wrap(fmt.Errorf("postgres_token_repo_delete_by_user_failed: %w", err), ResourceRefreshToken)
	}
	return tag.RowsAffected(), nil
}

// # Login History Repository

// PostgresLoginHistoryRepository implements [LoginHistoryRepository].
type PostgresLoginHistoryRepository struct{}

// NewLoginHistoryRepository creates a new PostgreSQL implementation of the LoginHistoryRepository.
func NewLoginHistoryRepository() *PostgresLoginHistoryRepository {
	return &PostgresLoginHistoryRepository{}
}

// Append inserts one attempt.
func (repository *PostgresLoginHistoryRepository) Append(context context.Context, db dbx.DBTX, entry LoginHistory) error {
	const query = `
		INSERT INTO users.loginhistory (userid, attemptedat, succeeded, ipaddress)
		VALUES ($1, $2, $3, $4)`

	if _, err := db.Exec(context, query, entry.UserID, entry.AttemptedAt, entry.Succeeded, nullable(entry.IPAddress)); err != nil {
		return dberr.Wrap(fmt.Errorf("postgres_login_history_repo_append_failed: %w", err), "Login history")
	}
	return nil
}
