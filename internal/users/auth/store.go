// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"time"

	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
)

// Every relational repository takes the connection or transaction to run on as
// an explicit [dbx.DBTX]; callers own transaction boundaries.

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		Create persists a brand-new account.

		Parameters:
		  - context: context.Context
		  - db: dbx.DBTX
		  - user: *User (contact fields already encrypted and indexed)

		Returns:
		  - error: Conflict on a duplicate email/mobile index, persistence failures
	*/
	Create(context context.Context, db dbx.DBTX, user *User) error

	/*
		FindByID returns the account with the given ID.

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByID(context context.Context, db dbx.DBTX, id string) (*User, error)

	/*
		FindByEmailKey returns the account whose email blind index matches.

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByEmailKey(context context.Context, db dbx.DBTX, emailKey string) (*User, error)

	// ExistsByEmailKey reports whether an account already uses the email index.
	ExistsByEmailKey(context context.Context, db dbx.DBTX, emailKey string) (bool, error)

	// ExistsByMobileKey reports whether an account already uses the mobile index.
	ExistsByMobileKey(context context.Context, db dbx.DBTX, mobileKey string) (bool, error)

	/*
		UpdateLastLogin stamps the login metadata of an account.

		Parameters:
		  - context: context.Context
		  - db: dbx.DBTX
		  - userID: string
		  - at: time.Time
		  - ip: string

		Returns:
		  - error: apperr.NotFound or persistence failures
	*/
	UpdateLastLogin(context context.Context, db dbx.DBTX, userID string, at time.Time, ip string) error

	/*
		FindByOAuthIdentity returns the account linked to a provider subject.

		Returns:
		  - *User: Hydrated entity
		  - error: apperr.NotFound or retrieval failures
	*/
	FindByOAuthIdentity(context context.Context, db dbx.DBTX, provider Provider, subject string) (*User, error)

	// LinkOAuthIdentity attaches a provider subject to an existing account.
	LinkOAuthIdentity(context context.Context, db dbx.DBTX, identity OAuthIdentity) error
}

// # Token Data Access

// RotationCriteria selects the record a rotation may replace. Both values must
// still match at update time for the rotation to apply.
type RotationCriteria struct {
	UserID          string
	AccessToken     string
	RefreshTokenKey string
}

// TokenRepository owns the refresh-token records. It performs no cryptography.
type TokenRepository interface {

	// Exists reports whether a record pairs the user with the access token.
	Exists(context context.Context, db dbx.DBTX, userID, accessToken string) (bool, error)

	/*
		Get returns the record pairing the user with the access token.

		Returns:
		  - *RefreshTokenRecord: Hydrated record
		  - error: apperr.NotFound when no record matches, retrieval failures
	*/
	Get(context context.Context, db dbx.DBTX, userID, accessToken string) (*RefreshTokenRecord, error)

	// Insert persists record, replacing any pairing the user already has.
	Insert(context context.Context, db dbx.DBTX, record *RefreshTokenRecord) error

	/*
		Rotate replaces the matched record's values in a single conditional statement.

		Parameters:
		  - criteria: RotationCriteria (values the current row must still hold)
		  - next: *RefreshTokenRecord (new access token, refresh ciphertext, index, expiry)

		Returns:
		  - bool: false when no row matched, i.e. a concurrent rotation won
		  - error: Persistence failures
	*/
	Rotate(context context.Context, db dbx.DBTX, criteria RotationCriteria, next *RefreshTokenRecord) (bool, error)

	/*
		Delete removes exactly the record pairing the user with the access token.

		Returns:
		  - bool: whether a record was removed; a missing record is not an error here
		  - error: Persistence failures
	*/
	Delete(context context.Context, db dbx.DBTX, userID, accessToken string) (bool, error)

	// DeleteByUser removes every record of the user and returns how many went.
	DeleteByUser(context context.Context, db dbx.DBTX, userID string) (int64, error)
}

// # Audit Data Access

// LoginHistoryRepository appends login attempts of record.
type LoginHistoryRepository interface {
	Append(context context.Context, db dbx.DBTX, entry LoginHistory) error
}

// # Volatile Data Access

// LoginAttemptRepository counts failed logins per email blind index.
type LoginAttemptRepository interface {

	// Count returns the failures recorded in the current window.
	Count(context context.Context, emailKey string) (int, error)

	/*
		Increment records one failure and starts the window on the first one.

		Parameters:
		  - context: context.Context
		  - emailKey: string
		  - window: time.Duration

		Returns:
		  - int: failures in the window including this one
		  - error: Storage failures
	*/
	Increment(context context.Context, emailKey string, window time.Duration) (int, error)

	// Reset clears the counter after a successful login.
	Reset(context context.Context, emailKey string) error
}
