// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
	"github.com/taibuivan/yomira-auth/internal/users/auth"
)

func newPgxMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var userRowColumns = []string{
	"id", "name", "email", "emailkey", "mobile", "mobilekey", "passwordhash",
	"provider", "isactive", "lastloginat", "lastloginip", "createdat", "updatedat",
}

/*
TestUserRepository_CreateStoresNulls verifies empty optional fields go out as NULL.
*/
func TestUserRepository_CreateStoresNulls(t *testing.T) {
	mock := newPgxMock(t)
	repository := auth.NewUserRepository()

	user := &auth.User{
		ID:             "01950000-0000-7000-8000-000000000010",
		Name:           "Park Sora",
		EncryptedEmail: "cipher",
		EmailKey:       "ekey",
		Provider:       auth.ProviderGoogle,
		IsActive:       true,
	}

	mock.ExpectExec(`INSERT INTO users\.account`).
		WithArgs(user.ID, user.Name, "cipher", "ekey", nil, nil, nil, auth.ProviderGoogle, true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repository.Create(context.Background(), mock, user))
	assert.False(t, user.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

/*
TestUserRepository_CreateKeepsConstraint ensures the unique violation stays
inspectable so the service can tell email from mobile.
*/
func TestUserRepository_CreateKeepsConstraint(t *testing.T) {
	mock := newPgxMock(t)

	anyArgs := make([]any, 11)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}

	mock.ExpectExec(`INSERT INTO users\.account`).
		WithArgs(anyArgs...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_account_mobilekey"})

	err := auth.NewUserRepository().Create(context.Background(), mock, &auth.User{ID: "u", Provider: auth.ProviderLocal})

	require.Error(t, err)
	assert.True(t, dberr.IsUniqueViolation(err))
	assert.Equal(t, "uq_account_mobilekey", dberr.ConstraintName(err))
}

func TestUserRepository_FindByEmailKey(t *testing.T) {
	mock := newPgxMock(t)
	repository := auth.NewUserRepository()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lastLogin := now.Add(time.Hour)
	hash, ip := "hash", "203.0.113.7"
	var null *string

	// 1. Hit on an account without a mobile
	mock.ExpectQuery(`FROM users\.account WHERE emailkey = \$1`).
		WithArgs("ekey").
		WillReturnRows(pgxmock.NewRows(userRowColumns).AddRow(
			"u1", "Kim Minji", "cipher", "ekey", null, null, &hash,
			auth.ProviderLocal, true, &lastLogin, &ip, now, now,
		))

	user, err := repository.FindByEmailKey(context.Background(), mock, "ekey")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, auth.ProviderLocal, user.Provider)
	assert.True(t, user.HasPassword())
	assert.Empty(t, user.MobileKey)
	assert.Equal(t, ip, user.LastLoginIP)
	require.NotNil(t, user.LastLoginAt)

	// 2. Miss
	mock.ExpectQuery(`FROM users\.account WHERE emailkey = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err = repository.FindByEmailKey(context.Background(), mock, "nope")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_UpdateLastLoginMissing(t *testing.T) {
	mock := newPgxMock(t)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE users\.account`).
		WithArgs("ghost", at, "1.2.3.4").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := auth.NewUserRepository().UpdateLastLogin(context.Background(), mock, "ghost", at, "1.2.3.4")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestTokenRepository_InsertReplacesPairing checks the insert overwrites the
user's existing row instead of tripping the primary key.
*/
func TestTokenRepository_InsertReplacesPairing(t *testing.T) {
	mock := newPgxMock(t)
	issued := time.Now().UTC()
	record := &auth.RefreshTokenRecord{
		UserID:                "u1",
		AccessToken:           "access",
		EncryptedRefreshToken: "cipher",
		RefreshTokenKey:       "key",
		IssuedAt:              issued,
		ExpiresAt:             issued.Add(time.Hour),
	}

	mock.ExpectExec(`(?s)INSERT INTO users\.refreshtoken.*ON CONFLICT \(userid\) DO UPDATE SET`).
		WithArgs("u1", "access", "cipher", "key", issued, issued.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, auth.NewTokenRepository().Insert(context.Background(), mock, record))
	require.NoError(t, mock.ExpectationsWereMet())
}

/*
TestTokenRepository_Rotate checks the conditional update reports whether it won.
*/
func TestTokenRepository_Rotate(t *testing.T) {
	mock := newPgxMock(t)
	repository := auth.NewTokenRepository()
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	criteria := auth.RotationCriteria{UserID: "u1", AccessToken: "old-access", RefreshTokenKey: "old-key"}
	next := &auth.RefreshTokenRecord{
		UserID:                "u1",
		AccessToken:           "new-access",
		EncryptedRefreshToken: "new-cipher",
		RefreshTokenKey:       "new-key",
		IssuedAt:              issued,
		ExpiresAt:             issued.Add(time.Hour),
	}

	// 1. Row still matched
	mock.ExpectExec(`UPDATE users\.refreshtoken`).
		WithArgs("u1", "old-access", "old-key", "new-access", "new-cipher", "new-key", issued, issued.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rotated, err := repository.Rotate(context.Background(), mock, criteria, next)
	require.NoError(t, err)
	assert.True(t, rotated)

	// 2. A concurrent rotation got there first
	mock.ExpectExec(`UPDATE users\.refreshtoken`).
		WithArgs("u1", "old-access", "old-key", "new-access", "new-cipher", "new-key", issued, issued.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rotated, err = repository.Rotate(context.Background(), mock, criteria, next)
	require.NoError(t, err)
	assert.False(t, rotated)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_GetAndDelete(t *testing.T) {
	mock := newPgxMock(t)
	repository := auth.NewTokenRepository()
	ctx := context.Background()

	// 1. Get miss is NotFound
	mock.ExpectQuery(`FROM users\.refreshtoken`).
		WithArgs("u1", "access").
		WillReturnError(pgx.ErrNoRows)

	_, err := repository.Get(ctx, mock, "u1", "access")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	// 2. Delete of an absent record is not an error
	mock.ExpectExec(`DELETE FROM users\.refreshtoken WHERE userid = \$1 AND accesstoken = \$2`).
		WithArgs("u1", "access").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	deleted, err := repository.Delete(ctx, mock, "u1", "access")
	require.NoError(t, err)
	assert.False(t, deleted)

	// 3. DeleteByUser reports the count
	mock.ExpectExec(`DELETE FROM users\.refreshtoken WHERE userid = \$1$`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	removed, err := repository.DeleteByUser(ctx, mock, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_ExistsFailure(t *testing.T) {
	mock := newPgxMock(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1", "access").
		WillReturnError(errors.New("connection reset"))

	_, err := auth.NewTokenRepository().Exists(context.Background(), mock, "u1", "access")
	assert.True(t, apperr.HasCode(err, apperr.CodePersistence))
}

func TestLoginHistoryRepository_Append(t *testing.T) {
	mock := newPgxMock(t)
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO users\.loginhistory`).
		WithArgs("u1", at, false, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := auth.NewLoginHistoryRepository().Append(context.Background(), mock, auth.LoginHistory{
		UserID: "u1", AttemptedAt: at, Succeeded: false,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
