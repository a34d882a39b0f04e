// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/constants"
	"github.com/taibuivan/yomira-auth/internal/users/auth"
)

/*
TestRegister_EncryptsAndIndexes verifies contact fields are stored only as
ciphertext plus blind index.
*/
func TestRegister_EncryptsAndIndexes(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)

	stored := h.store.users[user.ID]

	// 1. Ciphertext, never plaintext
	assert.NotContains(t, stored.EncryptedEmail, testEmail)
	email, err := h.cipher.Decrypt(stored.EncryptedEmail)
	require.NoError(t, err)
	assert.Equal(t, testEmail, email)

	// 2. Mobile is normalized before indexing
	mobile, err := h.cipher.Decrypt(stored.EncryptedMobile)
	require.NoError(t, err)
	assert.Equal(t, "01012345678", mobile)
	assert.Equal(t, h.indexer.Index("01012345678"), stored.MobileKey)

	// 3. Index, provider, hash
	assert.Equal(t, h.indexer.Index(testEmail), stored.EmailKey)
	assert.Equal(t, auth.ProviderLocal, stored.Provider)
	assert.True(t, stored.IsActive)
	assert.NotEqual(t, testPassword, stored.PasswordHash)
	assert.Len(t, stored.ID, 36)
}

/*
TestRegister_DuplicateEmail registers the same email twice; the second call
conflicts on the email.
*/
func TestRegister_DuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	_, err := h.service.Register(context.Background(), auth.RegisterInput{
		Name:     "Kim Minji",
		Email:    " A@X.com ",
		Mobile:   testMobile,
		Password: testPassword,
	})

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, auth.ReasonEmailTaken, appErr.Details[0].Message)
	assert.Len(t, h.store.users, 1)
	assert.Equal(t, 1, h.store.rollbacks)
}

func TestRegister_DuplicateMobile(t *testing.T) {
	h := newHarness(t)
	h.register(t)

	_, err := h.service.Register(context.Background(), auth.RegisterInput{
		Name:     "Lee Jihoon",
		Email:    "b@x.com",
		Mobile:   "01012345678",
		Password: testPassword,
	})

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)
	assert.Equal(t, auth.ReasonMobileTaken, appErr.Details[0].Message)
}

/*
TestLogin_IssuesAndPersists logs in with correct credentials and checks the
token pair and its stored record.
*/
func TestLogin_IssuesAndPersists(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)

	session := h.login(t)

	// 1. Response material
	assert.Equal(t, user.ID, session.UserID)
	assert.NotEmpty(t, session.Tokens.AccessToken)
	assert.NotEmpty(t, session.Tokens.RefreshToken)
	assert.Equal(t, int64(600), session.Tokens.AccessExpiresIn())
	assert.Equal(t, int64(604800), session.Tokens.RefreshExpiresIn())

	// 2. Record exists, refresh token encrypted and indexed
	records := h.store.tokensOf(user.ID)
	require.Len(t, records, 1)
	record := records[0]
	assert.Equal(t, session.Tokens.AccessToken, record.AccessToken)
	assert.NotEqual(t, session.Tokens.RefreshToken, record.EncryptedRefreshToken)
	plain, err := h.cipher.Decrypt(record.EncryptedRefreshToken)
	require.NoError(t, err)
	assert.Equal(t, session.Tokens.RefreshToken, plain)
	assert.Equal(t, h.indexer.Index(session.Tokens.RefreshToken), record.RefreshTokenKey)
	assert.Equal(t, session.Tokens.RefreshExpiresAt, record.ExpiresAt)

	// 3. History and last login in the same commit
	require.Len(t, h.store.history, 1)
	assert.True(t, h.store.history[0].Succeeded)
	assert.Equal(t, "203.0.113.7", h.store.users[user.ID].LastLoginIP)
}

/*
TestLogin_SingleRecordPerUser asserts a second login replaces the first record.
*/
func TestLogin_SingleRecordPerUser(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)

	first := h.login(t)
	h.clock.Advance(time.Minute)
	second := h.login(t)

	records := h.store.tokensOf(user.ID)
	require.Len(t, records, 1)
	assert.Equal(t, second.Tokens.AccessToken, records[0].AccessToken)

	exists, err := memTokens{store: h.store}.Exists(context.Background(), nil, user.ID, first.Tokens.AccessToken)
	require.NoError(t, err)
	assert.False(t, exists)
}

/*
TestLogin_OverwritesConcurrentPairing covers a second login committing its
pairing between this login's delete and insert.
*/
func TestLogin_OverwritesConcurrentPairing(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)

	var once sync.Once
	h.store.beforeInsert = func() {
		once.Do(func() {
			h.store.mu.Lock()
			defer h.store.mu.Unlock()
			h.store.tokens[tokenKey(user.ID, "other-access")] = auth.RefreshTokenRecord{
				UserID:          user.ID,
				AccessToken:     "other-access",
				RefreshTokenKey: "other-key",
			}
		})
	}

	session, err := h.service.Login(context.Background(), auth.LoginInput{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	records := h.store.tokensOf(user.ID)
	require.Len(t, records, 1)
	assert.Equal(t, session.Tokens.AccessToken, records[0].AccessToken)
}

/*
TestLogin_RejectsUniformly ensures unknown email and wrong password fail alike.
*/
func TestLogin_RejectsUniformly(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)

	cases := map[string]auth.LoginInput{
		"wrong_password": {Email: testEmail, Password: "Wrong-pass1"},
		"unknown_email":  {Email: "nobody@x.com", Password: testPassword},
		"empty_password": {Email: testEmail, Password: ""},
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.service.Login(context.Background(), input)
			appErr := apperr.As(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperr.CodeUnauthorized, appErr.Code)
			assert.Equal(t, "Incorrect email or password", appErr.Message)
		})
	}

	// Failed attempts against a known account leave history but no token
	assert.Empty(t, h.store.tokensOf(user.ID))
	require.Len(t, h.store.history, 2)
	assert.False(t, h.store.history[0].Succeeded)
}

/*
TestLogin_Lockout verifies the failure budget per email and its reset.
*/
func TestLogin_Lockout(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	ctx := context.Background()
	bad := auth.LoginInput{Email: testEmail, Password: "Wrong-pass1"}

	// 1. Spend the budget
	for range 3 {
		_, err := h.service.Login(ctx, bad)
		assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))
	}

	// 2. Even the right password is refused while locked
	_, err := h.service.Login(ctx, auth.LoginInput{Email: testEmail, Password: testPassword})
	assert.True(t, apperr.HasCode(err, apperr.CodeRateLimited))

	// 3. Counter key never holds the plaintext email
	assert.True(t, h.redis.Exists(constants.RedisPrefixLoginAttempts+h.indexer.Index(testEmail)))

	// 4. The window expires
	h.redis.FastForward(16 * time.Minute)
	h.login(t)

	// 5. Success clears the counter
	assert.False(t, h.redis.Exists(constants.RedisPrefixLoginAttempts+h.indexer.Index(testEmail)))
}

/*
TestLogin_AtomicPersistence makes the history append fail and checks the token
insert is rolled back with it.
*/
func TestLogin_AtomicPersistence(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	h.store.historyErr = errors.New("disk full")

	_, err := h.service.Login(context.Background(), auth.LoginInput{Email: testEmail, Password: testPassword})

	assert.True(t, apperr.HasCode(err, apperr.CodePersistence))
	assert.Empty(t, h.store.tokensOf(user.ID))
	assert.Nil(t, h.store.users[user.ID].LastLoginAt)
}

func TestLogin_InactiveAccount(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)

	stored := h.store.users[user.ID]
	stored.IsActive = false
	h.store.users[user.ID] = stored

	_, err := h.service.Login(context.Background(), auth.LoginInput{Email: testEmail, Password: testPassword})
	assert.True(t, apperr.HasCode(err, apperr.CodeForbidden))
}

/*
TestLogout_DeletesThenNotFound logs out, checks the record is gone and that a
second logout answers NotFound.
*/
func TestLogout_DeletesThenNotFound(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	session := h.login(t)
	ctx := context.Background()

	require.NoError(t, h.service.Logout(ctx, h.principal(session)))

	exists, err := memTokens{store: h.store}.Exists(ctx, nil, user.ID, session.Tokens.AccessToken)
	require.NoError(t, err)
	assert.False(t, exists)

	err = h.service.Logout(ctx, h.principal(session))
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}

/*
TestRefresh_Rotates checks the rotation invariant: the old access token no
longer matches a record and the new one does.
*/
func TestRefresh_Rotates(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	session := h.login(t)
	ctx := context.Background()

	// Access token has expired by now; the refresh guard tolerated it
	h.clock.Advance(30 * time.Minute)

	refreshed, err := h.service.Refresh(ctx, h.principal(session), session.Tokens.RefreshToken)
	require.NoError(t, err)

	tokens := memTokens{store: h.store}
	oldExists, err := tokens.Exists(ctx, nil, user.ID, session.Tokens.AccessToken)
	require.NoError(t, err)
	newExists, err := tokens.Exists(ctx, nil, user.ID, refreshed.Tokens.AccessToken)
	require.NoError(t, err)

	assert.False(t, oldExists)
	assert.True(t, newExists)
	assert.NotEqual(t, session.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)
	assert.True(t, baseTime.Add(30*time.Minute).Equal(refreshed.Tokens.IssuedAt))

	// The spent refresh token cannot be replayed against the new pairing
	_, err = h.service.Refresh(ctx, h.principal(refreshed), session.Tokens.RefreshToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenMismatch))
}

/*
TestRefresh_MismatchDoesNotMutate presents a refresh token that differs from
the stored one.
*/
func TestRefresh_MismatchDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	session := h.login(t)
	before := h.store.tokensOf(user.ID)

	forged, err := h.tokens.IssuePair(user.ID)
	require.NoError(t, err)

	_, err = h.service.Refresh(context.Background(), h.principal(session), forged.RefreshToken)

	assert.True(t, apperr.HasCode(err, apperr.CodeTokenMismatch))
	assert.Equal(t, before, h.store.tokensOf(user.ID))
}

func TestRefresh_Rejections(t *testing.T) {
	h := newHarness(t)
	h.register(t)
	session := h.login(t)
	ctx := context.Background()

	// 1. No refresh token at all
	_, err := h.service.Refresh(ctx, h.principal(session), "")
	assert.True(t, apperr.HasCode(err, apperr.CodeCredentialsMissing))

	// 2. An opaque value the store never issued
	_, err = h.service.Refresh(ctx, h.principal(session), "0123456789abcdef")
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenMismatch))

	// 3. Unknown pairing
	stale := h.principal(session)
	stale.AccessToken = "stale.access.token"
	_, err = h.service.Refresh(ctx, stale, session.Tokens.RefreshToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenMismatch))

	// 4. Pairing past its stored expiry
	h.clock.Advance(10081 * time.Minute)
	_, err = h.service.Refresh(ctx, h.principal(session), session.Tokens.RefreshToken)
	assert.True(t, apperr.HasCode(err, apperr.CodeTokenExpired))
}

/*
TestRefresh_ConcurrentRotationLoses simulates another request rotating the
record between lookup and update.
*/
func TestRefresh_ConcurrentRotationLoses(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	session := h.login(t)
	h.clock.Advance(time.Minute)

	h.store.beforeRotate = func() {
		h.store.beforeRotate = nil
		h.store.mu.Lock()
		defer h.store.mu.Unlock()
		for key, record := range h.store.tokens {
			record.RefreshTokenKey = "rotated-by-winner"
			h.store.tokens[key] = record
		}
	}

	_, err := h.service.Refresh(context.Background(), h.principal(session), session.Tokens.RefreshToken)

	assert.True(t, apperr.HasCode(err, apperr.CodeTokenMismatch))
	records := h.store.tokensOf(user.ID)
	require.Len(t, records, 1)
	assert.Equal(t, session.Tokens.AccessToken, records[0].AccessToken)
}

/*
TestLoginWithProvider_CreatesThenReuses covers first and repeat provider logins.
*/
func TestLoginWithProvider_CreatesThenReuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	input := auth.ProviderLogin{
		Provider:  auth.ProviderNaver,
		Subject:   "naver-123",
		Name:      "Park Sora",
		Email:     "sora@naver.com",
		IPAddress: "198.51.100.4",
	}

	first, err := h.service.LoginWithProvider(ctx, input)
	require.NoError(t, err)

	created := h.store.users[first.UserID]
	assert.Equal(t, auth.ProviderNaver, created.Provider)
	assert.False(t, created.HasPassword())

	h.clock.Advance(time.Minute)
	second, err := h.service.LoginWithProvider(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, first.UserID, second.UserID)
	assert.Len(t, h.store.users, 1)
	assert.Len(t, h.store.tokensOf(first.UserID), 1)

	// A password-less account never passes local login
	_, err = h.service.Login(ctx, auth.LoginInput{Email: "sora@naver.com", Password: testPassword})
	assert.True(t, apperr.HasCode(err, apperr.CodeUnauthorized))
}

/*
TestLoginWithProvider_RejectsTakenEmail keeps an unseen identity away from an
account that already owns the claimed email.
*/
func TestLoginWithProvider_RejectsTakenEmail(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)
	tokensBefore := len(h.store.tokensOf(user.ID))

	session, err := h.service.LoginWithProvider(context.Background(), auth.ProviderLogin{
		Provider: auth.ProviderGoogle,
		Subject:  "google-9",
		Email:    "  " + strings.ToUpper(testEmail),
	})
	require.Error(t, err)
	assert.Nil(t, session)

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.CodeConflict, appErr.Code)
	require.Len(t, appErr.Details, 1)
	assert.Equal(t, auth.ReasonEmailTaken, appErr.Details[0].Message)

	assert.Empty(t, h.store.identities)
	assert.Len(t, h.store.users, 1)
	assert.Len(t, h.store.tokensOf(user.ID), tokensBefore)
}

func TestLoginWithProvider_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.LoginWithProvider(context.Background(), auth.ProviderLogin{Provider: auth.ProviderLocal, Subject: "x", Email: testEmail})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = h.service.LoginWithProvider(context.Background(), auth.ProviderLogin{Provider: auth.ProviderGoogle, Email: testEmail})
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))
}

func TestProfile_Decrypts(t *testing.T) {
	h := newHarness(t)
	user := h.register(t)

	profile, err := h.service.Profile(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, testEmail, profile.Email)
	assert.Equal(t, "01012345678", profile.Mobile)
	assert.Equal(t, "Kim Minji", profile.Name)

	_, err = h.service.Profile(context.Background(), "01950000-0000-7000-8000-0000000000ff")
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))
}
