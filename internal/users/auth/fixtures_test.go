// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth_test

import (
	"context"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/dbx"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
	"github.com/taibuivan/yomira-auth/internal/users/auth"
)

// # Clock

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

// # In-memory Store

// memStore backs every relational repository. Begin snapshots it and Rollback
// restores the snapshot, so transactional atomicity is observable in tests.
type memStore struct {
	mu         sync.Mutex
	users      map[string]auth.User
	identities map[string]string
	tokens     map[string]auth.RefreshTokenRecord
	history    []auth.LoginHistory

	// failure injection
	historyErr   error
	beforeRotate func()
	beforeInsert func()

	commits   int
	rollbacks int
	snapshot  *memStore
}

func newMemStore() *memStore {
	return &memStore{
		users:      map[string]auth.User{},
		identities: map[string]string{},
		tokens:     map[string]auth.RefreshTokenRecord{},
	}
}

func tokenKey(userID, accessToken string) string { return userID + "|" + accessToken }

func (store *memStore) clone() *memStore {
	return &memStore{
		users:      maps.Clone(store.users),
		identities: maps.Clone(store.identities),
		tokens:     maps.Clone(store.tokens),
		history:    slices.Clone(store.history),
	}
}

func (store *memStore) tokensOf(userID string) []auth.RefreshTokenRecord {
	store.mu.Lock()
	defer store.mu.Unlock()

	var out []auth.RefreshTokenRecord
	for _, record := range store.tokens {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	return out
}

// # Fake Database

// memDB satisfies auth.Database. Its DBTX half is never called: the in-memory
// repositories ignore the handle they receive.
type memDB struct {
	dbx.DBTX
	store *memStore
}

func (db *memDB) Begin(context.Context) (pgx.Tx, error) {
	db.store.mu.Lock()
	defer db.store.mu.Unlock()
	db.store.snapshot = db.store.clone()
	return &memTx{store: db.store}, nil
}

type memTx struct {
	pgx.Tx
	store *memStore
}

func (tx *memTx) Commit(context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.commits++
	tx.store.snapshot = nil
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	tx.store.rollbacks++
	if snap := tx.store.snapshot; snap != nil {
		tx.store.users, tx.store.identities = snap.users, snap.identities
		tx.store.tokens, tx.store.history = snap.tokens, snap.history
		tx.store.snapshot = nil
	}
	return nil
}

// # Fake Repositories

type memUsers struct{ store *memStore }

func (repo memUsers) Create(_ context.Context, _ dbx.DBTX, user *auth.User) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	for _, existing := range repo.store.users {
		if existing.EmailKey == user.EmailKey {
			return apperr.Conflict("User already exists")
		}
	}
	user.CreatedAt, user.UpdatedAt = time.Now(), time.Now()
	repo.store.users[user.ID] = *user
	return nil
}

func (repo memUsers) FindByID(_ context.Context, _ dbx.DBTX, id string) (*auth.User, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	user, ok := repo.store.users[id]
	if !ok {
		return nil, apperr.NotFound(auth.ResourceUser)
	}
	return &user, nil
}

func (repo memUsers) FindByEmailKey(_ context.Context, _ dbx.DBTX, emailKey string) (*auth.User, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	for _, user := range repo.store.users {
		if user.EmailKey == emailKey {
			return &user, nil
		}
	}
	return nil, apperr.NotFound(auth.ResourceUser)
}

func (repo memUsers) ExistsByEmailKey(ctx context.Context, db dbx.DBTX, emailKey string) (bool, error) {
	_, err := repo.FindByEmailKey(ctx, db, emailKey)
	return err == nil, nil
}

func (repo memUsers) ExistsByMobileKey(_ context.Context, _ dbx.DBTX, mobileKey string) (bool, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	for _, user := range repo.store.users {
		if user.MobileKey == mobileKey {
			return true, nil
		}
	}
	return false, nil
}

func (repo memUsers) UpdateLastLogin(_ context.Context, _ dbx.DBTX, userID string, at time.Time, ip string) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	user, ok := repo.store.users[userID]
	if !ok {
		return apperr.NotFound(auth.ResourceUser)
	}
	user.LastLoginAt, user.LastLoginIP = &at, ip
	repo.store.users[userID] = user
	return nil
}

func (repo memUsers) FindByOAuthIdentity(ctx context.Context, db dbx.DBTX, provider auth.Provider, subject string) (*auth.User, error) {
	repo.store.mu.Lock()
	userID, ok := repo.store.identities[string(provider)+"|"+subject]
	repo.store.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound(auth.ResourceUser)
	}
	return repo.FindByID(ctx, db, userID)
}

func (repo memUsers) LinkOAuthIdentity(_ context.Context, _ dbx.DBTX, identity auth.OAuthIdentity) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	repo.store.identities[string(identity.Provider)+"|"+identity.Subject] = identity.UserID
	return nil
}

type memTokens struct{ store *memStore }

func (repo memTokens) Exists(_ context.Context, _ dbx.DBTX, userID, accessToken string) (bool, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	_, ok := repo.store.tokens[tokenKey(userID, accessToken)]
	return ok, nil
}

func (repo memTokens) Get(_ context.Context, _ dbx.DBTX, userID, accessToken string) (*auth.RefreshTokenRecord, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	record, ok := repo.store.tokens[tokenKey(userID, accessToken)]
	if !ok {
		return nil, apperr.NotFound(auth.ResourceRefreshToken)
	}
	return &record, nil
}

func (repo memTokens) Insert(_ context.Context, _ dbx.DBTX, record *auth.RefreshTokenRecord) error {
	if hook := repo.store.beforeInsert; hook != nil {
		hook()
	}

	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	for key, current := range repo.store.tokens {
		if current.UserID == record.UserID {
			delete(repo.store.tokens, key)
		}
	}
	repo.store.tokens[tokenKey(record.UserID, record.AccessToken)] = *record
	return nil
}

func (repo memTokens) Rotate(_ context.Context, _ dbx.DBTX, criteria auth.RotationCriteria, next *auth.RefreshTokenRecord) (bool, error) {
	if hook := repo.store.beforeRotate; hook != nil {
		hook()
	}

	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	key := tokenKey(criteria.UserID, criteria.AccessToken)
	current, ok := repo.store.tokens[key]
	if !ok || current.RefreshTokenKey != criteria.RefreshTokenKey {
		return false, nil
	}
	delete(repo.store.tokens, key)
	repo.store.tokens[tokenKey(next.UserID, next.AccessToken)] = *next
	return true, nil
}

func (repo memTokens) Delete(_ context.Context, _ dbx.DBTX, userID, accessToken string) (bool, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	key := tokenKey(userID, accessToken)
	_, ok := repo.store.tokens[key]
	delete(repo.store.tokens, key)
	return ok, nil
}

func (repo memTokens) DeleteByUser(_ context.Context, _ dbx.DBTX, userID string) (int64, error) {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	var removed int64
	for key, record := range repo.store.tokens {
		if record.UserID == userID {
			delete(repo.store.tokens, key)
			removed++
		}
	}
	return removed, nil
}

type memHistory struct{ store *memStore }

func (repo memHistory) Append(_ context.Context, _ dbx.DBTX, entry auth.LoginHistory) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()
	if repo.store.historyErr != nil {
		return repo.store.historyErr
	}
	repo.store.history = append(repo.store.history, entry)
	return nil
}

// # Harness

var baseTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

type harness struct {
	store   *memStore
	redis   *miniredis.Miniredis
	clock   *testClock
	cipher  *sec.Cipher
	indexer *sec.BlindIndexer
	tokens  *sec.TokenService
	service *auth.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := newMemStore()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &testClock{now: baseTime}

	cipher, err := sec.NewCipher("aes-secret")
	require.NoError(t, err)
	indexer, err := sec.NewBlindIndexer("index-key")
	require.NoError(t, err)
	hasher, err := sec.NewPasswordHasher(sec.HasherBcrypt, bcrypt.MinCost)
	require.NoError(t, err)
	verifier, err := auth.NewCredentialVerifier(hasher)
	require.NoError(t, err)

	tokens, err := sec.NewTokenService(sec.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Algorithm:     "HS256",
		AccessTTL:     10 * time.Minute,
		RefreshTTL:    10080 * time.Minute,
	})
	require.NoError(t, err)
	tokens = tokens.WithClock(clock.Now)

	service := auth.NewService(auth.ServiceDeps{
		DB:       &memDB{store: store},
		Users:    memUsers{store: store},
		Tokens:   memTokens{store: store},
		History:  memHistory{store: store},
		Attempts: auth.NewLoginAttemptRepository(client),
		Cipher:   cipher,
		Indexer:  indexer,
		Issuer:   tokens,
		Verifier: verifier,
		Hasher:   hasher,
		Lockout:  auth.LockoutPolicy{MaxAttempts: 3, Window: 15 * time.Minute},
	}).WithClock(clock.Now)

	return &harness{
		store:   store,
		redis:   mr,
		clock:   clock,
		cipher:  cipher,
		indexer: indexer,
		tokens:  tokens,
		service: service,
	}
}

const (
	testEmail    = "a@x.com"
	testMobile   = "010-1234-5678"
	testPassword = "P@ssw0rd1"
)

func (h *harness) register(t *testing.T) *auth.User {
	t.Helper()
	user, err := h.service.Register(context.Background(), auth.RegisterInput{
		Name:     "Kim Minji",
		Email:    testEmail,
		Mobile:   testMobile,
		Password: testPassword,
	})
	require.NoError(t, err)
	return user
}

func (h *harness) login(t *testing.T) *auth.Session {
	t.Helper()
	session, err := h.service.Login(context.Background(), auth.LoginInput{
		Email:     testEmail,
		Password:  testPassword,
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)
	return session
}

func (h *harness) principal(session *auth.Session) *sec.Principal {
	return &sec.Principal{
		Subject:     session.UserID,
		Type:        sec.TokenTypeAccess,
		AccessToken: session.Tokens.AccessToken,
	}
}
