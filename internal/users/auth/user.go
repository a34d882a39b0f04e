// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package auth implements the identity and token lifecycle of the platform.

It owns user accounts with encrypted contact fields, the refresh-token store,
the request guards that turn tokens into principals, and the HTTP delivery of
register, login, logout and refresh.

# Architecture

Entities defined here hold their persisted form: contact fields are AES
ciphertext and are only ever matched through their blind-index columns. The
service decrypts them on the way out (see [Profile]).
*/
package auth

import "time"

// # Providers

// Provider identifies where an account's credentials live.
type Provider string

const (
	ProviderLocal  Provider = "LOCAL"
	ProviderGoogle Provider = "GOOGLE"
	ProviderNaver  Provider = "NAVER"
	ProviderKakao  Provider = "KAKAO"
	ProviderApple  Provider = "APPLE"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderLocal, ProviderGoogle, ProviderNaver, ProviderKakao, ProviderApple:
		return true
	}
	return false
}

// # Domain Entities

// User is an account as stored.
//
// EncryptedEmail and EncryptedMobile are ciphertext; EmailKey and MobileKey are
// their blind indices. An empty PasswordHash marks an OAuth-only account.
type User struct {
	ID              string
	Name            string
	EncryptedEmail  string
	EmailKey        string
	EncryptedMobile string
	MobileKey       string
	PasswordHash    string
	Provider        Provider
	IsActive        bool
	LastLoginAt     *time.Time
	LastLoginIP     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasPassword reports whether the account can log in with local credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// RefreshTokenRecord pairs an issued access token with its refresh token.
//
// EncryptedRefreshToken is AES ciphertext of the raw refresh token and
// RefreshTokenKey its blind index. Both are computed before the record is built.
type RefreshTokenRecord struct {
	UserID                string
	AccessToken           string
	EncryptedRefreshToken string
	RefreshTokenKey       string
	IssuedAt              time.Time
	ExpiresAt             time.Time
}

// Expired reports whether the refresh pairing is past its stored expiry.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// LoginHistory is one append-only login attempt of record.
type LoginHistory struct {
	UserID      string
	AttemptedAt time.Time
	Succeeded   bool
	IPAddress   string
}

// OAuthIdentity links an external provider subject to an account.
type OAuthIdentity struct {
	Provider Provider
	Subject  string
	UserID   string
}

// # Read Models

// Profile is the caller-facing view of an account with contact fields decrypted.
type Profile struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Mobile      string     `json:"mobile,omitempty"`
	Provider    Provider   `json:"provider"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
