// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"fmt"

	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// placeholderPassword is verified against the decoy hash when there is no real
// password to check.
const placeholderPassword = "\x00yomira-placeholder\x00"

// CredentialVerifier decides whether a submitted password opens an account.
//
// When there is no account, no stored hash, or no submitted password, it still
// runs one hash verification against a decoy so that case costs about as much
// as a wrong password.
type CredentialVerifier struct {
	hasher    sec.PasswordHasher
	decoyHash string
}

// NewCredentialVerifier builds a verifier whose decoy hash uses the same
// algorithm and cost as real hashes.
func NewCredentialVerifier(hasher sec.PasswordHasher) (*CredentialVerifier, error) {
	seed, err := sec.GenerateSecureToken(16)
	if err != nil {
		return nil, fmt.Errorf("auth_credential_decoy_seed_failed: %w", err)
	}

	decoy, err := hasher.Hash(seed)
	if err != nil {
		return nil, fmt.Errorf("auth_credential_decoy_hash_failed: %w", err)
	}

	return &CredentialVerifier{hasher: hasher, decoyHash: decoy}, nil
}

// Authenticate reports whether password matches user's stored hash. It never
// fails; every negative case returns false.
func (verifier *CredentialVerifier) Authenticate(user *User, password string) bool {
	if user == nil || !user.HasPassword() || password == "" {
		verifier.hasher.Verify(placeholderPassword, verifier.decoyHash)
		return false
	}
	return verifier.hasher.Verify(password, user.PasswordHash)
}
