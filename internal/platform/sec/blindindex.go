// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrBlindIndexKeyMissing is returned when no index key is configured.
var ErrBlindIndexKeyMissing = errors.New("sec: blind index key not configured")

// BlindIndexer computes deterministic keyed digests of sensitive values.
//
// Encrypted columns (email, mobile, refresh token) are never decrypted to
// search them. Instead the query value is run through [BlindIndexer.Index]
// and matched against the stored digest.
type BlindIndexer struct {
	key []byte
}

// NewBlindIndexer returns an indexer keyed with key. An empty key is refused
// so the process cannot start without one.
func NewBlindIndexer(key string) (*BlindIndexer, error) {
	if key == "" {
		return nil, ErrBlindIndexKeyMissing
	}
	return &BlindIndexer{key: []byte(key)}, nil
}

// Index returns the lowercase hex HMAC-SHA256 of plaintext.
func (b *BlindIndexer) Index(plaintext string) string {
	mac := hmac.New(sha256.New, b.key)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
