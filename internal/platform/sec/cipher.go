// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// # Reversible Field Encryption

const (
	// cipherPadBlock is the padding granularity. It is a multiple of the AES
	// block size so padded plaintext always aligns for CBC.
	cipherPadBlock = 32

	cipherTagSize = sha256.Size
	cipherMACInfo = "yomira-auth/cipher-mac"
)

var (
	// ErrCipherKeyMissing is returned when no encryption secret is configured.
	ErrCipherKeyMissing = errors.New("sec: encryption key not configured")

	// ErrDecrypt is returned when ciphertext is corrupt, truncated or was
	// produced under a different key.
	ErrDecrypt = errors.New("sec: decryption failed")
)

// Cipher encrypts PII and refresh tokens at rest with AES-256-CBC.
//
// The AES key is SHA-256 of the configured secret. Every call draws a fresh
// 16-byte IV, so encrypting the same value twice yields different output.
// Output layout is base64(iv || ciphertext || tag) where tag is an
// HMAC-SHA256 over iv||ciphertext under a key derived with HKDF.
type Cipher struct {
	block  cipher.Block
	macKey []byte
}

// NewCipher derives the encryption and authentication keys from secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrCipherKeyMissing
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("sec: create aes cipher: %w", err)
	}

	macKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(cipherMACInfo)), macKey); err != nil {
		return nil, fmt.Errorf("sec: derive mac key: %w", err)
	}

	return &Cipher{block: block, macKey: macKey}, nil
}

// Encrypt returns base64(iv || ciphertext || tag) for plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	padded := pad([]byte(plaintext), cipherPadBlock)

	out := make([]byte, aes.BlockSize+len(padded), aes.BlockSize+len(padded)+cipherTagSize)
	iv := out[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("sec: generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(out[aes.BlockSize:], padded)
	out = append(out, c.tag(out)...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses [Cipher.Encrypt]. Any tampering, truncation or key
// mismatch yields [ErrDecrypt] rather than garbage plaintext.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	bodyLen := len(raw) - cipherTagSize
	if bodyLen < aes.BlockSize+cipherPadBlock || (bodyLen-aes.BlockSize)%aes.BlockSize != 0 {
		return "", ErrDecrypt
	}

	body, tag := raw[:bodyLen], raw[bodyLen:]
	if !hmac.Equal(tag, c.tag(body)) {
		return "", ErrDecrypt
	}

	iv, ciphertext := body[:aes.BlockSize], body[aes.BlockSize:]
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ciphertext)

	unpadded, ok := unpad(plain, cipherPadBlock)
	if !ok {
		return "", ErrDecrypt
	}
	return string(unpadded), nil
}

func (c *Cipher) tag(body []byte) []byte {
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(body)
	return mac.Sum(nil)
}

// pad applies PKCS#7-style padding to a multiple of size. A full block of
// padding is added when data is already aligned.
func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, size int) ([]byte, bool) {
	if len(data) == 0 || len(data)%size != 0 {
		return nil, false
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size {
		return nil, false
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, false
		}
	}
	return data[:len(data)-n], true
}
