// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package dberr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/yomira-auth/internal/platform/apperr"
	"github.com/taibuivan/yomira-auth/internal/platform/dberr"
)

/*
TestWrap_Classification verifies each database failure maps to its application kind.
*/
func TestWrap_Classification(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_account_emailkey"}

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"no_rows", fmt.Errorf("postgres_token_repo_get_failed: %w", pgx.ErrNoRows), apperr.CodeNotFound},
		{"unique_violation", unique, apperr.CodeConflict},
		{"connection", errors.New("connection reset by peer"), apperr.CodePersistence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := dberr.Wrap(tt.err, "Account")
			assert.True(t, apperr.HasCode(wrapped, tt.code))
			assert.ErrorIs(t, wrapped, tt.err)
		})
	}

	assert.Equal(t, "uq_account_emailkey", dberr.ConstraintName(fmt.Errorf("insert: %w", unique)))
	assert.True(t, dberr.IsUniqueViolation(unique))
	assert.False(t, dberr.IsForeignKeyViolation(unique))
}

func TestWrap_PassThrough(t *testing.T) {
	assert.Nil(t, dberr.Wrap(nil, "Account"))

	original := apperr.TokenMismatch()
	assert.Same(t, original, dberr.Wrap(original, "Refresh token"))
}
