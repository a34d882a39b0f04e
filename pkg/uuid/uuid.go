// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package uuid generates the time-ordered identifiers used as primary keys.
//
// Version 7 values sort by creation time, so inserts stay at the tail of
// PostgreSQL B-tree indexes.
package uuid

import "github.com/google/uuid"

// New returns a fresh UUIDv7 in its canonical string form.
//
// It panics only when the OS entropy source fails.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}
