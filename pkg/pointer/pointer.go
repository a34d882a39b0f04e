// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package pointer dereferences nullable scan targets.
package pointer

// Val dereferences p, returning the zero value of T when p is nil.
//
// Repositories scan NULL-able columns into *T and flatten them with Val.
func Val[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
