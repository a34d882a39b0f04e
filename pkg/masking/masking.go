// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package masking hides the tail of personal values before they reach logs.
package masking

import (
	"math"
	"strings"
)

// DefaultRate masks the trailing half of a value.
const DefaultRate = 0.5

// Mask replaces the trailing ceil(len*rate) runes of s with '*'.
//
// rate is clamped to [0, 1]. Rune counting keeps multi-byte values intact.
//
//	Mask("a@x.com", 0.5) // "a@x****"
func Mask(s string, rate float64) string {
	if s == "" {
		return ""
	}

	rate = math.Max(0, math.Min(1, rate))
	runes := []rune(s)
	hidden := int(math.Ceil(float64(len(runes)) * rate))

	return string(runes[:len(runes)-hidden]) + strings.Repeat("*", hidden)
}
