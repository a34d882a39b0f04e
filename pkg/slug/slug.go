// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package slug generates ASCII URL slugs from arbitrary Unicode strings.
//
// # Usage
//
// Role slugs and undotted permission slugs are derived from display names
// (e.g., "Support Agent" becomes "support-agent").
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// From converts s into a lowercase slug of [a-z0-9] runs joined by single hyphens.
//
// Accents are stripped through NFD decomposition. Letters with no ASCII base
// form act as separators. The result is empty when nothing survives.
func From(s string) string {
	stripped, _, _ := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), s)

	words := strings.FieldsFunc(strings.ToLower(stripped), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(words, "-")
}
