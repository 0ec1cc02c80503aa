// Package sku extracts SKU codes embedded in free-text product descriptions.
package sku

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

// Markers whose following token is taken as the SKU, checked in order.
var (
	skuMarkers  = []string{"SKU:"}
	codeMarkers = []string{"Codigo:", "Código:"}
)

const (
	// Parenthesized content without digits is only a SKU when shorter than this.
	maxParenProseLen = 10
	// Single letters in parentheses are list markers like "(a)", not codes.
	minParenAlphaLen = 2
)

// Normalize derives the SKU decomposition for one invoice line.
// The first rule that yields a non-empty code wins:
//  1. a non-empty product identifier (NoIdentificacion)
//  2. the token after "SKU:"
//  3. the token after "Codigo:" or "Código:"
//  4. the contents of the first [...] segment
//  5. the contents of the first (...) segment, if it has a digit or is short
func Normalize(description, productIdentifier string) entity.NormalizedSku {
	full := extractFullSku(description, productIdentifier)
	parent, _ := SplitDash(full)

	out := entity.NormalizedSku{FullSku: full, ParentSku: parent}
	switch {
	case parent != "" && full != "":
		out.QBMatchKey = parent + ":" + full
	case strings.TrimSpace(productIdentifier) != "":
		out.QBMatchKey = strings.TrimSpace(productIdentifier)
	default:
		out.QBMatchKey = strings.TrimSpace(description)
	}
	return out
}

func extractFullSku(description, productIdentifier string) string {
	if pid := strings.TrimSpace(productIdentifier); pid != "" {
		return pid
	}
	if tok := tokenAfter(description, skuMarkers); tok != "" {
		return tok
	}
	if tok := tokenAfter(description, codeMarkers); tok != "" {
		return tok
	}
	if inner, ok := enclosed(description, "[", "]"); ok && inner != "" {
		return inner
	}
	if inner, ok := enclosed(description, "(", ")"); ok && parenIsCode(inner) {
		return inner
	}
	return ""
}

// tokenAfter returns the first whitespace-delimited token following the
// earliest listed marker present in s.
func tokenAfter(s string, markers []string) string {
	for _, m := range markers {
		i := strings.Index(s, m)
		if i < 0 {
			continue
		}
		fields := strings.Fields(s[i+len(m):])
		if len(fields) == 0 {
			continue
		}
		return strings.TrimRight(fields[0], ",;")
	}
	return ""
}

// enclosed returns the trimmed text between the first open delimiter and the
// next close delimiter after it.
func enclosed(s, opener, closer string) (string, bool) {
	start := strings.Index(s, opener)
	if start < 0 {
		return "", false
	}
	rest := s[start+len(opener):]
	end := strings.Index(rest, closer)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func parenIsCode(inner string) bool {
	if inner == "" {
		return false
	}
	if strings.IndexFunc(inner, unicode.IsDigit) >= 0 {
		return true
	}
	n := utf8.RuneCountInString(inner)
	return n >= minParenAlphaLen && n < maxParenProseLen
}

// SplitDash splits a SKU at its first hyphen. Without a hyphen the parent is
// the whole SKU and the child is empty.
func SplitDash(full string) (parent, child string) {
	if i := strings.Index(full, "-"); i >= 0 {
		return full[:i], full[i+1:]
	}
	return full, ""
}

// StripNonAlnum lowercases s and drops every rune that is not a letter or digit.
func StripNonAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
