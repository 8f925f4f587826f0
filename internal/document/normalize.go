// Package document prepares raw documents for extraction: it loads a corpus
// from disk, fingerprints raw content for idempotent ingestion, and
// normalizes text so superficial casing and spacing differences collapse.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize collapses every run of whitespace to a single space, trims the
// ends, and title-cases each word. Hyphens and underscores both start a new
// word ("solar-energy" becomes "Solar-Energy", "wind_power" becomes
// "Wind_Power"). Normalize is pure and idempotent.
func Normalize(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return ""
	}
	// A Caser carries state and is not safe for concurrent use.
	caser := cases.Title(language.Und)
	parts := strings.Split(collapsed, "_")
	for i, p := range parts {
		parts[i] = caser.String(p)
	}
	return strings.Join(parts, "_")
}

// Fingerprint returns the lowercase hex SHA-256 digest of the raw content.
// It is sensitive to every byte and must be computed before normalization.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
