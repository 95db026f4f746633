// Package queryperf passively observes database calls: it normalizes and
// classifies SQL, tracks per-query timing statistics, checks per-class
// latency SLAs, surfaces optimization hints, and detects regressions against
// a learned baseline. Recording is non-blocking; analysis happens on a
// background worker.
package queryperf

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// maxNormalizedLength caps the normalized SQL kept per query shape
const maxNormalizedLength = 1000

var (
	whitespaceRe    = regexp.MustCompile(`\s+`)
	quotedLiteralRe = regexp.MustCompile(`'(?:[^']|'')*'`)
	numberLiteralRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
)

// Normalize reduces a SQL statement to its shape: lowercased, whitespace
// collapsed, literals replaced with ?, truncated to a fixed length. Queries
// differing only in parameter values normalize identically.
func Normalize(sql string) string {
	s := strings.ToLower(strings.TrimSpace(sql))
	s = quotedLiteralRe.ReplaceAllString(s, "?")
	s = numberLiteralRe.ReplaceAllString(s, "?")
	s = whitespaceRe.ReplaceAllString(s, " ")
	if len(s) > maxNormalizedLength {
		s = s[:maxNormalizedLength]
	}
	return s
}

// QueryHash returns the stable identifier for a normalized query shape:
// the first 16 hex characters of its MD5
func QueryHash(normalized string) string {
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}
