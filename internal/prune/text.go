// Package prune bounds oversized text before it reaches logs. Webhook
// payloads are logged verbatim for replay, but pathological bodies must
// not blow up the log pipeline.
package prune

import (
	"fmt"
	"unicode/utf8"
)

// DefaultMaxBytes is the log budget for one payload.
const DefaultMaxBytes = 8 * 1024

// Clip returns s unchanged when it fits maxBytes, otherwise a UTF-8 safe
// prefix annotated with the omitted byte count.
func Clip(s string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(s) <= maxBytes {
		return s
	}
	prefix := safeUTF8Prefix(s, maxBytes)
	return fmt.Sprintf("%s [clipped %d bytes]", prefix, len(s)-len(prefix))
}

// safeUTF8Prefix cuts at maxBytes without splitting a rune.
func safeUTF8Prefix(s string, maxBytes int) string {
	if maxBytes >= len(s) {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
