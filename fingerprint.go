package tgrender

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Fingerprint is the deterministic digest identifying a renderable block
// plus its quality settings. It is the cache key: two requests with the
// same fingerprint are always treated as the same render.
type Fingerprint string

// FingerprintBlock derives the fingerprint for a block under the given
// settings. The payload is normalized (line endings, surrounding
// whitespace) so trivially different inputs share a render.
func FingerprintBlock(block Block, settings Settings) Fingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%t\x00%d\x00%g\x00", block.Kind, block.Display, settings.DPI, settings.Padding)
	h.Write([]byte(normalizePayload(block.Payload)))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// normalizePayload canonicalizes a payload for fingerprinting only; the
// renderer still receives the original payload.
func normalizePayload(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}
