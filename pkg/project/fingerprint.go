package project

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns a short deterministic hash of v's JSON form, suitable
// for storing next to a stage completion marker. Stage drivers compare the
// stored fingerprint against the current parameters to distinguish an
// idempotent re-run from a parameter change that needs recomputation.
//
// Note: this is a compact change detector, not cryptographic integrity
// protection. Struct fields marshal in declaration order, so the encoding is
// stable for a given schema version.
func Fingerprint(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		// Stage parameter structs are plain data; marshal cannot fail for
		// them. An empty fingerprint never matches, forcing recomputation.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
