package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint returns a stable hash identifying an Options value's effect
// on conversion output. Two Options that would make the engine produce the
// same result must fingerprint equal; any field that can change engine
// output must fingerprint differently.
//
// encoding/json gives this for free: struct fields marshal in declaration
// order (fixed per type) and map keys marshal in sorted order (guaranteed
// by the standard library), so json.Marshal on a Normalize()-d Options is
// already a canonical serialization. No hand-rolled key sort is needed.
func (o Options) Fingerprint() string {
	norm := o.Normalize()
	b, err := json.Marshal(norm)
	if err != nil {
		// Options only ever holds JSON-safe scalars, slices and a
		// string-keyed map, so Marshal cannot fail in practice.
		panic(fmt.Sprintf("model: fingerprint: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
