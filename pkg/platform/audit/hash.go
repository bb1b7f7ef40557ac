package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonicalize renders payload as canonical JSON: object keys sorted, no
// insignificant whitespace, numbers kept verbatim. Equal content yields
// equal bytes whether it started as a struct or a map.
func Canonicalize(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode audit payload: %w", err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal audit payload: %w", err)
	}
	return canonical, nil
}

// Hash returns the 0x-prefixed hex SHA-256 of canonical payload bytes.
func Hash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return "0x" + hex.EncodeToString(sum[:])
}
