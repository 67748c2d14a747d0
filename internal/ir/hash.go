package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuery  = "kbquery/query/v1"
	DomainSchema = "kbquery/schema/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QueryID computes the fingerprint of a query. The text is the printed
// search expression, mode distinguishes point-in-time from history queries,
// schemaID pins the type system the query was compiled against.
func QueryID(mode, text, schemaID string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"format":    QueryFormatVersion,
		"mode":      mode,
		"query":     text,
		"schema_id": schemaID,
	})
	if err != nil {
		return "", fmt.Errorf("QueryID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}

// SchemaID computes the fingerprint of a type system from its canonical
// description.
func SchemaID(description map[string]any) (string, error) {
	canonical, err := MarshalCanonical(description)
	if err != nil {
		return "", fmt.Errorf("SchemaID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

// MustQueryID is like QueryID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustQueryID(mode, text, schemaID string) string {
	id, err := QueryID(mode, text, schemaID)
	if err != nil {
		panic(err)
	}
	return id
}
