package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainRequest = "dynq/request/v1"
	DomainSchema  = "dynq/schema/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RequestHash fingerprints a normalized query request. Two requests with
// the same hash are the same query, whatever order their JSON keys came in.
func RequestHash(request IRObject) (string, error) {
	canonical, err := MarshalCanonical(request)
	if err != nil {
		return "", fmt.Errorf("RequestHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// SchemaHash fingerprints a compiled schema description.
func SchemaHash(schema IRObject) (string, error) {
	canonical, err := MarshalCanonical(schema)
	if err != nil {
		return "", fmt.Errorf("SchemaHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}

// MustRequestHash is like RequestHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRequestHash(request IRObject) string {
	h, err := RequestHash(request)
	if err != nil {
		panic(err)
	}
	return h
}
