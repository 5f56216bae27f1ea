package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainQuery = "lineage/query/v1"
	DomainRows  = "lineage/rows/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// QueryHash computes a stable identity for a query descriptor.
// Two descriptors with the same terms and flags hash equal regardless of
// their Name.
func QueryHash(q QueryDesc) (string, error) {
	terms := make([]any, len(q.Terms))
	for i, t := range q.Terms {
		terms[i] = termObject(t)
	}
	vars := make([]any, len(q.Vars))
	for i, v := range q.Vars {
		vars[i] = map[string]any{"name": v.Name, "alias": v.Alias}
	}
	obj := map[string]any{
		"terms":              terms,
		"vars":               vars,
		"cache_kind":         q.CacheKind.String(),
		"match_empty_tables": q.MatchEmptyTables,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("QueryHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}

// RowsHash computes a digest of an iteration trace. rows must be a value
// accepted by MarshalCanonical.
func RowsHash(rows []any) (string, error) {
	canonical, err := MarshalCanonical(rows)
	if err != nil {
		return "", fmt.Errorf("RowsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRows, canonical), nil
}

// MustQueryHash is like QueryHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustQueryHash(q QueryDesc) string {
	h, err := QueryHash(q)
	if err != nil {
		panic(err)
	}
	return h
}

func termObject(t TermDesc) map[string]any {
	return map[string]any{
		"first":  refObject(t.First),
		"second": refObject(t.Second),
		"src":    refObject(t.Src),
		"rel":    refObject(t.Rel),
		"trav":   t.Trav.String(),
		"oper":   t.Oper.String(),
	}
}

func refObject(r Ref) map[string]any {
	return map[string]any{
		"entity": r.Entity,
		"name":   r.Name,
		"var":    r.Var,
	}
}
