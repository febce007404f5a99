// Package id generates the sortable unique identifiers used for principals
// and tuples, and owns the base32 codec shared with the pagination tokens.
//
// IDs are rs/xid values: 12 bytes of timestamp + machine + pid + counter,
// base32-encoded to 20 lowercase characters. Lexical order of IDs from one
// generator is a monotonic proxy for creation order, which the id-cursor
// pagination and the hash-ordered tuple scans rely on.
package id

import (
	"encoding/base32"

	"github.com/rs/xid"
)

// Alphabet is the base32 character set shared by IDs and pagination tokens:
// lowercase, digit-first, no padding.
const Alphabet = "0123456789abcdefghijklmnopqrstuv"

var encoding = base32.NewEncoding(Alphabet).WithPadding(base32.NoPadding)

// New returns a fresh sortable unique id.
func New() string {
	return xid.New().String()
}

// EncodeBase32 encodes raw bytes with the shared alphabet, no padding.
func EncodeBase32(data []byte) string {
	return encoding.EncodeToString(data)
}

// DecodeBase32 decodes a string produced by EncodeBase32.
func DecodeBase32(s string) ([]byte, error) {
	return encoding.DecodeString(s)
}
