// Package page implements the opaque continuation tokens returned by the
// listing operations. A token is the base32 encoding of a tiny
// protobuf-wire-format record with a single string field, last_id: the
// endpoint id the next page resumes strictly after.
package page

import (
	"encoding/binary"
	"fmt"

	"github.com/weftlabs/weft/internal/id"
)

// Page size bounds. Callers ask for any limit; servers clamp to [MinLimit,
// MaxLimit] and default to DefaultLimit when the caller passes zero.
const (
	MinLimit     = 1
	MaxLimit     = 30
	DefaultLimit = 30
)

// lastIDTag is field 1, wire type 2 (length-delimited).
const lastIDTag = 0x0a

// ClampLimit normalizes a caller-supplied page limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// EncodeToken serializes a continuation token carrying lastID.
func EncodeToken(lastID string) string {
	buf := make([]byte, 0, 2+binary.MaxVarintLen64+len(lastID))
	buf = append(buf, lastIDTag)
	buf = binary.AppendUvarint(buf, uint64(len(lastID)))
	buf = append(buf, lastID...)
	return id.EncodeBase32(buf)
}

// DecodeToken parses a continuation token back into its lastID. The empty
// token means "first page". Any byte beyond the single expected field makes
// the token invalid.
func DecodeToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := id.DecodeBase32(token)
	if err != nil {
		return "", fmt.Errorf("malformed page token: %w", err)
	}
	if len(raw) < 2 || raw[0] != lastIDTag {
		return "", fmt.Errorf("malformed page token: bad field tag")
	}
	length, n := binary.Uvarint(raw[1:])
	if n <= 0 || uint64(len(raw[1+n:])) != length {
		return "", fmt.Errorf("malformed page token: bad length")
	}
	return string(raw[1+n:]), nil
}
