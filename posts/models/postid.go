package models

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// PostId is the 48-bit post identifier. It is stored in the database as a
// signed integer and surfaced to clients as exactly eight URL-safe base64
// characters (six bytes, big-endian two's complement, no padding). The two
// forms are a bijection on the 48-bit range.
type PostId int64

const (
	postIdBytes   = 6
	postIdStrLen  = 8
	postIdSignBit = int64(1) << 47
)

// ErrInvalidPostId reports a malformed external post id.
type ErrInvalidPostId struct {
	Value string
}

func (e *ErrInvalidPostId) Error() string {
	return fmt.Sprintf("invalid post id %q: must be %d URL-safe base64 characters", e.Value, postIdStrLen)
}

// NewPostId draws six uniformly-random bytes and interprets them as a
// big-endian two's-complement integer. Collisions are the caller's problem:
// the generation loop probes the posts table and retries.
func NewPostId() (PostId, error) {
	var buf [postIdBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to generate post id: %w", err)
	}
	return postIdFromBytes(buf), nil
}

func postIdFromBytes(buf [postIdBytes]byte) PostId {
	var v int64
	for _, b := range buf {
		v = v<<8 | int64(b)
	}
	// Sign-extend from bit 47.
	if v&postIdSignBit != 0 {
		v -= int64(1) << 48
	}
	return PostId(v)
}

// String returns the canonical 8-character external form.
func (p PostId) String() string {
	var buf [postIdBytes]byte
	v := uint64(p)
	for i := postIdBytes - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// ParsePostId decodes the external form. Only strings of exactly eight
// URL-safe base64 characters are accepted.
func ParsePostId(s string) (PostId, error) {
	if len(s) != postIdStrLen {
		return 0, &ErrInvalidPostId{Value: s}
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != postIdBytes {
		return 0, &ErrInvalidPostId{Value: s}
	}
	var buf [postIdBytes]byte
	copy(buf[:], raw)
	return postIdFromBytes(buf), nil
}

// Int64 returns the internal signed integer form.
func (p PostId) Int64() int64 {
	return int64(p)
}

// MarshalJSON renders the external string form.
func (p PostId) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the external string form.
func (p *PostId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := ParsePostId(s)
	if err != nil {
		return err
	}
	*p = id
	return nil
}

// Value implements driver.Valuer; the database carries the integer form.
func (p PostId) Value() (driver.Value, error) {
	return int64(p), nil
}

// Scan implements sql.Scanner.
func (p *PostId) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*p = PostId(v)
		return nil
	case nil:
		*p = 0
		return nil
	default:
		return fmt.Errorf("cannot scan %T into PostId", src)
	}
}
