// Package types holds the wire and in-memory data model shared by every
// consensus component: authors, rounds, epochs, the validator verifier and
// the messages that cross the epoch boundary.
package types

import (
	"encoding/hex"
	"fmt"
)

// AuthorLength is the size in bytes of a validator identity. Unlike a chain
// account (20 bytes) an Author is a consensus key fingerprint, so it uses the
// wider 32-byte hash size.
const AuthorLength = 32

// Author identifies a validator. It is compared and hashed by value, so it
// can be used directly as a map key.
type Author [AuthorLength]byte

// BytesToAuthor right-aligns b in an Author, truncating from the left if b
// is longer than AuthorLength.
func BytesToAuthor(b []byte) Author {
	var a Author
	if len(b) > AuthorLength {
		b = b[len(b)-AuthorLength:]
	}
	copy(a[AuthorLength-len(b):], b)
	return a
}

// Hex renders the author as a 0x-prefixed hex string.
func (a Author) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Author) String() string {
	return a.Hex()
}

// IsZero reports whether a is the zero author.
func (a Author) IsZero() bool {
	return a == Author{}
}

// ParseAuthor parses a 0x-prefixed or bare hex string into an Author.
func ParseAuthor(s string) (Author, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Author{}, fmt.Errorf("types: invalid author %q: %w", s, err)
	}
	if len(b) != AuthorLength {
		return Author{}, fmt.Errorf("types: author %q has %d bytes, want %d", s, len(b), AuthorLength)
	}
	return BytesToAuthor(b), nil
}
