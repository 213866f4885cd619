// Package xhash provides the fast, non-cryptographic hashing used to turn
// arbitrary URLs into filesystem-safe, stable keys (library's url_hash /
// chapter_url_hash, spec.md §4.8). It makes no integrity claims; for
// content-addressing with integrity guarantees see package fileref.
package xhash

import (
	"encoding/hex"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// HexString returns the lowercase hex-encoded xxhash64 digest of s.
func HexString(s string) string {
	sum := xxhash.Sum64String(s)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(sum >> (8 * (7 - i)))
	}
	return hex.EncodeToString(buf)
}

// DecString returns the decimal representation of an ordinal index, used
// for the <volume_index> path component (spec.md §4.8).
func DecString(i int) string {
	return strconv.Itoa(i)
}
