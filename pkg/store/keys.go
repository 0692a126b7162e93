package store

import (
	"bytes"
	"fmt"
	"strconv"
)

// Separator terminates every part of a composite key.
//
// Parts must not contain it: component ids and branch names are validated against this.
const Separator byte = 0x00

const intWidth = 16

// Key builds a composite key: the prefix, then each part followed by the separator.
//
// Key(prefix, a, b) is also the scan prefix of every Key(prefix, a, b, ...).
func Key(prefix []byte, parts ...string) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	k := make([]byte, 0, size)
	k = append(k, prefix...)
	for _, p := range parts {
		k = append(k, UnsafeStringToBytes(p)...)
		k = append(k, Separator)
	}
	return k
}

// Int64 encodes a non-negative integer as a fixed width, lexicographically ordered key part
func Int64(v int64) string {
	if v < 0 {
		v = 0
	}
	s := strconv.FormatUint(uint64(v), 16)
	if len(s) < intWidth {
		s = string(bytes.Repeat([]byte{'0'}, intWidth-len(s))) + s
	}
	return s
}

// ParseInt64 decodes a key part encoded with Int64
func ParseInt64(s string) (int64, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer key part %q: %w", s, err)
	}
	return int64(v), nil
}

// LastInt64 decodes the integer held by the last part of a key built with Key
func LastInt64(key []byte) (int64, error) {
	key = bytes.TrimSuffix(key, []byte{Separator})
	return ParseInt64(UnsafeBytesToString(key[bytes.LastIndexByte(key, Separator)+1:]))
}

// ValidPart tells if a string may be used as a key part
func ValidPart(s string) bool {
	return s != "" && bytes.IndexByte(UnsafeStringToBytes(s), Separator) < 0
}
