// keys.go: key normalisation for hashing and routing
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"fmt"
	"strconv"
)

// keyToString converts a key of any comparable type to string efficiently.
// Common types avoid fmt; everything else falls back to fmt.Sprintf.
func keyToString[K comparable](key K) string {
	switch v := any(key).(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", key)
	}
}

// keyHash returns the FNV-1a hash of the string form of key.
func keyHash[K comparable](key K) uint64 {
	return stringHash(keyToString(key))
}
