// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Payload masking per RFC 6455 section 5.3. XOR with key[i%4] is its own
// inverse, so the same routine masks on encode and unmasks on decode.

package protocol

import "crypto/rand"

// Mask XORs buf in place with key.
func Mask(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}

// NewMaskKey returns four random masking bytes.
func NewMaskKey() ([4]byte, error) {
	var key [4]byte
	_, err := rand.Read(key[:])
	return key, err
}
