// Copyright 2021 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/binary"
	"fmt"
)

// DigestSize is the number of raw bytes in a Digest.
const DigestSize = 32

// Digest is a SHA-256 value held as 8 32-bit words, most-significant word
// first.
type Digest [8]uint32

// DigestFromBytes builds a Digest from 32 raw bytes, most-significant byte
// first.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest is %d bytes, want %d: %w", len(b), DigestSize, ErrTooShort)
	}
	for i := range d {
		d[i] = binary.BigEndian.Uint32(b[i*4:])
	}
	return d, nil
}

// ParseDigest decodes exactly 64 hex characters into a Digest. Any character
// which is not a hex digit fails the whole parse.
func ParseDigest(s []byte) (Digest, error) {
	var d Digest
	if len(s) != 2*DigestSize {
		return d, fmt.Errorf("digest text is %d characters, want %d: %w", len(s), 2*DigestSize, ErrMalformedContainer)
	}
	for i, c := range s {
		n, ok := unhex(c)
		if !ok {
			return Digest{}, fmt.Errorf("invalid hex character %q at %d: %w", c, i, ErrMalformedContainer)
		}
		w := &d[i/8]
		*w = *w<<4 | uint32(n)
	}
	return d, nil
}

// Bytes returns the 32 raw bytes of the digest.
func (d Digest) Bytes() []byte {
	b := make([]byte, DigestSize)
	for i, w := range d {
		binary.BigEndian.PutUint32(b[i*4:], w)
	}
	return b
}

// String renders the digest as 64 lowercase hex characters.
func (d Digest) String() string {
	return fmt.Sprintf("%x", d.Bytes())
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and reads digests
// which were written by the MarshalText method above.
func (d *Digest) UnmarshalText(raw []byte) error {
	p, err := ParseDigest(raw)
	if err != nil {
		return fmt.Errorf("unable to parse digest: %w", err)
	}
	*d = p
	return nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
