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

// Package byteview provides a bounds-checked, endian-aware read-only window
// over a byte buffer.
package byteview

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/transparency-dev/chariotmeta/api"
)

// View is a read-only window over a caller owned buffer. Every read is
// checked against the length of the window, with offset arithmetic done in
// 64 bits so it cannot wrap.
type View struct {
	b     []byte
	order binary.ByteOrder
}

// New returns a View over b which decodes multi-byte values using order.
func New(b []byte, order binary.ByteOrder) View {
	return View{b: b, order: order}
}

// Len returns the number of bytes in the view.
func (v View) Len() int {
	return len(v.b)
}

// Order returns the byte order used to decode multi-byte values.
func (v View) Order() binary.ByteOrder {
	return v.order
}

// Check returns an error unless [off, off+size) lies within the view.
func (v View) Check(off, size uint64) error {
	end := off + size
	if end < off || end > uint64(len(v.b)) {
		return fmt.Errorf("read of %d bytes at %d exceeds length %d: %w", size, off, len(v.b), api.ErrOutOfRange)
	}
	return nil
}

// Bytes returns the size bytes at off. The returned slice aliases the
// underlying buffer.
func (v View) Bytes(off, size uint64) ([]byte, error) {
	if err := v.Check(off, size); err != nil {
		return nil, err
	}
	return v.b[off : off+size : off+size], nil
}

// Sub returns a View over [off, off+size) with the same byte order.
func (v View) Sub(off, size uint64) (View, error) {
	b, err := v.Bytes(off, size)
	if err != nil {
		return View{}, err
	}
	return View{b: b, order: v.order}, nil
}

// WithOrder returns a View over the same bytes decoding with order.
func (v View) WithOrder(order binary.ByteOrder) View {
	return View{b: v.b, order: order}
}

// Uint8 reads the byte at off.
func (v View) Uint8(off uint64) (uint8, error) {
	b, err := v.Bytes(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a 16-bit value at off.
func (v View) Uint16(off uint64) (uint16, error) {
	b, err := v.Bytes(off, 2)
	if err != nil {
		return 0, err
	}
	return v.order.Uint16(b), nil
}

// Uint32 reads a 32-bit value at off.
func (v View) Uint32(off uint64) (uint32, error) {
	b, err := v.Bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return v.order.Uint32(b), nil
}

// Read decodes the fixed-size structure data from the bytes at off using the
// view's byte order. data must be a pointer to a value which
// encoding/binary can decode, and its encoded size must equal want.
func (v View) Read(off uint64, data interface{}, want int) error {
	if got := binary.Size(data); got != want {
		return fmt.Errorf("%T encodes to %d bytes, want %d: %w", data, got, want, api.ErrBadStructureSize)
	}
	b, err := v.Bytes(off, uint64(want))
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(b), v.order, data)
}

// CString returns the NUL terminated string starting at off, without its
// terminator. The terminator must occur before off+limit and within the view.
func (v View) CString(off, limit uint64) ([]byte, error) {
	if off >= uint64(len(v.b)) || off >= limit {
		return nil, fmt.Errorf("string at %d outside limit %d (length %d): %w", off, limit, len(v.b), api.ErrOutOfRange)
	}
	end := limit
	if end > uint64(len(v.b)) {
		end = uint64(len(v.b))
	}
	s := v.b[off:end]
	i := bytes.IndexByte(s, 0)
	if i < 0 {
		return nil, fmt.Errorf("unterminated string at %d: %w", off, api.ErrOutOfRange)
	}
	return s[:i:i], nil
}
