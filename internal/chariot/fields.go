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

package chariot

import (
	"bytes"
	"fmt"

	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/elf32"
)

// Literal framing of the string valued fields.
const (
	mainbootSuffix        = " mainboot"
	firmwarePathPrefix    = "CHARIOTMETA_FIRMWARE_PATH="
	firmwareLicensePrefix = "CHARIOTMETA_FIRMWARE_LICENSE="
	codanalysDataPrefix   = "CHARIOTMETA_CODANALYS_DATA= "

	// numSize is the length of an ASCII hex encoded 32-bit number.
	numSize = 8
)

// Span returns the absolute offset and size within f of the value sym
// covers. The value must lie within both the owning section and the file.
func Span(f *elf32.File, sym elf32.Symbol) (uint64, uint64, error) {
	sh, err := f.Section(uint32(sym.Shndx))
	if err != nil {
		return 0, 0, fmt.Errorf("owning section: %w", err)
	}
	if end := uint64(sym.Value) + uint64(sym.Size); end > uint64(sh.Size) {
		return 0, 0, fmt.Errorf("value %d+%d exceeds section %d of %d bytes: %w", sym.Value, sym.Size, sym.Shndx, sh.Size, api.ErrOutOfRange)
	}
	off, size := uint64(sh.Offset)+uint64(sym.Value), uint64(sym.Size)
	if err := f.View().Check(off, size); err != nil {
		return 0, 0, err
	}
	return off, size, nil
}

// value returns the bytes of the field fld, or nil if it isn't bound. The
// result aliases the file buffer.
func value(f *elf32.File, l *Localization, fld Field) ([]byte, bool, error) {
	sym, ok := l.Lookup(fld)
	if !ok {
		return nil, false, nil
	}
	off, size, err := Span(f, sym)
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", fld, err)
	}
	b, err := f.View().Bytes(off, size)
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", fld, err)
	}
	return b, true, nil
}

// decodeMainbootSHA decodes "<64 hex digits> mainboot".
func decodeMainbootSHA(b []byte) (*api.Digest, error) {
	if want := 2*api.DigestSize + len(mainbootSuffix); len(b) != want {
		return nil, fmt.Errorf("%d bytes, want %d: %w", len(b), want, api.ErrMalformedContainer)
	}
	if s := b[2*api.DigestSize:]; string(s) != mainbootSuffix {
		return nil, fmt.Errorf("suffix %q, want %q: %w", s, mainbootSuffix, api.ErrMalformedContainer)
	}
	d, err := api.ParseDigest(b[:2*api.DigestSize])
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// decodeExtrabootSHA decodes a digest followed by anything at all.
func decodeExtrabootSHA(b []byte) (*api.Digest, error) {
	if len(b) < 2*api.DigestSize {
		return nil, fmt.Errorf("%d bytes, want at least %d: %w", len(b), 2*api.DigestSize, api.ErrMalformedContainer)
	}
	d, err := api.ParseDigest(b[:2*api.DigestSize])
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// decodeNum decodes exactly 8 ASCII hex digits.
func decodeNum(b []byte) (uint32, error) {
	if len(b) != numSize {
		return 0, fmt.Errorf("%d bytes, want %d: %w", len(b), numSize, api.ErrMalformedContainer)
	}
	var n uint32
	for i, c := range b {
		var d byte
		switch {
		case '0' <= c && c <= '9':
			d = c - '0'
		case 'a' <= c && c <= 'f':
			d = c - 'a' + 10
		case 'A' <= c && c <= 'F':
			d = c - 'A' + 10
		default:
			return 0, fmt.Errorf("invalid hex character %q at %d: %w", c, i, api.ErrMalformedContainer)
		}
		n = n<<4 | uint32(d)
	}
	return n, nil
}

func trimPrefix(b []byte, prefix string) ([]byte, error) {
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return nil, fmt.Errorf("missing %q prefix: %w", prefix, api.ErrMalformedContainer)
	}
	return b[len(prefix):], nil
}

// decodeCodanalys strips the prefix and the single trailing byte the writer
// appends.
func decodeCodanalys(b []byte) ([]byte, error) {
	r, err := trimPrefix(b, codanalysDataPrefix)
	if err != nil {
		return nil, err
	}
	if len(r) == 0 {
		return nil, fmt.Errorf("no trailing byte after %q: %w", codanalysDataPrefix, api.ErrMalformedContainer)
	}
	return r[:len(r)-1], nil
}

func clone(b []byte) []byte {
	return append([]byte{}, b...)
}
