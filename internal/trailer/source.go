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

package trailer

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/transparency-dev/chariotmeta/api"
)

// Source delivers the logical byte stream of a trailer, whatever its
// physical encoding.
type Source interface {
	// ReadFull fills p. It fails with ErrMalformedContainer if the stream
	// ends first.
	ReadFull(p []byte) error
}

// rawSource reads a trailer stored as plain bytes.
type rawSource struct {
	r   io.Reader
	off int64
}

func newRawSource(r io.Reader) *rawSource {
	return &rawSource{r: bufio.NewReader(r)}
}

func (s *rawSource) ReadFull(p []byte) error {
	n, err := io.ReadFull(s.r, p)
	s.off += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("trailer truncated at byte %d: %w", s.off, api.ErrMalformedContainer)
		}
		return err
	}
	return nil
}

// atEnd returns true if no bytes remain.
func (s *rawSource) atEnd() bool {
	var b [1]byte
	n, _ := s.r.Read(b[:])
	return n == 0
}

// maxRecordData is the largest payload one hex record can carry.
const maxRecordData = 0xff

// hexSource reassembles the trailer from a sequence of hex records, each on
// its own line. A record only ever uses the all-zero address and type.
type hexSource struct {
	r       *bufio.Reader
	buf     [maxRecordData]byte
	pending []byte
	records int
}

func newHexSource(r io.Reader) *hexSource {
	return &hexSource{r: bufio.NewReader(r)}
}

func (s *hexSource) ReadFull(p []byte) error {
	for len(p) > 0 {
		if len(s.pending) == 0 {
			if err := s.next(); err != nil {
				return err
			}
			continue
		}
		n := copy(p, s.pending)
		p, s.pending = p[n:], s.pending[n:]
	}
	return nil
}

// atEnd returns true if every record has been read and fully consumed.
func (s *hexSource) atEnd() bool {
	if len(s.pending) > 0 {
		return false
	}
	_, err := s.r.Peek(1)
	return err == io.EOF
}

// next reads one record into pending.
func (s *hexSource) next() error {
	line, err := s.r.ReadSlice('\n')
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("trailer truncated after record %d: %w", s.records, api.ErrMalformedContainer)
		}
		if err == bufio.ErrBufferFull {
			return fmt.Errorf("record %d is too long: %w", s.records+1, api.ErrMalformedContainer)
		}
		return err
	}
	s.records++
	data, err := parseRecord(line, s.buf[:0])
	if err != nil {
		return fmt.Errorf("record %d: %w", s.records, err)
	}
	s.pending = data
	return nil
}

// parseRecord decodes one newline terminated record line, appending its
// payload to dst. The line is ':' followed by hex pairs for the length, a
// zero address, a zero type, the payload and the checksum. Trailing spaces,
// tabs and a carriage return are allowed before the newline.
func parseRecord(line, dst []byte) ([]byte, error) {
	end := len(line)
	if end > 0 && line[end-1] == '\n' {
		end--
	}
	for end > 0 && (line[end-1] == ' ' || line[end-1] == '\t' || line[end-1] == '\r') {
		end--
	}
	line = line[:end]
	// ':' + length + 2 address + type + checksum, as hex pairs.
	if len(line) < 11 || line[0] != ':' {
		return nil, fmt.Errorf("not a record: %q: %w", truncate(line), api.ErrMalformedContainer)
	}
	pairs := line[1:]
	if len(pairs)%2 != 0 {
		return nil, fmt.Errorf("odd number of hex digits: %w", api.ErrMalformedContainer)
	}
	// The checksum makes the sum of every byte in the record zero.
	var sum byte
	for i := 0; i < len(pairs); i += 2 {
		b, err := hexByte(pairs[i:])
		if err != nil {
			return nil, err
		}
		sum += b
	}
	if sum != 0 {
		return nil, fmt.Errorf("record bytes sum to %#02x: %w", sum, api.ErrChecksumMismatch)
	}
	n, _ := hexByte(pairs)
	if got, want := len(pairs)/2, int(n)+5; got != want {
		return nil, fmt.Errorf("record holds %d bytes, length says %d: %w", got-5, n, api.ErrMalformedContainer)
	}
	if string(pairs[2:8]) != "000000" {
		return nil, fmt.Errorf("non-zero address or type %q: %w", pairs[2:8], api.ErrMalformedContainer)
	}
	for i := 0; i < int(n); i++ {
		b, _ := hexByte(pairs[8+2*i:])
		dst = append(dst, b)
	}
	return dst, nil
}

func hexByte(b []byte) (byte, error) {
	var v byte
	for _, c := range b[:2] {
		switch {
		case '0' <= c && c <= '9':
			v = v<<4 | (c - '0')
		case 'a' <= c && c <= 'f':
			v = v<<4 | (c - 'a' + 10)
		case 'A' <= c && c <= 'F':
			v = v<<4 | (c - 'A' + 10)
		default:
			return 0, fmt.Errorf("invalid hex character %q: %w", c, api.ErrMalformedContainer)
		}
	}
	return v, nil
}

func truncate(b []byte) []byte {
	if len(b) > 16 {
		return b[:16]
	}
	return b
}
