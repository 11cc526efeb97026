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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/api"
)

const (
	// Sentinel is the end-of-file record which terminates a hex image.
	Sentinel = ":00000001FF"

	// countRecordLen is the length of the record before the sentinel, which
	// carries "::" and the two line counts: ':', length, address and type,
	// 10 data bytes and a checksum, as hex pairs.
	countRecordLen = 1 + 2*(4+10+1)

	// scanStep is how far each backward scan window moves.
	scanStep = 40
	// scanWindow is the size of a scan window. Three steps wide, so any
	// footer of up to two steps lies wholly inside some window.
	scanWindow = 3 * scanStep
)

// LocateHex finds the trailer of a hex image. The footer is found by
// scanning backwards from the end of the stream. The stream is then
// recounted from the start to find the first trailer record, checking that
// the counted lines end exactly at the sentinel.
func LocateHex(r io.ReadSeeker) (Layout, error) {
	size, err := streamSize(r)
	if err != nil {
		return Layout{}, err
	}
	if size < int64(len(Sentinel)) {
		return Layout{}, fmt.Errorf("%d byte stream: %w", size, api.ErrTooShort)
	}

	var a, b uint32
	var sentinel int64
	win := make([]byte, scanWindow)
	for start := size - scanWindow; ; start -= scanStep {
		if start < 0 {
			start = 0
		}
		w := win[:min64(scanWindow, size-start)]
		if _, err := r.Seek(start, io.SeekStart); err != nil {
			return Layout{}, err
		}
		if _, err := io.ReadFull(r, w); err != nil {
			return Layout{}, fmt.Errorf("failed to read scan window at %d: %w", start, err)
		}
		i, fa, fb, found, err := findFooter(w, start == 0, start+int64(len(w)) == size)
		if err != nil {
			return Layout{}, err
		}
		if found {
			sentinel, a, b = start+int64(i), fa, fb
			break
		}
		if start == 0 {
			return Layout{}, fmt.Errorf("no %s footer: %w", Sentinel, api.ErrNotFound)
		}
	}
	glog.V(2).Infof("hex footer at %d: %d firmware lines, %d metadata lines", sentinel, a, b)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Layout{}, err
	}
	br := bufio.NewReader(r)
	var off int64
	skip := func(n uint32) error {
		for i := uint32(0); i < n; i++ {
			l, err := skipLine(br)
			off += l
			if err != nil {
				return fmt.Errorf("line %d: %w", i, err)
			}
		}
		return nil
	}
	if err := skip(a); err != nil {
		return Layout{}, fmt.Errorf("counting firmware lines: %w", err)
	}
	start := off
	if err := skip(b); err != nil {
		return Layout{}, fmt.Errorf("counting metadata lines: %w", err)
	}
	if off != sentinel {
		return Layout{}, fmt.Errorf("counted lines end at %d, sentinel at %d: %w", off, sentinel, api.ErrMalformedContainer)
	}
	if p, err := br.Peek(len(Sentinel)); err != nil || string(p) != Sentinel {
		return Layout{}, fmt.Errorf("no sentinel after counted lines: %w", api.ErrMalformedContainer)
	}
	return Layout{
		Size:           size,
		FirmwareEnd:    start,
		MetadataStart:  start,
		FirmwareLines:  a,
		MetadataLines:  b,
		SentinelOffset: sentinel,
	}, nil
}

// findFooter returns the index in w of the last sentinel line which is
// preceded by a complete count record, along with the two counts that record
// carries. atStart and atEOF say whether w begins at the start or ends at the
// end of the stream. The count record is checksummed like any other record.
func findFooter(w []byte, atStart, atEOF bool) (int, uint32, uint32, bool, error) {
	for end := len(w); ; {
		i := bytes.LastIndex(w[:end], []byte(Sentinel))
		if i < 0 {
			return 0, 0, 0, false, nil
		}
		end = i
		after := i + len(Sentinel)
		terminated := (after == len(w) && atEOF) || (after < len(w) && (w[after] == '\n' || w[after] == '\r'))
		if !terminated || i == 0 || w[i-1] != '\n' {
			continue
		}
		le := trimBlanks(w, i-1)
		cs := le - countRecordLen
		if cs < 1 {
			if atStart {
				return 0, 0, 0, false, fmt.Errorf("sentinel without count record: %w", api.ErrMalformedContainer)
			}
			// The count record starts before this window.
			continue
		}
		if w[cs-1] != '\n' {
			return 0, 0, 0, false, fmt.Errorf("sentinel not preceded by count record: %w", api.ErrMalformedContainer)
		}
		a, b, err := footerCounts(w[cs:le])
		if err != nil {
			return 0, 0, 0, false, err
		}
		return i, a, b, true, nil
	}
}

// footerCounts decodes the count record line, which must hold "::" followed
// by the two big-endian line counts.
func footerCounts(line []byte) (uint32, uint32, error) {
	var buf [maxRecordData]byte
	data, err := parseRecord(line, buf[:0])
	if err != nil {
		return 0, 0, fmt.Errorf("count record: %w", err)
	}
	if len(data) != 10 || string(data[:2]) != "::" {
		return 0, 0, fmt.Errorf("sentinel not preceded by count record: %w", api.ErrMalformedContainer)
	}
	return binary.BigEndian.Uint32(data[2:6]), binary.BigEndian.Uint32(data[6:]), nil
}

// trimBlanks returns the index just after the last byte of the line which
// ends at w[nl], ignoring trailing spaces, tabs and carriage returns.
func trimBlanks(w []byte, nl int) int {
	for nl > 0 && (w[nl-1] == ' ' || w[nl-1] == '\t' || w[nl-1] == '\r') {
		nl--
	}
	return nl
}

// skipLine consumes one newline terminated line, returning its length.
func skipLine(br *bufio.Reader) (int64, error) {
	var n int64
	for {
		l, err := br.ReadSlice('\n')
		n += int64(len(l))
		switch err {
		case nil:
			return n, nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			return n, fmt.Errorf("stream ended: %w", api.ErrMalformedContainer)
		default:
			return n, err
		}
	}
}

// DecodeHex decodes the trailer of a hex image.
func DecodeHex(r io.ReadSeeker, opts Options) (*api.Record, error) {
	l, err := LocateHex(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(l.MetadataStart, io.SeekStart); err != nil {
		return nil, err
	}
	src := newHexSource(io.LimitReader(r, l.SentinelOffset-l.MetadataStart))
	rec, err := decodeFields(src, opts)
	if err != nil {
		return nil, err
	}
	var c [8]byte
	if err := src.ReadFull(c[:]); err != nil {
		return nil, fmt.Errorf("line counts: %w", err)
	}
	a, b := binary.BigEndian.Uint32(c[:4]), binary.BigEndian.Uint32(c[4:])
	if a != l.FirmwareLines || b != l.MetadataLines {
		return nil, fmt.Errorf("trailer counts %d/%d differ from footer %d/%d: %w", a, b, l.FirmwareLines, l.MetadataLines, api.ErrMalformedContainer)
	}
	if !src.atEnd() {
		return nil, fmt.Errorf("trailer continues after counts: %w", api.ErrMalformedContainer)
	}
	rec.Container = api.ContainerHex
	return rec, nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
