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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/transparency-dev/chariotmeta/api"
)

const (
	// sizeLen is the length of the trailer size field at the end of a bin
	// image.
	sizeLen = 4
	// minBinTrailer is the size of the shortest valid bin trailer.
	minBinTrailer = len(magicTag) + len(sha256Tag) + api.DigestSize + len(formatTag) + 4 +
		len(":"+tagVersion+":") + versionLen + len("::") + sizeLen
)

// Layout describes where a trailer sits in an image.
type Layout struct {
	// Size is the length of the whole image.
	Size int64
	// FirmwareEnd is the offset at which the firmware proper ends.
	FirmwareEnd int64
	// MetadataStart is the offset of the first byte (bin) or record (hex)
	// of the trailer.
	MetadataStart int64

	// FirmwareLines and MetadataLines are the hex footer's line counts:
	// lines before the trailer and records in the trailer.
	FirmwareLines uint32
	MetadataLines uint32
	// SentinelOffset is the offset of the hex end-of-file record.
	SentinelOffset int64
}

func streamSize(r io.Seeker) (int64, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to find stream size: %w", err)
	}
	return size, nil
}

// LocateBin finds the trailer of a bin image from the size stored in its
// last 4 bytes.
func LocateBin(r io.ReadSeeker) (Layout, error) {
	size, err := streamSize(r)
	if err != nil {
		return Layout{}, err
	}
	if size < sizeLen {
		return Layout{}, fmt.Errorf("%d byte stream has no trailer size: %w", size, api.ErrTooShort)
	}
	if _, err := r.Seek(size-sizeLen, io.SeekStart); err != nil {
		return Layout{}, err
	}
	var b [sizeLen]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Layout{}, fmt.Errorf("failed to read trailer size: %w", err)
	}
	ts := int64(binary.BigEndian.Uint32(b[:]))
	if ts < int64(minBinTrailer) {
		return Layout{}, fmt.Errorf("trailer size %d below minimum %d: %w", ts, minBinTrailer, api.ErrMalformedContainer)
	}
	if ts > size {
		return Layout{}, fmt.Errorf("trailer size %d exceeds stream size %d: %w", ts, size, api.ErrOutOfRange)
	}
	return Layout{Size: size, FirmwareEnd: size - ts, MetadataStart: size - ts}, nil
}

// DecodeBin decodes the trailer of a bin image.
func DecodeBin(r io.ReadSeeker, opts Options) (*api.Record, error) {
	l, err := LocateBin(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(l.MetadataStart, io.SeekStart); err != nil {
		return nil, err
	}
	ts := l.Size - l.MetadataStart
	src := newRawSource(io.LimitReader(r, ts))
	rec, err := decodeFields(src, opts)
	if err != nil {
		return nil, err
	}
	var b [sizeLen]byte
	if err := src.ReadFull(b[:]); err != nil {
		return nil, fmt.Errorf("trailer size: %w", err)
	}
	if got := int64(binary.BigEndian.Uint32(b[:])); got != ts || !src.atEnd() {
		return nil, fmt.Errorf("trailer ends at byte %d of %d: %w", src.off, ts, api.ErrMalformedContainer)
	}
	rec.Container = api.ContainerBin
	return rec, nil
}
