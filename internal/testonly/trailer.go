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

package testonly

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Trailer is the content of a bin or hex metadata trailer. Optional fields
// are omitted when nil.
type Trailer struct {
	SHA256             [32]byte
	Format             []byte
	Additional         []byte
	AdditionalType     []byte
	Version            [32]byte
	FirmwarePath       []byte
	License            []byte
	SoftwareID         []byte
	StaticAnalysis     []byte
	StaticAnalysisType []byte
}

func u32(n int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}

func cat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// Chunks returns the trailer fields up to, but not including, the "::"
// terminator, split the way the metadata writer splits them into hex
// records.
func (t Trailer) Chunks() [][]byte {
	c := [][]byte{
		[]byte(":chariot_md:"),
		[]byte(":sha256:"),
		t.SHA256[:],
		cat([]byte(":fmt:"), u32(len(t.Format))),
		t.Format,
	}
	if t.Additional != nil {
		c = append(c, cat([]byte(":add:"), u32(len(t.Additional))), t.Additional, cat([]byte(":"), u32(len(t.AdditionalType))), t.AdditionalType)
	}
	c = append(c, []byte(":version:"), t.Version[:])
	for _, f := range []struct {
		tag string
		v   []byte
	}{{"bcpath", t.FirmwarePath}, {"lic", t.License}, {"soft", t.SoftwareID}} {
		if f.v != nil {
			c = append(c, cat([]byte(":"+f.tag+":"), u32(len(f.v))), f.v)
		}
	}
	if t.StaticAnalysis != nil {
		c = append(c, cat([]byte(":sca:"), u32(len(t.StaticAnalysis))), t.StaticAnalysis, cat([]byte(":"), u32(len(t.StaticAnalysisType))), t.StaticAnalysisType)
	}
	return c
}

// Fields returns the trailer fields including the "::" terminator.
func (t Trailer) Fields() []byte {
	return cat(append(t.Chunks(), []byte("::"))...)
}

// Bin appends the trailer to firmware, followed by the trailer size.
func Bin(firmware []byte, t Trailer) []byte {
	f := t.Fields()
	return cat(firmware, f, u32(len(f)+4))
}

// HexRecord encodes data as one record with a zero address and type.
func HexRecord(data []byte) string {
	sum := byte(len(data))
	for _, b := range data {
		sum += b
	}
	return fmt.Sprintf(":%02x000000%x%02x\n", len(data), data, -sum)
}

// hexRecords splits data into records of at most 255 bytes.
func hexRecords(data []byte) []string {
	var r []string
	for len(data) > 0 {
		n := len(data)
		if n > 0xff {
			n = 0xff
		}
		r = append(r, HexRecord(data[:n]))
		data = data[n:]
	}
	return r
}

// HexLines returns the trailer records, ending with the count record, for a
// hex image with the given number of firmware lines.
func HexLines(firmwareLines int, t Trailer) []string {
	var recs []string
	for _, c := range t.Chunks() {
		recs = append(recs, hexRecords(c)...)
	}
	return append(recs, HexRecord(cat([]byte("::"), u32(firmwareLines), u32(len(recs)+1))))
}

// Hex builds a hex image from firmware lines (without newlines), the
// trailer and the end-of-file record.
func Hex(firmware []string, t Trailer) []byte {
	var b bytes.Buffer
	for _, l := range firmware {
		b.WriteString(l + "\n")
	}
	for _, l := range HexLines(len(firmware), t) {
		b.WriteString(l)
	}
	b.WriteString(":00000001FF\n")
	return b.Bytes()
}
