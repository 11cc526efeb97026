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

package detect_test

import (
	"encoding/binary"
	"testing"

	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/detect"
	"github.com/transparency-dev/chariotmeta/internal/testonly"
	"github.com/transparency-dev/chariotmeta/internal/trailer"
)

func TestContainer(t *testing.T) {
	elf := testonly.Image(binary.BigEndian, testonly.MetadataObject(binary.BigEndian, nil), nil)
	for _, test := range []struct {
		desc    string
		format  string
		data    []byte
		want    api.Container
		wantErr bool
	}{
		{desc: "sniff elf", format: detect.Auto, data: elf, want: api.ContainerELF},
		{desc: "sniff hex", data: []byte(":00000001FF\n"), want: api.ContainerHex},
		{desc: "sniff bin", data: []byte{0x7f, 'E'}, want: api.ContainerBin},
		{desc: "sniff empty", want: api.ContainerBin},
		{desc: "forced", format: "bin", data: elf, want: api.ContainerBin},
		{desc: "unknown", format: "srec", wantErr: true},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := detect.Container(test.format, test.data)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Container: got err %v, want err %t", err, test.wantErr)
			}
			if got != test.want {
				t.Errorf("Container: got %q, want %q", got, test.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	le := binary.LittleEndian
	tr := testonly.Trailer{License: []byte("MIT")}
	for _, test := range []struct {
		desc string
		data []byte
	}{
		{desc: "elf", data: testonly.Image(le, testonly.MetadataObject(le, []testonly.MetadataField{
			{Name: "firmware_license", Value: []byte("CHARIOTMETA_FIRMWARE_LICENSE=MIT")},
		}), nil)},
		{desc: "bin", data: testonly.Bin([]byte("fw"), tr)},
		{desc: "hex", data: testonly.Hex([]string{":0100000000FF"}, tr)},
	} {
		t.Run(test.desc, func(t *testing.T) {
			c := detect.Sniff(test.data)
			if string(c) != test.desc {
				t.Fatalf("Sniff: got %q, want %q", c, test.desc)
			}
			r, err := detect.Decode(test.data, c, trailer.Options{})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if r.Container != c || string(r.License) != "MIT" {
				t.Errorf("Decode: got %+v", r)
			}
		})
	}
}
