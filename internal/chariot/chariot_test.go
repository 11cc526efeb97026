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

package chariot_test

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/chariot"
	"github.com/transparency-dev/chariotmeta/internal/testonly"
)

const (
	mainbootHex  = "00112233445566778899aabbccddeeff0123456789abcdef0123456789abcdef"
	extrabootHex = "ffeeddccbbaa99887766554433221100fedcba9876543210fedcba9876543210"
)

var orders = []binary.ByteOrder{binary.LittleEndian, binary.BigEndian}

func mustDigest(t *testing.T, s string) *api.Digest {
	t.Helper()
	d, err := api.ParseDigest([]byte(s))
	if err != nil {
		t.Fatalf("ParseDigest(%q): %v", s, err)
	}
	return &d
}

func u32(v uint32) *uint32 {
	return &v
}

func allFields() []testonly.MetadataField {
	return []testonly.MetadataField{
		{Name: "mainboot_sha256", Value: []byte(mainbootHex + " mainboot")},
		{Name: "format_typeinfo", Value: []byte("!CHARIOTMETAFORMAT_2019a")},
		{Name: "mainboot_offsetnum", Value: []byte("00001000")},
		{Name: "mainboot_sizesnum", Value: []byte("0000abcd")},
		{Name: "extraboot_sha256", Value: []byte(extrabootHex + " extra.bin")},
		{Name: "extraboot_offsetnum", Value: []byte("00000004")},
		{Name: "extraboot_sizenum", Value: []byte("00000005")},
		{Name: "extraboot_typeinfo", Value: []byte("application/octet-stream")},
		{Name: "codanalys_typeinfo", Value: []byte("text/plain")},
		{Name: "version_data", Value: []byte("v1.2.3")},
		{Name: "firmware_path", Value: []byte("CHARIOTMETA_FIRMWARE_PATH=/fw/app.elf")},
		{Name: "firmware_license", Value: []byte("CHARIOTMETA_FIRMWARE_LICENSE=Apache-2.0")},
		{Name: "codanalys_data", Value: []byte("CHARIOTMETA_CODANALYS_DATA= no issues ")},
	}
}

func TestDecodeELF(t *testing.T) {
	want := &api.Record{
		Container:          api.ContainerELF,
		MainbootSHA256:     mustDigest(t, mainbootHex),
		Format:             []byte("!CHARIOTMETAFORMAT_2019a"),
		Version:            []byte("v1.2.3"),
		FirmwarePath:       []byte("/fw/app.elf"),
		License:            []byte("Apache-2.0"),
		StaticAnalysis:     []byte("no issues"),
		StaticAnalysisType: []byte("text/plain"),
		MainbootOffset:     u32(0x1000),
		MainbootSize:       u32(0xabcd),
		ExtrabootOffset:    u32(4),
		ExtrabootSize:      u32(5),
	}
	var got []*api.Record
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			img := testonly.Image(order, testonly.MetadataObject(order, allFields()), nil)
			r, err := chariot.DecodeELF(img)
			if err != nil {
				t.Fatalf("DecodeELF: %v", err)
			}
			if diff := cmp.Diff(r, want); diff != "" {
				t.Errorf("DecodeELF diff (-got +want):\n%s", diff)
			}
			got = append(got, r)
		})
	}
	if len(got) == 2 {
		if diff := cmp.Diff(got[0], got[1]); diff != "" {
			t.Errorf("little and big endian images decode differently:\n%s", diff)
		}
	}
}

func TestDecodeELFAbsentFields(t *testing.T) {
	img := testonly.Image(binary.LittleEndian, testonly.MetadataObject(binary.LittleEndian, []testonly.MetadataField{
		{Name: "firmware_path", Value: []byte("CHARIOTMETA_FIRMWARE_PATH=")},
		{Name: "not_a_field", Value: []byte("ignored")},
	}), nil)
	r, err := chariot.DecodeELF(img)
	if err != nil {
		t.Fatalf("DecodeELF: %v", err)
	}
	want := &api.Record{Container: api.ContainerELF, FirmwarePath: []byte{}}
	if diff := cmp.Diff(r, want); diff != "" {
		t.Errorf("DecodeELF diff (-got +want):\n%s", diff)
	}
	if r.FirmwarePath == nil {
		t.Error("present but empty field decoded as absent")
	}
}

func TestDecodeELFLastWins(t *testing.T) {
	img := testonly.Image(binary.LittleEndian, testonly.MetadataObject(binary.LittleEndian, []testonly.MetadataField{
		{Name: "version_data", Value: []byte("first")},
		{Name: "version_data", Value: []byte("second")},
		{Name: "mainboot_sizenum", Value: []byte("00000010")},
	}), nil)
	r, err := chariot.DecodeELF(img)
	if err != nil {
		t.Fatalf("DecodeELF: %v", err)
	}
	if got, want := string(r.Version), "second"; got != want {
		t.Errorf("Version: got %q, want %q", got, want)
	}
	if r.MainbootSize == nil || *r.MainbootSize != 0x10 {
		t.Errorf("MainbootSize: got %v, want 0x10", r.MainbootSize)
	}
}

func TestDecodeELFFieldErrors(t *testing.T) {
	for _, test := range []struct {
		desc  string
		field testonly.MetadataField
	}{
		{desc: "sha too long", field: testonly.MetadataField{Name: "mainboot_sha256", Value: []byte(mainbootHex + " mainboot!")}},
		{desc: "sha wrong suffix", field: testonly.MetadataField{Name: "mainboot_sha256", Value: []byte(mainbootHex + " mainbooT")}},
		{desc: "sha bad digit", field: testonly.MetadataField{Name: "mainboot_sha256", Value: []byte("x" + mainbootHex[1:] + " mainboot")}},
		{desc: "path prefix", field: testonly.MetadataField{Name: "firmware_path", Value: []byte("FIRMWARE_PATH=/x")}},
		{desc: "license prefix", field: testonly.MetadataField{Name: "firmware_license", Value: []byte("CHARIOTMETA_FIRMWARE_PATH=MIT")}},
		{desc: "codanalys prefix", field: testonly.MetadataField{Name: "codanalys_data", Value: []byte("CHARIOTMETA_CODANALYS_DATA=x ")}},
		{desc: "codanalys no trailer", field: testonly.MetadataField{Name: "codanalys_data", Value: []byte("CHARIOTMETA_CODANALYS_DATA= ")}},
		{desc: "short number", field: testonly.MetadataField{Name: "mainboot_offsetnum", Value: []byte("1000")}},
		{desc: "bad number", field: testonly.MetadataField{Name: "extraboot_sizenum", Value: []byte("0000100g")}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			img := testonly.Image(binary.LittleEndian, testonly.MetadataObject(binary.LittleEndian, []testonly.MetadataField{test.field}), nil)
			r, err := chariot.DecodeELF(img)
			if !errors.Is(err, api.ErrMalformedContainer) {
				t.Fatalf("DecodeELF: got %v, want ErrMalformedContainer", err)
			}
			if r != nil {
				t.Errorf("DecodeELF returned partial record %+v", r)
			}
		})
	}
}

func TestRecordFields(t *testing.T) {
	le := binary.LittleEndian
	fields := allFields()
	fields[0].Value = []byte("not a sha")
	fields[5].Value = []byte("zzzzzzzz")
	img := testonly.Image(le, testonly.MetadataObject(le, fields), nil)
	m, err := chariot.Open(img)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, test := range []struct {
		desc    string
		sel     api.Selection
		want    *api.Record
		wantErr error
	}{
		{
			desc: "license only",
			sel:  api.Selection{License: true},
			want: &api.Record{Container: api.ContainerELF, License: []byte("Apache-2.0")},
		}, {
			desc: "static analysis and version",
			sel:  api.Selection{StaticAnalysis: true, Version: true},
			want: &api.Record{
				Container:          api.ContainerELF,
				Version:            []byte("v1.2.3"),
				StaticAnalysis:     []byte("no issues"),
				StaticAnalysisType: []byte("text/plain"),
			},
		}, {
			desc:    "malformed sha selected",
			sel:     api.Selection{SHA256: true},
			wantErr: api.ErrMalformedContainer,
		}, {
			desc:    "malformed extraboot offset selected",
			sel:     api.Selection{Extraboot: true},
			wantErr: api.ErrMalformedContainer,
		}, {
			desc:    "empty selection decodes everything",
			wantErr: api.ErrMalformedContainer,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			got, err := m.RecordFields(test.sel)
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("RecordFields: got err %v, want %v", err, test.wantErr)
			}
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("RecordFields diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestDecodeELFBounds(t *testing.T) {
	for _, test := range []struct {
		desc string
		sym  testonly.ELFSymbol
	}{
		{desc: "past section end", sym: testonly.ELFSymbol{Name: "chariotmeta_version_data", Section: 1, Value: 6, Size: 3}},
		{desc: "huge size", sym: testonly.ELFSymbol{Name: "chariotmeta_version_data", Section: 1, Value: 1, Size: 0xffffffff}},
		{desc: "bad section", sym: testonly.ELFSymbol{Name: "chariotmeta_version_data", Section: 0xfff1, Value: 0, Size: 1}},
	} {
		t.Run(test.desc, func(t *testing.T) {
			obj := testonly.ELF{
				Sections: []testonly.ELFSection{{Name: ".chariotmeta.rodata", Type: 1, Data: []byte("12345678")}},
				Symbols:  []testonly.ELFSymbol{test.sym},
			}.Bytes()
			_, err := chariot.DecodeELF(testonly.Image(binary.LittleEndian, obj, nil))
			if !errors.Is(err, api.ErrOutOfRange) {
				t.Errorf("DecodeELF: got %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestDecodeELFStructureErrors(t *testing.T) {
	for _, test := range []struct {
		desc    string
		img     []byte
		wantErr error
	}{
		{
			desc:    "not elf",
			img:     []byte(strings.Repeat("x", 100)),
			wantErr: api.ErrMalformedContainer,
		}, {
			desc:    "no metadata section",
			img:     testonly.ELF{Sections: []testonly.ELFSection{{Name: ".text", Type: 1}}}.Bytes(),
			wantErr: api.ErrNotFound,
		}, {
			desc:    "metadata is not an object",
			img:     testonly.Image(binary.LittleEndian, []byte("short"), nil),
			wantErr: api.ErrTooShort,
		}, {
			desc:    "metadata without symbols",
			img:     testonly.Image(binary.LittleEndian, testonly.ELF{Sections: []testonly.ELFSection{{Name: ".chariotmeta.rodata", Type: 1}}}.Bytes(), nil),
			wantErr: api.ErrNotFound,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if _, err := chariot.DecodeELF(test.img); !errors.Is(err, test.wantErr) {
				t.Errorf("DecodeELF: got %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestResolveExtraboot(t *testing.T) {
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			img := testonly.Image(order,
				testonly.MetadataObject(order, allFields()),
				testonly.SupplObject(order, []byte("....EXTRA....")))
			got, err := chariot.ResolveExtraboot(img)
			if err != nil {
				t.Fatalf("ResolveExtraboot: %v", err)
			}
			want := &api.Extraboot{
				SHA256:  mustDigest(t, extrabootHex),
				Type:    []byte("application/octet-stream"),
				Offset:  4,
				Size:    5,
				Content: []byte("EXTRA"),
			}
			if diff := cmp.Diff(got, want); diff != "" {
				t.Errorf("ResolveExtraboot diff (-got +want):\n%s", diff)
			}
		})
	}
}

func TestResolveExtrabootErrors(t *testing.T) {
	le := binary.LittleEndian
	meta := func(off, size string) []byte {
		return testonly.MetadataObject(le, []testonly.MetadataField{
			{Name: "extraboot_offsetnum", Value: []byte(off)},
			{Name: "extraboot_sizenum", Value: []byte(size)},
		})
	}
	for _, test := range []struct {
		desc    string
		img     []byte
		wantErr error
	}{
		{
			desc:    "no supplemental section",
			img:     testonly.Image(le, meta("00000000", "00000001"), nil),
			wantErr: api.ErrNotFound,
		}, {
			desc: "no offset",
			img: testonly.Image(le, testonly.MetadataObject(le, []testonly.MetadataField{
				{Name: "extraboot_sizenum", Value: []byte("00000001")},
			}), testonly.SupplObject(le, []byte("abc"))),
			wantErr: api.ErrNotFound,
		}, {
			desc:    "past section",
			img:     testonly.Image(le, meta("00000002", "00000002"), testonly.SupplObject(le, []byte("abc"))),
			wantErr: api.ErrOutOfRange,
		}, {
			desc:    "wrapping",
			img:     testonly.Image(le, meta("ffffffff", "00000002"), testonly.SupplObject(le, []byte("abc"))),
			wantErr: api.ErrOutOfRange,
		}, {
			desc: "short digest",
			img: testonly.Image(le, testonly.MetadataObject(le, []testonly.MetadataField{
				{Name: "extraboot_offsetnum", Value: []byte("00000000")},
				{Name: "extraboot_sizenum", Value: []byte("00000001")},
				{Name: "extraboot_sha256", Value: []byte(extrabootHex[:63])},
			}), testonly.SupplObject(le, []byte("abc"))),
			wantErr: api.ErrMalformedContainer,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if _, err := chariot.ResolveExtraboot(test.img); !errors.Is(err, test.wantErr) {
				t.Errorf("ResolveExtraboot: got %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestFieldString(t *testing.T) {
	if got, want := chariot.MainbootSizesNum.String(), "mainboot_sizesnum"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
	if got, want := chariot.Field(99).String(), "Field(99)"; got != want {
		t.Errorf("String: got %q, want %q", got, want)
	}
}
