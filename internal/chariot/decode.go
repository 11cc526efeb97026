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
	"fmt"

	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/elf32"
)

// Metadata is an image whose metadata object has been located.
type Metadata struct {
	// Image is the outer executable.
	Image *elf32.File
	// Object is the metadata object held in MetadataSection.
	Object *elf32.File
	// Localization binds the object's symbols to fields.
	Localization *Localization
}

// nested returns the ELF object held in the named section of f.
func nested(f *elf32.File, name string) (*elf32.File, error) {
	sh, err := f.SectionByName(name)
	if err != nil {
		return nil, err
	}
	b, err := f.SectionData(sh)
	if err != nil {
		return nil, fmt.Errorf("section %q: %w", name, err)
	}
	o, err := elf32.NewFile(b)
	if err != nil {
		return nil, fmt.Errorf("object in section %q: %w", name, err)
	}
	return o, nil
}

// Open locates the metadata object inside image and binds its symbols. The
// returned Metadata borrows image.
func Open(image []byte) (*Metadata, error) {
	f, err := elf32.NewFile(image)
	if err != nil {
		return nil, err
	}
	o, err := nested(f, MetadataSection)
	if err != nil {
		return nil, err
	}
	l, err := Locate(o)
	if err != nil {
		return nil, err
	}
	return &Metadata{Image: f, Object: o, Localization: l}, nil
}

// DecodeELF decodes the metadata record of an ELF32 image.
func DecodeELF(image []byte) (*api.Record, error) {
	m, err := Open(image)
	if err != nil {
		return nil, err
	}
	return m.Record()
}

// Record decodes every bound field. Fields with no symbol are left nil.
func (m *Metadata) Record() (*api.Record, error) {
	return m.RecordFields(api.AllFields())
}

// RecordFields decodes the bound fields sel asks for, leaving the others nil.
// Unselected fields are never read, so a malformed one doesn't cause an
// error. An empty sel selects every field.
func (m *Metadata) RecordFields(sel api.Selection) (*api.Record, error) {
	if sel.Empty() {
		sel = api.AllFields()
	}
	wanted := map[Field]bool{
		MainbootSha256:     sel.SHA256,
		MainbootOffsetNum:  sel.SHA256,
		MainbootSizesNum:   sel.SHA256,
		FormatTypeinfo:     sel.Format,
		VersionData:        sel.Version,
		FirmwarePath:       sel.FirmwarePath,
		FirmwareLicense:    sel.License,
		CodanalysData:      sel.StaticAnalysis,
		CodanalysTypeinfo:  sel.StaticAnalysis,
		ExtrabootOffsetNum: sel.Extraboot,
		ExtrabootSizeNum:   sel.Extraboot,
	}
	r := &api.Record{Container: api.ContainerELF}
	get := func(fld Field) ([]byte, bool, error) {
		if !wanted[fld] {
			return nil, false, nil
		}
		return value(m.Object, m.Localization, fld)
	}

	if b, ok, err := get(MainbootSha256); err != nil {
		return nil, err
	} else if ok {
		if r.MainbootSHA256, err = decodeMainbootSHA(b); err != nil {
			return nil, fmt.Errorf("%v: %w", MainbootSha256, err)
		}
	}

	raw := []struct {
		fld Field
		dst *[]byte
	}{
		{FormatTypeinfo, &r.Format},
		{VersionData, &r.Version},
		{CodanalysTypeinfo, &r.StaticAnalysisType},
	}
	for _, f := range raw {
		b, ok, err := get(f.fld)
		if err != nil {
			return nil, err
		}
		if ok {
			*f.dst = clone(b)
		}
	}

	prefixed := []struct {
		fld    Field
		prefix string
		dst    *[]byte
	}{
		{FirmwarePath, firmwarePathPrefix, &r.FirmwarePath},
		{FirmwareLicense, firmwareLicensePrefix, &r.License},
	}
	for _, f := range prefixed {
		b, ok, err := get(f.fld)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		v, err := trimPrefix(b, f.prefix)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", f.fld, err)
		}
		*f.dst = clone(v)
	}

	if b, ok, err := get(CodanalysData); err != nil {
		return nil, err
	} else if ok {
		v, err := decodeCodanalys(b)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", CodanalysData, err)
		}
		r.StaticAnalysis = clone(v)
	}

	nums := []struct {
		fld Field
		dst **uint32
	}{
		{MainbootOffsetNum, &r.MainbootOffset},
		{MainbootSizesNum, &r.MainbootSize},
		{ExtrabootOffsetNum, &r.ExtrabootOffset},
		{ExtrabootSizeNum, &r.ExtrabootSize},
	}
	for _, f := range nums {
		b, ok, err := get(f.fld)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		n, err := decodeNum(b)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", f.fld, err)
		}
		*f.dst = &n
	}
	return r, nil
}

// ResolveExtraboot finds the extraboot image described by the metadata of
// image inside its supplemental data.
func ResolveExtraboot(image []byte) (*api.Extraboot, error) {
	m, err := Open(image)
	if err != nil {
		return nil, err
	}
	return m.Extraboot()
}

// Extraboot resolves the extraboot image against the supplemental object
// held in the image's SupplementalSection.
func (m *Metadata) Extraboot() (*api.Extraboot, error) {
	s, err := nested(m.Image, SupplementalSection)
	if err != nil {
		return nil, fmt.Errorf("supplemental data: %w", err)
	}
	sh, err := s.SectionByName(SupplementalSection)
	if err != nil {
		return nil, fmt.Errorf("supplemental object: %w", err)
	}
	return ResolveExtrabootIn(m.Object, m.Localization, s, sh)
}

// ResolveExtrabootIn decodes the extraboot fields of the metadata object
// meta and locates the content they describe inside section of suppl.
// The offset and size fields are required; the digest and type are
// optional.
func ResolveExtrabootIn(meta *elf32.File, l *Localization, suppl *elf32.File, section elf32.SectionHeader) (*api.Extraboot, error) {
	num := func(fld Field) (uint32, error) {
		b, ok, err := value(meta, l, fld)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, fmt.Errorf("%v: %w", fld, api.ErrNotFound)
		}
		n, err := decodeNum(b)
		if err != nil {
			return 0, fmt.Errorf("%v: %w", fld, err)
		}
		return n, nil
	}
	start, err := num(ExtrabootOffsetNum)
	if err != nil {
		return nil, err
	}
	size, err := num(ExtrabootSizeNum)
	if err != nil {
		return nil, err
	}
	if end := uint64(start) + uint64(size); end > uint64(section.Size) {
		return nil, fmt.Errorf("extraboot %d+%d exceeds supplemental section of %d bytes: %w", start, size, section.Size, api.ErrOutOfRange)
	}
	content, err := suppl.View().Bytes(uint64(section.Offset)+uint64(start), uint64(size))
	if err != nil {
		return nil, fmt.Errorf("extraboot content: %w", err)
	}
	e := &api.Extraboot{Offset: start, Size: size, Content: clone(content)}

	if b, ok, err := value(meta, l, ExtrabootSha256); err != nil {
		return nil, err
	} else if ok {
		if e.SHA256, err = decodeExtrabootSHA(b); err != nil {
			return nil, fmt.Errorf("%v: %w", ExtrabootSha256, err)
		}
	}
	if b, ok, err := value(meta, l, ExtrabootTypeinfo); err != nil {
		return nil, err
	} else if ok {
		e.Type = clone(b)
	}
	return e, nil
}
