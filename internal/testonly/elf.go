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

// Package testonly contains encoders for the metadata containers. They are
// only used to build test fixtures and do no validation of their own.
package testonly

import (
	"bytes"
	"encoding/binary"
)

// ELFSection is a section to be written by ELF.Bytes.
type ELFSection struct {
	Name string
	Type uint32
	Data []byte
}

// ELFSymbol is a symbol to be written by ELF.Bytes. Section is the 1-based
// index into ELF.Sections, matching the section index in the output file.
type ELFSymbol struct {
	Name    string
	Section uint16
	Value   uint32
	Size    uint32
}

// ELF describes a relocatable ELF32 file. Bytes appends a symbol table (if
// Symbols is non-nil), its string table and a section name table after the
// given sections.
type ELF struct {
	Order    binary.ByteOrder
	Sections []ELFSection
	Symbols  []ELFSymbol
}

type shdr struct {
	Name, Type, Flags, Addr, Offset, Size, Link, Info, AddrAlign, EntSize uint32
}

type sym struct {
	Name, Value, Size uint32
	Info, Other       uint8
	Shndx             uint16
}

type ehdr struct {
	Ident                                          [16]byte
	Type, Machine                                  uint16
	Version, Entry, PhOff, ShOff, Flags            uint32
	EhSize, PhEntSize, PhNum, ShEntSize, ShNum, Ix uint16
}

func strtab(names []string) ([]byte, []uint32) {
	b := []byte{0}
	offs := make([]uint32, len(names))
	for i, n := range names {
		offs[i] = uint32(len(b))
		b = append(b, n...)
		b = append(b, 0)
	}
	return b, offs
}

// Bytes encodes the file.
func (e ELF) Bytes() []byte {
	order := e.Order
	if order == nil {
		order = binary.LittleEndian
	}
	secs := append([]ELFSection{}, e.Sections...)
	symtabIdx := -1
	if e.Symbols != nil {
		names := make([]string, len(e.Symbols))
		for i, s := range e.Symbols {
			names[i] = s.Name
		}
		st, offs := strtab(names)
		var tab bytes.Buffer
		tab.Write(make([]byte, 16))
		for i, s := range e.Symbols {
			binary.Write(&tab, order, sym{Name: offs[i], Value: s.Value, Size: s.Size, Info: 0x11, Shndx: s.Section})
		}
		symtabIdx = len(secs) + 1
		secs = append(secs, ELFSection{Name: ".symtab", Type: 2, Data: tab.Bytes()}, ELFSection{Name: ".strtab", Type: 3, Data: st})
	}
	names := make([]string, len(secs)+1)
	for i, s := range secs {
		names[i] = s.Name
	}
	names[len(secs)] = ".shstrtab"
	shst, nameOffs := strtab(names)
	secs = append(secs, ELFSection{Name: ".shstrtab", Type: 3, Data: shst})

	var body bytes.Buffer
	body.Write(make([]byte, 52))
	hdrs := []shdr{{}}
	for i, s := range secs {
		for body.Len()%4 != 0 {
			body.WriteByte(0)
		}
		h := shdr{Name: nameOffs[i], Type: s.Type, Offset: uint32(body.Len()), Size: uint32(len(s.Data)), AddrAlign: 1}
		if i+1 == symtabIdx {
			h.Link = uint32(symtabIdx + 1)
			h.Info = 1
			h.EntSize = 16
		}
		body.Write(s.Data)
		hdrs = append(hdrs, h)
	}
	for body.Len()%4 != 0 {
		body.WriteByte(0)
	}
	shoff := body.Len()
	for _, h := range hdrs {
		binary.Write(&body, order, h)
	}

	eh := ehdr{
		Type:      1,
		Machine:   40,
		Version:   1,
		ShOff:     uint32(shoff),
		EhSize:    52,
		ShEntSize: 40,
		ShNum:     uint16(len(hdrs)),
		Ix:        uint16(len(hdrs) - 1),
	}
	copy(eh.Ident[:], []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})
	if order == binary.BigEndian {
		eh.Ident[5] = 2
	}
	var hb bytes.Buffer
	binary.Write(&hb, order, eh)
	out := body.Bytes()
	copy(out, hb.Bytes())
	return out
}

// MetadataField is one value in a metadata object.
type MetadataField struct {
	// Name is the symbol name without the "chariotmeta_" prefix.
	Name  string
	Value []byte
}

// MetadataObject builds the relocatable object a build tool embeds as the
// ".chariotmeta.rodata" section: one section of the same name holding each
// value in turn, with a symbol covering each value.
func MetadataObject(order binary.ByteOrder, fields []MetadataField) []byte {
	var data []byte
	syms := []ELFSymbol{}
	for _, f := range fields {
		syms = append(syms, ELFSymbol{Name: "chariotmeta_" + f.Name, Section: 1, Value: uint32(len(data)), Size: uint32(len(f.Value))})
		data = append(data, f.Value...)
		data = append(data, 0)
	}
	return ELF{
		Order:    order,
		Sections: []ELFSection{{Name: ".chariotmeta.rodata", Type: 1, Data: data}},
		Symbols:  syms,
	}.Bytes()
}

// SupplObject builds the relocatable object embedded as ".suppldata", whose
// own ".suppldata" section holds content.
func SupplObject(order binary.ByteOrder, content []byte) []byte {
	return ELF{
		Order:    order,
		Sections: []ELFSection{{Name: ".suppldata", Type: 1, Data: content}},
		Symbols:  []ELFSymbol{},
	}.Bytes()
}

// Image builds an executable holding meta as ".chariotmeta.rodata" and, if
// non-nil, suppl as ".suppldata".
func Image(order binary.ByteOrder, meta, suppl []byte) []byte {
	secs := []ELFSection{
		{Name: ".text", Type: 1, Data: []byte("firmware code goes here")},
		{Name: ".chariotmeta.rodata", Type: 1, Data: meta},
	}
	if suppl != nil {
		secs = append(secs, ELFSection{Name: ".suppldata", Type: 1, Data: suppl})
	}
	return ELF{Order: order, Sections: secs}.Bytes()
}
