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

// Package elf32 reads the parts of an ELF32 file needed to find named
// sections and walk symbol tables. Every structure is decoded with the
// file's own byte order at load time.
package elf32

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/byteview"
)

// Structure sizes and the constants this package interprets.
const (
	HeaderSize        = 52
	SectionHeaderSize = 40
	SymbolSize        = 16

	// EIData is the index of the data encoding byte in Header.Ident.
	EIData = 5
	// ELFData2MSB marks a big-endian file; anything else is read as
	// little-endian.
	ELFData2MSB = 2

	// SHNUndef is the undefined section index.
	SHNUndef = 0
	// SHTSymtab is the section type of a symbol table.
	SHTSymtab = 2
)

// Magic is the identification prefix of every ELF file.
var Magic = []byte{0x7f, 'E', 'L', 'F'}

// Header is the ELF32 file header.
type Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	PhOff     uint32
	ShOff     uint32
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

// SectionHeader is an entry in the section header table.
type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	AddrAlign uint32
	EntSize   uint32
}

// Symbol is an entry in a symbol table.
type Symbol struct {
	Name  uint32
	Value uint32
	Size  uint32
	Info  uint8
	Other uint8
	Shndx uint16
}

// ByteOrder returns the byte order the identification bytes declare.
func ByteOrder(ident []byte) binary.ByteOrder {
	if len(ident) > EIData && ident[EIData] == ELFData2MSB {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ReadHeader decodes the file header at the start of v, returning it along
// with a view that decodes using the file's byte order.
func ReadHeader(v byteview.View) (Header, byteview.View, error) {
	var h Header
	if v.Len() < HeaderSize {
		return h, v, fmt.Errorf("%d bytes cannot hold an ELF32 header: %w", v.Len(), api.ErrTooShort)
	}
	ident, err := v.Bytes(0, uint64(len(h.Ident)))
	if err != nil {
		return h, v, err
	}
	if !bytes.HasPrefix(ident, Magic) {
		return h, v, fmt.Errorf("bad ELF magic %x: %w", ident[:len(Magic)], api.ErrMalformedContainer)
	}
	v = v.WithOrder(ByteOrder(ident))
	if err := v.Read(0, &h, HeaderSize); err != nil {
		return h, v, fmt.Errorf("failed to read ELF header: %w", err)
	}
	return h, v, nil
}

// File is a decoded ELF32 header over a caller owned buffer.
type File struct {
	Header Header
	v      byteview.View
}

// NewFile decodes the ELF32 header of b. The returned File borrows b.
func NewFile(b []byte) (*File, error) {
	h, v, err := ReadHeader(byteview.New(b, binary.LittleEndian))
	if err != nil {
		return nil, err
	}
	return &File{Header: h, v: v}, nil
}

// View returns a view over the whole file, decoding in the file's byte order.
func (f *File) View() byteview.View {
	return f.v
}

// Section returns the i'th section header.
func (f *File) Section(i uint32) (SectionHeader, error) {
	var sh SectionHeader
	if f.Header.ShEntSize != SectionHeaderSize {
		return sh, fmt.Errorf("section header entry size %d, want %d: %w", f.Header.ShEntSize, SectionHeaderSize, api.ErrBadStructureSize)
	}
	if i >= uint32(f.Header.ShNum) {
		return sh, fmt.Errorf("section %d of %d: %w", i, f.Header.ShNum, api.ErrOutOfRange)
	}
	off := uint64(f.Header.ShOff) + uint64(i)*SectionHeaderSize
	if err := f.v.Read(off, &sh, SectionHeaderSize); err != nil {
		return sh, fmt.Errorf("failed to read section %d: %w", i, err)
	}
	return sh, nil
}

// SectionData returns the bytes covered by sh. They alias the file buffer.
func (f *File) SectionData(sh SectionHeader) ([]byte, error) {
	return f.v.Bytes(uint64(sh.Offset), uint64(sh.Size))
}

// stringAt returns the NUL terminated string at off inside the string table
// section strtab.
func (f *File) stringAt(strtab SectionHeader, off uint32) ([]byte, error) {
	if off >= strtab.Size {
		return nil, fmt.Errorf("name offset %d outside string table of %d bytes: %w", off, strtab.Size, api.ErrOutOfRange)
	}
	start := uint64(strtab.Offset)
	return f.v.CString(start+uint64(off), start+uint64(strtab.Size))
}

// SectionByName returns the header of the section called name.
func (f *File) SectionByName(name string) (SectionHeader, error) {
	if f.Header.ShEntSize != SectionHeaderSize {
		return SectionHeader{}, fmt.Errorf("section header entry size %d, want %d: %w", f.Header.ShEntSize, SectionHeaderSize, api.ErrBadStructureSize)
	}
	if f.Header.ShStrNdx == SHNUndef {
		return SectionHeader{}, fmt.Errorf("no section name table: %w", api.ErrNotFound)
	}
	strtab, err := f.Section(uint32(f.Header.ShStrNdx))
	if err != nil {
		return SectionHeader{}, fmt.Errorf("section name table: %w", err)
	}
	for i := int(f.Header.ShNum) - 1; i >= 0; i-- {
		sh, err := f.Section(uint32(i))
		if err != nil {
			return SectionHeader{}, err
		}
		n, err := f.stringAt(strtab, sh.Name)
		if err != nil {
			return SectionHeader{}, fmt.Errorf("name of section %d: %w", i, err)
		}
		if string(n) == name {
			return sh, nil
		}
	}
	return SectionHeader{}, fmt.Errorf("section %q: %w", name, api.ErrNotFound)
}

// Symbols calls fn for every symbol, in every symbol table, whose name starts
// with prefix. Iteration stops at the first error, which is returned.
func (f *File) Symbols(prefix string, fn func(name []byte, sym Symbol) error) error {
	found := false
	for i := uint32(0); i < uint32(f.Header.ShNum); i++ {
		sh, err := f.Section(i)
		if err != nil {
			return err
		}
		if sh.Type != SHTSymtab {
			continue
		}
		found = true
		if sh.EntSize != 0 && sh.EntSize != SymbolSize {
			return fmt.Errorf("symbol table %d entry size %d, want %d: %w", i, sh.EntSize, SymbolSize, api.ErrBadStructureSize)
		}
		if err := f.v.Check(uint64(sh.Offset), uint64(sh.Size)); err != nil {
			return fmt.Errorf("symbol table %d: %w", i, err)
		}
		strtab, err := f.Section(sh.Link)
		if err != nil {
			return fmt.Errorf("string table of symbol table %d: %w", i, err)
		}
		for j := uint64(0); j < uint64(sh.Size/SymbolSize); j++ {
			var sym Symbol
			if err := f.v.Read(uint64(sh.Offset)+j*SymbolSize, &sym, SymbolSize); err != nil {
				return fmt.Errorf("symbol %d of table %d: %w", j, i, err)
			}
			n, err := f.stringAt(strtab, sym.Name)
			if err != nil {
				return fmt.Errorf("name of symbol %d of table %d: %w", j, i, err)
			}
			if !bytes.HasPrefix(n, []byte(prefix)) {
				continue
			}
			if err := fn(n, sym); err != nil {
				return err
			}
		}
	}
	if !found {
		return fmt.Errorf("no symbol table: %w", api.ErrNotFound)
	}
	return nil
}
