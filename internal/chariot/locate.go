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

// Package chariot decodes provenance metadata embedded in an ELF32 image.
//
// The image carries a ".chariotmeta.rodata" section whose content is itself
// a relocatable ELF object. That object's symbol table names each metadata
// value with a "chariotmeta_" symbol. An optional ".suppldata" section holds
// a second object whose own ".suppldata" section contains the extraboot
// image.
package chariot

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/internal/elf32"
)

const (
	// MetadataSection is the section holding the metadata object.
	MetadataSection = ".chariotmeta.rodata"
	// SupplementalSection is the section holding the supplemental object,
	// and also the section inside that object holding the extraboot image.
	SupplementalSection = ".suppldata"
	// SymbolPrefix is the reserved prefix of metadata symbol names.
	SymbolPrefix = "chariotmeta_"
)

// Field is one of the metadata values a symbol can name.
type Field int

// The recognised fields.
const (
	MainbootSha256 Field = iota
	FormatTypeinfo
	MainbootOffsetNum
	MainbootSizesNum
	ExtrabootSha256
	ExtrabootOffsetNum
	ExtrabootSizeNum
	ExtrabootTypeinfo
	CodanalysTypeinfo
	VersionData
	FirmwarePath
	FirmwareLicense
	CodanalysData

	numFields
)

var fieldNames = [numFields]string{
	MainbootSha256:     "mainboot_sha256",
	FormatTypeinfo:     "format_typeinfo",
	MainbootOffsetNum:  "mainboot_offsetnum",
	MainbootSizesNum:   "mainboot_sizesnum",
	ExtrabootSha256:    "extraboot_sha256",
	ExtrabootOffsetNum: "extraboot_offsetnum",
	ExtrabootSizeNum:   "extraboot_sizenum",
	ExtrabootTypeinfo:  "extraboot_typeinfo",
	CodanalysTypeinfo:  "codanalys_typeinfo",
	VersionData:        "version_data",
	FirmwarePath:       "firmware_path",
	FirmwareLicense:    "firmware_license",
	CodanalysData:      "codanalys_data",
}

// bySymbol maps full symbol names to fields. The metadata writer spells the
// mainboot size symbol "sizenum", so that is accepted too.
var bySymbol = func() map[string]Field {
	m := map[string]Field{SymbolPrefix + "mainboot_sizenum": MainbootSizesNum}
	for f, n := range fieldNames {
		m[SymbolPrefix+n] = Field(f)
	}
	return m
}()

// String returns the symbol name of f, without SymbolPrefix.
func (f Field) String() string {
	if f < 0 || f >= numFields {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Localization records which symbol, if any, each field is bound to.
type Localization struct {
	syms  [numFields]elf32.Symbol
	valid uint16
}

// Lookup returns the symbol bound to f.
func (l *Localization) Lookup(f Field) (elf32.Symbol, bool) {
	if !l.Has(f) {
		return elf32.Symbol{}, false
	}
	return l.syms[f], true
}

// Has returns true if a symbol is bound to f.
func (l *Localization) Has(f Field) bool {
	return f >= 0 && f < numFields && l.valid&(1<<uint(f)) != 0
}

// Locate binds the metadata symbols of f to their fields. Unrecognised
// "chariotmeta_" symbols are ignored, and a later symbol with the same name
// replaces an earlier one.
func Locate(f *elf32.File) (*Localization, error) {
	l := &Localization{}
	err := f.Symbols(SymbolPrefix, func(name []byte, sym elf32.Symbol) error {
		fld, ok := bySymbol[string(name)]
		if !ok {
			glog.V(2).Infof("Ignoring unknown metadata symbol %q", name)
			return nil
		}
		l.syms[fld] = sym
		l.valid |= 1 << uint(fld)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to locate metadata symbols: %w", err)
	}
	return l, nil
}
