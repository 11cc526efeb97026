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

// Package api contains the "public" types shared by the chariot metadata
// decoders, tools and the inspector service.
package api

// Container identifies the physical format the metadata was embedded in.
type Container string

const (
	// ContainerELF is metadata held in sections of an ELF32 executable.
	ContainerELF Container = "elf"
	// ContainerBin is a framed trailer appended to a raw binary image.
	ContainerBin Container = "bin"
	// ContainerHex is a trailer appended to an Intel-HEX style image.
	ContainerHex Container = "hex"
)

// Record is the provenance metadata recovered from a firmware image.
//
// A nil field was not present in the container. Present fields are copies
// and never alias the buffer they were decoded from.
type Record struct {
	// Container is the format the record was decoded from.
	Container Container

	////// What's its identity? //////

	// MainbootSHA256 is the SHA-256 of the main boot image.
	MainbootSHA256 *Digest

	// Format names the metadata format, e.g. "!CHARIOTMETAFORMAT_2019a".
	Format []byte

	// Version is the version data. For bin and hex containers it is 32 raw
	// bytes, for ELF it is whatever the build tool stored.
	Version []byte

	// SoftwareID is an opaque software identifier. Not present in ELF.
	SoftwareID []byte

	////// Where did it come from? //////

	// FirmwarePath is the path recorded by the build tool (the "bcpath" tag).
	FirmwarePath []byte

	// License is the license text or identifier.
	License []byte

	////// What was checked? //////

	// StaticAnalysis holds the static analysis results.
	StaticAnalysis []byte
	// StaticAnalysisType is the MIME type of StaticAnalysis.
	StaticAnalysisType []byte

	////// Anything else? //////

	// Additional is an opaque blob. Not present in ELF, where the extraboot
	// image plays that role.
	Additional []byte
	// AdditionalType is the MIME type of Additional, only kept on request.
	AdditionalType []byte

	///// ELF only //////

	// MainbootOffset and MainbootSize locate the main boot image.
	MainbootOffset *uint32
	MainbootSize   *uint32

	// ExtrabootOffset and ExtrabootSize locate the extraboot content inside
	// the supplemental data section. See Extraboot.
	ExtrabootOffset *uint32
	ExtrabootSize   *uint32
}

// Extraboot describes a secondary boot image stored in the supplemental data
// image of an ELF container.
type Extraboot struct {
	// SHA256 is the declared hash of Content, nil if not recorded.
	SHA256 *Digest
	// Type is the extraboot type information, nil if not recorded.
	Type []byte
	// Offset and Size locate Content inside the supplemental section.
	Offset uint32
	Size   uint32
	// Content is the extraboot image itself.
	Content []byte
}

// Selection enumerates the fields a caller wants decoded or printed.
type Selection struct {
	SHA256         bool
	Format         bool
	Version        bool
	FirmwarePath   bool
	License        bool
	SoftwareID     bool
	StaticAnalysis bool
	Additional     bool
	Extraboot      bool
}

// AllFields returns a Selection with every field requested.
func AllFields() Selection {
	return Selection{
		SHA256:         true,
		Format:         true,
		Version:        true,
		FirmwarePath:   true,
		License:        true,
		SoftwareID:     true,
		StaticAnalysis: true,
		Additional:     true,
		Extraboot:      true,
	}
}

// Empty returns true if no field is selected.
func (s Selection) Empty() bool {
	return s == Selection{}
}
