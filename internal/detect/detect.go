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

// Package detect picks the container of a firmware image and decodes its
// metadata with the matching decoder.
package detect

import (
	"bytes"
	"fmt"

	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/chariot"
	"github.com/transparency-dev/chariotmeta/internal/elf32"
	"github.com/transparency-dev/chariotmeta/internal/trailer"
)

// Auto asks for the container to be detected from the image content.
const Auto = "auto"

// Sniff picks the container of data from its first bytes: ELF images start
// with the ELF magic, hex images with a record mark, and anything else is
// taken to be a raw binary.
func Sniff(data []byte) api.Container {
	switch {
	case bytes.HasPrefix(data, elf32.Magic):
		return api.ContainerELF
	case len(data) > 0 && data[0] == ':':
		return api.ContainerHex
	default:
		return api.ContainerBin
	}
}

// Container resolves a format name to a container, sniffing data if the
// name is empty or Auto.
func Container(format string, data []byte) (api.Container, error) {
	switch format {
	case "", Auto:
		return Sniff(data), nil
	case string(api.ContainerELF), string(api.ContainerBin), string(api.ContainerHex):
		return api.Container(format), nil
	default:
		return "", fmt.Errorf("format must be one of: 'auto', 'elf', 'bin', 'hex', got %q", format)
	}
}

// Decode decodes the metadata of data, which is held in container c.
func Decode(data []byte, c api.Container, opts trailer.Options) (*api.Record, error) {
	switch c {
	case api.ContainerELF:
		return chariot.DecodeELF(data)
	case api.ContainerBin:
		return trailer.DecodeBin(bytes.NewReader(data), opts)
	case api.ContainerHex:
		return trailer.DecodeHex(bytes.NewReader(data), opts)
	}
	return nil, fmt.Errorf("unknown container %q", c)
}
