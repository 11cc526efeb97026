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

package impl

import (
	"fmt"
	"io"

	"github.com/transparency-dev/chariotmeta/api"
)

// writeRecord writes the selected fields of d, one per line. Fields the
// container can carry but which are missing are reported as comments.
func writeRecord(w io.Writer, d *decoded, sel api.Selection, scaElsewhere bool) error {
	r := d.record
	elf := r.Container == api.ContainerELF
	var lines []string
	add := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}
	field := func(want bool, name string, v []byte, format string) {
		switch {
		case !want:
		case v == nil:
			add("# %s not present", name)
		default:
			add(format, v)
		}
	}

	if sel.SHA256 {
		if r.MainbootSHA256 != nil {
			add("%s mainboot", r.MainbootSHA256)
		} else {
			add("# mainboot sha256 not present")
		}
		if r.MainbootOffset != nil && r.MainbootSize != nil {
			add("CHARIOTMETA_MAINBOOT=%08x+%08x", *r.MainbootOffset, *r.MainbootSize)
		}
	}
	field(sel.Format, "format", r.Format, "CHARIOTMETA_FORMAT=%s")
	if elf {
		field(sel.Version, "version", r.Version, "CHARIOTMETA_VERSION=%s")
	} else {
		field(sel.Version, "version", r.Version, "CHARIOTMETA_VERSION=%x")
	}
	field(sel.FirmwarePath, "firmware path", r.FirmwarePath, "CHARIOTMETA_FIRMWARE_PATH=%s")
	field(sel.License, "firmware license", r.License, "CHARIOTMETA_FIRMWARE_LICENSE=%s")
	field(sel.SoftwareID && !elf, "software id", r.SoftwareID, "CHARIOTMETA_SOFTWARE_ID=%s")
	if sel.StaticAnalysis && scaElsewhere {
		field(true, "static analysis type", r.StaticAnalysisType, "CHARIOTMETA_CODANALYS_TYPE=%s")
	} else {
		field(sel.StaticAnalysis, "static analysis", r.StaticAnalysis, "CHARIOTMETA_CODANALYS_DATA=%s")
		field(sel.StaticAnalysis && r.StaticAnalysis != nil, "static analysis type", r.StaticAnalysisType, "CHARIOTMETA_CODANALYS_TYPE=%s")
	}
	field(sel.Additional && !elf, "additional data", r.Additional, "CHARIOTMETA_ADDITIONAL=%x")

	if sel.Extraboot && elf {
		if e := d.extraboot; e != nil {
			if e.SHA256 != nil {
				add("%s extraboot", e.SHA256)
			}
			add("CHARIOTMETA_EXTRABOOT=%08x+%08x", e.Offset, e.Size)
			field(e.Type != nil, "extraboot type", e.Type, "CHARIOTMETA_EXTRABOOT_TYPE=%s")
		} else {
			add("# extraboot not present")
		}
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
