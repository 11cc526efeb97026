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

// chariot_extract prints the provenance metadata embedded in firmware images.
//
// Images may be ELF32 executables, raw binaries with a metadata trailer, or
// Intel-HEX style images with a metadata trailer. The container is detected
// from the file content unless --format is given.
//
// Usage:
//   go run ./cmd/chariot_extract/ --logtostderr --all /path/to/firmware.elf
//   go run ./cmd/chariot_extract/ --license --cut_output=/tmp/fw.bin /path/to/firmware.bin
package main

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/cmd/chariot_extract/impl"
)

var (
	format = flag.String("format", "auto", "Container format, one of [auto, elf, bin, hex]")

	all            = flag.Bool("all", false, "Print every field")
	sha            = flag.Bool("sha", false, "Print the mainboot SHA-256")
	fmtInfo        = flag.Bool("fmt", false, "Print the metadata format")
	version        = flag.Bool("version_data", false, "Print the version data")
	firmwarePath   = flag.Bool("firmware_path", false, "Print the firmware path")
	license        = flag.Bool("license", false, "Print the firmware license")
	softwareID     = flag.Bool("software_id", false, "Print the software id")
	staticAnalysis = flag.Bool("static_analysis", false, "Print the static analysis results")
	additional     = flag.Bool("additional", false, "Print the additional data")
	extraboot      = flag.Bool("extraboot", false, "Print the extraboot image description (ELF only)")

	output        = flag.String("output", "", "File to write the fields to, stdout if empty")
	scaOutput     = flag.String("sca_output", "", "File to write static analysis results to instead of the main output")
	extraOutput   = flag.String("extraboot_output", "", "File to write the extraboot image to (ELF only)")
	cutOutput     = flag.String("cut_output", "", "File to write the firmware without its metadata trailer to (bin and hex only)")
	rawOutput     = flag.String("raw_output", "", "File to write the raw metadata trailer to (bin and hex only)")
	maxConcurrent = flag.Int("max_concurrent", 4, "Maximum number of images decoded at once")
)

func main() {
	flag.Parse()

	sel := api.Selection{
		SHA256:         *sha,
		Format:         *fmtInfo,
		Version:        *version,
		FirmwarePath:   *firmwarePath,
		License:        *license,
		SoftwareID:     *softwareID,
		StaticAnalysis: *staticAnalysis,
		Additional:     *additional,
		Extraboot:      *extraboot,
	}
	if *all || sel.Empty() {
		sel = api.AllFields()
	}

	if err := impl.Main(context.Background(), impl.ExtractOpts{
		Format:          *format,
		Files:           flag.Args(),
		Fields:          sel,
		Output:          *output,
		Stdout:          os.Stdout,
		SCAOutput:       *scaOutput,
		ExtrabootOutput: *extraOutput,
		CutOutput:       *cutOutput,
		RawOutput:       *rawOutput,
		MaxConcurrent:   *maxConcurrent,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
