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

// chariot_submit uploads firmware images to a metadata inspector and prints
// the image hash and container of each accepted image.
//
// Usage:
//   go run ./cmd/chariot_submit/ --logtostderr --inspector_url=http://localhost:8000 /path/to/firmware.hex
package main

import (
	"context"
	"flag"
	"io/ioutil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/cmd/chariot_submit/impl"
	"golang.org/x/mod/sumdb/note"
)

var (
	inspectorURL  = flag.String("inspector_url", "http://localhost:8000", "Base URL of the inspector")
	format        = flag.String("format", "", "Container format to ask the inspector for, detected by the inspector if empty")
	verifierFile  = flag.String("verifier_key_file", "", "Optional file holding the inspector's note verifier key")
	retries       = flag.Uint64("retries", 3, "How many times to retry a failed upload")
	submitTimeout = flag.Duration("timeout", time.Minute, "Overall timeout for the submissions")
)

func main() {
	flag.Parse()

	u, err := url.Parse(*inspectorURL)
	if err != nil {
		glog.Exitf("Invalid inspector URL: %v", err)
	}

	var verifier note.Verifier
	if *verifierFile != "" {
		raw, err := ioutil.ReadFile(*verifierFile)
		if err != nil {
			glog.Exitf("Failed to read verifier key: %v", err)
		}
		if verifier, err = note.NewVerifier(strings.TrimSpace(string(raw))); err != nil {
			glog.Exitf("Failed to create verifier: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *submitTimeout)
	defer cancel()
	if err := impl.Main(ctx, impl.SubmitOpts{
		InspectorURL: u,
		Format:       *format,
		Files:        flag.Args(),
		Verifier:     verifier,
		Retries:      *retries,
		Stdout:       os.Stdout,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
