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

// Package impl is the implementation of a util to submit firmware images to
// the metadata inspector.
package impl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/internal/client"
	"golang.org/x/mod/sumdb/note"
)

// SubmitOpts encapsulates submit tool parameters.
type SubmitOpts struct {
	InspectorURL *url.URL
	HTTPClient   *http.Client
	// Format is passed to the inspector, which detects the container if empty.
	Format   string
	Files    []string
	Verifier note.Verifier
	Retries  uint64
	Stdout   io.Writer
}

// Main uploads each file in turn and prints "<image sha256> <container>"
// for every image the inspector accepted.
func Main(ctx context.Context, opts SubmitOpts) error {
	if len(opts.Files) == 0 {
		return errors.New("no image files given")
	}
	c := client.InspectorClient{
		URL:        opts.InspectorURL,
		HTTPClient: opts.HTTPClient,
		Verifier:   opts.Verifier,
		Retries:    opts.Retries,
	}
	for _, path := range opts.Files {
		image, err := ioutil.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", path, err)
		}
		resp, err := c.Inspect(ctx, path, opts.Format, image)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		glog.V(1).Infof("%s: inspector returned %d byte note", path, len(resp.Note))
		if _, err := fmt.Fprintf(opts.Stdout, "%s %s\n", resp.ImageSHA256, resp.Record.Container); err != nil {
			return err
		}
	}
	return nil
}
