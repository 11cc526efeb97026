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
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/transparency-dev/chariotmeta/api"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := ioutil.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

// fakeInspector answers every inspection as a hex record for the uploaded image.
func fakeInspector(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile(api.InspectImagePart)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		image, err := ioutil.ReadAll(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if bytes.Equal(image, []byte("reject")) {
			http.Error(w, "no metadata", http.StatusUnprocessableEntity)
			return
		}
		h := sha256.Sum256(image)
		d, err := api.DigestFromBytes(h[:])
		if err != nil {
			t.Fatalf("DigestFromBytes: %v", err)
		}
		json.NewEncoder(w).Encode(api.InspectResponse{ImageSHA256: d, Record: api.Record{Container: api.ContainerHex}})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestSubmit(t *testing.T) {
	ts := fakeInspector(t)
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	dir := t.TempDir()
	a := writeFile(t, dir, "a.hex", []byte("image a"))
	b := writeFile(t, dir, "b.hex", []byte("image b"))

	var out bytes.Buffer
	if err := Main(context.Background(), SubmitOpts{
		InspectorURL: u,
		HTTPClient:   ts.Client(),
		Files:        []string{a, b},
		Stdout:       &out,
	}); err != nil {
		t.Fatalf("Main: %v", err)
	}
	want := fmt.Sprintf("%x hex\n%x hex\n", sha256.Sum256([]byte("image a")), sha256.Sum256([]byte("image b")))
	if got := out.String(); got != want {
		t.Errorf("got output %q, want %q", got, want)
	}
}

func TestSubmitErrors(t *testing.T) {
	ts := fakeInspector(t)
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	dir := t.TempDir()
	for _, test := range []struct {
		desc  string
		files []string
	}{
		{
			desc: "no files",
		}, {
			desc:  "missing file",
			files: []string{filepath.Join(dir, "nothere")},
		}, {
			desc:  "rejected image",
			files: []string{writeFile(t, dir, "r.bin", []byte("reject"))},
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			if err := Main(context.Background(), SubmitOpts{
				InspectorURL: u,
				HTTPClient:   ts.Client(),
				Files:        test.files,
				Stdout:       os.Stdout,
			}); err == nil {
				t.Error("Main: got no error")
			}
		})
	}
}
