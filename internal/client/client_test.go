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

package client_test

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"
	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/client"
	"golang.org/x/mod/sumdb/note"
)

var image = []byte("firmware image")

func testRecord() api.Record {
	return api.Record{
		Container: api.ContainerBin,
		Format:    []byte("!CHARIOTMETAFORMAT_2019a"),
		License:   []byte("MIT"),
	}
}

func mustDigest(t *testing.T, b []byte) api.Digest {
	t.Helper()
	h := sha256.Sum256(b)
	d, err := api.DigestFromBytes(h[:])
	if err != nil {
		t.Fatalf("DigestFromBytes: %v", err)
	}
	return d
}

func mustKeys(t *testing.T) (note.Signer, note.Verifier) {
	t.Helper()
	skey, vkey, err := note.GenerateKey(rand.Reader, "inspector")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	s, err := note.NewSigner(skey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	v, err := note.NewVerifier(vkey)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return s, v
}

func mustSign(t *testing.T, s note.Signer, text []byte) []byte {
	t.Helper()
	n, err := note.Sign(&note.Note{Text: string(text)}, s)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return n
}

func newClient(t *testing.T, ts *httptest.Server) client.InspectorClient {
	t.Helper()
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("Failed to parse test server URL: %v", err)
	}
	return client.InspectorClient{
		URL:        u,
		HTTPClient: ts.Client(),
		Retries:    2,
		BackOff:    &backoff.ZeroBackOff{},
	}
}

func TestInspect(t *testing.T) {
	signer, verifier := mustKeys(t)
	_, otherVerifier := mustKeys(t)
	d := mustDigest(t, image)
	rec := testRecord()
	stmt, err := api.Statement(d, rec)
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}

	for _, test := range []struct {
		desc     string
		resp     api.InspectResponse
		verifier note.Verifier
		wantErr  bool
	}{
		{
			desc: "unsigned",
			resp: api.InspectResponse{ImageSHA256: d, Record: rec},
		}, {
			desc:     "signed",
			resp:     api.InspectResponse{ImageSHA256: d, Record: rec, Note: mustSign(t, signer, stmt)},
			verifier: verifier,
		}, {
			desc:     "missing note",
			resp:     api.InspectResponse{ImageSHA256: d, Record: rec},
			verifier: verifier,
			wantErr:  true,
		}, {
			desc:     "wrong signer",
			resp:     api.InspectResponse{ImageSHA256: d, Record: rec, Note: mustSign(t, signer, stmt)},
			verifier: otherVerifier,
			wantErr:  true,
		}, {
			desc:     "note for a different record",
			resp:     api.InspectResponse{ImageSHA256: d, Record: api.Record{Container: api.ContainerHex}, Note: mustSign(t, signer, stmt)},
			verifier: verifier,
			wantErr:  true,
		}, {
			desc:    "wrong image hash",
			resp:    api.InspectResponse{ImageSHA256: mustDigest(t, []byte("other")), Record: rec},
			wantErr: true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, api.HTTPInspect) {
					t.Fatalf("Got unexpected HTTP request on %q", r.URL.Path)
				}
				if got, want := r.URL.Query().Get("format"), "bin"; got != want {
					t.Errorf("got format %q, want %q", got, want)
				}
				f, _, err := r.FormFile(api.InspectImagePart)
				if err != nil {
					t.Fatalf("FormFile: %v", err)
				}
				got, err := ioutil.ReadAll(f)
				if err != nil {
					t.Fatalf("ReadAll: %v", err)
				}
				if diff := cmp.Diff(got, image); diff != "" {
					t.Errorf("uploaded image diff: %s", diff)
				}
				json.NewEncoder(w).Encode(test.resp)
			}))
			defer ts.Close()

			c := newClient(t, ts)
			c.Verifier = test.verifier
			got, err := c.Inspect(context.Background(), "fw.bin", "bin", image)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Inspect: got err %v, want err %t", err, test.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(got.Record, rec); diff != "" {
				t.Errorf("record diff: %s", diff)
			}
		})
	}
}

func TestRetries(t *testing.T) {
	for _, test := range []struct {
		desc      string
		failures  int
		status    int
		wantCalls int
		wantErr   bool
	}{
		{
			desc:      "recovers from server errors",
			failures:  2,
			status:    http.StatusServiceUnavailable,
			wantCalls: 3,
		}, {
			desc:      "gives up after retries",
			failures:  5,
			status:    http.StatusInternalServerError,
			wantCalls: 3,
			wantErr:   true,
		}, {
			desc:      "client errors are permanent",
			failures:  1,
			status:    http.StatusUnprocessableEntity,
			wantCalls: 1,
			wantErr:   true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			calls := 0
			d := mustDigest(t, image)
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				if calls <= test.failures {
					http.Error(w, "nope", test.status)
					return
				}
				json.NewEncoder(w).Encode(api.InspectResponse{ImageSHA256: d, Record: testRecord()})
			}))
			defer ts.Close()

			_, err := newClient(t, ts).Inspect(context.Background(), "fw.bin", "", image)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Inspect: got err %v, want err %t", err, test.wantErr)
			}
			var he client.HTTPError
			if test.wantErr && (!errors.As(err, &he) || he.Code != test.status) {
				t.Errorf("Inspect: got err %v, want HTTP %d", err, test.status)
			}
			if calls != test.wantCalls {
				t.Errorf("got %d calls, want %d", calls, test.wantCalls)
			}
		})
	}
}

func TestGetRecord(t *testing.T) {
	d := mustDigest(t, image)
	for _, test := range []struct {
		desc         string
		status       int
		body         string
		want         *api.Record
		wantNotFound bool
		wantErr      bool
	}{
		{
			desc:   "found",
			status: http.StatusOK,
			body:   `{"Container":"hex","License":"TUlU"}`,
			want:   &api.Record{Container: api.ContainerHex, License: []byte("MIT")},
		}, {
			desc:         "not found",
			status:       http.StatusNotFound,
			wantNotFound: true,
			wantErr:      true,
		}, {
			desc:    "garbage",
			status:  http.StatusOK,
			body:    "garbage",
			wantErr: true,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if want := fmt.Sprintf("/%s/%s", api.HTTPGetRecord, d); r.URL.Path != want {
					t.Fatalf("Got unexpected HTTP request on %q, want %q", r.URL.Path, want)
				}
				w.WriteHeader(test.status)
				fmt.Fprint(w, test.body)
			}))
			defer ts.Close()

			got, err := newClient(t, ts).GetRecord(context.Background(), d)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("GetRecord: got err %v, want err %t", err, test.wantErr)
			}
			if got, want := errors.Is(err, api.ErrNotFound), test.wantNotFound; got != want {
				t.Errorf("errors.Is(%v, ErrNotFound) = %t, want %t", err, got, want)
			}
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("record diff: %s", diff)
			}
		})
	}
}
