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

// Package client contains a client for the metadata inspector service.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/api"
	"golang.org/x/mod/sumdb/note"
)

// HTTPError is returned when the inspector answers with a non-200 status.
type HTTPError struct {
	Code int
	Body string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// InspectorClient is an HTTP client for the inspector.
type InspectorClient struct {
	// URL is the base URL of the inspector.
	URL *url.URL
	// HTTPClient is used for requests, http.DefaultClient if nil.
	HTTPClient *http.Client
	// Verifier, if set, is used to check the signed note returned with each
	// inspection. Inspections without a valid note are rejected.
	Verifier note.Verifier
	// Retries bounds how many times a failed request is retried. Only
	// network errors and 5xx responses are retried.
	Retries uint64
	// BackOff paces retries, exponential if nil.
	BackOff backoff.BackOff
}

// Inspect uploads image, named name, and returns the inspector's response.
// format may be empty to have the inspector detect the container.
func (c InspectorClient) Inspect(ctx context.Context, name, format string, image []byte) (*api.InspectResponse, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	pw, err := mw.CreateFormFile(api.InspectImagePart, name)
	if err != nil {
		return nil, err
	}
	if _, err := pw.Write(image); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u, err := c.URL.Parse(api.HTTPInspect)
	if err != nil {
		return nil, err
	}
	if format != "" {
		u.RawQuery = url.Values{"format": {format}}.Encode()
	}
	raw, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp api.InspectResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if h := sha256.Sum256(image); !bytes.Equal(resp.ImageSHA256.Bytes(), h[:]) {
		return nil, fmt.Errorf("inspector hashed image as %s, want %x", resp.ImageSHA256, h)
	}
	if c.Verifier != nil {
		if err := verify(resp, c.Verifier); err != nil {
			return nil, err
		}
	}
	return &resp, nil
}

// verify checks that the response note is signed by v and states the
// returned record.
func verify(resp api.InspectResponse, v note.Verifier) error {
	n, err := note.Open(resp.Note, note.VerifierList(v))
	if err != nil {
		return fmt.Errorf("failed to verify note: %w", err)
	}
	want, err := api.Statement(resp.ImageSHA256, resp.Record)
	if err != nil {
		return err
	}
	if n.Text != string(want) {
		return fmt.Errorf("note states %q, want %q", n.Text, want)
	}
	return nil
}

// GetRecord fetches the stored record for the image with the given hash.
// It returns an error wrapping api.ErrNotFound if there is none.
func (c InspectorClient) GetRecord(ctx context.Context, image api.Digest) (*api.Record, error) {
	u, err := c.URL.Parse(fmt.Sprintf("%s/%s", api.HTTPGetRecord, image))
	if err != nil {
		return nil, err
	}
	raw, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	})
	var he HTTPError
	if errors.As(err, &he) && he.Code == http.StatusNotFound {
		return nil, fmt.Errorf("record for %s: %w", image, api.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var r api.Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &r, nil
}

// do runs the request built by newReq, retrying transient failures, and
// returns the body of the first 200 response.
func (c InspectorClient) do(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	bo := c.BackOff
	if bo == nil {
		bo = backoff.NewExponentialBackOff()
	}

	var body []byte
	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := hc.Do(req)
		if err != nil {
			glog.V(1).Infof("%s %s: %v", req.Method, req.URL, err)
			return err
		}
		defer resp.Body.Close()
		raw, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			he := HTTPError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
			glog.V(1).Infof("%s %s: %v", req.Method, req.URL, he)
			if resp.StatusCode < 500 {
				return backoff.Permanent(he)
			}
			return he
		}
		body = raw
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.Retries), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}
