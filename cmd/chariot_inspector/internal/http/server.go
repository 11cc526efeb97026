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

//go:generate mockgen -source=server.go -destination=mock_store.go -package=http

// Package http contains private implementation details for the metadata
// inspector server.
package http

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/detect"
	"github.com/transparency-dev/chariotmeta/internal/trailer"
	"golang.org/x/mod/sumdb/note"
)

// DefaultMaxImageSize bounds the size of an uploaded image.
const DefaultMaxImageSize = 64 << 20

// Store is the interface to the Content Addressable Store for decoded records.
type Store interface {
	// Store puts the record under the key.
	Store([]byte, []byte) error

	// Retrieve gets a record that was previously stored.
	// Must return an error wrapping api.ErrNotFound if no such record exists.
	Retrieve([]byte) ([]byte, error)
}

// Server is the core state & handler implementation of the inspector.
type Server struct {
	store  Store
	signer note.Signer

	// MaxImageSize is the largest image accepted by the inspect handler.
	MaxImageSize int64
}

// NewServer creates a new server that stores records in the given store.
// If signer is non-nil, responses carry a note signed over the record statement.
func NewServer(store Store, signer note.Signer) *Server {
	return &Server{
		store:        store,
		signer:       signer,
		MaxImageSize: DefaultMaxImageSize,
	}
}

// inspect handles requests to decode the metadata of a firmware image.
// It expects a mime/multipart POST with the image in a part named "image".
// An optional "format" query parameter overrides content sniffing.
//
// curl -i -X POST -F 'image=@firmware.hex' localhost:8000/chariot/v0/inspect?format=hex
func (s *Server) inspect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxImageSize)
	image, err := parseInspectRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse request: %q", err.Error()), http.StatusBadRequest)
		return
	}

	c, err := detect.Container(r.URL.Query().Get("format"), image)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := detect.Decode(image, c, trailer.Options{Fields: api.AllFields()})
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to decode %s metadata: %v", c, err), http.StatusUnprocessableEntity)
		return
	}

	h := sha256.Sum256(image)
	resp := api.InspectResponse{Record: *rec}
	if resp.ImageSHA256, err = api.DigestFromBytes(h[:]); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	glog.V(1).Infof("Decoded %s metadata for image %s", c, resp.ImageSHA256)

	js, err := json.Marshal(resp.Record)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.store.Store(h[:], js); err != nil {
		http.Error(w, fmt.Sprintf("failed to store record: %v", err), http.StatusInternalServerError)
		return
	}

	if s.signer != nil {
		text, err := api.Statement(resp.ImageSHA256, resp.Record)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if resp.Note, err = note.Sign(&note.Note{Text: string(text)}, s.signer); err != nil {
			http.Error(w, fmt.Sprintf("failed to sign statement: %v", err), http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, resp)
}

// parseInspectRequest returns the bytes of the image part.
func parseInspectRequest(r *http.Request) ([]byte, error) {
	h := r.Header["Content-Type"]
	if len(h) == 0 {
		return nil, errors.New("no content-type header")
	}

	mediaType, mediaParams, err := mime.ParseMediaType(h[0])
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, errors.New("expecting mime multipart body")
	}
	boundary := mediaParams["boundary"]
	if len(boundary) == 0 {
		return nil, errors.New("invalid mime multipart header - no boundary specified")
	}
	mr := multipart.NewReader(r.Body, boundary)

	for {
		p, err := mr.NextPart()
		if err != nil {
			return nil, fmt.Errorf("failed to find %q part in request body: %w", api.InspectImagePart, err)
		}
		if p.FormName() != api.InspectImagePart {
			continue
		}
		image, err := ioutil.ReadAll(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read body of image: %w", err)
		}
		return image, nil
	}
}

// getRecord returns a record stored in the CAS.
func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	d, err := api.ParseDigest([]byte(mux.Vars(r)["hash"]))
	if err != nil {
		http.Error(w, fmt.Sprintf("hash should be 64 hex digits (%q)", err), http.StatusBadRequest)
		return
	}

	js, err := s.store.Retrieve(d.Bytes())
	if err != nil {
		http.Error(w, err.Error(), httpStatusForErr(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(js)
}

// httpStatusForErr maps errors to HTTP status codes.
func httpStatusForErr(e error) int {
	switch {
	case e == nil:
		return http.StatusOK
	case errors.Is(e, api.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RegisterHandlers registers HTTP handlers for the inspector endpoints.
func (s *Server) RegisterHandlers(r *mux.Router) {
	r.HandleFunc(fmt.Sprintf("/%s", api.HTTPInspect), s.inspect).Methods("POST")
	r.HandleFunc(fmt.Sprintf("/%s/{hash}", api.HTTPGetRecord), s.getRecord).Methods("GET")
}
