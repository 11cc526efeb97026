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

// Package trailer decodes metadata trailers appended to raw binary and
// Intel-HEX style firmware images.
//
// Both containers carry the same field grammar:
//
//	:chariot_md:
//	:sha256:  <32 bytes>
//	:fmt:     <len> <format>
//	[:add:    <len> <data> : <len> <mime>]
//	:version: <32 bytes>
//	[:bcpath: <len> <path>]
//	[:lic:    <len> <license>]
//	[:soft:   <len> <software id>]
//	[:sca:    <len> <results> : <len> <mime>]
//	::
//
// followed by a container specific footer. Lengths are 32-bit big-endian.
// The bin container stores the grammar as plain bytes; the hex container
// splits it into checksummed hex records.
package trailer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/api"
)

const (
	magicTag   = ":chariot_md:"
	sha256Tag  = ":sha256:"
	formatTag  = ":fmt:"
	versionLen = 32

	// maxTagLen is the longest tag name accepted between colons.
	maxTagLen = 99
	chunkSize = 4096
)

// Field tags, in the only order they may appear.
const (
	tagAdd     = "add"
	tagVersion = "version"
	tagBCPath  = "bcpath"
	tagLicense = "lic"
	tagSoft    = "soft"
	tagSCA     = "sca"
)

var tagRank = map[string]int{
	tagAdd:     1,
	tagVersion: 2,
	tagBCPath:  3,
	tagLicense: 4,
	tagSoft:    5,
	tagSCA:     6,
}

// Options control what a trailer decode keeps.
type Options struct {
	// Fields selects the fields copied into the record. The zero value
	// selects every field. Unselected payloads are read and discarded.
	Fields api.Selection
	// StaticAnalysis, if set, receives the static analysis payload instead
	// of the record. Bytes may already have been written when a later part
	// of the trailer turns out to be malformed.
	StaticAnalysis io.Writer
	// KeepAdditionalType keeps the MIME type of the additional blob, which
	// is otherwise skipped.
	KeepAdditionalType bool
}

func (o Options) selection() api.Selection {
	if o.Fields.Empty() {
		return api.AllFields()
	}
	return o.Fields
}

// parser walks the field grammar over a Source.
type parser struct {
	src  Source
	opts Options
	sel  api.Selection
	buf  []byte
}

// decodeFields reads the grammar up to and including the "::" terminator.
func decodeFields(src Source, opts Options) (*api.Record, error) {
	p := &parser{src: src, opts: opts, sel: opts.selection(), buf: make([]byte, chunkSize)}
	r := &api.Record{}

	for _, t := range []string{magicTag, sha256Tag} {
		if err := p.literal(t); err != nil {
			return nil, err
		}
	}
	sha := make([]byte, api.DigestSize)
	if err := p.src.ReadFull(sha); err != nil {
		return nil, fmt.Errorf("sha256: %w", err)
	}
	if p.sel.SHA256 {
		d, err := api.DigestFromBytes(sha)
		if err != nil {
			return nil, err
		}
		r.MainbootSHA256 = &d
	}
	if err := p.literal(formatTag); err != nil {
		return nil, err
	}
	var err error
	if r.Format, err = p.payload("fmt", p.sel.Format, nil); err != nil {
		return nil, err
	}

	rank, seenVersion := 0, false
	for {
		tag, err := p.tag()
		if err != nil {
			return nil, err
		}
		if tag == "" {
			break
		}
		glog.V(2).Infof("trailer field %q", tag)
		tr, ok := tagRank[tag]
		if !ok {
			return nil, fmt.Errorf("unknown tag %q: %w", tag, api.ErrMalformedContainer)
		}
		if tr <= rank {
			return nil, fmt.Errorf("tag %q out of order: %w", tag, api.ErrMalformedContainer)
		}
		if tr > tagRank[tagVersion] && !seenVersion {
			return nil, fmt.Errorf("tag %q before version: %w", tag, api.ErrMalformedContainer)
		}
		rank = tr

		switch tag {
		case tagAdd:
			if r.Additional, err = p.payload(tag, p.sel.Additional, nil); err != nil {
				return nil, err
			}
			if r.AdditionalType, err = p.typePayload(tag, p.sel.Additional && p.opts.KeepAdditionalType); err != nil {
				return nil, err
			}
		case tagVersion:
			v := make([]byte, versionLen)
			if err := p.src.ReadFull(v); err != nil {
				return nil, fmt.Errorf("version: %w", err)
			}
			if p.sel.Version {
				r.Version = v
			}
			seenVersion = true
		case tagBCPath:
			if r.FirmwarePath, err = p.payload(tag, p.sel.FirmwarePath, nil); err != nil {
				return nil, err
			}
		case tagLicense:
			if r.License, err = p.payload(tag, p.sel.License, nil); err != nil {
				return nil, err
			}
		case tagSoft:
			if r.SoftwareID, err = p.payload(tag, p.sel.SoftwareID, nil); err != nil {
				return nil, err
			}
		case tagSCA:
			var w io.Writer
			if p.sel.StaticAnalysis {
				w = p.opts.StaticAnalysis
			}
			if r.StaticAnalysis, err = p.payload(tag, p.sel.StaticAnalysis && w == nil, w); err != nil {
				return nil, err
			}
			if r.StaticAnalysisType, err = p.typePayload(tag, p.sel.StaticAnalysis); err != nil {
				return nil, err
			}
		}
	}
	if !seenVersion {
		return nil, fmt.Errorf("no version field: %w", api.ErrMalformedContainer)
	}
	return r, nil
}

// literal consumes exactly s.
func (p *parser) literal(s string) error {
	b := p.buf[:len(s)]
	if err := p.src.ReadFull(b); err != nil {
		return fmt.Errorf("reading %q: %w", s, err)
	}
	if string(b) != s {
		return fmt.Errorf("got %q, want %q: %w", b, s, api.ErrMalformedContainer)
	}
	return nil
}

// tag reads ":name:" and returns name, which is empty for the terminator.
func (p *parser) tag() (string, error) {
	if err := p.literal(":"); err != nil {
		return "", err
	}
	var c [1]byte
	name := make([]byte, 0, 16)
	for {
		if err := p.src.ReadFull(c[:]); err != nil {
			return "", fmt.Errorf("reading tag: %w", err)
		}
		if c[0] == ':' {
			return string(name), nil
		}
		if len(name) == maxTagLen {
			return "", fmt.Errorf("tag %q... longer than %d: %w", name[:16], maxTagLen, api.ErrMalformedContainer)
		}
		name = append(name, c[0])
	}
}

func (p *parser) u32() (uint32, error) {
	b := p.buf[:4]
	if err := p.src.ReadFull(b); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// payload reads a length prefixed payload. It is returned if keep is set,
// and copied to w if w is non-nil. The payload is read in chunks so a
// forged length costs no more memory than the bytes actually present.
func (p *parser) payload(name string, keep bool, w io.Writer) ([]byte, error) {
	n, err := p.u32()
	if err != nil {
		return nil, fmt.Errorf("%s length: %w", name, err)
	}
	var out []byte
	if keep {
		out = []byte{}
	}
	for rem := n; rem > 0; {
		c := uint32(len(p.buf))
		if rem < c {
			c = rem
		}
		b := p.buf[:c]
		if err := p.src.ReadFull(b); err != nil {
			return nil, fmt.Errorf("%s payload: %w", name, err)
		}
		if w != nil {
			if _, err := w.Write(b); err != nil {
				return nil, fmt.Errorf("failed to write %s payload: %w", name, err)
			}
		}
		if keep {
			out = append(out, b...)
		}
		rem -= c
	}
	return out, nil
}

// typePayload reads the ":" <len> <mime> suffix of the add and sca fields.
func (p *parser) typePayload(name string, keep bool) ([]byte, error) {
	if err := p.literal(":"); err != nil {
		return nil, fmt.Errorf("%s type: %w", name, err)
	}
	return p.payload(name+" type", keep, nil)
}
