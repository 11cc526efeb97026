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

// Package impl is the implementation of a util to print the provenance
// metadata embedded in firmware images.
package impl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/api"
	"github.com/transparency-dev/chariotmeta/internal/chariot"
	"github.com/transparency-dev/chariotmeta/internal/detect"
	"github.com/transparency-dev/chariotmeta/internal/trailer"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ExtractOpts encapsulates extract tool parameters.
type ExtractOpts struct {
	// Format is one of "auto", "elf", "bin" or "hex".
	Format string
	// Files are the images to decode.
	Files []string
	// Fields selects what is printed.
	Fields api.Selection

	// Output is the file fields are written to. Stdout is used if empty.
	Output string
	Stdout io.Writer

	// The following side outputs need exactly one image.
	SCAOutput       string
	ExtrabootOutput string
	CutOutput       string
	RawOutput       string

	// MaxConcurrent bounds how many images are decoded at once.
	MaxConcurrent int
}

// decoded is the result of decoding one image.
type decoded struct {
	path      string
	data      []byte
	record    *api.Record
	extraboot *api.Extraboot
	layout    *trailer.Layout
}

// Main decodes every image in opts.Files and writes the selected fields.
func Main(ctx context.Context, opts ExtractOpts) error {
	if len(opts.Files) == 0 {
		return errors.New("no image files given")
	}
	single := opts.SCAOutput != "" || opts.ExtrabootOutput != "" || opts.CutOutput != "" || opts.RawOutput != ""
	if single && len(opts.Files) != 1 {
		return fmt.Errorf("side outputs need exactly one image, got %d", len(opts.Files))
	}

	var sca io.Writer
	if opts.SCAOutput != "" {
		f, err := os.Create(opts.SCAOutput)
		if err != nil {
			return fmt.Errorf("failed to create static analysis output: %w", err)
		}
		defer f.Close()
		sca = f
	}

	n := opts.MaxConcurrent
	if n < 1 {
		n = 1
	}
	sem := semaphore.NewWeighted(int64(n))
	results := make([]*decoded, len(opts.Files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range opts.Files {
		i, path := i, path
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			d, err := decodeFile(path, opts.Format, opts.Fields, sca)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := opts.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	for _, d := range results {
		if len(results) > 1 {
			if _, err := fmt.Fprintf(w, "# %s\n", d.path); err != nil {
				return err
			}
		}
		if err := writeRecord(w, d, opts.Fields, sca != nil); err != nil {
			return fmt.Errorf("failed to write fields of %s: %w", d.path, err)
		}
	}
	if single {
		return writeSideOutputs(results[0], opts)
	}
	return nil
}

func decodeFile(path, format string, sel api.Selection, sca io.Writer) (*decoded, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	c, err := detect.Container(format, data)
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("Decoding %s as %s (%d bytes)", path, c, len(data))
	d := &decoded{path: path, data: data}

	switch c {
	case api.ContainerELF:
		m, err := chariot.Open(data)
		if err != nil {
			return nil, err
		}
		if d.record, err = m.RecordFields(sel); err != nil {
			return nil, err
		}
		if sel.Extraboot && d.record.ExtrabootOffset != nil && d.record.ExtrabootSize != nil {
			if d.extraboot, err = m.Extraboot(); err != nil {
				return nil, fmt.Errorf("extraboot: %w", err)
			}
		}
		if sca != nil && sel.StaticAnalysis && d.record.StaticAnalysis != nil {
			if _, err := sca.Write(d.record.StaticAnalysis); err != nil {
				return nil, fmt.Errorf("failed to write static analysis: %w", err)
			}
		}
	case api.ContainerBin, api.ContainerHex:
		locate, decode := trailer.LocateBin, trailer.DecodeBin
		if c == api.ContainerHex {
			locate, decode = trailer.LocateHex, trailer.DecodeHex
		}
		l, err := locate(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		d.layout = &l
		if d.record, err = decode(bytes.NewReader(data), trailer.Options{Fields: sel, StaticAnalysis: sca}); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func writeSideOutputs(d *decoded, opts ExtractOpts) error {
	if opts.ExtrabootOutput != "" {
		if d.extraboot == nil {
			return fmt.Errorf("%s: no extraboot image", d.path)
		}
		if err := ioutil.WriteFile(opts.ExtrabootOutput, d.extraboot.Content, 0644); err != nil {
			return fmt.Errorf("failed to write extraboot image: %w", err)
		}
	}
	if opts.CutOutput == "" && opts.RawOutput == "" {
		return nil
	}
	if d.layout == nil {
		return fmt.Errorf("%s: cut and raw outputs need a bin or hex image", d.path)
	}
	if opts.CutOutput != "" {
		fw := d.data[:d.layout.FirmwareEnd]
		if d.record.Container == api.ContainerHex {
			fw = append(append([]byte{}, fw...), trailer.Sentinel+"\n"...)
		}
		if err := ioutil.WriteFile(opts.CutOutput, fw, 0644); err != nil {
			return fmt.Errorf("failed to write firmware: %w", err)
		}
	}
	if opts.RawOutput != "" {
		if err := ioutil.WriteFile(opts.RawOutput, d.data[d.layout.MetadataStart:], 0644); err != nil {
			return fmt.Errorf("failed to write raw metadata: %w", err)
		}
	}
	return nil
}
