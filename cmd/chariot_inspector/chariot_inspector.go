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

// This package is the entrypoint for the metadata inspector server.
//
// The inspector accepts firmware images over HTTP, decodes the embedded
// metadata and keeps the resulting records in a SQL database keyed by the
// image hash.
//
// Usage:
//   go run ./cmd/chariot_inspector/ --logtostderr --db_dsn=/tmp/chariot.db
package main

import (
	"context"
	"flag"
	"io/ioutil"
	"os"
	"os/signal"
	"strings"

	"github.com/golang/glog"
	"github.com/transparency-dev/chariotmeta/cmd/chariot_inspector/impl"
	"golang.org/x/mod/sumdb/note"
)

var (
	listenAddr = flag.String("listen", ":8000", "address:port to listen for requests on")

	dbDriver = flag.String("db_driver", "sqlite3", "SQL driver to store records with, one of [sqlite3, mysql]")
	dbDSN    = flag.String("db_dsn", "", "Data source name for the record database, e.g. /tmp/chariot.db or user:pass@tcp(host)/chariot")

	signerKeyFile = flag.String("signer_key_file", "", "Optional file holding a note signer key used to sign inspection statements")
	maxImageSize  = flag.Int64("max_image_size", 64<<20, "Largest image accepted for inspection, in bytes")
)

func main() {
	flag.Parse()

	var signer note.Signer
	if *signerKeyFile != "" {
		raw, err := ioutil.ReadFile(*signerKeyFile)
		if err != nil {
			glog.Exitf("Failed to read signer key: %v", err)
		}
		if signer, err = note.NewSigner(strings.TrimSpace(string(raw))); err != nil {
			glog.Exitf("Failed to create signer: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := impl.Main(ctx, impl.InspectorOpts{
		ListenAddr:   *listenAddr,
		DBDriver:     *dbDriver,
		DBDSN:        *dbDSN,
		Signer:       signer,
		MaxImageSize: *maxImageSize,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
