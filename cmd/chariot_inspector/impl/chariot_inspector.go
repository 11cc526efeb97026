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

// Package impl is the implementation of the metadata inspector server.
package impl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	ih "github.com/transparency-dev/chariotmeta/cmd/chariot_inspector/internal/http"
	"github.com/transparency-dev/chariotmeta/internal/cas"
	"golang.org/x/mod/sumdb/note"
	"golang.org/x/sync/errgroup"

	_ "github.com/go-sql-driver/mysql" // Load drivers for mysql
	_ "github.com/mattn/go-sqlite3"    // Load drivers for sqlite3
)

// InspectorOpts encapsulates options for running an inspector.
type InspectorOpts struct {
	ListenAddr   string
	DBDriver     string
	DBDSN        string
	Signer       note.Signer
	MaxImageSize int64
}

// Main runs the inspector until ctx is done.
func Main(ctx context.Context, opts InspectorOpts) error {
	if len(opts.DBDSN) == 0 {
		return errors.New("database DSN is required")
	}

	glog.Infof("Connecting to %s DB at %q", opts.DBDriver, opts.DBDSN)
	db, err := sql.Open(opts.DBDriver, opts.DBDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer db.Close()
	store, err := cas.NewRecordStorage(db, opts.DBDriver)
	if err != nil {
		return fmt.Errorf("failed to connect CAS to DB: %w", err)
	}

	srv := ih.NewServer(store, opts.Signer)
	if opts.MaxImageSize > 0 {
		srv.MaxImageSize = opts.MaxImageSize
	}
	r := mux.NewRouter()
	srv.RegisterHandlers(r)
	hServer := &http.Server{
		Addr:        opts.ListenAddr,
		Handler:     r,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	glog.Infof("Starting inspector server on %s...", opts.ListenAddr)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := hServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		glog.Info("Server shutting down")
		return hServer.Shutdown(context.Background())
	})
	return g.Wait()
}
