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

// Package cas contains a Content Addressable Store for decoded metadata
// records, keyed by the hash of the image they were decoded from.
package cas

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/transparency-dev/chariotmeta/api"
)

// Supported database drivers.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// RecordStorage is a CAS intended for storing JSON metadata records keyed
// by their image hash, using a SQL Database as its backing store.
type RecordStorage struct {
	db     *sql.DB
	insert string
}

// NewRecordStorage creates a new CAS that uses the given DB, opened with
// the named driver, as a backend. The DB will be initialized if needed.
func NewRecordStorage(db *sql.DB, driver string) (*RecordStorage, error) {
	rs := &RecordStorage{db: db}
	switch driver {
	case DriverSQLite:
		rs.insert = "INSERT OR IGNORE INTO records (image_hash, record) VALUES (?, ?)"
	case DriverMySQL:
		rs.insert = "INSERT IGNORE INTO records (image_hash, record) VALUES (?, ?)"
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	return rs, rs.init()
}

// init creates the database tables if needed.
func (rs *RecordStorage) init() error {
	_, err := rs.db.Exec("CREATE TABLE IF NOT EXISTS records (image_hash VARBINARY(64) PRIMARY KEY, record MEDIUMBLOB)")
	return err
}

// Store stores a record under the given key (which should be a hash of the
// image it came from). If there was an existing value under the key then it
// will not be updated.
func (rs *RecordStorage) Store(key, record []byte) error {
	_, err := rs.db.Exec(rs.insert, key, record)
	return err
}

// Retrieve gets a record that was previously stored. It returns an error
// wrapping api.ErrNotFound if there is no such record.
func (rs *RecordStorage) Retrieve(key []byte) ([]byte, error) {
	var res []byte
	err := rs.db.QueryRow("SELECT record FROM records WHERE image_hash=?", key).Scan(&res)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %x: %w", key, api.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
