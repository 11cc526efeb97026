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

package api

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// StatementOrigin is the first line of every record statement.
const StatementOrigin = "chariotmeta/v0"

// Statement returns the canonical text which the inspector signs for a
// record decoded from an image with the given hash. The text commits to the
// JSON form of the record, so it is suitable as the body of a signed note.
func Statement(image Digest, r Record) ([]byte, error) {
	js, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return []byte(fmt.Sprintf("%s\nimage %s\ncontainer %s\nrecord %x\n", StatementOrigin, image, r.Container, sha256.Sum256(js))), nil
}
