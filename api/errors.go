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

import "errors"

// Errors returned by the decoders. Callers should test for them with
// errors.Is, as they are always wrapped with details of the failing field,
// section or record.
var (
	// ErrTooShort means the input is shorter than a fixed structure requires.
	ErrTooShort = errors.New("input too short")
	// ErrOutOfRange means a computed offset+size exceeds buffer or section bounds.
	ErrOutOfRange = errors.New("out of range")
	// ErrBadStructureSize means an internal layout assumption was violated.
	ErrBadStructureSize = errors.New("bad structure size")
	// ErrNotFound means an expected section, symbol or footer is absent.
	ErrNotFound = errors.New("not found")
	// ErrChecksumMismatch means a hex record failed its checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrMalformedContainer means the container framing is invalid.
	ErrMalformedContainer = errors.New("malformed container")
)
