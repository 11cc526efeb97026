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

const (
	// HTTPInspect is the path of the URL to submit an image for inspection.
	HTTPInspect = "chariot/v0/inspect"
	// HTTPGetRecord is the path of the URL to fetch a stored record by the
	// hex SHA-256 of its image.
	HTTPGetRecord = "chariot/v0/records"

	// InspectImagePart is the name of the multipart part carrying the image.
	InspectImagePart = "image"
)

// InspectResponse is returned by the inspector for a submitted image.
type InspectResponse struct {
	// ImageSHA256 is the SHA-256 of the submitted image, which is also the
	// key the record is stored under.
	ImageSHA256 Digest
	// Record is the decoded metadata.
	Record Record
	// Note is a signed note over the statement returned by Statement, or
	// empty if the inspector has no signing key.
	Note []byte
}
