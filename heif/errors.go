/*
Copyright 2018 The go4 Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package heif

import "errors"

var (
	// ErrNoMeta is returned when the container has no meta box.
	ErrNoMeta = errors.New("heif: no meta box")

	// ErrNoMetadataItem is returned when no item carries the requested
	// metadata category.
	ErrNoMetadataItem = errors.New("heif: no metadata item")

	// ErrMissingItemLocation is returned when an item has no iloc entry.
	ErrMissingItemLocation = errors.New("heif: item has no location entry")

	// ErrExtentOutOfBounds is returned when an extent's byte range exceeds
	// its source (the file or the idat payload).
	ErrExtentOutOfBounds = errors.New("heif: extent out of bounds")

	// ErrUnsupportedConstruction is returned for construction method 2
	// (item-offset indirection), which is deliberately not implemented.
	ErrUnsupportedConstruction = errors.New("heif: unsupported construction method")

	// ErrUnresolvedAddress is returned when a logical payload offset lies
	// outside every extent of the item.
	ErrUnresolvedAddress = errors.New("heif: unresolved physical address")

	// ErrUnsupportedEncoding is returned for XMP payloads that are not
	// valid UTF-8.
	ErrUnsupportedEncoding = errors.New("heif: payload is not valid UTF-8")

	// ErrShortExifHeader is returned when an Exif payload is too short to
	// carry its TIFF-header offset field.
	ErrShortExifHeader = errors.New("heif: exif payload shorter than its header offset")
)
