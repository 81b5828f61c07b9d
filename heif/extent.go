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

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/trevormaggs/heifpatch/bmff"
)

// maxItemSize caps a single declared extent length for sanity.
const maxItemSize = 200 << 20

// checkExtent verifies that [off, off+length) fits inside a source of bound
// bytes. The comparison is phrased to stay correct when off+length would
// wrap uint64, a real hazard with 8-byte iloc fields from hostile files.
func checkExtent(off, length, bound uint64) error {
	if off > bound || length > bound-off {
		return ErrExtentOutOfBounds
	}
	return nil
}

func (f *File) locationOf(itemID uint32) (*bmff.ItemLocationEntry, error) {
	if f.meta.ItemLocation == nil {
		return nil, ErrMissingItemLocation
	}
	ent := f.meta.ItemLocation.EntryByID(itemID)
	if ent == nil {
		return nil, fmt.Errorf("item %d: %w", itemID, ErrMissingItemLocation)
	}
	return ent, nil
}

// RawItemPayload concatenates the item's extents in declaration order into
// one buffer, without category post-processing. Logical offsets accepted by
// ResolvePhysical index into this buffer.
func (f *File) RawItemPayload(itemID uint32) ([]byte, error) {
	ent, err := f.locationOf(itemID)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, ext := range ent.Extents {
		switch ent.ConstructionMethod {
		case bmff.MethodIdatRelative:
			if f.meta.ItemData == nil {
				return nil, fmt.Errorf("item %d is idat-relative but the file has no idat box: %w", itemID, ErrExtentOutOfBounds)
			}
			idat := f.meta.ItemData.Data
			if err := checkExtent(ext.Offset, ext.Length, uint64(len(idat))); err != nil {
				return nil, fmt.Errorf("idat extent [%d,+%d) exceeds payload length %d: %w",
					ext.Offset, ext.Length, len(idat), err)
			}
			out = append(out, idat[ext.Offset:ext.Offset+ext.Length]...)
		case bmff.MethodFileOffset:
			if ext.Length > maxItemSize {
				return nil, fmt.Errorf("extent length %d exceeds sanity cap: %w", ext.Length, ErrExtentOutOfBounds)
			}
			off := ent.BaseOffset + ext.Offset
			if off < ent.BaseOffset || checkExtent(off, ext.Length, uint64(f.size)) != nil {
				return nil, fmt.Errorf("extent [%d,+%d) exceeds file size %d: %w",
					off, ext.Length, f.size, ErrExtentOutOfBounds)
			}
			pos := int64(off)
			buf := make([]byte, ext.Length)
			if _, err := f.ra.ReadAt(buf, pos); err != nil {
				return nil, err
			}
			out = append(out, buf...)
		default:
			return nil, fmt.Errorf("construction method %d: %w", ent.ConstructionMethod, ErrUnsupportedConstruction)
		}
	}
	return out, nil
}

// ExifTIFFStart returns the offset of the TIFF header within a raw Exif item
// payload: the first 4 bytes are a big-endian offset field, and the header
// begins that many bytes after the field.
func ExifTIFFStart(raw []byte) (int, error) {
	if len(raw) < 4 {
		return 0, ErrShortExifHeader
	}
	off := int(binary.BigEndian.Uint32(raw[:4]))
	if len(raw) < off+4 {
		return 0, fmt.Errorf("header offset %d in payload of %d bytes: %w", off, len(raw), ErrShortExifHeader)
	}
	return off + 4, nil
}

// ExifPayload returns the located Exif item's bytes starting exactly at the
// TIFF header, with the HEIF header-offset field stripped.
func (f *File) ExifPayload() ([]byte, error) {
	id, ok := f.FindMetadataItem(Exif)
	if !ok {
		return nil, ErrNoMetadataItem
	}
	raw, err := f.RawItemPayload(id)
	if err != nil {
		return nil, err
	}
	start, err := ExifTIFFStart(raw)
	if err != nil {
		return nil, err
	}
	return raw[start:], nil
}

// XMPPayload returns the located XMP packet as trimmed UTF-8 text.
func (f *File) XMPPayload() (string, error) {
	id, ok := f.FindMetadataItem(XMP)
	if !ok {
		return "", ErrNoMetadataItem
	}
	raw, err := f.RawItemPayload(id)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", ErrUnsupportedEncoding
	}
	return strings.TrimSpace(string(raw)), nil
}

// ResolvePhysical maps a logical offset within an item's concatenated
// payload (as produced by RawItemPayload, before any Exif header stripping)
// back to an absolute file offset. It also reports how many contiguous bytes
// remain in the located extent, so a write crossing an extent boundary can
// be split.
//
// The extent walk here must mirror RawItemPayload exactly; any divergence
// would silently patch the wrong bytes.
func (f *File) ResolvePhysical(itemID uint32, logical int64) (phys int64, contiguous int64, err error) {
	if logical < 0 {
		return 0, 0, fmt.Errorf("negative logical offset %d: %w", logical, ErrUnresolvedAddress)
	}
	ent, err := f.locationOf(itemID)
	if err != nil {
		return 0, 0, err
	}
	var running int64
	for _, ext := range ent.Extents {
		length := int64(ext.Length)
		if logical < running+length {
			within := logical - running
			switch ent.ConstructionMethod {
			case bmff.MethodFileOffset:
				// Same bounds rule as the read path: an extent the reader
				// rejects must not resolve to an address either.
				off := ent.BaseOffset + ext.Offset
				if off < ent.BaseOffset || checkExtent(off, ext.Length, uint64(f.size)) != nil {
					return 0, 0, fmt.Errorf("extent [%d,+%d) exceeds file size %d: %w",
						off, ext.Length, f.size, ErrExtentOutOfBounds)
				}
				phys = int64(off) + within
			case bmff.MethodIdatRelative:
				if f.meta.idatBox == nil || f.meta.ItemData == nil {
					return 0, 0, fmt.Errorf("item %d is idat-relative but the file has no idat box: %w", itemID, ErrUnresolvedAddress)
				}
				if err := checkExtent(ext.Offset, ext.Length, uint64(len(f.meta.ItemData.Data))); err != nil {
					return 0, 0, fmt.Errorf("idat extent [%d,+%d) exceeds payload length %d: %w",
						ext.Offset, ext.Length, len(f.meta.ItemData.Data), err)
				}
				phys = f.meta.idatBox.BodyStart() + int64(ext.Offset) + within
			default:
				return 0, 0, fmt.Errorf("construction method %d: %w", ent.ConstructionMethod, ErrUnsupportedConstruction)
			}
			return phys, length - within, nil
		}
		running += length
	}
	return 0, 0, fmt.Errorf("logical offset %d outside item %d payload of %d bytes: %w",
		logical, itemID, running, ErrUnresolvedAddress)
}
