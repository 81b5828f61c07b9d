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

// Package heif reads HEIF containers, as found in Apple HEIC/HEVC images.
// This package does not decode images; it locates and reads embedded
// metadata items and maps their payload offsets back to file addresses.
//
// Methods on File should not be called concurrently.
package heif

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/trevormaggs/heifpatch/bmff"
)

// BoxMeta collects the typed children of the meta box.
type BoxMeta struct {
	FileType      *bmff.FileTypeBox
	Handler       *bmff.HandlerBox
	PrimaryItem   *bmff.PrimaryItemBox
	ItemInfo      *bmff.ItemInfoBox
	Properties    *bmff.Box // the iprp box, children intact
	ItemLocation  *bmff.ItemLocationBox
	ItemData      *bmff.ItemDataBox
	ItemReference *bmff.ItemReferenceBox

	idatBox *bmff.Box // for mapping idat-relative extents to file addresses
}

// File represents a parsed HEIF file.
type File struct {
	ra   io.ReaderAt
	size int64
	tree *bmff.Tree
	meta BoxMeta
	log  *logrus.Logger

	owned *os.File // non-nil when opened via OpenFile
}

// Open parses the first size bytes of ra into a box tree. A malformed box
// stops top-level parsing but preserves everything parsed before it; Open
// fails only when no usable meta box was found.
func Open(ra io.ReaderAt, size int64) (*File, error) {
	return open(ra, size, nil)
}

// OpenFile opens path read-only and parses it. The caller must Close the
// returned File to release the handle.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	hf, err := open(f, fi.Size(), nil)
	if err != nil {
		f.Close()
		return nil, err
	}
	hf.owned = f
	return hf, nil
}

func open(ra io.ReaderAt, size int64, log *logrus.Logger) (*File, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cur := bmff.NewCursor(ra, size)
	tree, parseErr := bmff.ParseWithOptions(cur, bmff.Options{Log: log})

	f := &File{ra: ra, size: size, tree: tree, log: log}
	f.collectMeta()
	if f.metaBox() == nil {
		if parseErr != nil {
			return nil, parseErr
		}
		return nil, ErrNoMeta
	}
	if parseErr != nil {
		log.WithField("error", parseErr).Warn("parsed partial box tree")
	}
	return f, nil
}

// Close releases the file handle when the File was opened via OpenFile.
func (f *File) Close() error {
	if f.owned == nil {
		return nil
	}
	err := f.owned.Close()
	f.owned = nil
	return err
}

// Tree exposes the parsed box tree for hierarchy queries.
func (f *File) Tree() *bmff.Tree { return f.tree }

// Meta exposes the typed meta-box children.
func (f *File) Meta() *BoxMeta { return &f.meta }

// Size returns the byte length of the underlying source.
func (f *File) Size() int64 { return f.size }

func (f *File) metaBox() *bmff.Box {
	return f.tree.FirstBox(bmff.TypeMeta)
}

func (f *File) collectMeta() {
	if ftyp := f.tree.FirstBox(bmff.TypeFtyp); ftyp != nil {
		f.meta.FileType, _ = ftyp.Payload.(*bmff.FileTypeBox)
	}
	mb := f.metaBox()
	if mb == nil {
		return
	}
	for _, c := range mb.Children {
		switch v := c.Payload.(type) {
		case *bmff.HandlerBox:
			f.meta.Handler = v
		case *bmff.PrimaryItemBox:
			f.meta.PrimaryItem = v
		case *bmff.ItemInfoBox:
			f.meta.ItemInfo = v
		case *bmff.ItemLocationBox:
			f.meta.ItemLocation = v
		case *bmff.ItemDataBox:
			f.meta.ItemData = v
			f.meta.idatBox = c
		case *bmff.ItemReferenceBox:
			f.meta.ItemReference = v
		default:
			if c.Type == bmff.TypeIprp {
				f.meta.Properties = c
			}
		}
	}
}

// PrimaryItemID returns the container's designated primary item, or 0 when
// no pitm box is present.
func (f *File) PrimaryItemID() uint32 {
	if f.meta.PrimaryItem == nil {
		return 0
	}
	return f.meta.PrimaryItem.ItemID
}

// ItemInfoByID returns the iinf entry for an item, or nil.
func (f *File) ItemInfoByID(id uint32) *bmff.ItemInfoEntry {
	if f.meta.ItemInfo == nil {
		return nil
	}
	for _, ie := range f.meta.ItemInfo.Entries {
		if ie.ItemID == id {
			return ie
		}
	}
	return nil
}

// ItemProperties returns the property boxes associated with an item via the
// first ipma whose entries mention it.
func (f *File) ItemProperties(id uint32) []*bmff.Box {
	if f.meta.Properties == nil || len(f.meta.Properties.Children) == 0 {
		return nil
	}
	var ipco *bmff.Box
	for _, c := range f.meta.Properties.Children {
		if c.Type == bmff.TypeIpco {
			ipco = c
			break
		}
	}
	if ipco == nil {
		return nil
	}
	var props []*bmff.Box
	for _, c := range f.meta.Properties.Children {
		ipa, ok := c.Payload.(*bmff.ItemPropertyAssociation)
		if !ok {
			continue
		}
		for _, ent := range ipa.Entries {
			if ent.ItemID != id {
				continue
			}
			for _, assoc := range ent.Associations {
				if assoc.Index != 0 && int(assoc.Index) <= len(ipco.Children) {
					props = append(props, ipco.Children[assoc.Index-1])
				}
			}
		}
		if len(props) > 0 {
			break
		}
	}
	return props
}

// PrimaryDimensions returns the primary item's pixel dimensions from its
// ispe property, corrected for irot rotations.
func (f *File) PrimaryDimensions() (width, height int, ok bool) {
	id := f.PrimaryItemID()
	if id == 0 {
		return 0, 0, false
	}
	rotations := 0
	for _, p := range f.ItemProperties(id) {
		switch v := p.Payload.(type) {
		case *bmff.ImageSpatialExtents:
			width, height, ok = int(v.Width), int(v.Height), true
		case *bmff.ImageRotation:
			rotations = int(v.Angle)
		}
	}
	if !ok {
		return 0, 0, false
	}
	if rotations%2 == 1 {
		width, height = height, width
	}
	return width, height, true
}

func (f *File) String() string {
	brand := "?"
	if f.meta.FileType != nil {
		brand = f.meta.FileType.MajorBrand
	}
	return fmt.Sprintf("heif.File{brand=%s size=%d}", brand, f.size)
}
