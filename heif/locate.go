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
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trevormaggs/heifpatch/bmff"
)

// Category selects a metadata payload kind.
type Category int

const (
	Exif Category = iota
	XMP
)

func (c Category) String() string {
	if c == XMP {
		return "xmp"
	}
	return "exif"
}

// itemType returns the iinf item_type code expected for the category.
func (c Category) itemType() bmff.FourCC {
	if c == XMP {
		return bmff.Code("mime")
	}
	return bmff.Code("Exif")
}

// xmpContentType is the MIME content type identifying an XMP packet among
// "mime"-typed items.
const xmpContentType = "application/rdf+xml"

// FindMetadataItem resolves which item carries the given metadata category.
//
// The reference-validated path wins when present: a "cdsc" record whose
// targets include the primary item names a candidate, accepted if its iinf
// type (and, for XMP, content type) matches. Failing that, the first iinf
// entry of the matching item type is used. Both phases require a primary
// item and an iinf box.
func (f *File) FindMetadataItem(cat Category) (uint32, bool) {
	primary := f.PrimaryItemID()
	if primary == 0 || f.meta.ItemInfo == nil {
		return 0, false
	}

	if f.meta.ItemReference != nil {
		for _, rec := range f.meta.ItemReference.Records {
			if rec.Type != bmff.RefContentDescribes {
				continue
			}
			for _, to := range rec.ToItemIDs {
				if to != primary {
					continue
				}
				if f.itemMatches(rec.FromItemID, cat) {
					return rec.FromItemID, true
				}
			}
		}
	}

	// Duck-type fallback for encoders that emit no reference box; content
	// type is not consulted here.
	want := cat.itemType()
	for _, ie := range f.meta.ItemInfo.Entries {
		if ie.ItemType == want {
			return ie.ItemID, true
		}
	}
	return 0, false
}

func (f *File) itemMatches(id uint32, cat Category) bool {
	ie := f.ItemInfoByID(id)
	if ie == nil || ie.ItemType != cat.itemType() {
		return false
	}
	if cat == XMP && !strings.EqualFold(ie.ContentType, xmpContentType) {
		// A "mime" item with another content type is not an XMP packet;
		// keep scanning rather than blocking a later genuine match.
		f.log.WithFields(logrus.Fields{
			"item":         id,
			"content_type": ie.ContentType,
		}).Debug("cdsc candidate rejected by content type")
		return false
	}
	return true
}
