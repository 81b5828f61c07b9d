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

package bmff

import (
	"fmt"
)

// fullHeader is the 4-byte version/flags prefix shared by "full" boxes.
type fullHeader struct {
	Version uint8
	Flags   uint32 // 24 bits
}

func readFullHeader(cur *Cursor) (fullHeader, error) {
	buf, err := cur.ReadFull(4)
	if err != nil {
		return fullHeader{}, err
	}
	return fullHeader{
		Version: buf[0],
		Flags:   uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]),
	}, nil
}

// FileTypeBox is the decoded "ftyp" payload.
type FileTypeBox struct {
	MajorBrand   string
	MinorVersion string
	Compatible   []string
}

func (*FileTypeBox) boxPayload() {}

func parseFileTypeBox(p *parser, b *Box, cur *Cursor) error {
	buf, err := cur.ReadFull(8)
	if err != nil {
		return err
	}
	ft := &FileTypeBox{
		MajorBrand:   string(buf[:4]),
		MinorVersion: string(buf[4:8]),
	}
	for cur.Pos()+4 <= b.End {
		cc, err := cur.ReadFull(4)
		if err != nil {
			return err
		}
		ft.Compatible = append(ft.Compatible, string(cc))
	}
	b.Payload = ft
	return nil
}

// MetaBox is the decoded "meta" payload; its children hang off the Box.
type MetaBox struct {
	fullHeader
}

func (*MetaBox) boxPayload() {}

func parseMetaBox(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	b.Payload = &MetaBox{fullHeader: fh}
	return p.parseChildren(b, cur)
}

func parseChildrenOnly(p *parser, b *Box, cur *Cursor) error {
	return p.parseChildren(b, cur)
}

// HandlerBox is the decoded "hdlr" payload.
type HandlerBox struct {
	fullHeader
	HandlerType string // 4 bytes, "pict" for HEIF still images
	Name        string
}

func (*HandlerBox) boxPayload() {}

func parseHandlerBox(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	buf, err := cur.ReadFull(20)
	if err != nil {
		return err
	}
	hb := &HandlerBox{fullHeader: fh, HandlerType: string(buf[4:8])}
	if cur.Pos() < b.End {
		// Tolerate an unterminated name; some writers pad it out.
		if name, err := cur.CString(b.End - cur.Pos()); err == nil {
			hb.Name = name
		}
	}
	b.Payload = hb
	return nil
}

// PrimaryItemBox is the decoded "pitm" payload.
type PrimaryItemBox struct {
	fullHeader
	ItemID uint32
}

func (*PrimaryItemBox) boxPayload() {}

func parsePrimaryItemBox(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	pib := &PrimaryItemBox{fullHeader: fh}
	if fh.Version == 0 {
		id, err := cur.Uint16()
		if err != nil {
			return err
		}
		pib.ItemID = uint32(id)
	} else {
		id, err := cur.Uint32()
		if err != nil {
			return err
		}
		pib.ItemID = id
	}
	b.Payload = pib
	return nil
}

// ItemInfoEntry is the decoded "infe" payload (versions 2 and 3).
type ItemInfoEntry struct {
	fullHeader
	ItemID          uint32
	ProtectionIndex uint16
	ItemType        FourCC

	Name string

	// Present only when ItemType is "mime":
	ContentType     string
	ContentEncoding string

	// Present only when ItemType is "uri ":
	ItemURIType string
}

func (*ItemInfoEntry) boxPayload() {}

func parseItemInfoEntry(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	if fh.Version != 2 && fh.Version != 3 {
		return fmt.Errorf("infe version %d not supported: %w", fh.Version, ErrMalformedBox)
	}
	ie := &ItemInfoEntry{fullHeader: fh}
	if fh.Version == 2 {
		id, err := cur.Uint16()
		if err != nil {
			return err
		}
		ie.ItemID = uint32(id)
	} else {
		id, err := cur.Uint32()
		if err != nil {
			return err
		}
		ie.ItemID = id
	}
	if ie.ProtectionIndex, err = cur.Uint16(); err != nil {
		return err
	}
	cc, err := cur.ReadFull(4)
	if err != nil {
		return err
	}
	copy(ie.ItemType[:], cc)
	if cur.Pos() < b.End {
		if ie.Name, err = cur.CString(b.End - cur.Pos()); err != nil {
			return err
		}
	}
	switch ie.ItemType {
	case Code("mime"):
		if ie.ContentType, err = cur.CString(b.End - cur.Pos()); err != nil {
			return err
		}
		if cur.Pos() < b.End {
			if ie.ContentEncoding, err = cur.CString(b.End - cur.Pos()); err != nil {
				return err
			}
		}
	case Code("uri "):
		if ie.ItemURIType, err = cur.CString(b.End - cur.Pos()); err != nil {
			return err
		}
	}
	b.Payload = ie
	return nil
}

// ItemInfoBox is the decoded "iinf" payload.
type ItemInfoBox struct {
	fullHeader
	Count   uint32
	Entries []*ItemInfoEntry
}

func (*ItemInfoBox) boxPayload() {}

func parseItemInfoBox(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	ib := &ItemInfoBox{fullHeader: fh}
	if fh.Version == 0 {
		n, err := cur.Uint16()
		if err != nil {
			return err
		}
		ib.Count = uint32(n)
	} else {
		if ib.Count, err = cur.Uint32(); err != nil {
			return err
		}
	}
	b.Payload = ib
	if err := p.parseChildren(b, cur); err != nil {
		return err
	}
	for _, c := range b.Children {
		if ie, ok := c.Payload.(*ItemInfoEntry); ok {
			ib.Entries = append(ib.Entries, ie)
		}
	}
	return nil
}

// ConstructionMethod selects how an extent's offset is interpreted.
type ConstructionMethod uint8

const (
	// MethodFileOffset: extent offsets are absolute, relative to BaseOffset.
	MethodFileOffset ConstructionMethod = 0
	// MethodIdatRelative: extent offsets index into the idat box payload.
	MethodIdatRelative ConstructionMethod = 1
	// MethodItemOffset: indirection through another item; not supported.
	MethodItemOffset ConstructionMethod = 2
)

// Extent is one contiguous byte range contributing to an item's payload.
type Extent struct {
	Index  uint64 // extent_index, present only with iloc version 1/2
	Offset uint64
	Length uint64
}

// ItemLocationEntry locates one item's bytes. Extent order is significant:
// concatenation order defines the logical payload.
type ItemLocationEntry struct {
	ItemID             uint32
	ConstructionMethod ConstructionMethod
	DataReferenceIndex uint16
	BaseOffset         uint64
	Extents            []Extent
}

// ItemLocationBox is the decoded "iloc" payload.
type ItemLocationBox struct {
	fullHeader
	Items []ItemLocationEntry
}

func (*ItemLocationBox) boxPayload() {}

func parseItemLocationBox(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	if fh.Version > 2 {
		return fmt.Errorf("iloc version %d not supported: %w", fh.Version, ErrMalformedBox)
	}
	ilb := &ItemLocationBox{fullHeader: fh}

	sizes, err := cur.ReadFull(2)
	if err != nil {
		return err
	}
	offsetSize := int(sizes[0] >> 4)
	lengthSize := int(sizes[0] & 15)
	baseOffsetSize := int(sizes[1] >> 4)
	indexSize := 0
	if fh.Version > 0 {
		indexSize = int(sizes[1] & 15)
	}

	var count uint32
	if fh.Version < 2 {
		n, err := cur.Uint16()
		if err != nil {
			return err
		}
		count = uint32(n)
	} else {
		if count, err = cur.Uint32(); err != nil {
			return err
		}
	}

	for i := uint32(0); i < count; i++ {
		var ent ItemLocationEntry
		if fh.Version < 2 {
			id, err := cur.Uint16()
			if err != nil {
				return err
			}
			ent.ItemID = uint32(id)
		} else {
			if ent.ItemID, err = cur.Uint32(); err != nil {
				return err
			}
		}
		if fh.Version > 0 {
			cm, err := cur.Uint16()
			if err != nil {
				return err
			}
			ent.ConstructionMethod = ConstructionMethod(cm & 15)
		}
		if ent.DataReferenceIndex, err = cur.Uint16(); err != nil {
			return err
		}
		if ent.BaseOffset, err = cur.UintN(baseOffsetSize); err != nil {
			return err
		}
		extentCount, err := cur.Uint16()
		if err != nil {
			return err
		}
		for j := 0; j < int(extentCount); j++ {
			var ext Extent
			if fh.Version > 0 && indexSize > 0 {
				if ext.Index, err = cur.UintN(indexSize); err != nil {
					return err
				}
			}
			if ext.Offset, err = cur.UintN(offsetSize); err != nil {
				return err
			}
			if ext.Length, err = cur.UintN(lengthSize); err != nil {
				return err
			}
			ent.Extents = append(ent.Extents, ext)
		}
		ilb.Items = append(ilb.Items, ent)
	}
	b.Payload = ilb
	return nil
}

// EntryByID returns the location entry for an item, or nil.
func (ilb *ItemLocationBox) EntryByID(id uint32) *ItemLocationEntry {
	for i := range ilb.Items {
		if ilb.Items[i].ItemID == id {
			return &ilb.Items[i]
		}
	}
	return nil
}

// ItemDataBox is the decoded "idat" payload.
type ItemDataBox struct {
	Data []byte
}

func (*ItemDataBox) boxPayload() {}

func parseItemDataBox(p *parser, b *Box, cur *Cursor) error {
	data, err := cur.ReadFull(int(b.End - cur.Pos()))
	if err != nil {
		return err
	}
	b.Payload = &ItemDataBox{Data: data}
	return nil
}

// ReferenceRecord is one typed reference row inside an "iref" box.
type ReferenceRecord struct {
	Type       FourCC
	FromItemID uint32
	ToItemIDs  []uint32
}

// ItemReferenceBox is the decoded "iref" payload.
type ItemReferenceBox struct {
	fullHeader
	Records []ReferenceRecord
}

func (*ItemReferenceBox) boxPayload() {}

func parseItemReferenceBox(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	ib := &ItemReferenceBox{fullHeader: fh}
	for cur.Pos()+8 <= b.End {
		recStart := cur.Pos()
		size, err := cur.Uint32()
		if err != nil {
			return err
		}
		cc, err := cur.ReadFull(4)
		if err != nil {
			return err
		}
		recEnd := recStart + int64(size)
		if size < 8 || recEnd > b.End {
			return fmt.Errorf("iref record at %d has size %d: %w", recStart, size, ErrMalformedBox)
		}
		var rec ReferenceRecord
		copy(rec.Type[:], cc)
		if fh.Version == 0 {
			id, err := cur.Uint16()
			if err != nil {
				return err
			}
			rec.FromItemID = uint32(id)
		} else {
			if rec.FromItemID, err = cur.Uint32(); err != nil {
				return err
			}
		}
		n, err := cur.Uint16()
		if err != nil {
			return err
		}
		for i := 0; i < int(n); i++ {
			var to uint32
			if fh.Version == 0 {
				id, err := cur.Uint16()
				if err != nil {
					return err
				}
				to = uint32(id)
			} else {
				if to, err = cur.Uint32(); err != nil {
					return err
				}
			}
			rec.ToItemIDs = append(rec.ToItemIDs, to)
		}
		ib.Records = append(ib.Records, rec)
		if err := cur.SeekTo(recEnd); err != nil {
			return err
		}
	}
	b.Payload = ib
	return nil
}

// PropertyAssociation links an item to one entry of the ipco container.
type PropertyAssociation struct {
	Essential bool
	Index     uint16 // 1-based index into ipco; 0 means none
}

// PropertyAssociationItem groups one item's property associations.
type PropertyAssociationItem struct {
	ItemID       uint32
	Associations []PropertyAssociation
}

// ItemPropertyAssociation is the decoded "ipma" payload.
type ItemPropertyAssociation struct {
	fullHeader
	Entries []PropertyAssociationItem
}

func (*ItemPropertyAssociation) boxPayload() {}

func parseItemPropertyAssociation(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	ipa := &ItemPropertyAssociation{fullHeader: fh}
	count, err := cur.Uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var ent PropertyAssociationItem
		if fh.Version < 1 {
			id, err := cur.Uint16()
			if err != nil {
				return err
			}
			ent.ItemID = uint32(id)
		} else {
			if ent.ItemID, err = cur.Uint32(); err != nil {
				return err
			}
		}
		n, err := cur.Uint8()
		if err != nil {
			return err
		}
		for j := 0; j < int(n); j++ {
			first, err := cur.Uint8()
			if err != nil {
				return err
			}
			assoc := PropertyAssociation{Essential: first&0x80 != 0}
			first &^= 0x80
			if fh.Flags&1 != 0 {
				second, err := cur.Uint8()
				if err != nil {
					return err
				}
				assoc.Index = uint16(first)<<8 | uint16(second)
			} else {
				assoc.Index = uint16(first)
			}
			ent.Associations = append(ent.Associations, assoc)
		}
		ipa.Entries = append(ipa.Entries, ent)
	}
	b.Payload = ipa
	return nil
}

// ImageSpatialExtents is the decoded "ispe" property.
type ImageSpatialExtents struct {
	fullHeader
	Width  uint32
	Height uint32
}

func (*ImageSpatialExtents) boxPayload() {}

func parseImageSpatialExtents(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	w, err := cur.Uint32()
	if err != nil {
		return err
	}
	h, err := cur.Uint32()
	if err != nil {
		return err
	}
	b.Payload = &ImageSpatialExtents{fullHeader: fh, Width: w, Height: h}
	return nil
}

// ImageRotation is the decoded "irot" property. Angle counts 90 degree
// counter-clockwise rotations, in [0,3].
type ImageRotation struct {
	Angle uint8
}

func (*ImageRotation) boxPayload() {}

func parseImageRotation(p *parser, b *Box, cur *Cursor) error {
	v, err := cur.Uint8()
	if err != nil {
		return err
	}
	b.Payload = &ImageRotation{Angle: v & 3}
	return nil
}

// ImageMirror is the decoded "imir" property: 0 vertical, 1 horizontal.
type ImageMirror struct {
	Axis uint8
}

func (*ImageMirror) boxPayload() {}

func parseImageMirror(p *parser, b *Box, cur *Cursor) error {
	v, err := cur.Uint8()
	if err != nil {
		return err
	}
	b.Payload = &ImageMirror{Axis: v & 1}
	return nil
}

// DataReferenceBox is the decoded "dref" payload; its url/urn entries are
// kept as child placeholders.
type DataReferenceBox struct {
	fullHeader
	EntryCount uint32
}

func (*DataReferenceBox) boxPayload() {}

func parseDataReferenceBox(p *parser, b *Box, cur *Cursor) error {
	fh, err := readFullHeader(cur)
	if err != nil {
		return err
	}
	drb := &DataReferenceBox{fullHeader: fh}
	if drb.EntryCount, err = cur.Uint32(); err != nil {
		return err
	}
	b.Payload = drb
	return p.parseChildren(b, cur)
}
