package heif

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Synthetic container builders shared by the package tests.

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func rawBox(typ string, body []byte) []byte {
	return cat(u32(uint32(8+len(body))), []byte(typ), body)
}

func fullBox(typ string, version byte, body []byte) []byte {
	return rawBox(typ, cat([]byte{version, 0, 0, 0}, body))
}

func infeV2(id uint16, itemType, contentType string) []byte {
	body := cat(u16(id), u16(0), []byte(itemType), []byte{0})
	if contentType != "" {
		body = cat(body, []byte(contentType), []byte{0})
	}
	return fullBox("infe", 2, body)
}

func hdlrPict() []byte {
	return fullBox("hdlr", 0, cat(u32(0), []byte("pict"), make([]byte, 12), []byte{0}))
}

func cdsc(from uint16, to uint16) []byte {
	return rawBox("cdsc", cat(u16(from), u16(1), u16(to)))
}

type locItem struct {
	id      uint16
	method  uint16
	extents [][2]uint32 // offset, length
}

// ilocV1 encodes locations with 4-byte offsets/lengths, no base offset and
// no extent index.
func ilocV1(items ...locItem) []byte {
	body := cat([]byte{0x44, 0x00}, u16(uint16(len(items))))
	for _, it := range items {
		body = cat(body, u16(it.id), u16(it.method), u16(0), u16(uint16(len(it.extents))))
		for _, e := range it.extents {
			body = cat(body, u32(e[0]), u32(e[1]))
		}
	}
	return fullBox("iloc", 1, body)
}

// minimalTIFF is a big-endian TIFF header followed by an empty IFD.
func minimalTIFF() []byte {
	return cat([]byte("MM"), u16(0x002a), u32(8), u16(0), u32(0))
}

// exifItemPayload wraps a TIFF blob in the HEIF Exif item framing: a 4-byte
// header offset of 6 followed by the "Exif\0\0" signature.
func exifItemPayload(tiff []byte) []byte {
	return cat(u32(6), []byte("Exif\x00\x00"), tiff)
}

type fixture struct {
	data []byte

	exifRaw []byte
	xmpRaw  []byte

	exifOffA, exifOffB uint32 // absolute extent offsets
	exifSplit          int    // bytes in the first extent
	xmpOff             uint32
}

type fixtureOpts struct {
	withIref  bool
	withDecoy bool
	withProps bool
	noPitm    bool
	exifRaw   []byte
	xmpRaw    []byte
}

// buildFixture assembles a HEIC-shaped file: ftyp, an mdat holding the item
// payloads (the Exif item split across two non-contiguous extents), then the
// meta box describing primary item 1, Exif item 2, XMP item 3 and, when
// enabled, a decoy "mime" item 9 with an unrelated content type.
func buildFixture(opts fixtureOpts) fixture {
	fx := fixture{exifRaw: opts.exifRaw, xmpRaw: opts.xmpRaw}
	if fx.exifRaw == nil {
		fx.exifRaw = exifItemPayload(minimalTIFF())
	}
	if fx.xmpRaw == nil {
		fx.xmpRaw = []byte(`<x:xmpmeta><rdf:Description xmp:CreateDate="2015-03-07T10:00:00Z"/></x:xmpmeta>`)
	}
	fx.exifSplit = len(fx.exifRaw) / 2

	ftyp := rawBox("ftyp", cat([]byte("heic"), u32(0)))
	partA := fx.exifRaw[:fx.exifSplit]
	partB := fx.exifRaw[fx.exifSplit:]
	mdatBody := cat(make([]byte, 4), partA, make([]byte, 3), partB, make([]byte, 2), fx.xmpRaw)
	mdat := rawBox("mdat", mdatBody)

	base := uint32(len(ftyp)) + 8
	fx.exifOffA = base + 4
	fx.exifOffB = fx.exifOffA + uint32(len(partA)) + 3
	fx.xmpOff = fx.exifOffB + uint32(len(partB)) + 2

	infes := []byte{}
	infes = cat(infes, infeV2(1, "hvc1", ""))
	infes = cat(infes, infeV2(2, "Exif", ""))
	if opts.withDecoy {
		infes = cat(infes, infeV2(9, "mime", "text/plain"))
	}
	infes = cat(infes, infeV2(3, "mime", "application/rdf+xml"))
	count := uint16(3)
	if opts.withDecoy {
		count = 4
	}

	children := hdlrPict()
	if !opts.noPitm {
		children = cat(children, fullBox("pitm", 0, u16(1)))
	}
	children = cat(children, fullBox("iinf", 0, cat(u16(count), infes)))
	if opts.withIref {
		recs := []byte{}
		if opts.withDecoy {
			recs = cat(recs, cdsc(9, 1))
		}
		recs = cat(recs, cdsc(2, 1), cdsc(3, 1))
		children = cat(children, fullBox("iref", 0, recs))
	}
	children = cat(children, ilocV1(
		locItem{id: 2, extents: [][2]uint32{
			{fx.exifOffA, uint32(len(partA))},
			{fx.exifOffB, uint32(len(partB))},
		}},
		locItem{id: 3, extents: [][2]uint32{{fx.xmpOff, uint32(len(fx.xmpRaw))}}},
	))
	if opts.withProps {
		ipco := rawBox("ipco", cat(
			fullBox("ispe", 0, cat(u32(100), u32(80))),
			rawBox("irot", []byte{1}),
		))
		ipma := fullBox("ipma", 0, cat(u32(1), u16(1), []byte{2, 0x01, 0x02}))
		children = cat(children, rawBox("iprp", cat(ipco, ipma)))
	}

	fx.data = cat(ftyp, mdat, fullBox("meta", 0, children))
	return fx
}

func readerOf(b []byte) io.ReaderAt {
	return bytes.NewReader(b)
}

func openFixture(fx fixture) (*File, error) {
	return Open(readerOf(fx.data), int64(len(fx.data)))
}
