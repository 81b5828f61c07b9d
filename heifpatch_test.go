package heifpatch

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func be32(v uint32) []byte {
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

func box(typ string, body []byte) []byte {
	return cat(be32(uint32(8+len(body))), []byte(typ), body)
}

func full(typ string, body []byte) []byte {
	return box(typ, cat([]byte{0, 0, 0, 0}, body))
}

// buildContainer is a minimal HEIC with an Exif item (empty TIFF) and an
// XMP item, both file-offset located.
func buildContainer() []byte {
	tiff := cat([]byte("MM"), be16(0x002a), be32(8), be16(0), be32(0))
	exifRaw := cat(be32(6), []byte("Exif\x00\x00"), tiff)
	xmpRaw := []byte(`<x:xmpmeta xmlns:x="adobe:ns:meta/"></x:xmpmeta>`)

	ftyp := box("ftyp", cat([]byte("heic"), be32(0)))
	mdat := box("mdat", cat(exifRaw, xmpRaw))
	exifOff := uint32(len(ftyp)) + 8
	xmpOff := exifOff + uint32(len(exifRaw))

	infe := func(id uint16, itemType, contentType string) []byte {
		body := cat(be16(id), be16(0), []byte(itemType), []byte{0})
		if contentType != "" {
			body = cat(body, []byte(contentType), []byte{0})
		}
		return box("infe", cat([]byte{2, 0, 0, 0}, body))
	}
	meta := full("meta", cat(
		full("hdlr", cat(be32(0), []byte("pict"), make([]byte, 12), []byte{0})),
		full("pitm", be16(1)),
		full("iinf", cat(be16(3),
			infe(1, "hvc1", ""),
			infe(2, "Exif", ""),
			infe(3, "mime", "application/rdf+xml"),
		)),
		full("iloc", cat(
			[]byte{0x44, 0x00}, be16(2),
			be16(2), be16(0), be16(1), be32(exifOff), be32(uint32(len(exifRaw))),
			be16(3), be16(0), be16(1), be32(xmpOff), be32(uint32(len(xmpRaw))),
		)),
	))
	return cat(ftyp, mdat, meta)
}

func TestExtractExif(t *testing.T) {
	data := buildContainer()
	tiff, err := ExtractExif(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []byte("MM"), tiff[:2])
}

func TestExtractXMP(t *testing.T) {
	data := buildContainer()
	s, err := ExtractXMP(bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "<x:xmpmeta"))
}

func TestAsReaderAt(t *testing.T) {
	data := buildContainer()

	// Already random access: passed through.
	br := bytes.NewReader(data)
	ra, err := AsReaderAt(br)
	require.NoError(t, err)
	assert.Equal(t, br, ra)

	// Plain stream: buffered into memory.
	ra, err = AsReaderAt(bytes.NewBuffer(data))
	require.NoError(t, err)
	_, err = ExtractExif(ra)
	assert.NoError(t, err)
}
