package heif

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawItemPayloadMultiExtent(t *testing.T) {
	fx := buildFixture(fixtureOpts{withIref: true})
	f, err := openFixture(fx)
	require.NoError(t, err)

	raw, err := f.RawItemPayload(2)
	require.NoError(t, err)
	assert.Equal(t, fx.exifRaw, raw)

	raw, err = f.RawItemPayload(3)
	require.NoError(t, err)
	assert.Equal(t, fx.xmpRaw, raw)
}

// Every logical offset of a materialized payload must map back to the file
// byte it was read from, for single- and multi-extent items alike.
func TestResolvePhysicalRoundTrip(t *testing.T) {
	fx := buildFixture(fixtureOpts{withIref: true})
	f, err := openFixture(fx)
	require.NoError(t, err)

	for _, itemID := range []uint32{2, 3} {
		payload, err := f.RawItemPayload(itemID)
		require.NoError(t, err)
		for k := int64(0); k < int64(len(payload)); k++ {
			phys, contiguous, err := f.ResolvePhysical(itemID, k)
			require.NoError(t, err)
			require.GreaterOrEqual(t, contiguous, int64(1))
			assert.Equal(t, payload[k], fx.data[phys], "item %d logical %d", itemID, k)
		}
	}
}

func TestResolvePhysicalExtentBoundary(t *testing.T) {
	fx := buildFixture(fixtureOpts{withIref: true})
	f, err := openFixture(fx)
	require.NoError(t, err)

	split := int64(fx.exifSplit)

	phys, contiguous, err := f.ResolvePhysical(2, split-1)
	require.NoError(t, err)
	assert.Equal(t, int64(fx.exifOffA)+split-1, phys)
	assert.Equal(t, int64(1), contiguous)

	phys, contiguous, err = f.ResolvePhysical(2, split)
	require.NoError(t, err)
	assert.Equal(t, int64(fx.exifOffB), phys)
	assert.Equal(t, int64(len(fx.exifRaw))-split, contiguous)
}

func TestResolvePhysicalPastEnd(t *testing.T) {
	fx := buildFixture(fixtureOpts{withIref: true})
	f, err := openFixture(fx)
	require.NoError(t, err)

	_, _, err = f.ResolvePhysical(2, int64(len(fx.exifRaw)))
	assert.ErrorIs(t, err, ErrUnresolvedAddress)

	_, _, err = f.ResolvePhysical(2, -1)
	assert.ErrorIs(t, err, ErrUnresolvedAddress)
}

func TestRawItemPayloadMissingLocation(t *testing.T) {
	f, err := openFixture(buildFixture(fixtureOpts{withIref: true}))
	require.NoError(t, err)

	_, err = f.RawItemPayload(42)
	assert.ErrorIs(t, err, ErrMissingItemLocation)
}

// buildIdatFixture describes one Exif item located relative to an idat box.
func buildIdatFixture(extent [2]uint32, method uint16) []byte {
	idat := make([]byte, 100)
	for i := range idat {
		idat[i] = byte(i)
	}
	children := cat(
		hdlrPict(),
		fullBox("pitm", 0, u16(1)),
		fullBox("iinf", 0, cat(u16(2), infeV2(1, "hvc1", ""), infeV2(2, "Exif", ""))),
		ilocV1(locItem{id: 2, method: method, extents: [][2]uint32{extent}}),
		rawBox("idat", idat),
	)
	ftyp := rawBox("ftyp", cat([]byte("heic"), u32(0)))
	return cat(ftyp, fullBox("meta", 0, children))
}

func TestIdatRelativeItem(t *testing.T) {
	data := buildIdatFixture([2]uint32{10, 20}, 1)
	f, err := Open(readerOf(data), int64(len(data)))
	require.NoError(t, err)

	raw, err := f.RawItemPayload(2)
	require.NoError(t, err)
	require.Len(t, raw, 20)
	for i, b := range raw {
		assert.Equal(t, byte(10+i), b)
	}

	// Inverse mapping lands inside the idat body in the real file.
	for k := int64(0); k < 20; k++ {
		phys, _, err := f.ResolvePhysical(2, k)
		require.NoError(t, err)
		assert.Equal(t, raw[k], data[phys])
	}
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// ilocV1Wide encodes a single-item location with 8-byte offset/length
// fields, the width hostile files use to smuggle wrapping extents.
func ilocV1Wide(id, method uint16, off, length uint64) []byte {
	body := cat(
		[]byte{0x88, 0x00},
		u16(1),
		u16(id), u16(method), u16(0), u16(1),
		u64(off), u64(length),
	)
	return fullBox("iloc", 1, body)
}

func buildWideFixture(method uint16, off, length uint64) []byte {
	idat := make([]byte, 100)
	children := cat(
		hdlrPict(),
		fullBox("pitm", 0, u16(1)),
		fullBox("iinf", 0, cat(u16(2), infeV2(1, "hvc1", ""), infeV2(2, "Exif", ""))),
		ilocV1Wide(2, method, off, length),
		rawBox("idat", idat),
	)
	ftyp := rawBox("ftyp", cat([]byte("heic"), u32(0)))
	return cat(ftyp, fullBox("meta", 0, children))
}

// An extent whose offset+length wraps uint64 must fail the bounds check
// instead of slicing with a wrapped end.
func TestIdatExtentOffsetOverflow(t *testing.T) {
	data := buildWideFixture(1, 0xFFFFFFFFFFFFFFF0, 0x20)
	f, err := Open(readerOf(data), int64(len(data)))
	require.NoError(t, err)

	_, err = f.RawItemPayload(2)
	assert.ErrorIs(t, err, ErrExtentOutOfBounds)

	_, _, err = f.ResolvePhysical(2, 0)
	assert.ErrorIs(t, err, ErrExtentOutOfBounds)
}

func TestFileExtentOffsetOverflow(t *testing.T) {
	data := buildWideFixture(0, 0xFFFFFFFFFFFFFFF0, 0x20)
	f, err := Open(readerOf(data), int64(len(data)))
	require.NoError(t, err)

	_, err = f.RawItemPayload(2)
	assert.ErrorIs(t, err, ErrExtentOutOfBounds)

	_, _, err = f.ResolvePhysical(2, 0)
	assert.ErrorIs(t, err, ErrExtentOutOfBounds)
}

// The inverse mapping applies the read path's idat bounds rule: an extent
// RawItemPayload rejects never resolves to a physical address.
func TestResolvePhysicalIdatBounds(t *testing.T) {
	data := buildIdatFixture([2]uint32{90, 20}, 1)
	f, err := Open(readerOf(data), int64(len(data)))
	require.NoError(t, err)

	_, _, err = f.ResolvePhysical(2, 0)
	assert.ErrorIs(t, err, ErrExtentOutOfBounds)
}

func TestIdatExtentOutOfBounds(t *testing.T) {
	data := buildIdatFixture([2]uint32{90, 20}, 1)
	f, err := Open(readerOf(data), int64(len(data)))
	require.NoError(t, err)

	_, err = f.RawItemPayload(2)
	assert.ErrorIs(t, err, ErrExtentOutOfBounds)
}

func TestItemOffsetConstructionUnsupported(t *testing.T) {
	data := buildIdatFixture([2]uint32{0, 10}, 2)
	f, err := Open(readerOf(data), int64(len(data)))
	require.NoError(t, err)

	_, err = f.RawItemPayload(2)
	assert.ErrorIs(t, err, ErrUnsupportedConstruction)

	_, _, err = f.ResolvePhysical(2, 0)
	assert.ErrorIs(t, err, ErrUnsupportedConstruction)
}

func TestExifTIFFStart(t *testing.T) {
	raw := exifItemPayload(minimalTIFF())
	start, err := ExifTIFFStart(raw)
	require.NoError(t, err)
	assert.Equal(t, 10, start)
	assert.Equal(t, []byte("MM"), raw[start:start+2])

	_, err = ExifTIFFStart([]byte{0, 0})
	assert.ErrorIs(t, err, ErrShortExifHeader)

	// Declared offset pointing past the payload.
	_, err = ExifTIFFStart(cat(u32(100), []byte("Exif\x00\x00")))
	assert.ErrorIs(t, err, ErrShortExifHeader)
}

func TestExifPayloadStripsHeader(t *testing.T) {
	fx := buildFixture(fixtureOpts{withIref: true})
	f, err := openFixture(fx)
	require.NoError(t, err)

	tiff, err := f.ExifPayload()
	require.NoError(t, err)
	assert.Equal(t, minimalTIFF(), tiff)
}

func TestXMPPayloadTrimsWhitespace(t *testing.T) {
	fx := buildFixture(fixtureOpts{
		withIref: true,
		xmpRaw:   []byte("\n  <x:xmpmeta></x:xmpmeta>\n"),
	})
	f, err := openFixture(fx)
	require.NoError(t, err)

	s, err := f.XMPPayload()
	require.NoError(t, err)
	assert.Equal(t, "<x:xmpmeta></x:xmpmeta>", s)
}

func TestXMPPayloadRejectsInvalidUTF8(t *testing.T) {
	fx := buildFixture(fixtureOpts{
		withIref: true,
		xmpRaw:   []byte{'<', 0xff, 0xfe, '>'},
	})
	f, err := openFixture(fx)
	require.NoError(t, err)

	_, err = f.XMPPayload()
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}
