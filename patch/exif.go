package patch

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/rwcarlsen/goexif/tiff"
	"github.com/sirupsen/logrus"

	"github.com/trevormaggs/heifpatch/heif"
)

// TIFF/Exif tag ids of interest.
const (
	tagDateTime          = 0x0132 // IFD0
	tagDateTimeOriginal  = 0x9003 // Exif sub-IFD
	tagDateTimeDigitized = 0x9004 // Exif sub-IFD
	tagExifIFDPointer    = 0x8769
	tagGPSIFDPointer     = 0x8825
	tagGPSTimeStamp      = 0x0007 // GPS sub-IFD, 3 rationals
	tagGPSDateStamp      = 0x001d // GPS sub-IFD, 11-byte ASCII
)

const (
	exifDateLayout = "2006:01:02 15:04:05"
	gpsDateLayout  = "2006:01:02"
	gpsTimeSlotLen = 24 // three unsigned rationals
)

// PatchExifDates rewrites the Exif date/time fields present in the file to
// t: DateTime, DateTimeOriginal, DateTimeDigitized, GPSDateStamp and
// GPSTimeStamp. GPS fields are written against the UTC rendering of t, as
// the GPS IFD is defined in UTC. It returns the number of fields rewritten;
// a file without Exif metadata yields (0, nil).
func (p *Patcher) PatchExifDates(t time.Time) (int, error) {
	itemID, ok := p.hf.FindMetadataItem(heif.Exif)
	if !ok {
		p.log.Debug("no exif item to patch")
		return 0, nil
	}
	raw, err := p.hf.RawItemPayload(itemID)
	if err != nil {
		if errors.Is(err, heif.ErrExtentOutOfBounds) || errors.Is(err, heif.ErrUnsupportedConstruction) {
			return 0, err
		}
		p.log.WithField("error", err).Debug("exif payload unavailable")
		return 0, nil
	}
	shift, err := heif.ExifTIFFStart(raw)
	if err != nil {
		return 0, err
	}
	payload := raw[shift:]
	tf, err := tiff.Decode(bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}

	main, gps := collectDirs(tf, payload)

	utc := t.UTC()
	patched := 0
	for _, dir := range main {
		for _, tag := range dir.Tags {
			switch tag.Id {
			case tagDateTime, tagDateTimeOriginal, tagDateTimeDigitized:
				if p.patchASCIITag(itemID, shift, tag, t.Format(exifDateLayout)) {
					patched++
				}
			}
		}
	}
	for _, dir := range gps {
		for _, tag := range dir.Tags {
			switch tag.Id {
			case tagGPSDateStamp:
				if p.patchASCIITag(itemID, shift, tag, utc.Format(gpsDateLayout)) {
					patched++
				}
			case tagGPSTimeStamp:
				if p.patchGPSTimeTag(itemID, shift, tag, tf.Order, utc) {
					patched++
				}
			}
		}
	}
	return patched, nil
}

// collectDirs returns the TIFF's top-level IFD chain plus the Exif sub-IFD
// in main, and the GPS sub-IFD separately. GPS tag ids overlap the normal
// tag space, so its directory must not be scanned for ordinary tags.
func collectDirs(tf *tiff.Tiff, payload []byte) (main, gps []*tiff.Dir) {
	main = append(main, tf.Dirs...)
	rdr := bytes.NewReader(payload)
	for _, dir := range tf.Dirs {
		for _, tag := range dir.Tags {
			var into *[]*tiff.Dir
			switch tag.Id {
			case tagExifIFDPointer:
				into = &main
			case tagGPSIFDPointer:
				into = &gps
			default:
				continue
			}
			off, err := tag.Int64(0)
			if err != nil {
				continue
			}
			if _, err := rdr.Seek(off, io.SeekStart); err != nil {
				continue
			}
			sub, _, err := tiff.DecodeDir(rdr, tf.Order)
			if err != nil {
				continue
			}
			*into = append(*into, sub)
		}
	}
	return main, gps
}

// patchASCIITag writes value into an ASCII tag's slot: the rendered string,
// a NUL terminator, right-padded or truncated to the tag's declared byte
// count, with the final byte forced to 0x00 either way.
func (p *Patcher) patchASCIITag(itemID uint32, shift int, tag *tiff.Tag, value string) bool {
	count := int(tag.Count)
	entry := p.log.WithFields(logrus.Fields{"tag": tag.Id, "count": count})
	if count < 2 {
		entry.WithField("error", ErrInsufficientSlotWidth).Error("skipping exif tag")
		return false
	}
	if tag.ValOffset == 0 {
		// Value stored inline in the IFD entry; offsets into the payload
		// are unavailable for those.
		entry.Error("skipping exif tag with inline value")
		return false
	}
	slot := asciiSlot(value, count)
	logical := int64(shift) + int64(tag.ValOffset)
	if err := p.writeLogical(itemID, logical, slot); err != nil {
		entry.WithField("error", err).Error("skipping exif tag")
		return false
	}
	return true
}

// asciiSlot renders value into an exact count-byte Exif ASCII slot: the
// string, a NUL terminator, zero-padded or truncated to count, with the
// final byte forced to 0x00 regardless of truncation.
func asciiSlot(value string, count int) []byte {
	slot := make([]byte, count)
	copy(slot, value)
	slot[count-1] = 0
	return slot
}

// patchGPSTimeTag writes t's UTC time of day as three unsigned rationals
// (hour/1, minute/1, second/1) into the fixed 24-byte GPSTimeStamp slot.
func (p *Patcher) patchGPSTimeTag(itemID uint32, shift int, tag *tiff.Tag, order binary.ByteOrder, t time.Time) bool {
	entry := p.log.WithField("tag", tag.Id)
	if tag.Count != 3 || tag.ValOffset == 0 {
		entry.Error("skipping malformed GPSTimeStamp tag")
		return false
	}
	buf := make([]byte, gpsTimeSlotLen)
	for i, v := range []uint32{uint32(t.Hour()), uint32(t.Minute()), uint32(t.Second())} {
		order.PutUint32(buf[i*8:], v)
		order.PutUint32(buf[i*8+4:], 1)
	}
	logical := int64(shift) + int64(tag.ValOffset)
	if err := p.writeLogical(itemID, logical, buf); err != nil {
		entry.WithField("error", err).Error("skipping GPSTimeStamp tag")
		return false
	}
	return true
}
