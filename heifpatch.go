// Package heifpatch extracts Exif and XMP metadata from HEIF/HEIC
// containers and rewrites their embedded date fields in place, without
// changing file length or box structure.
package heifpatch

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	"github.com/trevormaggs/heifpatch/heif"
	"github.com/trevormaggs/heifpatch/patch"
)

// ExtractExif returns the raw Exif data from the container, starting at the
// TIFF header. The result can be parsed by the
// github.com/rwcarlsen/goexif/exif package's Decode function.
func ExtractExif(ra io.ReaderAt) ([]byte, error) {
	hf, err := openReader(ra)
	if err != nil {
		return nil, err
	}
	return hf.ExifPayload()
}

// ExtractXMP returns the container's XMP packet as trimmed UTF-8 text.
func ExtractXMP(ra io.ReaderAt) (string, error) {
	hf, err := openReader(ra)
	if err != nil {
		return "", err
	}
	return hf.XMPPayload()
}

// Dimensions returns the primary image's pixel dimensions, corrected for
// rotation metadata.
func Dimensions(ra io.ReaderAt) (width, height int, err error) {
	hf, err := openReader(ra)
	if err != nil {
		return 0, 0, err
	}
	w, h, ok := hf.PrimaryDimensions()
	if !ok {
		return 0, 0, errors.New("heifpatch: no dimension properties")
	}
	return w, h, nil
}

// PatchDates rewrites every known Exif and XMP date field of the file at
// path to t, in place.
func PatchDates(path string, t time.Time) (patch.Summary, error) {
	p, err := patch.Open(path)
	if err != nil {
		return patch.Summary{}, err
	}
	defer p.Close()
	return p.SetDates(t)
}

func openReader(ra io.ReaderAt) (*heif.File, error) {
	size, err := readerSize(ra)
	if err != nil {
		return nil, err
	}
	return heif.Open(ra, size)
}

func readerSize(ra io.ReaderAt) (int64, error) {
	switch v := ra.(type) {
	case interface{ Size() int64 }: // bytes.Reader, io.SectionReader
		return v.Size(), nil
	case *os.File:
		fi, err := v.Stat()
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	case io.Seeker:
		return v.Seek(0, io.SeekEnd)
	}
	return 0, errors.New("heifpatch: cannot determine reader size")
}

// AsReaderAt adapts an arbitrary reader for the extraction functions,
// buffering it in memory when it does not already support random access.
func AsReaderAt(r io.Reader) (io.ReaderAt, error) {
	if ra, ok := r.(io.ReaderAt); ok {
		return ra, nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(b), nil
}
