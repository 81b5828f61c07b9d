// Package patch performs surgical, size-preserving in-place updates of date
// fields inside HEIF metadata items. Writes go through the same extent
// arithmetic the read path uses, so a patched byte lands exactly where the
// materialized payload byte came from.
package patch

import (
	"errors"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trevormaggs/heifpatch/heif"
)

// ErrInsufficientSlotWidth is returned when no date rendering fits the
// existing value slot; the occurrence is skipped rather than corrupted.
var ErrInsufficientSlotWidth = errors.New("patch: value slot too narrow for any date rendering")

// Patcher mutates date fields of one HEIF file in place. The file's length
// and box structure are never changed. It requires exclusive read-write
// access for the duration of the operation.
type Patcher struct {
	path string
	f    *os.File
	hf   *heif.File
	log  *logrus.Logger
}

// Open opens path read-write and parses its box tree.
func Open(path string) (*Patcher, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	hf, err := heif.Open(f, fi.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Patcher{path: path, f: f, hf: hf, log: logrus.StandardLogger()}, nil
}

// SetLogger replaces the patcher's logger.
func (p *Patcher) SetLogger(log *logrus.Logger) {
	if log != nil {
		p.log = log
	}
}

// File exposes the parsed HEIF file for inspection.
func (p *Patcher) File() *heif.File { return p.hf }

// Close syncs and releases the underlying file handle.
func (p *Patcher) Close() error {
	if p.f == nil {
		return nil
	}
	syncErr := p.f.Sync()
	closeErr := p.f.Close()
	p.f = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}

// Summary reports how many value slots each path rewrote.
type Summary struct {
	Exif int
	XMP  int
}

// SetDates rewrites every known Exif and XMP date field to t. Missing
// metadata categories are not errors; occurrences whose slots cannot hold
// any rendering are skipped and logged.
func (p *Patcher) SetDates(t time.Time) (Summary, error) {
	var s Summary
	n, err := p.PatchExifDates(t)
	if err != nil {
		return s, err
	}
	s.Exif = n
	n, err = p.PatchXMPDates(t)
	if err != nil {
		return s, err
	}
	s.XMP = n
	return s, nil
}

// writeLogical writes data at a logical payload offset, splitting the write
// wherever it crosses an extent boundary.
func (p *Patcher) writeLogical(itemID uint32, logical int64, data []byte) error {
	for len(data) > 0 {
		phys, contig, err := p.hf.ResolvePhysical(itemID, logical)
		if err != nil {
			return err
		}
		n := int64(len(data))
		if n > contig {
			n = contig
		}
		if _, err := p.f.WriteAt(data[:n], phys); err != nil {
			return err
		}
		data = data[n:]
		logical += n
	}
	return nil
}
