package patch

import (
	"bytes"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/trevormaggs/heifpatch/heif"
)

// DefaultXMPDateProperties are the XMP property names rewritten by
// PatchXMPDates when the caller names none.
var DefaultXMPDateProperties = []string{
	"exif:DateTimeOriginal",
	"exif:DateTimeDigitized",
	"xmp:CreateDate",
	"xmp:ModifyDate",
	"photoshop:DateCreated",
}

const xmpShortLayout = "2006-01-02"

// PatchXMPDates rewrites the value spans of the named date properties in
// the file's XMP packet to t. It returns the number of spans rewritten; a
// file without an XMP item yields (0, nil). Spans too narrow for any
// rendering are skipped and logged.
func (p *Patcher) PatchXMPDates(t time.Time, names ...string) (int, error) {
	itemID, ok := p.hf.FindMetadataItem(heif.XMP)
	if !ok {
		p.log.Debug("no xmp item to patch")
		return 0, nil
	}
	raw, err := p.hf.RawItemPayload(itemID)
	if err != nil {
		return 0, err
	}
	if !utf8.Valid(raw) {
		return 0, heif.ErrUnsupportedEncoding
	}
	if len(names) == 0 {
		names = DefaultXMPDateProperties
	}
	patched := 0
	for _, name := range names {
		for _, sp := range findValueSpans(raw, name) {
			width := sp.end - sp.start
			entry := p.log.WithFields(logrus.Fields{"property": name, "width": width})
			rendered, err := renderISO8601(t, width)
			if err != nil {
				entry.WithField("error", err).Error("skipping xmp occurrence")
				continue
			}
			if err := p.writeLogical(itemID, int64(sp.start), rendered); err != nil {
				entry.WithField("error", err).Error("skipping xmp occurrence")
				continue
			}
			patched++
		}
	}
	return patched, nil
}

// span is a value's byte range within the XMP packet. Offsets are bytes,
// not characters: a multi-byte character anywhere earlier in the packet
// shifts byte offsets relative to character offsets, and the physical
// address resolver only speaks bytes.
type span struct {
	start, end int
}

// findValueSpans scans the packet for value spans following occurrences of
// an XMP property name, in either element form (<name ...>value</name>) or
// attribute form (name="value"). Occurrences preceded by '/' are closing
// tags and carry no value.
func findValueSpans(packet []byte, name string) []span {
	var spans []span
	needle := []byte(name)
	for i := 0; ; {
		j := bytes.Index(packet[i:], needle)
		if j < 0 {
			break
		}
		pos := i + j
		i = pos + len(needle)
		if pos > 0 && packet[pos-1] == '/' {
			continue
		}
		k := pos + len(needle)
		if k < len(packet) && isNameByte(packet[k]) {
			// Longer name sharing this prefix.
			continue
		}
		k = skipSpace(packet, k)
		if k < len(packet) && packet[k] == '=' {
			// Attribute form: value between matching quotes.
			k = skipSpace(packet, k+1)
			if k >= len(packet) || (packet[k] != '"' && packet[k] != '\'') {
				continue
			}
			quote := packet[k]
			k++
			end := bytes.IndexByte(packet[k:], quote)
			if end < 0 {
				continue
			}
			spans = append(spans, span{k, k + end})
			continue
		}
		// Element form: the occurrence must sit inside a start tag, so a
		// '>' has to appear before any '<'.
		gt := -1
		for m := k; m < len(packet); m++ {
			if packet[m] == '<' {
				break
			}
			if packet[m] == '>' {
				gt = m
				break
			}
		}
		if gt < 0 {
			continue
		}
		vstart := gt + 1
		lt := bytes.IndexByte(packet[vstart:], '<')
		if lt < 0 {
			continue
		}
		spans = append(spans, span{vstart, vstart + lt})
	}
	return spans
}

func isNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' ||
		b == ':' || b == '_' || b == '-' || b == '.'
}

func skipSpace(packet []byte, k int) int {
	for k < len(packet) {
		switch packet[k] {
		case ' ', '\t', '\r', '\n':
			k++
		default:
			return k
		}
	}
	return k
}

// renderISO8601 renders t to exactly width bytes: the full RFC 3339 form
// space-padded when it fits, a naked date-time truncation when the slot
// holds at least 19 bytes, the date-only form space-padded when at least 10
// bytes fit, and ErrInsufficientSlotWidth otherwise.
func renderISO8601(t time.Time, width int) ([]byte, error) {
	long := t.Format(time.RFC3339)
	short := t.Format(xmpShortLayout)
	var s string
	switch {
	case width >= len(long):
		s = long
	case width >= 19:
		s = long[:width]
	case width >= len(short):
		s = short
	default:
		return nil, ErrInsufficientSlotWidth
	}
	out := make([]byte, width)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out, nil
}
