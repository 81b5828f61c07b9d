// Package xmpmeta is a narrow adapter over the go-xmp toolkit for read-only
// extraction of XMP properties from a HEIF container. The patch path never
// goes through this package; it edits the raw packet text directly.
package xmpmeta

import (
	"fmt"
	"strings"

	"trimmer.io/go-xmp/xmp"

	"github.com/trevormaggs/heifpatch/heif"
)

// Decode parses a raw XMP packet into a document model.
func Decode(payload []byte) (*xmp.Document, error) {
	doc := &xmp.Document{}
	if err := xmp.Unmarshal(payload, doc); err != nil {
		return nil, fmt.Errorf("xmpmeta: %w", err)
	}
	return doc, nil
}

// DecodeFile extracts and parses the XMP packet located in f.
func DecodeFile(f *heif.File) (*xmp.Document, error) {
	packet, err := f.XMPPayload()
	if err != nil {
		return nil, err
	}
	return Decode([]byte(packet))
}

// DateProperties returns the document's path/value pairs whose path names a
// date-bearing property.
func DateProperties(doc *xmp.Document) (xmp.PathValueList, error) {
	paths, err := doc.ListPaths()
	if err != nil {
		return nil, fmt.Errorf("xmpmeta: %w", err)
	}
	var out xmp.PathValueList
	for _, pv := range paths {
		if strings.Contains(strings.ToLower(string(pv.Path)), "date") {
			out = append(out, pv)
		}
	}
	return out, nil
}
