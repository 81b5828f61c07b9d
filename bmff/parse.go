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

// Package bmff reads ISO BMFF boxes, as used by HEIF, etc.
//
// The parser builds an offset-tracked box tree: every box records its
// absolute start and end positions so that callers can map positions inside
// decoded payloads back to file addresses.
package bmff

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// ErrMalformedBox is returned for box headers whose size or structure is
// inconsistent with their surroundings.
var ErrMalformedBox = errors.New("bmff: malformed box")

// ErrorPolicy selects how the top-level parse loop reacts to a malformed
// box.
type ErrorPolicy int

const (
	// StopOnError aborts further top-level parsing on the first malformed
	// box, preserving the boxes parsed so far.
	StopOnError ErrorPolicy = iota
	// SkipOnError resumes at the malformed box's declared end when that end
	// is plausible, otherwise stops.
	SkipOnError
)

// Options configures a parse.
type Options struct {
	Policy ErrorPolicy
	Log    *logrus.Logger
}

type parser struct {
	tree *Tree
	opts Options
	log  *logrus.Logger
}

// Parse reads boxes from the cursor's current position to the end of the
// source and returns the box tree. On failure the partially built tree is
// returned alongside the error.
func Parse(cur *Cursor) (*Tree, error) {
	return ParseWithOptions(cur, Options{})
}

// ParseWithOptions is Parse with an explicit error policy and logger.
func ParseWithOptions(cur *Cursor, opts Options) (*Tree, error) {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &parser{tree: newTree(cur.Size()), opts: opts, log: log}

	var parseErr error
	for cur.Remaining() >= 8 {
		b, err := p.parseBox(cur, nil, 0, cur.Size())
		if err != nil {
			log.WithFields(logrus.Fields{
				"offset": cur.Pos(),
				"error":  err,
			}).Warn("stopping box parse")
			if p.opts.Policy == SkipOnError && b != nil && b.End > cur.Pos() && b.End <= cur.Size() {
				if seekErr := cur.SeekTo(b.End); seekErr == nil {
					continue
				}
			}
			parseErr = err
			break
		}
		p.tree.Roots = append(p.tree.Roots, b)
	}
	p.tree.reindex()
	return p.tree, parseErr
}

func (t *Tree) reindex() {
	t.index = make(map[FourCC][]*Box)
	t.Walk(func(b *Box) bool {
		t.addIndex(b)
		return true
	})
}

// parseBox reads one box header at the cursor, dispatches the registered
// constructor, and re-seeks to the box's computed end regardless of how many
// bytes the constructor consumed. The re-seek keeps an under- or over-reading
// sub-parser from desynchronizing the rest of the stream.
func (p *parser) parseBox(cur *Cursor, parent *Box, depth int, bound int64) (*Box, error) {
	start := cur.Pos()
	if bound-start < 8 {
		return nil, fmt.Errorf("short box header at %d: %w", start, ErrMalformedBox)
	}
	size32, err := cur.Uint32()
	if err != nil {
		return nil, err
	}
	cc, err := cur.ReadFull(4)
	if err != nil {
		return nil, err
	}
	var typ FourCC
	copy(typ[:], cc)

	headerLen := int64(8)
	var size int64
	switch size32 {
	case 1:
		size64, err := cur.Uint64()
		if err != nil {
			return nil, err
		}
		if size64 > math.MaxInt64 {
			return nil, fmt.Errorf("box %q at %d declares size %d: %w", typ, start, size64, ErrMalformedBox)
		}
		size = int64(size64)
		headerLen = 16
	case 0:
		// Extends to the end of the enclosing container or file.
		size = bound - start
	default:
		size = int64(size32)
	}
	if size < headerLen {
		return nil, fmt.Errorf("box %q at %d has size %d smaller than its header: %w", typ, start, size, ErrMalformedBox)
	}
	end := start + size

	b := &Box{
		Type:      typ,
		Size:      size,
		HeaderLen: headerLen,
		Start:     start,
		End:       end,
		Depth:     depth,
		Parent:    parent,
	}
	if end > cur.Size() {
		return b, fmt.Errorf("box %q at %d ends at %d beyond file size %d: %w", typ, start, end, cur.Size(), ErrTruncated)
	}
	if end > bound {
		return b, fmt.Errorf("box %q at %d ends at %d beyond container bound %d: %w", typ, start, end, bound, ErrMalformedBox)
	}

	if info := registry[typ]; info.parse != nil {
		if err := info.parse(p, b, cur); err != nil {
			return b, fmt.Errorf("parsing %q at %d: %w", typ, start, err)
		}
	}
	// Unknown and opaque boxes fall through as leaf placeholders.

	if err := cur.SeekTo(end); err != nil {
		return b, err
	}
	if parent != nil {
		parent.Children = append(parent.Children, b)
	}
	return b, nil
}

// parseChildren parses child boxes up to the parent's end offset. Trailing
// bytes shorter than a header are left to the caller's re-seek.
func (p *parser) parseChildren(b *Box, cur *Cursor) error {
	for cur.Pos()+8 <= b.End {
		if _, err := p.parseBox(cur, b, b.Depth+1, b.End); err != nil {
			return err
		}
	}
	return nil
}
