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
	"io"
	"strings"
)

// Box is one node of the parsed box tree. Boxes are created during parsing
// and immutable afterward. End is always Start+Size, and every child's byte
// range lies within [Start+HeaderLen, End).
type Box struct {
	Type      FourCC
	Size      int64
	HeaderLen int64
	Start     int64
	End       int64
	Depth     int

	// Parent is a non-owning back-reference for hierarchy queries.
	Parent   *Box
	Children []*Box

	// Payload holds the type-specific decoded fields for atomic boxes.
	// It is nil for containers, opaque boxes and unknown types.
	Payload Payload
}

// Payload is the closed set of decoded box bodies, keyed by the box's
// FourCC during parsing.
type Payload interface {
	boxPayload()
}

// BodyStart returns the absolute offset of the box body.
func (b *Box) BodyStart() int64 { return b.Start + b.HeaderLen }

// BodyLen returns the byte length of the box body.
func (b *Box) BodyLen() int64 { return b.Size - b.HeaderLen }

func (b *Box) String() string {
	return fmt.Sprintf("%s[%d,%d)", b.Type, b.Start, b.End)
}

// Tree is the result of one parse: the top-level boxes plus a type index
// ordered by encounter.
type Tree struct {
	Roots    []*Box
	FileSize int64

	index map[FourCC][]*Box
}

func newTree(fileSize int64) *Tree {
	return &Tree{FileSize: fileSize, index: make(map[FourCC][]*Box)}
}

func (t *Tree) addIndex(b *Box) {
	t.index[b.Type] = append(t.index[b.Type], b)
}

// FirstBox returns the first box of the given type in encounter order, or
// nil if the tree holds none.
func (t *Tree) FirstBox(c FourCC) *Box {
	if all := t.index[c]; len(all) > 0 {
		return all[0]
	}
	return nil
}

// AllBoxes returns every box of the given type in encounter order.
func (t *Tree) AllBoxes(c FourCC) []*Box {
	return t.index[c]
}

// Walk visits every box depth-first in pre-order. Returning false from fn
// stops the walk.
func (t *Tree) Walk(fn func(*Box) bool) {
	var walk func(b *Box) bool
	walk = func(b *Box) bool {
		if !fn(b) {
			return false
		}
		for _, c := range b.Children {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	for _, r := range t.Roots {
		if !walk(r) {
			return
		}
	}
}

// Dump writes an indented rendering of the box hierarchy to w.
func (t *Tree) Dump(w io.Writer) {
	t.Walk(func(b *Box) bool {
		fmt.Fprintf(w, "%s%s size=%d off=%d\n", strings.Repeat("  ", b.Depth), b.Type, b.Size, b.Start)
		return true
	})
}
