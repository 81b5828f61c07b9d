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

// FourCC is a 4-byte box type identifier.
type FourCC [4]byte

func (c FourCC) String() string { return string(c[:]) }

// Code converts a 4-character string literal into a FourCC.
func Code(s string) FourCC {
	if len(s) != 4 {
		panic("bogus FourCC length")
	}
	return FourCC{s[0], s[1], s[2], s[3]}
}

// Known box types.
var (
	TypeFtyp = Code("ftyp")
	TypeMeta = Code("meta")
	TypeHdlr = Code("hdlr")
	TypePitm = Code("pitm")
	TypeIinf = Code("iinf")
	TypeInfe = Code("infe")
	TypeIloc = Code("iloc")
	TypeIdat = Code("idat")
	TypeIref = Code("iref")
	TypeIprp = Code("iprp")
	TypeIpco = Code("ipco")
	TypeIpma = Code("ipma")
	TypeIspe = Code("ispe")
	TypeIrot = Code("irot")
	TypeImir = Code("imir")
	TypeDinf = Code("dinf")
	TypeDref = Code("dref")
	TypeMdat = Code("mdat")
	TypeFree = Code("free")
	TypeSkip = Code("skip")

	// Item reference types.
	RefContentDescribes = Code("cdsc")
)

// Kind classifies a box type for dispatch and tree queries.
type Kind uint8

const (
	// KindUnknown marks types absent from the registry; their bytes are
	// skipped and a leaf placeholder is recorded.
	KindUnknown Kind = iota
	// KindAtomic boxes carry a typed payload and no children.
	KindAtomic
	// KindContainer boxes hold child boxes and recurse during parsing.
	KindContainer
	// KindOpaque boxes are known but deliberately not decoded (mdat, free).
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindAtomic:
		return "atomic"
	case KindContainer:
		return "container"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

type typeInfo struct {
	kind  Kind
	parse parserFunc
}

type parserFunc func(p *parser, b *Box, cur *Cursor) error

// registry is the closed enumeration of known box types. It is populated at
// package init and never mutated afterward: the parser funcs reach parseBox,
// which reads the map, so a variable initializer would form an
// initialization cycle.
var registry map[FourCC]typeInfo

func init() {
	registry = map[FourCC]typeInfo{
		TypeFtyp: {KindAtomic, parseFileTypeBox},
		TypeMeta: {KindContainer, parseMetaBox},
		TypeHdlr: {KindAtomic, parseHandlerBox},
		TypePitm: {KindAtomic, parsePrimaryItemBox},
		TypeIinf: {KindContainer, parseItemInfoBox},
		TypeInfe: {KindAtomic, parseItemInfoEntry},
		TypeIloc: {KindAtomic, parseItemLocationBox},
		TypeIdat: {KindAtomic, parseItemDataBox},
		TypeIref: {KindAtomic, parseItemReferenceBox},
		TypeIprp: {KindContainer, parseChildrenOnly},
		TypeIpco: {KindContainer, parseChildrenOnly},
		TypeIpma: {KindAtomic, parseItemPropertyAssociation},
		TypeIspe: {KindAtomic, parseImageSpatialExtents},
		TypeIrot: {KindAtomic, parseImageRotation},
		TypeImir: {KindAtomic, parseImageMirror},
		TypeDinf: {KindContainer, parseChildrenOnly},
		TypeDref: {KindContainer, parseDataReferenceBox},
		TypeMdat: {KindOpaque, nil},
		TypeFree: {KindOpaque, nil},
		TypeSkip: {KindOpaque, nil},
	}
}

// KindOf returns the registered kind of a box type, or KindUnknown.
func KindOf(c FourCC) Kind {
	return registry[c].kind
}
