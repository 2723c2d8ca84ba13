// Package nif implements a transcoder for the Gamebryo scene-graph
// container: it rewrites a big-endian console file into the little-endian,
// unpacked layout desktop tooling expects.
//
// The easiest way to convert is through Converter.Convert, which takes the
// whole source buffer and returns a converted buffer plus summary metadata,
// or a typed failure. Block contents are interpreted against a schema
// catalog; console-only packed geometry containers are decoded, their
// vertex attributes folded into the owning geometry blocks, and the block
// graph renumbered so every reference and size table stays consistent.
package nif

// Recognized header line prefixes. The rest of the line repeats the version
// in dotted form.
const (
	gamebryoSig   = "Gamebryo File Format"
	netImmerseSig = "NetImmerse File Format"
)

// maxHeaderLine bounds the search for the header line terminator.
const maxHeaderLine = 128

// Versions with the block-size table this engine depends on.
const (
	minVersion = 0x14020005 // 20.2.0.5
	maxVersion = 0x14020007 // 20.2.0.7
)

// Endianness marker values. Output always writes markerLittle.
const (
	markerBig    = 0
	markerLittle = 1
)

// NoRef is the "no reference" sentinel for block-index fields.
const NoRef int32 = -1

// Vendor sub-header: present when the version/user-version pair matches the
// vendor profile; the fourth string appears from this stream version on.
const (
	vendorMinUser       = 3
	vendorFourthStringV = 130
)

// Block type names the pipeline routes specially. Subtypes count, so
// dispatch goes through Catalog.IsSubtypeOf rather than string comparison.
const (
	typeAdditionalData = "NiAdditionalGeometryData"
	typePackedData     = "BSPackedAdditionalGeometryData"
	typeGeometry       = "NiTriBasedGeom"
	typeGeometryData   = "NiTriBasedGeomData"
	typeTriShapeData   = "NiTriShapeData"
	typeTriStripsData  = "NiTriStripsData"
	typeSkinInstance   = "NiSkinInstance"
	typeSkinPartition  = "NiSkinPartition"
)
