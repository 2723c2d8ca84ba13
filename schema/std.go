package schema

import (
	"sync"

	"nif360/expr"
)

var (
	gamebryoOnce sync.Once
	gamebryo     *Catalog
)

// Gamebryo returns the built-in catalog covering the 20.2.0.x Gamebryo
// stream with the Bethesda extensions the console files carry. The catalog
// is built once and shared; it is immutable after construction.
func Gamebryo() *Catalog {
	gamebryoOnce.Do(func() {
		gamebryo = New(gamebryoDecls()...)
	})
	return gamebryo
}

func gamebryoDecls() []Decl {
	return []Decl{
		// Basic types.
		BasicType("bool", 1, true),
		BasicType("byte", 1, true),
		BasicType("char", 1, true),
		BasicType("short", 2, true),
		BasicType("ushort", 2, true),
		BasicType("int", 4, true),
		BasicType("uint", 4, true),
		BasicType("int64", 8, true),
		BasicType("uint64", 8, true),
		BasicType("float", 4, false),
		BasicType("hfloat", 2, false),
		BasicType("StringIndex", 4, true),
		BasicType("FileVersion", 4, true),
		RefType("Ref"),
		RefType("Ptr"),

		// Enums and bitflags redirect to their storage type.
		EnumType("EndianType", "byte"),
		EnumType("ConsistencyType", "ushort"),
		EnumType("BillboardMode", "ushort"),
		EnumType("PixelLayout", "uint"),
		EnumType("AlphaFormat", "uint"),
		EnumType("MipMapFormat", "uint"),
		EnumType("BSPartFlag", "ushort"),

		// Fixed-size compounds.
		StructType("Vector3", 12,
			F("x", "float"), F("y", "float"), F("z", "float")),
		StructType("Vector4", 16,
			F("x", "float"), F("y", "float"), F("z", "float"), F("w", "float")),
		StructType("Color3", 12,
			F("r", "float"), F("g", "float"), F("b", "float")),
		StructType("Color4", 16,
			F("r", "float"), F("g", "float"), F("b", "float"), F("a", "float")),
		StructType("TexCoord", 8,
			F("u", "float"), F("v", "float")),
		StructType("Triangle", 6,
			F("v1", "ushort"), F("v2", "ushort"), F("v3", "ushort")),
		StructType("Matrix33", 36,
			F("m11", "float"), F("m21", "float"), F("m31", "float"),
			F("m12", "float"), F("m22", "float"), F("m32", "float"),
			F("m13", "float"), F("m23", "float"), F("m33", "float")),
		StructType("Quaternion", 16,
			F("w", "float"), F("x", "float"), F("y", "float"), F("z", "float")),
		StructType("NiBound", 16,
			F("Center", "Vector3"), F("Radius", "float")),
		StructType("SkinTransform", 52,
			F("Rotation", "Matrix33"), F("Translation", "Vector3"), F("Scale", "float")),
		StructType("BoneVertData", 6,
			F("Index", "ushort"), F("Weight", "float")),
		StructType("BodyPartList", 4,
			F("PartFlag", "BSPartFlag"), F("BodyPart", "ushort")),
		StructType("AdditionalDataInfo", 24,
			F("DataType", "int"), F("UnitSize", "int"), F("TotalSize", "int"),
			F("Stride", "int"), F("BlockIndex", "int"), F("BlockOffset", "int")),

		// Bit-packed units are swapped whole.
		AtomicType("HavokFilter", 4),

		// Variable-size compounds.
		VarStructType("MatchGroup",
			F("NumVertices", "ushort"),
			F("VertexIndices", "ushort").Len("NumVertices")),
		VarStructType("BoneData",
			F("SkinTransform", "SkinTransform"),
			F("BoundingSphere", "NiBound"),
			F("NumVertices", "ushort"),
			F("VertexWeights", "BoneVertData").Len("NumVertices").If("HasVertexWeights")),
		VarStructType("SkinPartition",
			F("NumVertices", "ushort"),
			F("NumTriangles", "ushort"),
			F("NumBones", "ushort"),
			F("NumStrips", "ushort"),
			F("NumWeightsPerVertex", "ushort"),
			F("Bones", "ushort").Len("NumBones"),
			F("HasVertexMap", "bool"),
			F("VertexMap", "ushort").Len("NumVertices").If("HasVertexMap"),
			F("HasVertexWeights", "bool"),
			F("VertexWeights", "float").Len("NumVertices").Dim("NumWeightsPerVertex").If("HasVertexWeights"),
			F("StripLengths", "ushort").Len("NumStrips"),
			F("HasFaces", "bool"),
			F("Strips", "ushort").Len("NumStrips").Dim("StripLengths").If("HasFaces != 0 && NumStrips != 0"),
			F("Triangles", "Triangle").Len("NumTriangles").If("HasFaces != 0 && NumStrips == 0"),
			F("HasBoneIndices", "bool"),
			F("BoneIndices", "byte").Len("NumVertices").Dim("NumWeightsPerVertex").If("HasBoneIndices")),
		VarStructType("AdditionalDataBlock",
			F("HasData", "bool"),
			F("BlockSize", "int").If("HasData"),
			F("NumSubBlocks", "int").If("HasData"),
			F("SubBlockOffsets", "int").Len("NumSubBlocks").If("HasData"),
			F("NumAtoms", "int").If("HasData"),
			F("AtomSizes", "int").Len("NumAtoms").If("HasData"),
			F("Data", "byte").Len("BlockSize").If("HasData")),

		// Object hierarchy.
		AbstractType("NiObject", ""),
		AbstractType("NiObjectNET", "NiObject",
			F("Name", "StringIndex"),
			F("NumExtraDataList", "uint"),
			F("ExtraDataList", "Ref").Len("NumExtraDataList"),
			F("Controller", "Ref")),
		AbstractType("NiAVObject", "NiObjectNET",
			F("Flags", "ushort").VerIf("User < 11 || Stream <= 26"),
			F("Flags", "uint").VerIf("User >= 11 && Stream > 26"),
			F("Translation", "Vector3"),
			F("Rotation", "Matrix33"),
			F("Scale", "float"),
			F("NumProperties", "uint").VerIf("User < 11 || Stream <= 34"),
			F("Properties", "Ref").Len("NumProperties").VerIf("User < 11 || Stream <= 34"),
			F("CollisionObject", "Ref")),
		ObjectType("NiNode", "NiAVObject",
			F("NumChildren", "uint"),
			F("Children", "Ref").Len("NumChildren"),
			F("NumEffects", "uint"),
			F("Effects", "Ref").Len("NumEffects")),
		ObjectType("BSFadeNode", "NiNode"),

		AbstractType("NiGeometry", "NiAVObject",
			F("Data", "Ref"),
			F("SkinInstance", "Ref"),
			F("NumMaterials", "uint"),
			F("MaterialNames", "StringIndex").Len("NumMaterials"),
			F("MaterialExtraData", "int").Len("NumMaterials"),
			F("ActiveMaterial", "int"),
			F("MaterialNeedsUpdate", "bool"),
			F("ShaderProperty", "Ref").VerIf("User >= 11 && Stream > 34"),
			F("AlphaProperty", "Ref").VerIf("User >= 11 && Stream > 34")),
		AbstractType("NiTriBasedGeom", "NiGeometry"),
		ObjectType("NiTriShape", "NiTriBasedGeom"),
		ObjectType("NiTriStrips", "NiTriBasedGeom"),

		AbstractType("NiGeometryData", "NiObject",
			F("GroupID", "int").SinceV(expr.Ver("10.1.0.114")),
			F("NumVertices", "ushort"),
			F("KeepFlags", "byte").SinceV(expr.Ver("10.1.0.0")),
			F("CompressFlags", "byte").SinceV(expr.Ver("10.1.0.0")),
			F("HasVertices", "bool"),
			F("Vertices", "Vector3").Len("NumVertices").If("HasVertices"),
			F("VectorFlags", "ushort").SinceV(expr.Ver("10.0.1.0")),
			F("HasNormals", "bool"),
			F("Normals", "Vector3").Len("NumVertices").If("HasNormals"),
			F("Tangents", "Vector3").Len("NumVertices").If("HasNormals != 0 && (VectorFlags & 4096) != 0"),
			F("Bitangents", "Vector3").Len("NumVertices").If("HasNormals != 0 && (VectorFlags & 4096) != 0"),
			F("Center", "Vector3"),
			F("Radius", "float"),
			F("HasVertexColors", "bool"),
			F("VertexColors", "Color4").Len("NumVertices").If("HasVertexColors"),
			F("UVSets", "TexCoord").Len("VectorFlags & 63").Dim("NumVertices"),
			F("ConsistencyFlags", "ConsistencyType").SinceV(expr.Ver("10.0.1.0")),
			F("AdditionalData", "Ref").SinceV(expr.Ver("20.0.0.4"))),
		AbstractType("NiTriBasedGeomData", "NiGeometryData",
			F("NumTriangles", "ushort")),
		ObjectType("NiTriShapeData", "NiTriBasedGeomData",
			F("NumTrianglePoints", "uint"),
			F("HasTriangles", "bool").SinceV(expr.Ver("10.1.0.0")),
			F("Triangles", "Triangle").Len("NumTriangles").If("HasTriangles"),
			F("NumMatchGroups", "ushort"),
			F("MatchGroups", "MatchGroup").Len("NumMatchGroups")),
		ObjectType("NiTriStripsData", "NiTriBasedGeomData",
			F("NumStrips", "ushort"),
			F("StripLengths", "ushort").Len("NumStrips"),
			F("HasPoints", "bool").SinceV(expr.Ver("10.0.1.3")),
			F("Points", "ushort").Len("NumStrips").Dim("StripLengths").If("HasPoints")),
		ObjectType("NiParticlesData", "NiGeometryData",
			F("NumParticles", "ushort").VerIf("#NI#"),
			F("ParticleRadius", "float").VerIf("#NI#"),
			F("HasRadii", "bool"),
			F("Radii", "float").Len("NumVertices").If("HasRadii"),
			F("NumActive", "ushort"),
			F("HasSizes", "bool"),
			F("Sizes", "float").Len("NumVertices").If("HasSizes"),
			F("HasRotations", "bool"),
			F("Rotations", "Quaternion").Len("NumVertices").If("HasRotations"),
			F("NumSubtextureOffsets", "uint").OnlyFor("NiPSysData"),
			F("SubtextureOffsets", "Vector4").Len("NumSubtextureOffsets").OnlyFor("NiPSysData")),
		ObjectType("NiRotatingParticlesData", "NiParticlesData"),
		ObjectType("NiPSysData", "NiParticlesData"),

		ObjectType("NiSkinInstance", "NiObject",
			F("Data", "Ref"),
			F("SkinPartition", "Ref"),
			F("SkeletonRoot", "Ptr"),
			F("NumBones", "uint"),
			F("Bones", "Ptr").Len("NumBones")),
		ObjectType("BSDismemberSkinInstance", "NiSkinInstance",
			F("NumPartitions", "int"),
			F("Partitions", "BodyPartList").Len("NumPartitions")),
		ObjectType("NiSkinData", "NiObject",
			F("SkinTransform", "SkinTransform"),
			F("NumBones", "uint"),
			F("HasVertexWeights", "bool"),
			F("BoneList", "BoneData").Len("NumBones")),
		ObjectType("NiSkinPartition", "NiObject",
			F("NumPartitions", "uint"),
			F("Partitions", "SkinPartition").Len("NumPartitions")),

		AbstractType("NiAdditionalGeometryData", "NiObject",
			F("NumVertices", "ushort"),
			F("NumBlockInfos", "uint"),
			F("BlockInfos", "AdditionalDataInfo").Len("NumBlockInfos")),
		ObjectType("BSPackedAdditionalGeometryData", "NiAdditionalGeometryData",
			F("NumBlocks", "int"),
			F("Blocks", "AdditionalDataBlock").Len("NumBlocks")),

		AbstractType("NiExtraData", "NiObject",
			F("Name", "StringIndex").SinceV(expr.Ver("10.0.1.0"))),
		ObjectType("NiStringExtraData", "NiExtraData",
			F("StringData", "StringIndex")),
		ObjectType("NiIntegerExtraData", "NiExtraData",
			F("IntegerData", "uint")),
		ObjectType("BSXFlags", "NiIntegerExtraData"),
		ObjectType("NiFloatExtraData", "NiExtraData",
			F("FloatData", "float")),
		ObjectType("NiBinaryExtraData", "NiExtraData",
			F("DataSize", "uint"),
			F("Data", "byte").Len("DataSize")),

		AbstractType("NiProperty", "NiObjectNET"),
		ObjectType("NiAlphaProperty", "NiProperty",
			F("Flags", "ushort"),
			F("Threshold", "byte")),
		ObjectType("NiMaterialProperty", "NiProperty",
			F("AmbientColor", "Color3").VerIf("User < 11 || Stream <= 21"),
			F("DiffuseColor", "Color3").VerIf("User < 11 || Stream <= 21"),
			F("SpecularColor", "Color3"),
			F("EmissiveColor", "Color3"),
			F("Glossiness", "float"),
			F("Alpha", "float"),
			F("EmissiveMult", "float").VerIf("User >= 11 && Stream > 21")),

		AbstractType("NiTimeController", "NiObject",
			F("NextController", "Ref"),
			F("Flags", "ushort"),
			F("Frequency", "float"),
			F("Phase", "float"),
			F("StartTime", "float"),
			F("StopTime", "float"),
			F("Target", "Ptr")),
	}
}
