package assets

import (
	"context"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/gfx/gfxtest"
	"github.com/jvkengine/jvk/mesh"
	"github.com/jvkengine/jvk/resource"
	"github.com/jvkengine/jvk/scene"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type upload struct {
	indices  []uint32
	vertices []mesh.Vertex
}

type fakeUploader struct {
	uploads []upload
	fail    int
}

func (f *fakeUploader) Upload(_ context.Context, indices []uint32, vertices []mesh.Vertex) (mesh.GPUBuffers, error) {
	if f.fail != 0 && len(f.uploads)+1 == f.fail {
		return mesh.GPUBuffers{}, errors.New("upload failed")
	}
	f.uploads = append(f.uploads, upload{indices: indices, vertices: vertices})
	return mesh.GPUBuffers{VertexAddress: uint64(len(f.uploads))}, nil
}

var (
	opaque      = &mesh.Material{Name: "opaque", Pass: mesh.PassOpaque}
	transparent = &mesh.Material{Name: "transparent", Pass: mesh.PassTransparent}
)

func triangleDoc() *gltf.Document {
	doc := gltf.NewDocument()
	idx := modeler.WriteIndices(doc, []uint32{0, 1, 2})
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	nrm := modeler.WriteNormal(doc, [][3]float32{{0, 0, 1}, {0, 0, 1}, {0, 0, 1}})
	doc.Materials = []*gltf.Material{{Name: "glass", AlphaMode: gltf.AlphaBlend}}
	doc.Meshes = []*gltf.Mesh{{
		Name: "tri",
		Primitives: []*gltf.Primitive{
			{Indices: gltf.Index(idx), Attributes: gltf.Attribute{gltf.POSITION: pos, gltf.NORMAL: nrm}},
			{Indices: gltf.Index(idx), Attributes: gltf.Attribute{gltf.POSITION: pos}, Material: gltf.Index(0)},
		},
	}}
	doc.Nodes = []*gltf.Node{
		{Name: "root", Children: []uint32{1}, Translation: [3]float32{0, 0, -2}},
		{Name: "tri", Mesh: gltf.Index(0), Translation: [3]float32{1, 0, 0}},
	}
	return doc
}

func TestReadMeshMergesPrimitives(t *testing.T) {
	doc := triangleDoc()
	indices, vertices, surfaces, err := readMesh(doc, doc.Meshes[0], Options{Opaque: opaque, Transparent: transparent})
	require.NoError(t, err)

	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, indices)
	require.Len(t, vertices, 6)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, vertices[0].Normal)
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, vertices[3].Normal, "default normal")
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, vertices[4].Position)

	require.Len(t, surfaces, 2)
	assert.Equal(t, mesh.Surface{StartIndex: 0, Count: 3, Material: opaque}, surfaces[0])
	assert.Equal(t, mesh.Surface{StartIndex: 3, Count: 3, Material: transparent}, surfaces[1])
}

func TestReadMeshNormalsAsColor(t *testing.T) {
	doc := triangleDoc()
	_, vertices, _, err := readMesh(doc, doc.Meshes[0], Options{NormalsAsColor: true})
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec4{0, 0, 1, 1}, vertices[0].Color)
}

func TestReadMeshRejectsMissingIndices(t *testing.T) {
	doc := triangleDoc()
	doc.Meshes[0].Primitives[0].Indices = nil
	_, _, _, err := readMesh(doc, doc.Meshes[0], Options{})
	assert.Error(t, err)
}

func TestBuildSceneGraph(t *testing.T) {
	up := &fakeUploader{}
	s, err := buildScene(context.Background(), up, gfxtest.New(), triangleDoc(), Options{Opaque: opaque})
	require.NoError(t, err)

	require.Len(t, up.uploads, 1)
	require.Len(t, s.Meshes, 1)
	assert.Equal(t, 2, s.Graph.Len())

	tri := s.Graph.Node(s.ByName["tri"])
	require.NotNil(t, tri)
	assert.Equal(t, scene.KindMesh, tri.Kind)
	assert.Equal(t, s.ByName["root"], tri.Parent)
	origin := tri.World.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.True(t, origin.ApproxEqual(mgl32.Vec4{1, 0, -2, 1}))

	var ctx scene.DrawContext
	s.Draw(mgl32.Ident4(), &ctx)
	assert.Len(t, ctx.Opaque, 2)
}

func TestBuildSceneReleasesOnFailure(t *testing.T) {
	doc := triangleDoc()
	doc.Meshes = append(doc.Meshes, doc.Meshes[0])
	gpu := gfxtest.New()
	up := &mesh.Uploader{Device: gpu, Allocator: gpu}
	imm, err := resource.NewImmediateSubmitter(gpu, gpu)
	require.NoError(t, err)
	up.Submitter = imm
	// Second mesh fails on its vertex buffer.
	gpu.FailBufferCreate = 4

	_, err = buildScene(context.Background(), up, gpu, doc, Options{})
	require.Error(t, err)
	assert.NotContains(t, gpu.Live(), "buffer")
}

func TestNodeTransformMatrix(t *testing.T) {
	n := &gltf.Node{Matrix: [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 4, 5, 6, 1}}
	assert.Equal(t, mgl32.Translate3D(4, 5, 6), nodeTransform(n))

	n = &gltf.Node{Matrix: gltf.DefaultMatrix, Rotation: gltf.DefaultRotation, Scale: [3]float32{2, 2, 2}}
	assert.Equal(t, mgl32.Scale3D(2, 2, 2), nodeTransform(n))
}

const quadOBJ = `
mtllib quad.mtl
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
vn 0 0 1
usemtl plain
f 1/1/1 2/2/1 3/3/1 4/4/1
`

const quadMTL = `
newmtl plain
Kd 1 1 1
d 1
`

func TestBuildOBJSceneTriangulates(t *testing.T) {
	decoder, err := obj.DecodeReader(strings.NewReader(quadOBJ), strings.NewReader(quadMTL))
	require.NoError(t, err)

	up := &fakeUploader{}
	s, err := buildOBJScene(context.Background(), up, decoder, "quad", Options{Opaque: opaque})
	require.NoError(t, err)

	require.Len(t, up.uploads, 1)
	u := up.uploads[0]
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, u.indices)
	require.Len(t, u.vertices, 4)
	assert.Equal(t, mgl32.Vec3{0, 0, 1}, u.vertices[0].Normal)
	assert.InDelta(t, 1.0, u.vertices[0].UVY, 1e-6, "v is flipped")

	require.Len(t, s.Meshes[0].Surfaces, 1)
	assert.Equal(t, uint32(6), s.Meshes[0].Surfaces[0].Count)
	assert.Equal(t, opaque, s.Meshes[0].Surfaces[0].Material)
	assert.Equal(t, scene.KindMesh, s.Graph.Node(s.ByName["quad"]).Kind)
}

const mixedOBJ = `
o panel
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
usemtl plain
f 1 2 3
usemtl glass
f 1 3 4
usemtl plain
f 1 2 4
usemtl bare
f 2 3 4
`

const mixedMTL = `
newmtl plain
d 1
newmtl glass
d 0.5
newmtl bare
Kd 1 1 1
`

func TestBuildOBJSceneSplitsSurfacesByMaterial(t *testing.T) {
	decoder, err := obj.DecodeReader(strings.NewReader(mixedOBJ), strings.NewReader(mixedMTL))
	require.NoError(t, err)

	s, err := buildOBJScene(context.Background(), &fakeUploader{}, decoder, "panel", Options{Opaque: opaque, Transparent: transparent})
	require.NoError(t, err)

	assert.Equal(t, []mesh.Surface{
		{StartIndex: 0, Count: 3, Material: opaque},
		{StartIndex: 3, Count: 3, Material: transparent},
		{StartIndex: 6, Count: 6, Material: opaque},
	}, s.Meshes[0].Surfaces)
}

func TestBuildSceneRejectsMissingMesh(t *testing.T) {
	doc := triangleDoc()
	doc.Nodes[1].Mesh = gltf.Index(3)
	gpu := gfxtest.New()

	_, err := buildScene(context.Background(), &fakeUploader{}, gpu, doc, Options{Opaque: opaque})
	assert.ErrorContains(t, err, "missing mesh 3")
}

func TestPickMaterialIgnoresUnknownIndex(t *testing.T) {
	doc := triangleDoc()
	prim := &gltf.Primitive{Material: gltf.Index(5)}
	assert.Equal(t, opaque, pickMaterial(doc, prim, Options{Opaque: opaque, Transparent: transparent}))
	prim.Material = gltf.Index(0)
	assert.Equal(t, transparent, pickMaterial(doc, prim, Options{Opaque: opaque, Transparent: transparent}))
}
