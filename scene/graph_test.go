package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/mesh"
	"github.com/jvkengine/jvk/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAsset() *mesh.Asset {
	opaque := &mesh.Material{Name: "stone", Pass: mesh.PassOpaque}
	glass := &mesh.Material{Name: "glass", Pass: mesh.PassTransparent}
	return &mesh.Asset{
		Name: "box",
		Surfaces: []mesh.Surface{
			{StartIndex: 0, Count: 36, Material: opaque},
			{StartIndex: 36, Count: 6, Material: glass},
		},
		Buffers: mesh.GPUBuffers{
			Index:         resource.AllocatedBuffer{Buffer: 11},
			VertexAddress: 0xbeef,
		},
	}
}

func TestRefreshTransformsComposesParents(t *testing.T) {
	var g Graph
	root := g.AddGroup("root", mgl32.Translate3D(1, 0, 0))
	mid := g.AddGroup("mid", mgl32.Translate3D(0, 2, 0))
	leaf := g.AddMesh("leaf", mgl32.Translate3D(0, 0, 3), testAsset())
	require.NoError(t, g.Attach(mid, root))
	require.NoError(t, g.Attach(leaf, mid))

	g.RefreshTransforms()

	pos := g.Node(leaf).World.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	assert.True(t, pos.ApproxEqual(mgl32.Vec4{1, 2, 3, 1}))
	assert.Equal(t, NoNode, g.Node(root).Parent)
	assert.Equal(t, mid, g.Node(leaf).Parent)
	assert.Equal(t, []NodeID{root}, g.Roots())
}

func TestDrawSortsSurfacesByPass(t *testing.T) {
	var g Graph
	root := g.AddGroup("root", mgl32.Ident4())
	a := g.AddMesh("a", mgl32.Translate3D(5, 0, 0), testAsset())
	b := g.AddMesh("b", mgl32.Ident4(), testAsset())
	require.NoError(t, g.Attach(a, root))
	require.NoError(t, g.Attach(b, a))
	g.RefreshTransforms()

	var ctx DrawContext
	top := mgl32.Scale3D(2, 2, 2)
	g.Draw(top, &ctx)

	require.Len(t, ctx.Opaque, 2)
	require.Len(t, ctx.Transparent, 2)
	first := ctx.Opaque[0]
	assert.Equal(t, uint32(36), first.IndexCount)
	assert.Equal(t, uint32(0), first.FirstIndex)
	assert.Equal(t, uint64(0xbeef), first.VertexBufferAddress)
	assert.EqualValues(t, 11, first.IndexBuffer)
	assert.Equal(t, top.Mul4(mgl32.Translate3D(5, 0, 0)), first.Transform)
	assert.Equal(t, uint32(36), ctx.Transparent[0].FirstIndex)

	ctx.Reset()
	assert.Empty(t, ctx.Opaque)
	assert.Empty(t, ctx.Transparent)
}

func TestDrawNodeLimitsToSubtree(t *testing.T) {
	var g Graph
	left := g.AddMesh("left", mgl32.Ident4(), testAsset())
	g.AddMesh("right", mgl32.Ident4(), testAsset())

	var ctx DrawContext
	g.DrawNode(left, mgl32.Ident4(), &ctx)
	assert.Len(t, ctx.Opaque, 1)

	g.DrawNode(NodeID(99), mgl32.Ident4(), &ctx)
	assert.Len(t, ctx.Opaque, 1)
}

func TestAttachRejectsCycles(t *testing.T) {
	var g Graph
	a := g.AddGroup("a", mgl32.Ident4())
	b := g.AddGroup("b", mgl32.Ident4())
	require.NoError(t, g.Attach(b, a))
	assert.Error(t, g.Attach(a, b))
	assert.Error(t, g.Attach(a, a))
	assert.Error(t, g.Attach(a, NodeID(7)))
}

func TestAttachReparents(t *testing.T) {
	var g Graph
	a := g.AddGroup("a", mgl32.Ident4())
	b := g.AddGroup("b", mgl32.Ident4())
	c := g.AddGroup("c", mgl32.Ident4())
	require.NoError(t, g.Attach(c, a))
	require.NoError(t, g.Attach(c, b))

	assert.Empty(t, g.Node(a).Children)
	assert.Equal(t, []NodeID{c}, g.Node(b).Children)
	assert.ElementsMatch(t, []NodeID{a, b}, g.Roots())
}
