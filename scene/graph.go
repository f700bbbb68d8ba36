// Package scene stores the node hierarchy in a flat arena and turns it into
// draw lists.
package scene

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/mesh"
)

type NodeID int

// NoNode is the parent of a root node.
const NoNode NodeID = -1

type Kind int

const (
	KindGroup Kind = iota
	KindMesh
)

type Node struct {
	Name     string
	Kind     Kind
	Parent   NodeID
	Children []NodeID
	Local    mgl32.Mat4
	World    mgl32.Mat4
	// Mesh is set only for KindMesh nodes.
	Mesh *mesh.Asset
}

type RenderObject struct {
	IndexCount          uint32
	FirstIndex          uint32
	IndexBuffer         gfx.Buffer
	Material            *mesh.Material
	Transform           mgl32.Mat4
	VertexBufferAddress uint64
}

type DrawContext struct {
	Opaque      []RenderObject
	Transparent []RenderObject
}

func (c *DrawContext) Reset() {
	c.Opaque = c.Opaque[:0]
	c.Transparent = c.Transparent[:0]
}

type Graph struct {
	nodes []Node
}

func (g *Graph) add(n Node) NodeID {
	n.Parent = NoNode
	n.World = n.Local
	g.nodes = append(g.nodes, n)
	return NodeID(len(g.nodes) - 1)
}

func (g *Graph) AddGroup(name string, local mgl32.Mat4) NodeID {
	return g.add(Node{Name: name, Kind: KindGroup, Local: local})
}

func (g *Graph) AddMesh(name string, local mgl32.Mat4, asset *mesh.Asset) NodeID {
	return g.add(Node{Name: name, Kind: KindMesh, Local: local, Mesh: asset})
}

func (g *Graph) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(g.nodes)
}

// Attach makes child a child of parent, detaching it from any previous
// parent. Cycles are rejected.
func (g *Graph) Attach(child, parent NodeID) error {
	if !g.valid(child) || !g.valid(parent) {
		return errors.Newf("attach %d to %d: no such node", child, parent)
	}
	for p := parent; p != NoNode; p = g.nodes[p].Parent {
		if p == child {
			return errors.Newf("attach %d to %d would create a cycle", child, parent)
		}
	}

	if old := g.nodes[child].Parent; old != NoNode {
		siblings := g.nodes[old].Children
		for i, id := range siblings {
			if id == child {
				g.nodes[old].Children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	g.nodes[child].Parent = parent
	g.nodes[parent].Children = append(g.nodes[parent].Children, child)
	return nil
}

func (g *Graph) Node(id NodeID) *Node {
	if !g.valid(id) {
		return nil
	}
	return &g.nodes[id]
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Roots() []NodeID {
	var roots []NodeID
	for i := range g.nodes {
		if g.nodes[i].Parent == NoNode {
			roots = append(roots, NodeID(i))
		}
	}
	return roots
}

// RefreshTransforms recomputes every world matrix from the roots down.
func (g *Graph) RefreshTransforms() {
	for _, root := range g.Roots() {
		g.refresh(root, mgl32.Ident4())
	}
}

func (g *Graph) refresh(id NodeID, parent mgl32.Mat4) {
	n := &g.nodes[id]
	n.World = parent.Mul4(n.Local)
	world := n.World
	for _, child := range n.Children {
		g.refresh(child, world)
	}
}

// Draw appends one render object per mesh surface under every root,
// transformed by top.
func (g *Graph) Draw(top mgl32.Mat4, ctx *DrawContext) {
	for _, root := range g.Roots() {
		g.draw(root, top, ctx)
	}
}

// DrawNode draws the subtree below id.
func (g *Graph) DrawNode(id NodeID, top mgl32.Mat4, ctx *DrawContext) {
	if g.valid(id) {
		g.draw(id, top, ctx)
	}
}

func (g *Graph) draw(id NodeID, top mgl32.Mat4, ctx *DrawContext) {
	n := &g.nodes[id]
	if n.Kind == KindMesh && n.Mesh != nil {
		transform := top.Mul4(n.World)
		for _, s := range n.Mesh.Surfaces {
			obj := RenderObject{
				IndexCount:          s.Count,
				FirstIndex:          s.StartIndex,
				IndexBuffer:         n.Mesh.Buffers.Index.Buffer,
				Material:            s.Material,
				Transform:           transform,
				VertexBufferAddress: n.Mesh.Buffers.VertexAddress,
			}
			if s.Material != nil && s.Material.Pass == mesh.PassTransparent {
				ctx.Transparent = append(ctx.Transparent, obj)
			} else {
				ctx.Opaque = append(ctx.Opaque, obj)
			}
		}
	}
	for _, child := range n.Children {
		g.draw(child, top, ctx)
	}
}
