// Package assets loads meshes and node hierarchies from files and uploads
// the geometry to the GPU.
package assets

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/internal/logging"
	"github.com/jvkengine/jvk/mesh"
	"github.com/jvkengine/jvk/scene"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

var logger = logging.Discard()

func SetLogger(l *slog.Logger) {
	logger = l
}

type Uploader interface {
	Upload(ctx context.Context, indices []uint32, vertices []mesh.Vertex) (mesh.GPUBuffers, error)
}

type Options struct {
	Opaque      *mesh.Material
	Transparent *mesh.Material
	// NormalsAsColor replaces vertex colors with the vertex normal, which
	// makes untextured geometry readable.
	NormalsAsColor bool
}

// Scene is a loaded file: its meshes and the node graph referencing them.
type Scene struct {
	Graph  scene.Graph
	Meshes []*mesh.Asset
	ByName map[string]scene.NodeID
}

func (s *Scene) Destroy(alloc gfx.Allocator) {
	for _, m := range s.Meshes {
		m.Buffers.Destroy(alloc)
	}
	s.Meshes = nil
}

func (s *Scene) Draw(top mgl32.Mat4, ctx *scene.DrawContext) {
	s.Graph.Draw(top, ctx)
}

// LoadGLTF reads a .gltf or .glb file. Every mesh becomes one vertex and
// index buffer pair with one surface per primitive.
func LoadGLTF(ctx context.Context, up Uploader, alloc gfx.Allocator, path string, opts Options) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	logger.Info("loading gltf", "path", path, "meshes", len(doc.Meshes), "nodes", len(doc.Nodes))

	s, err := buildScene(ctx, up, alloc, doc, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return s, nil
}

func buildScene(ctx context.Context, up Uploader, alloc gfx.Allocator, doc *gltf.Document, opts Options) (*Scene, error) {
	s := &Scene{ByName: make(map[string]scene.NodeID)}
	ok := false
	defer func() {
		if !ok {
			s.Destroy(alloc)
		}
	}()

	for i, m := range doc.Meshes {
		indices, vertices, surfaces, err := readMesh(doc, m, opts)
		if err != nil {
			return nil, errors.Wrapf(err, "mesh %d %q", i, m.Name)
		}
		buffers, err := up.Upload(ctx, indices, vertices)
		if err != nil {
			return nil, errors.Wrapf(err, "upload mesh %q", m.Name)
		}
		s.Meshes = append(s.Meshes, &mesh.Asset{Name: m.Name, Surfaces: surfaces, Buffers: buffers})
	}

	for _, n := range doc.Nodes {
		var id scene.NodeID
		if n.Mesh != nil {
			if int(*n.Mesh) >= len(s.Meshes) {
				return nil, errors.Newf("node %q references missing mesh %d", n.Name, *n.Mesh)
			}
			id = s.Graph.AddMesh(n.Name, nodeTransform(n), s.Meshes[*n.Mesh])
		} else {
			id = s.Graph.AddGroup(n.Name, nodeTransform(n))
		}
		if n.Name != "" {
			s.ByName[n.Name] = id
		}
	}
	for i, n := range doc.Nodes {
		for _, child := range n.Children {
			if err := s.Graph.Attach(scene.NodeID(child), scene.NodeID(i)); err != nil {
				return nil, err
			}
		}
	}
	s.Graph.RefreshTransforms()

	ok = true
	return s, nil
}

func nodeTransform(n *gltf.Node) mgl32.Mat4 {
	m := n.MatrixOrDefault()
	if m != gltf.DefaultMatrix {
		return mgl32.Mat4(m)
	}

	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	sc := n.ScaleOrDefault()
	rot := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
	return mgl32.Translate3D(t[0], t[1], t[2]).
		Mul4(rot.Mat4()).
		Mul4(mgl32.Scale3D(sc[0], sc[1], sc[2]))
}

func readMesh(doc *gltf.Document, m *gltf.Mesh, opts Options) ([]uint32, []mesh.Vertex, []mesh.Surface, error) {
	var indices []uint32
	var vertices []mesh.Vertex
	var surfaces []mesh.Surface

	for p, prim := range m.Primitives {
		if prim.Indices == nil {
			return nil, nil, nil, errors.Newf("primitive %d has no indices", p)
		}
		posIdx, ok := prim.Attributes[gltf.POSITION]
		if !ok {
			return nil, nil, nil, errors.Newf("primitive %d has no positions", p)
		}

		primIndices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "primitive %d indices", p)
		}
		positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "primitive %d positions", p)
		}

		base := uint32(len(vertices))
		surfaces = append(surfaces, mesh.Surface{
			StartIndex: uint32(len(indices)),
			Count:      uint32(len(primIndices)),
			Material:   pickMaterial(doc, prim, opts),
		})
		for _, idx := range primIndices {
			if int(idx) >= len(positions) {
				return nil, nil, nil, errors.Newf("primitive %d index %d out of range", p, idx)
			}
			indices = append(indices, base+idx)
		}

		for _, pos := range positions {
			vertices = append(vertices, mesh.Vertex{
				Position: mgl32.Vec3(pos),
				Normal:   mgl32.Vec3{1, 0, 0},
				Color:    mgl32.Vec4{1, 1, 1, 1},
			})
		}
		prims := vertices[base:]

		if i, ok := prim.Attributes[gltf.NORMAL]; ok {
			normals, err := modeler.ReadNormal(doc, doc.Accessors[i], nil)
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "primitive %d normals", p)
			}
			for j := range normals {
				if j < len(prims) {
					prims[j].Normal = mgl32.Vec3(normals[j])
				}
			}
		}
		if i, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
			uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[i], nil)
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "primitive %d uvs", p)
			}
			for j := range uvs {
				if j < len(prims) {
					prims[j].UVX = uvs[j][0]
					prims[j].UVY = uvs[j][1]
				}
			}
		}
		if i, ok := prim.Attributes[gltf.COLOR_0]; ok {
			colors, err := modeler.ReadColor(doc, doc.Accessors[i], nil)
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "primitive %d colors", p)
			}
			for j := range colors {
				if j < len(prims) {
					c := colors[j]
					prims[j].Color = mgl32.Vec4{float32(c[0]) / 255, float32(c[1]) / 255, float32(c[2]) / 255, float32(c[3]) / 255}
				}
			}
		}
	}

	if opts.NormalsAsColor {
		for i := range vertices {
			vertices[i].Color = vertices[i].Normal.Vec4(1)
		}
	}
	return indices, vertices, surfaces, nil
}

func pickMaterial(doc *gltf.Document, prim *gltf.Primitive, opts Options) *mesh.Material {
	if prim.Material != nil && int(*prim.Material) < len(doc.Materials) {
		if doc.Materials[*prim.Material].AlphaMode == gltf.AlphaBlend && opts.Transparent != nil {
			return opts.Transparent
		}
	}
	return opts.Opaque
}
