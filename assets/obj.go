package assets

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/mesh"
	"github.com/jvkengine/jvk/scene"
)

// LoadOBJ reads a Wavefront model and its material library into a scene with
// a single mesh node. Faces are triangulated as fans.
func LoadOBJ(ctx context.Context, up Uploader, objPath, mtlPath string, opts Options) (*Scene, error) {
	meshFile, err := os.Open(objPath)
	if err != nil {
		return nil, errors.Wrap(err, "open model")
	}
	defer meshFile.Close()

	var matFile io.Reader
	if mtlPath != "" {
		f, err := os.Open(mtlPath)
		if err != nil {
			return nil, errors.Wrap(err, "open materials")
		}
		defer f.Close()
		matFile = f
	}

	decoder, err := obj.DecodeReader(meshFile, matFile)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", objPath)
	}
	logger.Info("loading obj", "path", objPath, "objects", len(decoder.Objects))

	return buildOBJScene(ctx, up, decoder, objPath, opts)
}

type objKey struct {
	vertex, uv, normal int
}

type objBuilder struct {
	decoder  *obj.Decoder
	unique   map[objKey]uint32
	vertices []mesh.Vertex
	indices  []uint32
}

func (b *objBuilder) addVertex(face obj.Face, faceIndex int) error {
	key := objKey{vertex: face.Vertices[faceIndex], uv: -1, normal: -1}
	if faceIndex < len(face.Uvs) {
		key.uv = face.Uvs[faceIndex]
	}
	if faceIndex < len(face.Normals) {
		key.normal = face.Normals[faceIndex]
	}

	index, exists := b.unique[key]
	if !exists {
		d := b.decoder
		if (key.vertex+1)*3 > len(d.Vertices) {
			return errors.Newf("vertex %d out of range", key.vertex)
		}
		vert := mesh.Vertex{
			Position: mgl32.Vec3{
				d.Vertices[key.vertex*3],
				d.Vertices[key.vertex*3+1],
				d.Vertices[key.vertex*3+2],
			},
			Normal: mgl32.Vec3{1, 0, 0},
			Color:  mgl32.Vec4{1, 1, 1, 1},
		}
		if key.uv >= 0 && (key.uv+1)*2 <= len(d.Uvs) {
			vert.UVX = d.Uvs[key.uv*2]
			vert.UVY = 1.0 - d.Uvs[key.uv*2+1]
		}
		if key.normal >= 0 && (key.normal+1)*3 <= len(d.Normals) {
			vert.Normal = mgl32.Vec3{
				d.Normals[key.normal*3],
				d.Normals[key.normal*3+1],
				d.Normals[key.normal*3+2],
			}
		}

		index = uint32(len(b.vertices))
		b.vertices = append(b.vertices, vert)
		b.unique[key] = index
	}

	b.indices = append(b.indices, index)
	return nil
}

func buildOBJScene(ctx context.Context, up Uploader, decoder *obj.Decoder, name string, opts Options) (*Scene, error) {
	b := &objBuilder{decoder: decoder, unique: make(map[objKey]uint32)}
	var surfaces []mesh.Surface

	for _, decodedObj := range decoder.Objects {
		start := uint32(len(b.indices))
		var material *mesh.Material
		flush := func() {
			if count := uint32(len(b.indices)) - start; count > 0 {
				surfaces = append(surfaces, mesh.Surface{StartIndex: start, Count: count, Material: material})
			}
			start = uint32(len(b.indices))
		}
		for f, face := range decodedObj.Faces {
			faceMaterial := objMaterial(decoder, face.Material, opts)
			if f > 0 && faceMaterial != material {
				flush()
			}
			material = faceMaterial
			for v := 2; v < len(face.Vertices); v++ {
				for _, corner := range []int{0, v - 1, v} {
					if err := b.addVertex(face, corner); err != nil {
						return nil, errors.Wrapf(err, "object %q", decodedObj.Name)
					}
				}
			}
		}
		flush()
	}
	if opts.NormalsAsColor {
		for i := range b.vertices {
			b.vertices[i].Color = b.vertices[i].Normal.Vec4(1)
		}
	}

	buffers, err := up.Upload(ctx, b.indices, b.vertices)
	if err != nil {
		return nil, errors.Wrap(err, "upload model")
	}

	asset := &mesh.Asset{Name: name, Surfaces: surfaces, Buffers: buffers}
	s := &Scene{Meshes: []*mesh.Asset{asset}, ByName: make(map[string]scene.NodeID)}
	s.ByName[name] = s.Graph.AddMesh(name, mgl32.Ident4(), asset)
	return s, nil
}

// objMaterial maps a face's MTL material to a pass. A material that never
// sets "d" decodes with zero opacity and stays opaque.
func objMaterial(decoder *obj.Decoder, name string, opts Options) *mesh.Material {
	m, ok := decoder.Materials[name]
	if ok && m.Opacity > 0 && m.Opacity < 1 && opts.Transparent != nil {
		return opts.Transparent
	}
	return opts.Opaque
}
