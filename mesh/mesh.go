// Package mesh defines the vertex format and moves geometry into GPU local
// buffers.
package mesh

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/resource"
)

// Vertex matches the std430 layout the shaders read through the vertex
// buffer device address. The uv coordinates are split to fill padding.
type Vertex struct {
	Position mgl32.Vec3
	UVX      float32
	Normal   mgl32.Vec3
	UVY      float32
	Color    mgl32.Vec4
}

const VertexSize = 48

const IndexSize = 4

type Pass int

const (
	PassOpaque Pass = iota
	PassTransparent
)

type MaterialPipeline struct {
	Pipeline gfx.Pipeline
	Layout   gfx.PipelineLayout
}

type Material struct {
	Name     string
	Pipeline *MaterialPipeline
	Set      gfx.DescriptorSet
	Pass     Pass
}

// Surface is a range of the index buffer drawn with one material.
type Surface struct {
	StartIndex uint32
	Count      uint32
	Material   *Material
}

type GPUBuffers struct {
	Index         resource.AllocatedBuffer
	Vertex        resource.AllocatedBuffer
	VertexAddress uint64
}

func (b GPUBuffers) Destroy(alloc gfx.Allocator) {
	if b.Index.Buffer != 0 {
		b.Index.Destroy(alloc)
	}
	if b.Vertex.Buffer != 0 {
		b.Vertex.Destroy(alloc)
	}
}

type Asset struct {
	Name     string
	Surfaces []Surface
	Buffers  GPUBuffers
}

func (a *Asset) TriangleCount() int {
	n := 0
	for _, s := range a.Surfaces {
		n += int(s.Count) / 3
	}
	return n
}

func encode(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, data); err != nil {
		return nil, errors.Wrap(err, "encode")
	}
	return buf.Bytes(), nil
}
