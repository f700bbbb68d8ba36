package pipeline

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/mesh"
)

// MeshPushConstants carries the object transform and where the vertex shader
// finds its vertices.
type MeshPushConstants struct {
	WorldMatrix  mgl32.Mat4
	VertexBuffer uint64
}

const MeshPushConstantsSize = 72

func (p MeshPushConstants) Bytes() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.NativeEndian, p)
	return buf.Bytes()
}

const (
	MeshVertexShader   = "mesh.vert.spv"
	MeshFragmentShader = "mesh.frag.spv"
)

// NewMeshPipeline builds the opaque and transparent pipelines used for
// scene geometry. Both read the per-frame scene data through sceneLayout.
func NewMeshPipeline(dev gfx.Device, fsys fs.FS, dir string, color, depth gfx.Format, sceneLayout gfx.DescriptorSetLayout) (opaque, transparent *mesh.MaterialPipeline, err error) {
	vert, err := LoadShaderModule(dev, fsys, path.Join(dir, MeshVertexShader))
	if err != nil {
		return nil, nil, err
	}
	defer dev.DestroyShaderModule(vert)
	frag, err := LoadShaderModule(dev, fsys, path.Join(dir, MeshFragmentShader))
	if err != nil {
		return nil, nil, err
	}
	defer dev.DestroyShaderModule(frag)

	layout, err := dev.CreatePipelineLayout(
		[]gfx.DescriptorSetLayout{sceneLayout},
		[]gfx.PushConstantRange{{Stages: gfx.StageVertex, Offset: 0, Size: MeshPushConstantsSize}},
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create mesh pipeline layout")
	}

	b := NewGraphicsBuilder().
		SetLayout(layout).
		SetShaders(vert, frag).
		SetCullMode(gfx.CullNone, gfx.FrontFaceCounterClockwise).
		SetColorFormat(color).
		SetDepthFormat(depth).
		EnableDepthTest(true, gfx.CompareLessOrEqual)

	opaquePipeline, err := b.Build(dev)
	if err != nil {
		dev.DestroyPipelineLayout(layout)
		return nil, nil, errors.Wrap(err, "opaque")
	}

	b.EnableBlendingAdditive().EnableDepthTest(false, gfx.CompareLessOrEqual)
	transparentPipeline, err := b.Build(dev)
	if err != nil {
		dev.DestroyPipeline(opaquePipeline)
		dev.DestroyPipelineLayout(layout)
		return nil, nil, errors.Wrap(err, "transparent")
	}

	return &mesh.MaterialPipeline{Pipeline: opaquePipeline, Layout: layout},
		&mesh.MaterialPipeline{Pipeline: transparentPipeline, Layout: layout},
		nil
}
