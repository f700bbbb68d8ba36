package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

// GraphicsBuilder collects fixed-function state for a graphics pipeline.
// Viewport and scissor are always dynamic.
type GraphicsBuilder struct {
	info gfx.GraphicsPipelineInfo
}

func NewGraphicsBuilder() *GraphicsBuilder {
	b := &GraphicsBuilder{}
	b.Clear()
	return b
}

func (b *GraphicsBuilder) Clear() {
	b.info = gfx.GraphicsPipelineInfo{
		PolygonMode:  gfx.PolygonFill,
		CullMode:     gfx.CullNone,
		FrontFace:    gfx.FrontFaceClockwise,
		Blend:        gfx.BlendNone,
		DepthCompare: gfx.CompareNever,
	}
}

func (b *GraphicsBuilder) SetLayout(layout gfx.PipelineLayout) *GraphicsBuilder {
	b.info.Layout = layout
	return b
}

func (b *GraphicsBuilder) SetShaders(vertex, fragment gfx.ShaderModule) *GraphicsBuilder {
	b.info.Stages = []gfx.ShaderStage{
		{Stage: gfx.StageVertex, Module: vertex, Entry: "main"},
		{Stage: gfx.StageFragment, Module: fragment, Entry: "main"},
	}
	return b
}

func (b *GraphicsBuilder) SetPolygonMode(mode gfx.PolygonMode) *GraphicsBuilder {
	b.info.PolygonMode = mode
	return b
}

func (b *GraphicsBuilder) SetCullMode(mode gfx.CullMode, front gfx.FrontFace) *GraphicsBuilder {
	b.info.CullMode = mode
	b.info.FrontFace = front
	return b
}

func (b *GraphicsBuilder) DisableBlending() *GraphicsBuilder {
	b.info.Blend = gfx.BlendNone
	return b
}

func (b *GraphicsBuilder) EnableBlendingAdditive() *GraphicsBuilder {
	b.info.Blend = gfx.BlendAdditive
	return b
}

func (b *GraphicsBuilder) EnableBlendingAlpha() *GraphicsBuilder {
	b.info.Blend = gfx.BlendAlpha
	return b
}

func (b *GraphicsBuilder) SetColorFormat(format gfx.Format) *GraphicsBuilder {
	b.info.ColorFormat = format
	return b
}

func (b *GraphicsBuilder) SetDepthFormat(format gfx.Format) *GraphicsBuilder {
	b.info.DepthFormat = format
	return b
}

func (b *GraphicsBuilder) DisableDepthTest() *GraphicsBuilder {
	b.info.DepthTest = false
	b.info.DepthWrite = false
	b.info.DepthCompare = gfx.CompareNever
	return b
}

func (b *GraphicsBuilder) EnableDepthTest(write bool, op gfx.CompareOp) *GraphicsBuilder {
	b.info.DepthTest = true
	b.info.DepthWrite = write
	b.info.DepthCompare = op
	return b
}

func (b *GraphicsBuilder) Info() gfx.GraphicsPipelineInfo {
	return b.info
}

func (b *GraphicsBuilder) Build(dev gfx.Device) (gfx.Pipeline, error) {
	if b.info.Layout == 0 {
		return 0, errors.New("graphics pipeline needs a layout")
	}
	if len(b.info.Stages) == 0 {
		return 0, errors.New("graphics pipeline needs shaders")
	}
	for _, s := range b.info.Stages {
		if s.Module == 0 {
			return 0, errors.Newf("graphics pipeline stage %d has no shader module", s.Stage)
		}
	}
	if b.info.ColorFormat == gfx.FormatUndefined {
		return 0, errors.New("graphics pipeline needs a color format")
	}

	pipeline, err := dev.CreateGraphicsPipeline(b.info)
	if err != nil {
		return 0, errors.Wrap(err, "create graphics pipeline")
	}
	return pipeline, nil
}
