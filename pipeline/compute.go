package pipeline

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"path"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/gfx"
)

// PushConstants is the free-form parameter block every background effect
// receives.
type PushConstants struct {
	Data1 mgl32.Vec4
	Data2 mgl32.Vec4
	Data3 mgl32.Vec4
	Data4 mgl32.Vec4
}

const PushConstantsSize = 64

func (p PushConstants) Bytes() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.NativeEndian, p)
	return buf.Bytes()
}

type ComputeEffect struct {
	Name     string
	Pipeline gfx.Pipeline
	Layout   gfx.PipelineLayout
	Data     PushConstants
}

const workgroupSize = 16

func groups(n uint32) uint32 {
	return (n + workgroupSize - 1) / workgroupSize
}

// Record dispatches the effect over extent. The target image must be bound
// through set and be in the General layout.
func (e *ComputeEffect) Record(cmd gfx.CommandBuffer, set gfx.DescriptorSet, extent gfx.Extent2D) {
	cmd.BindPipeline(gfx.BindPointCompute, e.Pipeline)
	cmd.BindDescriptorSets(gfx.BindPointCompute, e.Layout, 0, set)
	cmd.PushConstants(e.Layout, gfx.StageCompute, 0, e.Data.Bytes())
	cmd.Dispatch(groups(extent.Width), groups(extent.Height), 1)
}

type EffectSpec struct {
	Name   string
	Shader string
	Data   PushConstants
}

// DefaultEffects are the two background effects shipped with the engine.
var DefaultEffects = []EffectSpec{
	{
		Name:   "gradient",
		Shader: "gradient_color.comp.spv",
		Data: PushConstants{
			Data1: mgl32.Vec4{1, 0, 0, 1},
			Data2: mgl32.Vec4{0, 0, 1, 1},
		},
	},
	{
		Name:   "sky",
		Shader: "sky.comp.spv",
		Data: PushConstants{
			Data1: mgl32.Vec4{0.1, 0.2, 0.4, 0.97},
		},
	},
}

// Effects is a set of compute effects sharing one pipeline layout.
type Effects struct {
	Layout gfx.PipelineLayout
	List   []ComputeEffect
}

func NewEffects(dev gfx.Device, fsys fs.FS, dir string, imageLayout gfx.DescriptorSetLayout, specs []EffectSpec) (*Effects, error) {
	layout, err := dev.CreatePipelineLayout(
		[]gfx.DescriptorSetLayout{imageLayout},
		[]gfx.PushConstantRange{{Stages: gfx.StageCompute, Offset: 0, Size: PushConstantsSize}},
	)
	if err != nil {
		return nil, errors.Wrap(err, "create compute pipeline layout")
	}

	e := &Effects{Layout: layout}
	for _, spec := range specs {
		effect, err := e.build(dev, fsys, path.Join(dir, spec.Shader), spec)
		if err != nil {
			e.Destroy(dev)
			return nil, errors.Wrapf(err, "effect %s", spec.Name)
		}
		e.List = append(e.List, effect)
	}
	return e, nil
}

func (e *Effects) build(dev gfx.Device, fsys fs.FS, shaderPath string, spec EffectSpec) (ComputeEffect, error) {
	module, err := LoadShaderModule(dev, fsys, shaderPath)
	if err != nil {
		return ComputeEffect{}, err
	}
	defer dev.DestroyShaderModule(module)

	p, err := dev.CreateComputePipeline(gfx.ComputePipelineInfo{
		Layout: e.Layout,
		Stage:  gfx.ShaderStage{Stage: gfx.StageCompute, Module: module, Entry: "main"},
	})
	if err != nil {
		return ComputeEffect{}, errors.Wrap(err, "create compute pipeline")
	}
	return ComputeEffect{Name: spec.Name, Pipeline: p, Layout: e.Layout, Data: spec.Data}, nil
}

func (e *Effects) Destroy(dev gfx.Device) {
	for _, effect := range e.List {
		dev.DestroyPipeline(effect.Pipeline)
	}
	e.List = nil
	dev.DestroyPipelineLayout(e.Layout)
}
