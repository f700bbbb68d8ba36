package vkng

import (
	"github.com/jvkengine/jvk/gfx"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_buffer_device_address"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

var formats = map[gfx.Format]core1_0.Format{
	gfx.FormatUndefined:          core1_0.FormatUndefined,
	gfx.FormatB8G8R8A8Unorm:      core1_0.FormatB8G8R8A8UnsignedNormalized,
	gfx.FormatB8G8R8A8SRGB:       core1_0.FormatB8G8R8A8SRGB,
	gfx.FormatR8G8B8A8Unorm:      core1_0.FormatR8G8B8A8UnsignedNormalized,
	gfx.FormatR16G16B16A16SFloat: core1_0.FormatR16G16B16A16SignedFloat,
	gfx.FormatD32SFloat:          core1_0.FormatD32SignedFloat,
}

func format(f gfx.Format) core1_0.Format {
	return formats[f]
}

func formatFromVulkan(f core1_0.Format) gfx.Format {
	for k, v := range formats {
		if v == f {
			return k
		}
	}
	return gfx.FormatUndefined
}

func layout(l gfx.ImageLayout) core1_0.ImageLayout {
	switch l {
	case gfx.LayoutGeneral:
		return core1_0.ImageLayoutGeneral
	case gfx.LayoutColorAttachmentOptimal:
		return core1_0.ImageLayoutColorAttachmentOptimal
	case gfx.LayoutDepthAttachmentOptimal:
		// Depth-only formats are the only depth targets, so the combined
		// layout is equivalent.
		return core1_0.ImageLayoutDepthStencilAttachmentOptimal
	case gfx.LayoutTransferSrcOptimal:
		return core1_0.ImageLayoutTransferSrcOptimal
	case gfx.LayoutTransferDstOptimal:
		return core1_0.ImageLayoutTransferDstOptimal
	case gfx.LayoutShaderReadOnlyOptimal:
		return core1_0.ImageLayoutShaderReadOnlyOptimal
	case gfx.LayoutPresentSrc:
		return khr_swapchain.ImageLayoutPresentSrc
	}
	return core1_0.ImageLayoutUndefined
}

func aspect(a gfx.ImageAspectFlags) core1_0.ImageAspectFlags {
	var out core1_0.ImageAspectFlags
	if a&gfx.AspectColor != 0 {
		out |= core1_0.ImageAspectColor
	}
	if a&gfx.AspectDepth != 0 {
		out |= core1_0.ImageAspectDepth
	}
	return out
}

func imageUsage(u gfx.ImageUsageFlags) core1_0.ImageUsageFlags {
	bits := []struct {
		in  gfx.ImageUsageFlags
		out core1_0.ImageUsageFlags
	}{
		{gfx.ImageUsageTransferSrc, core1_0.ImageUsageTransferSrc},
		{gfx.ImageUsageTransferDst, core1_0.ImageUsageTransferDst},
		{gfx.ImageUsageSampled, core1_0.ImageUsageSampled},
		{gfx.ImageUsageStorage, core1_0.ImageUsageStorage},
		{gfx.ImageUsageColorAttachment, core1_0.ImageUsageColorAttachment},
		{gfx.ImageUsageDepthStencilAttachment, core1_0.ImageUsageDepthStencilAttachment},
	}
	var out core1_0.ImageUsageFlags
	for _, b := range bits {
		if u&b.in != 0 {
			out |= b.out
		}
	}
	return out
}

func bufferUsage(u gfx.BufferUsageFlags) core1_0.BufferUsageFlags {
	bits := []struct {
		in  gfx.BufferUsageFlags
		out core1_0.BufferUsageFlags
	}{
		{gfx.BufferUsageTransferSrc, core1_0.BufferUsageTransferSrc},
		{gfx.BufferUsageTransferDst, core1_0.BufferUsageTransferDst},
		{gfx.BufferUsageUniform, core1_0.BufferUsageUniformBuffer},
		{gfx.BufferUsageStorage, core1_0.BufferUsageStorageBuffer},
		{gfx.BufferUsageIndex, core1_0.BufferUsageIndexBuffer},
		{gfx.BufferUsageVertex, core1_0.BufferUsageVertexBuffer},
		{gfx.BufferUsageShaderDeviceAddress, khr_buffer_device_address.BufferUsageShaderDeviceAddress},
	}
	var out core1_0.BufferUsageFlags
	for _, b := range bits {
		if u&b.in != 0 {
			out |= b.out
		}
	}
	return out
}

func descriptorType(t gfx.DescriptorType) core1_0.DescriptorType {
	switch t {
	case gfx.DescriptorSampler:
		return core1_0.DescriptorTypeSampler
	case gfx.DescriptorCombinedImageSampler:
		return core1_0.DescriptorTypeCombinedImageSampler
	case gfx.DescriptorSampledImage:
		return core1_0.DescriptorTypeSampledImage
	case gfx.DescriptorStorageImage:
		return core1_0.DescriptorTypeStorageImage
	case gfx.DescriptorUniformBuffer:
		return core1_0.DescriptorTypeUniformBuffer
	}
	return core1_0.DescriptorTypeStorageBuffer
}

func shaderStages(s gfx.ShaderStageFlags) core1_0.ShaderStageFlags {
	var out core1_0.ShaderStageFlags
	if s&gfx.StageVertex != 0 {
		out |= core1_0.StageVertex
	}
	if s&gfx.StageFragment != 0 {
		out |= core1_0.StageFragment
	}
	if s&gfx.StageCompute != 0 {
		out |= core1_0.StageCompute
	}
	return out
}

func pipelineStages(s gfx.PipelineStageFlags) core1_0.PipelineStageFlags {
	bits := []struct {
		in  gfx.PipelineStageFlags
		out core1_0.PipelineStageFlags
	}{
		{gfx.PipelineStageTopOfPipe, core1_0.PipelineStageTopOfPipe},
		{gfx.PipelineStageFragmentShader, core1_0.PipelineStageFragmentShader},
		{gfx.PipelineStageColorAttachmentOutput, core1_0.PipelineStageColorAttachmentOutput},
		{gfx.PipelineStageComputeShader, core1_0.PipelineStageComputeShader},
		{gfx.PipelineStageTransfer, core1_0.PipelineStageTransfer},
		{gfx.PipelineStageBottomOfPipe, core1_0.PipelineStageBottomOfPipe},
		{gfx.PipelineStageAllGraphics, core1_0.PipelineStageAllGraphics},
		{gfx.PipelineStageAllCommands, core1_0.PipelineStageAllCommands},
	}
	var out core1_0.PipelineStageFlags
	for _, b := range bits {
		if s&b.in != 0 {
			out |= b.out
		}
	}
	return out
}

func access(a gfx.AccessFlags) core1_0.AccessFlags {
	var out core1_0.AccessFlags
	if a&gfx.AccessMemoryRead != 0 {
		out |= core1_0.AccessMemoryRead
	}
	if a&gfx.AccessMemoryWrite != 0 {
		out |= core1_0.AccessMemoryWrite
	}
	return out
}

func bindPoint(b gfx.BindPoint) core1_0.PipelineBindPoint {
	if b == gfx.BindPointCompute {
		return core1_0.PipelineBindPointCompute
	}
	return core1_0.PipelineBindPointGraphics
}

func indexType(t gfx.IndexType) core1_0.IndexType {
	if t == gfx.IndexTypeUInt16 {
		return core1_0.IndexTypeUInt16
	}
	return core1_0.IndexTypeUInt32
}

func loadOp(op gfx.LoadOp) core1_0.AttachmentLoadOp {
	switch op {
	case gfx.LoadOpClear:
		return core1_0.AttachmentLoadOpClear
	case gfx.LoadOpDontCare:
		return core1_0.AttachmentLoadOpDontCare
	}
	return core1_0.AttachmentLoadOpLoad
}

func filter(f gfx.Filter) core1_0.Filter {
	if f == gfx.FilterNearest {
		return core1_0.FilterNearest
	}
	return core1_0.FilterLinear
}

func presentMode(m gfx.PresentMode) khr_surface.PresentMode {
	switch m {
	case gfx.PresentModeMailbox:
		return khr_surface.PresentModeMailbox
	case gfx.PresentModeImmediate:
		return khr_surface.PresentModeImmediate
	}
	return khr_surface.PresentModeFIFO
}

func cullMode(m gfx.CullMode) core1_0.CullModeFlags {
	switch m {
	case gfx.CullBack:
		return core1_0.CullModeBack
	case gfx.CullFront:
		return core1_0.CullModeFront
	}
	return 0
}

func frontFace(f gfx.FrontFace) core1_0.FrontFace {
	if f == gfx.FrontFaceClockwise {
		return core1_0.FrontFaceClockwise
	}
	return core1_0.FrontFaceCounterClockwise
}

func polygonMode(m gfx.PolygonMode) core1_0.PolygonMode {
	if m == gfx.PolygonLine {
		return core1_0.PolygonModeLine
	}
	return core1_0.PolygonModeFill
}

func compareOp(op gfx.CompareOp) core1_0.CompareOp {
	switch op {
	case gfx.CompareNever:
		return core1_0.CompareOpNever
	case gfx.CompareLess:
		return core1_0.CompareOpLess
	case gfx.CompareLessOrEqual:
		return core1_0.CompareOpLessOrEqual
	case gfx.CompareGreaterOrEqual:
		return core1_0.CompareOpGreaterOrEqual
	}
	return core1_0.CompareOpAlways
}

const colorWriteAll = core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha

func blendAttachment(mode gfx.BlendMode) core1_0.PipelineColorBlendAttachmentState {
	state := core1_0.PipelineColorBlendAttachmentState{ColorWriteMask: colorWriteAll}
	switch mode {
	case gfx.BlendAdditive:
		state.BlendEnabled = true
		state.SrcColorBlendFactor = core1_0.BlendFactorSrcAlpha
		state.DstColorBlendFactor = core1_0.BlendFactorOne
	case gfx.BlendAlpha:
		state.BlendEnabled = true
		state.SrcColorBlendFactor = core1_0.BlendFactorSrcAlpha
		state.DstColorBlendFactor = core1_0.BlendFactorOneMinusSrcAlpha
	default:
		return state
	}
	state.ColorBlendOp = core1_0.BlendOpAdd
	state.SrcAlphaBlendFactor = core1_0.BlendFactorOne
	state.DstAlphaBlendFactor = core1_0.BlendFactorZero
	state.AlphaBlendOp = core1_0.BlendOpAdd
	return state
}
