package gfx

import "fmt"

type Format int

const (
	FormatUndefined Format = iota
	FormatB8G8R8A8Unorm
	FormatB8G8R8A8SRGB
	FormatR8G8B8A8Unorm
	FormatR16G16B16A16SFloat
	FormatD32SFloat
)

type ImageLayout int

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachmentOptimal
	LayoutDepthAttachmentOptimal
	LayoutTransferSrcOptimal
	LayoutTransferDstOptimal
	LayoutShaderReadOnlyOptimal
	LayoutPresentSrc
)

var layoutNames = map[ImageLayout]string{
	LayoutUndefined:              "Undefined",
	LayoutGeneral:                "General",
	LayoutColorAttachmentOptimal: "ColorAttachmentOptimal",
	LayoutDepthAttachmentOptimal: "DepthAttachmentOptimal",
	LayoutTransferSrcOptimal:     "TransferSrcOptimal",
	LayoutTransferDstOptimal:     "TransferDstOptimal",
	LayoutShaderReadOnlyOptimal:  "ShaderReadOnlyOptimal",
	LayoutPresentSrc:             "PresentSrc",
}

func (l ImageLayout) String() string {
	if name, ok := layoutNames[l]; ok {
		return name
	}
	return fmt.Sprintf("ImageLayout(%d)", int(l))
}

type ImageAspectFlags uint32

const (
	AspectColor ImageAspectFlags = 1 << iota
	AspectDepth
)

type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc ImageUsageFlags = 1 << iota
	ImageUsageTransferDst
	ImageUsageSampled
	ImageUsageStorage
	ImageUsageColorAttachment
	ImageUsageDepthStencilAttachment
)

type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc BufferUsageFlags = 1 << iota
	BufferUsageTransferDst
	BufferUsageUniform
	BufferUsageStorage
	BufferUsageIndex
	BufferUsageVertex
	BufferUsageShaderDeviceAddress
)

// MemoryUsage mirrors the coarse memory classes of a VMA-style allocator.
type MemoryUsage int

const (
	MemoryGPUOnly MemoryUsage = iota
	MemoryCPUOnly
	MemoryCPUToGPU
)

type DescriptorType int

const (
	DescriptorSampler DescriptorType = iota
	DescriptorCombinedImageSampler
	DescriptorSampledImage
	DescriptorStorageImage
	DescriptorUniformBuffer
	DescriptorStorageBuffer
)

type ShaderStageFlags uint32

const (
	StageVertex ShaderStageFlags = 1 << iota
	StageFragment
	StageCompute

	StageAllGraphics = StageVertex | StageFragment
)

type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe PipelineStageFlags = 1 << iota
	PipelineStageFragmentShader
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageAllGraphics
	PipelineStageAllCommands
)

type AccessFlags uint32

const (
	AccessMemoryRead AccessFlags = 1 << iota
	AccessMemoryWrite
)

type BindPoint int

const (
	BindPointGraphics BindPoint = iota
	BindPointCompute
)

type IndexType int

const (
	IndexTypeUInt16 IndexType = iota
	IndexTypeUInt32
)

type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type PresentMode int

const (
	PresentModeFIFO PresentMode = iota
	PresentModeMailbox
	PresentModeImmediate
)

type Extent2D struct {
	Width, Height uint32
}

type Extent3D struct {
	Width, Height, Depth uint32
}

func (e Extent3D) Extent2D() Extent2D {
	return Extent2D{Width: e.Width, Height: e.Height}
}

type Offset2D struct {
	X, Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type ClearColor [4]float32

type ClearValue struct {
	Color ClearColor
	Depth float32
}

// ImageBarrier is a whole-resource image memory barrier: every mip level and
// array layer of Image for the given aspect.
type ImageBarrier struct {
	Image     Image
	Aspect    ImageAspectFlags
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcStage  PipelineStageFlags
	SrcAccess AccessFlags
	DstStage  PipelineStageFlags
	DstAccess AccessFlags
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type SemaphoreSubmit struct {
	Semaphore Semaphore
	Stage     PipelineStageFlags
}

type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []SemaphoreSubmit
	Signal         []SemaphoreSubmit
}

type RenderingAttachment struct {
	View   ImageView
	Layout ImageLayout
	Load   LoadOp
	Clear  ClearValue
}

type RenderingInfo struct {
	Extent Extent2D
	Color  []RenderingAttachment
	Depth  *RenderingAttachment
}

type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStageFlags
}

type DescriptorImageInfo struct {
	View    ImageView
	Sampler Sampler
	Layout  ImageLayout
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

type DescriptorWrite struct {
	Set     DescriptorSet
	Binding uint32
	Type    DescriptorType
	Images  []DescriptorImageInfo
	Buffers []DescriptorBufferInfo
}

type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset uint32
	Size   uint32
}

type ImageCreateInfo struct {
	Format    Format
	Usage     ImageUsageFlags
	Extent    Extent3D
	MipLevels uint32
}

type ShaderStage struct {
	Stage  ShaderStageFlags
	Module ShaderModule
	Entry  string
}

type ComputePipelineInfo struct {
	Layout PipelineLayout
	Stage  ShaderStage
}

type CullMode int

const (
	CullNone CullMode = iota
	CullBack
	CullFront
)

type FrontFace int

const (
	FrontFaceClockwise FrontFace = iota
	FrontFaceCounterClockwise
)

type PolygonMode int

const (
	PolygonFill PolygonMode = iota
	PolygonLine
)

type BlendMode int

const (
	BlendNone BlendMode = iota
	BlendAdditive
	BlendAlpha
)

type CompareOp int

const (
	CompareNever CompareOp = iota
	CompareLess
	CompareLessOrEqual
	CompareGreaterOrEqual
	CompareAlways
)

// GraphicsPipelineInfo describes a pipeline used with dynamic viewport and
// scissor state inside a BeginRendering scope.
type GraphicsPipelineInfo struct {
	Layout       PipelineLayout
	Stages       []ShaderStage
	PolygonMode  PolygonMode
	CullMode     CullMode
	FrontFace    FrontFace
	Blend        BlendMode
	DepthTest    bool
	DepthWrite   bool
	DepthCompare CompareOp
	ColorFormat  Format
	DepthFormat  Format
}

type SwapchainCreateInfo struct {
	Extent      Extent2D
	Format      Format
	PresentMode PresentMode
	Usage       ImageUsageFlags
}

type SwapchainDetails struct {
	Extent Extent2D
	Format Format
	Images []Image
}
