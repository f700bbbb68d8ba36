package gfx

import (
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrOutOfDate reports a surface that no longer matches its swapchain.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal reports a swapchain that still works but should be rebuilt.
	ErrSuboptimal = errors.New("swapchain suboptimal")
	ErrTimeout    = errors.New("wait timed out")

	ErrOutOfPoolMemory = errors.New("descriptor pool out of memory")
	ErrFragmentedPool  = errors.New("descriptor pool fragmented")
)

type Device interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	WaitForFence(fence Fence, timeout time.Duration) error
	ResetFence(fence Fence) error

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)

	CreateCommandPool(queueFamily uint32) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)

	CreateImageView(image Image, format Format, aspect ImageAspectFlags) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler(filter Filter) (Sampler, error)
	DestroySampler(sampler Sampler)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(maxSets uint32, sizes []PoolSize) (DescriptorPool, error)
	ResetDescriptorPool(pool DescriptorPool) error
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorWrite)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout, pushConstants []PushConstantRange) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateComputePipeline(info ComputePipelineInfo) (Pipeline, error)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)

	BufferAddress(buffer Buffer) (uint64, error)
	WaitIdle() error
}

type Queue interface {
	Family() uint32
	Submit(fence Fence, infos ...SubmitInfo) error
	// Present returns ErrOutOfDate or ErrSuboptimal, possibly wrapped, when the
	// swapchain should be rebuilt.
	Present(swapchain Swapchain, imageIndex uint32, wait ...Semaphore) error
}

// CommandBuffer records commands. Recording calls do not fail; errors surface
// from End or the queue submission.
type CommandBuffer interface {
	Reset() error
	Begin(oneTime bool) error
	End() error

	PipelineBarrier(barriers ...ImageBarrier)
	ClearColorImage(image Image, layout ImageLayout, color ClearColor)
	BlitImage(src Image, srcLayout ImageLayout, dst Image, dstLayout ImageLayout, srcSize, dstSize Extent2D)
	CopyBuffer(src, dst Buffer, regions ...BufferCopy)

	BindPipeline(bindPoint BindPoint, pipeline Pipeline)
	BindDescriptorSets(bindPoint BindPoint, layout PipelineLayout, firstSet uint32, sets ...DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStageFlags, offset uint32, data []byte)
	Dispatch(x, y, z uint32)

	BeginRendering(info RenderingInfo)
	EndRendering()
	SetViewport(viewport Viewport)
	SetScissor(scissor Rect2D)
	BindIndexBuffer(buffer Buffer, offset uint64, indexType IndexType)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// Allocator hands out memory-backed buffers and images.
type Allocator interface {
	CreateBuffer(size uint64, usage BufferUsageFlags, memory MemoryUsage) (Buffer, Allocation, error)
	DestroyBuffer(buffer Buffer, allocation Allocation)
	CreateImage(info ImageCreateInfo, memory MemoryUsage) (Image, Allocation, error)
	DestroyImage(image Image, allocation Allocation)
	Map(allocation Allocation) ([]byte, error)
	Unmap(allocation Allocation)
	Destroy()
}

type Surface interface {
	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, SwapchainDetails, error)
	DestroySwapchain(swapchain Swapchain)
	// AcquireNextImage signals the semaphore once the image is ready. An
	// ErrSuboptimal result still carries a usable index.
	AcquireNextImage(swapchain Swapchain, signal Semaphore, timeout time.Duration) (uint32, error)
}
