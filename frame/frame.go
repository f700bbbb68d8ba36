// Package frame implements the frames-in-flight protocol: a fixed ring of
// frame slots, each guarded by its own fence.
package frame

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/deletion"
	"github.com/jvkengine/jvk/descriptors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/internal/logging"
)

const InFlight = 2

var logger = logging.Discard()

func SetLogger(l *slog.Logger) {
	logger = l
}

type State int

const (
	Idle State = iota
	Acquiring
	Recording
	Submitted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Acquiring:
		return "Acquiring"
	case Recording:
		return "Recording"
	case Submitted:
		return "Submitted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultRatios sizes each frame's descriptor pools.
var DefaultRatios = []descriptors.PoolSizeRatio{
	{Type: gfx.DescriptorStorageImage, Ratio: 3},
	{Type: gfx.DescriptorStorageBuffer, Ratio: 3},
	{Type: gfx.DescriptorUniformBuffer, Ratio: 3},
	{Type: gfx.DescriptorCombinedImageSampler, Ratio: 4},
}

const DefaultDescriptorSets = 1000

// Frame is everything one in-flight frame owns. Nothing in it is touched
// again until the fence shows the GPU is done with the previous use.
type Frame struct {
	Index int

	Pool gfx.CommandPool
	Cmd  gfx.CommandBuffer

	// SwapchainSemaphore is signaled when the acquired image is ready;
	// RenderSemaphore when rendering into it has finished.
	SwapchainSemaphore gfx.Semaphore
	RenderSemaphore    gfx.Semaphore
	Fence              gfx.Fence

	Deletion    deletion.Queue
	Descriptors *descriptors.GrowableAllocator

	ImageIndex uint32

	state State
	// acquired is set while ImageIndex is held without a submission that
	// waits on SwapchainSemaphore.
	acquired bool
}

// Acquired reports whether the frame holds a swapchain image that no
// submission has consumed yet. Such a frame must be submitted or abandoned.
func (f *Frame) Acquired() bool {
	return f.acquired
}

func (f *Frame) State() State {
	return f.state
}

func newFrame(dev gfx.Device, index int, family uint32, sets uint32, ratios []descriptors.PoolSizeRatio) (*Frame, error) {
	f := &Frame{Index: index}
	var err error

	if f.Pool, err = dev.CreateCommandPool(family); err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	if f.Cmd, err = dev.AllocateCommandBuffer(f.Pool); err != nil {
		f.destroy(dev)
		return nil, errors.Wrap(err, "allocate command buffer")
	}
	if f.SwapchainSemaphore, err = dev.CreateSemaphore(); err != nil {
		f.destroy(dev)
		return nil, errors.Wrap(err, "create swapchain semaphore")
	}
	if f.RenderSemaphore, err = dev.CreateSemaphore(); err != nil {
		f.destroy(dev)
		return nil, errors.Wrap(err, "create render semaphore")
	}
	// Signaled so the very first wait on this slot returns at once.
	if f.Fence, err = dev.CreateFence(true); err != nil {
		f.destroy(dev)
		return nil, errors.Wrap(err, "create render fence")
	}
	if f.Descriptors, err = descriptors.NewGrowableAllocator(dev, sets, ratios); err != nil {
		f.destroy(dev)
		return nil, err
	}
	return f, nil
}

func (f *Frame) destroy(dev gfx.Device) {
	f.Deletion.Flush()
	if f.Descriptors != nil {
		f.Descriptors.DestroyPools()
	}
	if f.Fence != 0 {
		dev.DestroyFence(f.Fence)
	}
	if f.RenderSemaphore != 0 {
		dev.DestroySemaphore(f.RenderSemaphore)
	}
	if f.SwapchainSemaphore != 0 {
		dev.DestroySemaphore(f.SwapchainSemaphore)
	}
	if f.Pool != 0 {
		dev.DestroyCommandPool(f.Pool)
	}
}
