package frame

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/descriptors"
	"github.com/jvkengine/jvk/gfx"
)

// ErrNeedsResize means the swapchain no longer matches the surface. The frame
// was abandoned and the swapchain must be rebuilt before drawing again.
var ErrNeedsResize = errors.New("swapchain needs resize")

const DefaultFenceTimeout = time.Second

type Ring struct {
	FenceTimeout   time.Duration
	AcquireTimeout time.Duration

	device gfx.Device
	frames []*Frame
	number uint64
}

type Options struct {
	QueueFamily    uint32
	DescriptorSets uint32
	Ratios         []descriptors.PoolSizeRatio
}

func NewRing(dev gfx.Device, opts Options) (*Ring, error) {
	if opts.DescriptorSets == 0 {
		opts.DescriptorSets = DefaultDescriptorSets
	}
	if opts.Ratios == nil {
		opts.Ratios = DefaultRatios
	}

	r := &Ring{
		FenceTimeout:   DefaultFenceTimeout,
		AcquireTimeout: DefaultFenceTimeout,
		device:         dev,
	}
	for i := 0; i < InFlight; i++ {
		f, err := newFrame(dev, i, opts.QueueFamily, opts.DescriptorSets, opts.Ratios)
		if err != nil {
			r.Destroy()
			return nil, errors.Wrapf(err, "frame %d", i)
		}
		r.frames = append(r.frames, f)
	}
	return r, nil
}

// Number counts the frames submitted so far.
func (r *Ring) Number() uint64 {
	return r.number
}

func (r *Ring) Current() *Frame {
	return r.frames[r.number%InFlight]
}

func (r *Ring) Frames() []*Frame {
	return r.frames
}

// Begin waits until the GPU has finished the last submission made from the
// current slot, then releases whatever that submission kept alive.
func (r *Ring) Begin(ctx context.Context) (*Frame, error) {
	f := r.Current()
	if f.acquired {
		return nil, errors.AssertionFailedf("begin frame %d still holding swapchain image %d; abandon it first", f.Index, f.ImageIndex)
	}
	if f.state != Idle && f.state != Submitted {
		return nil, errors.AssertionFailedf("begin frame %d in state %s", f.Index, f.state)
	}

	timeout, err := gfx.WaitTimeout(ctx, r.FenceTimeout)
	if err != nil {
		return nil, err
	}
	if err := r.device.WaitForFence(f.Fence, timeout); err != nil {
		return nil, errors.Wrapf(err, "wait for frame %d", f.Index)
	}
	f.state = Acquiring

	f.Deletion.Flush()
	if err := f.Descriptors.ClearPools(); err != nil {
		return nil, err
	}
	return f, nil
}

// Acquire takes the next swapchain image and opens the frame's command buffer
// for recording. On ErrNeedsResize the frame goes back to Idle with its fence
// still signaled, so the next Begin does not block.
func (r *Ring) Acquire(surface gfx.Surface, sc gfx.Swapchain) (*Frame, error) {
	f := r.Current()
	if f.state != Acquiring {
		return nil, errors.AssertionFailedf("acquire on frame %d in state %s", f.Index, f.state)
	}

	index, err := surface.AcquireNextImage(sc, f.SwapchainSemaphore, r.AcquireTimeout)
	switch {
	case errors.Is(err, gfx.ErrOutOfDate):
		f.state = Idle
		logger.Debug("swapchain out of date on acquire", "frame", r.number)
		return nil, ErrNeedsResize
	case errors.Is(err, gfx.ErrSuboptimal):
		logger.Debug("swapchain suboptimal on acquire", "frame", r.number)
	case err != nil:
		f.state = Idle
		return nil, errors.Wrap(err, "acquire swapchain image")
	}
	f.ImageIndex = index
	f.acquired = true

	if err := r.device.ResetFence(f.Fence); err != nil {
		f.state = Idle
		return nil, errors.Wrap(err, "reset frame fence")
	}
	if err := f.Cmd.Reset(); err != nil {
		f.state = Idle
		return nil, errors.Wrap(err, "reset command buffer")
	}
	if err := f.Cmd.Begin(true); err != nil {
		f.state = Idle
		return nil, errors.Wrap(err, "begin command buffer")
	}
	f.state = Recording
	return f, nil
}

// Abandon gives up on a frame that already acquired its swapchain image,
// either because Acquire failed after the image was handed out or because
// recording failed. An empty submission consumes the acquire semaphore and
// signals the fence, leaving the slot Idle and ready for the next Begin. The
// image is not presented.
func (r *Ring) Abandon(queue gfx.Queue) error {
	f := r.Current()
	if !f.acquired {
		return errors.AssertionFailedf("abandon frame %d without an acquired image", f.Index)
	}
	if f.state == Recording {
		if err := f.Cmd.End(); err != nil {
			logger.Debug("end abandoned recording", "frame", r.number, "err", err)
		}
	}

	f.state = Idle
	if err := r.device.ResetFence(f.Fence); err != nil {
		return errors.Wrap(err, "reset abandoned frame fence")
	}
	err := queue.Submit(f.Fence, gfx.SubmitInfo{
		Wait: []gfx.SemaphoreSubmit{{
			Semaphore: f.SwapchainSemaphore,
			Stage:     gfx.PipelineStageColorAttachmentOutput,
		}},
	})
	if err != nil {
		return errors.Wrap(err, "submit abandoned frame")
	}
	f.acquired = false
	logger.Debug("frame abandoned", "frame", r.number, "image", f.ImageIndex)
	return nil
}

// Submit closes the recording and queues it. The submission waits for the
// acquired image, signals RenderSemaphore for presentation and the fence for
// the next Begin on this slot.
func (r *Ring) Submit(queue gfx.Queue) error {
	f := r.Current()
	if f.state != Recording {
		return errors.AssertionFailedf("submit frame %d in state %s", f.Index, f.state)
	}

	if err := f.Cmd.End(); err != nil {
		return errors.Wrap(err, "end command buffer")
	}
	err := queue.Submit(f.Fence, gfx.SubmitInfo{
		CommandBuffers: []gfx.CommandBuffer{f.Cmd},
		Wait: []gfx.SemaphoreSubmit{{
			Semaphore: f.SwapchainSemaphore,
			Stage:     gfx.PipelineStageColorAttachmentOutput,
		}},
		Signal: []gfx.SemaphoreSubmit{{
			Semaphore: f.RenderSemaphore,
			Stage:     gfx.PipelineStageAllGraphics,
		}},
	})
	if err != nil {
		f.state = Idle
		return errors.Wrap(err, "submit frame")
	}
	f.acquired = false
	f.state = Submitted
	return nil
}

// Advance moves to the next slot once the current frame has been submitted.
func (r *Ring) Advance() error {
	f := r.Current()
	if f.state != Submitted {
		return errors.AssertionFailedf("advance past frame %d in state %s", f.Index, f.state)
	}
	r.number++
	return nil
}

// Destroy releases every slot. The caller must have waited for the device to
// go idle.
func (r *Ring) Destroy() {
	for _, f := range r.frames {
		f.destroy(r.device)
	}
	r.frames = nil
}
