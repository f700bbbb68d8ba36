package resource

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

const DefaultImmediateTimeout = 10 * time.Second

// ImmediateSubmitter runs one-off command recordings on the graphics queue and
// blocks until the GPU has finished them.
type ImmediateSubmitter struct {
	Timeout time.Duration

	device gfx.Device
	queue  gfx.Queue
	pool   gfx.CommandPool
	cmd    gfx.CommandBuffer
	fence  gfx.Fence
}

func NewImmediateSubmitter(dev gfx.Device, queue gfx.Queue) (*ImmediateSubmitter, error) {
	pool, err := dev.CreateCommandPool(queue.Family())
	if err != nil {
		return nil, errors.Wrap(err, "create immediate command pool")
	}
	cmd, err := dev.AllocateCommandBuffer(pool)
	if err != nil {
		dev.DestroyCommandPool(pool)
		return nil, errors.Wrap(err, "allocate immediate command buffer")
	}
	fence, err := dev.CreateFence(true)
	if err != nil {
		dev.DestroyCommandPool(pool)
		return nil, errors.Wrap(err, "create immediate fence")
	}

	return &ImmediateSubmitter{
		Timeout: DefaultImmediateTimeout,
		device:  dev,
		queue:   queue,
		pool:    pool,
		cmd:     cmd,
		fence:   fence,
	}, nil
}

func (s *ImmediateSubmitter) Submit(ctx context.Context, record func(cmd gfx.CommandBuffer)) error {
	timeout, err := gfx.WaitTimeout(ctx, s.Timeout)
	if err != nil {
		return err
	}

	if err := s.device.ResetFence(s.fence); err != nil {
		return errors.Wrap(err, "reset immediate fence")
	}
	if err := s.cmd.Reset(); err != nil {
		return errors.Wrap(err, "reset immediate command buffer")
	}
	if err := s.cmd.Begin(true); err != nil {
		return errors.Wrap(err, "begin immediate command buffer")
	}

	record(s.cmd)

	if err := s.cmd.End(); err != nil {
		return errors.Wrap(err, "end immediate command buffer")
	}
	if err := s.queue.Submit(s.fence, gfx.SubmitInfo{CommandBuffers: []gfx.CommandBuffer{s.cmd}}); err != nil {
		return errors.Wrap(err, "submit immediate command buffer")
	}
	if err := s.device.WaitForFence(s.fence, timeout); err != nil {
		return errors.Wrap(err, "wait for immediate submit")
	}
	return nil
}

func (s *ImmediateSubmitter) Destroy() {
	s.device.DestroyFence(s.fence)
	s.device.DestroyCommandPool(s.pool)
}
