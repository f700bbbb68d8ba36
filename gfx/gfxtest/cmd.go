package gfxtest

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
)

// Cmd is a fake command buffer. Every recorded command is appended to the
// owning GPU's call log with a "cmd." prefix and kept on the buffer itself.
type Cmd struct {
	ID       int
	Pool     gfx.CommandPool
	Commands []Call
	Resets   int
	Begins   int

	gpu       *GPU
	recording bool
}

var _ gfx.CommandBuffer = (*Cmd)(nil)

func (c *Cmd) rec(op string, args ...any) {
	if !c.recording {
		c.gpu.Errors = append(c.gpu.Errors, fmt.Sprintf("%s on command buffer %d outside recording", op, c.ID))
	}
	call := Call{Op: "cmd." + op, Args: args}
	c.Commands = append(c.Commands, call)
	c.gpu.Calls = append(c.gpu.Calls, call)
}

func (c *Cmd) Reset() error {
	c.gpu.record("cmd.Reset", c.ID)
	c.Commands = nil
	c.recording = false
	c.Resets++
	return nil
}

func (c *Cmd) Begin(oneTime bool) error {
	c.gpu.record("cmd.Begin", c.ID, oneTime)
	if len(c.gpu.BeginErrs) > 0 {
		err := c.gpu.BeginErrs[0]
		c.gpu.BeginErrs = c.gpu.BeginErrs[1:]
		if err != nil {
			return err
		}
	}
	if c.recording {
		return errors.Newf("command buffer %d already recording", c.ID)
	}
	if len(c.Commands) > 0 {
		c.gpu.Errors = append(c.gpu.Errors, fmt.Sprintf("command buffer %d begun without reset", c.ID))
	}
	c.recording = true
	c.Begins++
	return nil
}

func (c *Cmd) End() error {
	c.gpu.record("cmd.End", c.ID)
	if !c.recording {
		return errors.Newf("command buffer %d not recording", c.ID)
	}
	c.recording = false
	return nil
}

func (c *Cmd) PipelineBarrier(barriers ...gfx.ImageBarrier) {
	for _, b := range barriers {
		c.rec("PipelineBarrier", b)
	}
}

func (c *Cmd) ClearColorImage(image gfx.Image, layout gfx.ImageLayout, color gfx.ClearColor) {
	c.rec("ClearColorImage", image, layout, color)
}

func (c *Cmd) BlitImage(src gfx.Image, srcLayout gfx.ImageLayout, dst gfx.Image, dstLayout gfx.ImageLayout, srcSize, dstSize gfx.Extent2D) {
	c.rec("BlitImage", src, srcLayout, dst, dstLayout, srcSize, dstSize)
}

func (c *Cmd) CopyBuffer(src, dst gfx.Buffer, regions ...gfx.BufferCopy) {
	c.rec("CopyBuffer", src, dst, append([]gfx.BufferCopy(nil), regions...))
}

func (c *Cmd) BindPipeline(bp gfx.BindPoint, p gfx.Pipeline) {
	c.rec("BindPipeline", bp, p)
}

func (c *Cmd) BindDescriptorSets(bp gfx.BindPoint, layout gfx.PipelineLayout, first uint32, sets ...gfx.DescriptorSet) {
	c.rec("BindDescriptorSets", bp, layout, first, append([]gfx.DescriptorSet(nil), sets...))
}

func (c *Cmd) PushConstants(layout gfx.PipelineLayout, stages gfx.ShaderStageFlags, offset uint32, data []byte) {
	c.rec("PushConstants", layout, stages, offset, append([]byte(nil), data...))
}

func (c *Cmd) Dispatch(x, y, z uint32) {
	c.rec("Dispatch", x, y, z)
}

func (c *Cmd) BeginRendering(info gfx.RenderingInfo) {
	c.rec("BeginRendering", info)
}

func (c *Cmd) EndRendering() {
	c.rec("EndRendering")
}

func (c *Cmd) SetViewport(v gfx.Viewport) {
	c.rec("SetViewport", v)
}

func (c *Cmd) SetScissor(r gfx.Rect2D) {
	c.rec("SetScissor", r)
}

func (c *Cmd) BindIndexBuffer(b gfx.Buffer, offset uint64, t gfx.IndexType) {
	c.rec("BindIndexBuffer", b, offset, t)
}

func (c *Cmd) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.rec("DrawIndexed", indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

// execute replays the buffer copies recorded into c against buffer memory.
func (c *Cmd) execute() {
	for _, call := range c.Commands {
		if call.Op != "cmd.CopyBuffer" {
			continue
		}
		src := c.gpu.buffers[call.Args[0].(gfx.Buffer)]
		dst := c.gpu.buffers[call.Args[1].(gfx.Buffer)]
		if src == nil || dst == nil {
			c.gpu.Errors = append(c.gpu.Errors, "copy between unknown buffers")
			continue
		}
		for _, r := range call.Args[2].([]gfx.BufferCopy) {
			if r.SrcOffset+r.Size > src.size || r.DstOffset+r.Size > dst.size {
				c.gpu.Errors = append(c.gpu.Errors, fmt.Sprintf("copy region %+v out of range", r))
				continue
			}
			copy(dst.data[r.DstOffset:r.DstOffset+r.Size], src.data[r.SrcOffset:r.SrcOffset+r.Size])
		}
	}
}
