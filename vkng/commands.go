package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// CommandBuffer records into a primary command buffer. The first recording
// failure is kept and returned by End.
type CommandBuffer struct {
	device *Device
	buffer core1_0.CommandBuffer
	err    error
}

var _ gfx.CommandBuffer = (*CommandBuffer)(nil)

func (c *CommandBuffer) fail(err error, what string) {
	if err != nil && c.err == nil {
		c.err = errors.Wrap(err, what)
	}
}

func (c *CommandBuffer) Reset() error {
	c.err = nil
	_, err := c.buffer.Reset(0)
	return errors.Wrap(err, "reset command buffer")
}

func (c *CommandBuffer) Begin(oneTime bool) error {
	info := core1_0.CommandBufferBeginInfo{}
	if oneTime {
		info.Flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	_, err := c.buffer.Begin(info)
	return errors.Wrap(err, "begin command buffer")
}

func (c *CommandBuffer) End() error {
	if c.err != nil {
		err := c.err
		c.err = nil
		return err
	}
	_, err := c.buffer.End()
	return errors.Wrap(err, "end command buffer")
}

func (c *CommandBuffer) image(h gfx.Image) (imageEntry, bool) {
	entry, ok := c.device.images.get(uint64(h))
	if !ok {
		c.fail(errors.Newf("unknown image %d", h), "resolve image")
	}
	return entry, ok
}

func (c *CommandBuffer) buf(h gfx.Buffer) (core1_0.Buffer, bool) {
	entry, ok := c.device.buffers.get(uint64(h))
	if !ok {
		c.fail(errors.Newf("unknown buffer %d", h), "resolve buffer")
	}
	return entry.buffer, ok
}

func (c *CommandBuffer) PipelineBarrier(barriers ...gfx.ImageBarrier) {
	for _, b := range barriers {
		img, ok := c.image(b.Image)
		if !ok {
			return
		}
		err := c.buffer.CmdPipelineBarrier(pipelineStages(b.SrcStage), pipelineStages(b.DstStage), 0, nil, nil, []core1_0.ImageMemoryBarrier{{
			SrcAccessMask:       access(b.SrcAccess),
			DstAccessMask:       access(b.DstAccess),
			OldLayout:           layout(b.OldLayout),
			NewLayout:           layout(b.NewLayout),
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               img.image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     aspect(b.Aspect),
				BaseMipLevel:   0,
				LevelCount:     img.mips,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}})
		c.fail(err, "pipeline barrier")
	}
}

func (c *CommandBuffer) ClearColorImage(image gfx.Image, l gfx.ImageLayout, color gfx.ClearColor) {
	img, ok := c.image(image)
	if !ok {
		return
	}
	c.buffer.CmdClearColorImage(img.image, layout(l), core1_0.ClearValueFloat(color), []core1_0.ImageSubresourceRange{{
		AspectMask: core1_0.ImageAspectColor,
		LevelCount: img.mips,
		LayerCount: 1,
	}})
}

func (c *CommandBuffer) BlitImage(src gfx.Image, srcLayout gfx.ImageLayout, dst gfx.Image, dstLayout gfx.ImageLayout, srcSize, dstSize gfx.Extent2D) {
	s, ok := c.image(src)
	if !ok {
		return
	}
	d, ok := c.image(dst)
	if !ok {
		return
	}
	subresource := core1_0.ImageSubresourceLayers{
		AspectMask:     core1_0.ImageAspectColor,
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	c.buffer.CmdBlitImage(s.image, layout(srcLayout), d.image, layout(dstLayout), []core1_0.ImageBlit{{
		SrcSubresource: subresource,
		SrcOffsets:     [2]core1_0.Offset3D{{}, {X: int(srcSize.Width), Y: int(srcSize.Height), Z: 1}},
		DstSubresource: subresource,
		DstOffsets:     [2]core1_0.Offset3D{{}, {X: int(dstSize.Width), Y: int(dstSize.Height), Z: 1}},
	}}, core1_0.FilterLinear)
}

func (c *CommandBuffer) CopyBuffer(src, dst gfx.Buffer, regions ...gfx.BufferCopy) {
	s, ok := c.buf(src)
	if !ok {
		return
	}
	d, ok := c.buf(dst)
	if !ok {
		return
	}
	var copies []core1_0.BufferCopy
	for _, r := range regions {
		copies = append(copies, core1_0.BufferCopy{
			SrcOffset: int(r.SrcOffset),
			DstOffset: int(r.DstOffset),
			Size:      int(r.Size),
		})
	}
	c.fail(c.buffer.CmdCopyBuffer(s, d, copies), "copy buffer")
}

func (c *CommandBuffer) BindPipeline(bp gfx.BindPoint, pipeline gfx.Pipeline) {
	p, ok := c.device.pipelines.get(uint64(pipeline))
	if !ok {
		c.fail(errors.Newf("unknown pipeline %d", pipeline), "bind pipeline")
		return
	}
	c.buffer.CmdBindPipeline(bindPoint(bp), p)
}

func (c *CommandBuffer) BindDescriptorSets(bp gfx.BindPoint, pipelineLayout gfx.PipelineLayout, firstSet uint32, sets ...gfx.DescriptorSet) {
	l, ok := c.device.pipelineLayouts.get(uint64(pipelineLayout))
	if !ok {
		c.fail(errors.Newf("unknown pipeline layout %d", pipelineLayout), "bind descriptor sets")
		return
	}
	var out []core1_0.DescriptorSet
	for _, h := range sets {
		s, ok := c.device.descriptorSets.get(uint64(h))
		if !ok {
			c.fail(errors.Newf("unknown descriptor set %d", h), "bind descriptor sets")
			return
		}
		out = append(out, s.set)
	}
	c.buffer.CmdBindDescriptorSets(bindPoint(bp), l, int(firstSet), out, nil)
}

func (c *CommandBuffer) PushConstants(pipelineLayout gfx.PipelineLayout, stages gfx.ShaderStageFlags, offset uint32, data []byte) {
	l, ok := c.device.pipelineLayouts.get(uint64(pipelineLayout))
	if !ok {
		c.fail(errors.Newf("unknown pipeline layout %d", pipelineLayout), "push constants")
		return
	}
	c.buffer.CmdPushConstants(l, shaderStages(stages), int(offset), data)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	c.buffer.CmdDispatch(int(x), int(y), int(z))
}

func (c *CommandBuffer) BeginRendering(info gfx.RenderingInfo) {
	key, err := renderingKeys(info, c.device.views.get)
	if err != nil {
		c.fail(err, "begin rendering")
		return
	}
	pass, err := c.device.passes.renderPass(key.pass)
	if err != nil {
		c.fail(err, "begin rendering")
		return
	}
	fb, err := c.device.passes.framebuffer(key, pass)
	if err != nil {
		c.fail(err, "begin rendering")
		return
	}
	err = c.buffer.CmdBeginRenderPass(core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  pass,
		Framebuffer: fb,
		RenderArea: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: core1_0.Extent2D{Width: key.width, Height: key.height},
		},
		ClearValues: clearValues(info),
	})
	c.fail(err, "begin rendering")
}

func (c *CommandBuffer) EndRendering() {
	c.buffer.CmdEndRenderPass()
}

func (c *CommandBuffer) SetViewport(v gfx.Viewport) {
	c.buffer.CmdSetViewport([]core1_0.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(r gfx.Rect2D) {
	c.buffer.CmdSetScissor([]core1_0.Rect2D{{
		Offset: core1_0.Offset2D{X: int(r.Offset.X), Y: int(r.Offset.Y)},
		Extent: core1_0.Extent2D{Width: int(r.Extent.Width), Height: int(r.Extent.Height)},
	}})
}

func (c *CommandBuffer) BindIndexBuffer(buffer gfx.Buffer, offset uint64, t gfx.IndexType) {
	b, ok := c.buf(buffer)
	if !ok {
		return
	}
	c.buffer.CmdBindIndexBuffer(b, int(offset), indexType(t))
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	c.buffer.CmdDrawIndexed(int(indexCount), int(instanceCount), firstIndex, int(vertexOffset), firstInstance)
}
