package vkng

import (
	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// BeginRendering is expressed with single-subpass render passes whose
// attachments start and end in the layout the caller already transitioned
// them to. Passes are cached by attachment formats, layouts and load ops,
// framebuffers by pass, views and extent.

type attachmentKey struct {
	format core1_0.Format
	layout core1_0.ImageLayout
	load   core1_0.AttachmentLoadOp
}

type passKey struct {
	color attachmentKey
	depth attachmentKey
}

func (k passKey) hasColor() bool { return k.color.format != core1_0.FormatUndefined }
func (k passKey) hasDepth() bool { return k.depth.format != core1_0.FormatUndefined }

type framebufferKey struct {
	pass          passKey
	color, depth  uint64
	width, height int
}

type renderPassCache struct {
	device       *Device
	passes       map[passKey]core1_0.RenderPass
	framebuffers map[framebufferKey]core1_0.Framebuffer
}

func newRenderPassCache(d *Device) *renderPassCache {
	return &renderPassCache{
		device:       d,
		passes:       make(map[passKey]core1_0.RenderPass),
		framebuffers: make(map[framebufferKey]core1_0.Framebuffer),
	}
}

func renderingKeys(info gfx.RenderingInfo, views func(uint64) (viewEntry, bool)) (framebufferKey, error) {
	key := framebufferKey{width: int(info.Extent.Width), height: int(info.Extent.Height)}
	if len(info.Color) > 1 {
		return key, errors.Newf("%d color attachments, at most one is supported", len(info.Color))
	}
	if len(info.Color) == 1 {
		att := info.Color[0]
		v, ok := views(uint64(att.View))
		if !ok {
			return key, errors.Newf("unknown image view %d", att.View)
		}
		key.color = uint64(att.View)
		key.pass.color = attachmentKey{format: v.format, layout: layout(att.Layout), load: loadOp(att.Load)}
	}
	if info.Depth != nil {
		v, ok := views(uint64(info.Depth.View))
		if !ok {
			return key, errors.Newf("unknown image view %d", info.Depth.View)
		}
		key.depth = uint64(info.Depth.View)
		key.pass.depth = attachmentKey{format: v.format, layout: layout(info.Depth.Layout), load: loadOp(info.Depth.Load)}
	}
	return key, nil
}

// clearValues lists one value per attachment in render pass order.
func clearValues(info gfx.RenderingInfo) []core1_0.ClearValue {
	var out []core1_0.ClearValue
	for _, att := range info.Color {
		c := att.Clear.Color
		out = append(out, core1_0.ClearValueFloat{c[0], c[1], c[2], c[3]})
	}
	if info.Depth != nil {
		out = append(out, core1_0.ClearValueDepthStencil{Depth: info.Depth.Clear.Depth})
	}
	return out
}

// usingView returns the cached framebuffer keys that reference view.
func (c *renderPassCache) usingView(view uint64) []framebufferKey {
	var keys []framebufferKey
	for k := range c.framebuffers {
		if k.color == view || k.depth == view {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *renderPassCache) evictView(view uint64) {
	for _, k := range c.usingView(view) {
		c.framebuffers[k].Destroy(nil)
		delete(c.framebuffers, k)
	}
}

func (c *renderPassCache) renderPass(key passKey) (core1_0.RenderPass, error) {
	if pass, ok := c.passes[key]; ok {
		return pass, nil
	}

	info := core1_0.RenderPassCreateInfo{}
	subpass := core1_0.SubpassDescription{PipelineBindPoint: core1_0.PipelineBindPointGraphics}
	var stages core1_0.PipelineStageFlags
	var accessMask core1_0.AccessFlags
	if key.hasColor() {
		subpass.ColorAttachments = []core1_0.AttachmentReference{{
			Attachment: len(info.Attachments),
			Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
		}}
		info.Attachments = append(info.Attachments, attachment(key.color))
		stages |= core1_0.PipelineStageColorAttachmentOutput
		accessMask |= core1_0.AccessColorAttachmentWrite
	}
	if key.hasDepth() {
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: len(info.Attachments),
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
		info.Attachments = append(info.Attachments, attachment(key.depth))
		stages |= core1_0.PipelineStageEarlyFragmentTests | core1_0.PipelineStageLateFragmentTests
		accessMask |= core1_0.AccessDepthStencilAttachmentWrite
	}
	info.Subpasses = []core1_0.SubpassDescription{subpass}
	info.SubpassDependencies = []core1_0.SubpassDependency{{
		SrcSubpass:    core1_0.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		DstStageMask:  stages,
		DstAccessMask: accessMask,
	}}

	pass, _, err := c.device.device.CreateRenderPass(nil, info)
	if err != nil {
		return nil, errors.Wrap(err, "create render pass")
	}
	c.passes[key] = pass
	return pass, nil
}

func attachment(key attachmentKey) core1_0.AttachmentDescription {
	return core1_0.AttachmentDescription{
		Format:         key.format,
		Samples:        core1_0.Samples1,
		LoadOp:         key.load,
		StoreOp:        core1_0.AttachmentStoreOpStore,
		StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
		StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
		InitialLayout:  key.layout,
		FinalLayout:    key.layout,
	}
}

func (c *renderPassCache) framebuffer(key framebufferKey, pass core1_0.RenderPass) (core1_0.Framebuffer, error) {
	if fb, ok := c.framebuffers[key]; ok {
		return fb, nil
	}

	var views []core1_0.ImageView
	for _, h := range []uint64{key.color, key.depth} {
		if h == 0 {
			continue
		}
		v, ok := c.device.views.get(h)
		if !ok {
			return nil, errors.Newf("unknown image view %d", h)
		}
		views = append(views, v.view)
	}

	fb, _, err := c.device.device.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  pass,
		Layers:      1,
		Attachments: views,
		Width:       key.width,
		Height:      key.height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create framebuffer")
	}
	c.framebuffers[key] = fb
	return fb, nil
}

func (c *renderPassCache) destroy() {
	for k, fb := range c.framebuffers {
		fb.Destroy(nil)
		delete(c.framebuffers, k)
	}
	for k, pass := range c.passes {
		pass.Destroy(nil)
		delete(c.passes, k)
	}
}
