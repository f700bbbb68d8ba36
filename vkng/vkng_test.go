package vkng

import (
	"testing"

	"github.com/jvkengine/jvk/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/extensions/v2/khr_surface"
	"github.com/vkngwrapper/extensions/v2/khr_swapchain"
)

func TestRegistryHandlesAreUniqueAcrossTables(t *testing.T) {
	var counter uint64
	a := newRegistry[string](&counter)
	b := newRegistry[int](&counter)

	h1 := a.add("fence")
	h2 := b.add(7)
	h3 := a.add("semaphore")
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h2, h3)

	v, ok := a.remove(h1)
	require.True(t, ok)
	assert.Equal(t, "fence", v)
	_, ok = a.get(h1)
	assert.False(t, ok)
	assert.Equal(t, 1, a.len())

	assert.Greater(t, a.add("again"), h3, "handles are never reused")
}

func TestFindMemoryTypePrefersDeviceLocalHostVisible(t *testing.T) {
	host := core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent
	types := []core1_0.MemoryType{
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
		{PropertyFlags: host},
		{PropertyFlags: host | core1_0.MemoryPropertyDeviceLocal},
	}

	required, preferred := memoryFlags(gfx.MemoryCPUToGPU)
	idx, err := findMemoryType(types, 0b111, required, preferred)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	idx, err = findMemoryType(types, 0b011, required, preferred)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "falls back when the preferred type is filtered out")

	required, preferred = memoryFlags(gfx.MemoryGPUOnly)
	idx, err = findMemoryType(types, 0b111, required, preferred)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	required, preferred = memoryFlags(gfx.MemoryCPUOnly)
	_, err = findMemoryType(types, 0b001, required, preferred)
	assert.Error(t, err)
}

func TestChooseExtent(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
		MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: core1_0.Extent2D{Width: 1024, Height: 1024},
	}
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, chooseExtent(caps, gfx.Extent2D{Width: 10, Height: 10}))

	caps.CurrentExtent = core1_0.Extent2D{Width: -1, Height: -1}
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 300}, chooseExtent(caps, gfx.Extent2D{Width: 4000, Height: 300}))
}

func TestImageCount(t *testing.T) {
	assert.Equal(t, 3, imageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2}))
	assert.Equal(t, 2, imageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 2}))
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}
	assert.Equal(t, formats[1], chooseSurfaceFormat(formats, core1_0.FormatB8G8R8A8UnsignedNormalized))
	assert.Equal(t, formats[0], chooseSurfaceFormat(formats, core1_0.FormatB8G8R8A8SRGB))
}

func TestChoosePresentMode(t *testing.T) {
	modes := []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeMailbox}
	assert.Equal(t, khr_surface.PresentModeMailbox, choosePresentMode(modes, khr_surface.PresentModeMailbox))
	assert.Equal(t, khr_surface.PresentModeFIFO, choosePresentMode(modes, khr_surface.PresentModeImmediate))
}

func TestRenderingKeys(t *testing.T) {
	views := map[uint64]viewEntry{
		1: {format: core1_0.FormatR16G16B16A16SignedFloat},
		2: {format: core1_0.FormatD32SignedFloat},
	}
	lookup := func(h uint64) (viewEntry, bool) {
		v, ok := views[h]
		return v, ok
	}

	info := gfx.RenderingInfo{
		Extent: gfx.Extent2D{Width: 64, Height: 32},
		Color:  []gfx.RenderingAttachment{{View: 1, Layout: gfx.LayoutColorAttachmentOptimal, Load: gfx.LoadOpLoad}},
		Depth:  &gfx.RenderingAttachment{View: 2, Layout: gfx.LayoutDepthAttachmentOptimal, Load: gfx.LoadOpClear, Clear: gfx.ClearValue{Depth: 1}},
	}
	key, err := renderingKeys(info, lookup)
	require.NoError(t, err)
	assert.Equal(t, framebufferKey{
		pass: passKey{
			color: attachmentKey{
				format: core1_0.FormatR16G16B16A16SignedFloat,
				layout: core1_0.ImageLayoutColorAttachmentOptimal,
				load:   core1_0.AttachmentLoadOpLoad,
			},
			depth: attachmentKey{
				format: core1_0.FormatD32SignedFloat,
				layout: core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				load:   core1_0.AttachmentLoadOpClear,
			},
		},
		color: 1, depth: 2, width: 64, height: 32,
	}, key)
	assert.True(t, key.pass.hasColor())
	assert.True(t, key.pass.hasDepth())

	values := clearValues(info)
	require.Len(t, values, 2)
	assert.Equal(t, core1_0.ClearValueDepthStencil{Depth: 1}, values[1])

	info.Depth.View = 9
	_, err = renderingKeys(info, lookup)
	assert.Error(t, err)

	overlay := gfx.RenderingInfo{Color: []gfx.RenderingAttachment{{View: 1, Layout: gfx.LayoutColorAttachmentOptimal}}}
	key, err = renderingKeys(overlay, lookup)
	require.NoError(t, err)
	assert.False(t, key.pass.hasDepth())
}

func TestUsingViewFindsFramebuffers(t *testing.T) {
	c := &renderPassCache{framebuffers: map[framebufferKey]core1_0.Framebuffer{
		{color: 1, depth: 2}: nil,
		{color: 3, depth: 2}: nil,
		{color: 3}:           nil,
	}}
	assert.Len(t, c.usingView(2), 2)
	assert.Len(t, c.usingView(1), 1)
	assert.Empty(t, c.usingView(4))
}

func TestFlagConversion(t *testing.T) {
	assert.Equal(t,
		core1_0.BufferUsageIndexBuffer|core1_0.BufferUsageTransferDst,
		bufferUsage(gfx.BufferUsageIndex|gfx.BufferUsageTransferDst))
	assert.Equal(t,
		core1_0.ImageUsageStorage|core1_0.ImageUsageColorAttachment,
		imageUsage(gfx.ImageUsageStorage|gfx.ImageUsageColorAttachment))
	assert.Equal(t, khr_swapchain.ImageLayoutPresentSrc, layout(gfx.LayoutPresentSrc))
	assert.Equal(t, gfx.FormatD32SFloat, formatFromVulkan(format(gfx.FormatD32SFloat)))
	assert.Equal(t, core1_0.CullModeFlags(0), cullMode(gfx.CullNone))

	opaque := blendAttachment(gfx.BlendNone)
	assert.False(t, opaque.BlendEnabled)
	additive := blendAttachment(gfx.BlendAdditive)
	assert.True(t, additive.BlendEnabled)
	assert.Equal(t, core1_0.BlendFactorOne, additive.DstColorBlendFactor)
}
