package swapchain

import (
	"testing"

	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesViewPerImage(t *testing.T) {
	gpu := gfxtest.New()
	gpu.SwapchainImages = 3
	extent := gfx.Extent2D{Width: 1280, Height: 720}

	sc, err := New(gpu, gpu, extent, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, extent, sc.Extent)
	assert.Equal(t, gfx.FormatB8G8R8A8Unorm, sc.Format)
	assert.Len(t, sc.Images, 3)
	assert.Len(t, sc.Views, 3)

	info := gpu.Calls[gpu.Index("CreateSwapchain", 0)].Args[1].(gfx.SwapchainCreateInfo)
	assert.NotZero(t, info.Usage&gfx.ImageUsageTransferDst)
	assert.Equal(t, gfx.PresentModeFIFO, info.PresentMode)

	sc.Destroy(gpu, gpu)
	assert.Empty(t, gpu.Live())
	assert.Empty(t, gpu.Errors)
}

func TestRebuildReplacesEverything(t *testing.T) {
	gpu := gfxtest.New()
	first, err := New(gpu, gpu, gfx.Extent2D{Width: 800, Height: 600}, DefaultOptions())
	require.NoError(t, err)
	oldViews := append([]gfx.ImageView(nil), first.Views...)
	first.Destroy(gpu, gpu)

	second, err := New(gpu, gpu, gfx.Extent2D{Width: 1024, Height: 768}, DefaultOptions())
	require.NoError(t, err)
	assert.NotEqual(t, oldViews, second.Views)
	assert.Equal(t, uint32(1024), second.Extent.Width)
	assert.Equal(t, 1, gpu.Count("DestroySwapchain"))
}

func TestNewRejectsEmptyExtent(t *testing.T) {
	gpu := gfxtest.New()
	_, err := New(gpu, gpu, gfx.Extent2D{Width: 0, Height: 600}, DefaultOptions())
	assert.Error(t, err)
	assert.Zero(t, gpu.Count("CreateSwapchain"))
}
