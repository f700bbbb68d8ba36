package barrier

import (
	"testing"

	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recording(t *testing.T) (*gfxtest.GPU, gfx.CommandBuffer) {
	gpu := gfxtest.New()
	pool, err := gpu.CreateCommandPool(0)
	require.NoError(t, err)
	cmd, err := gpu.AllocateCommandBuffer(pool)
	require.NoError(t, err)
	require.NoError(t, cmd.Begin(true))
	return gpu, cmd
}

func TestTransitionColor(t *testing.T) {
	gpu, cmd := recording(t)
	Transition(cmd, 5, gfx.LayoutUndefined, gfx.LayoutGeneral)

	barriers := gpu.Barriers()
	require.Len(t, barriers, 1)
	b := barriers[0]
	assert.Equal(t, gfx.Image(5), b.Image)
	assert.Equal(t, gfx.AspectColor, b.Aspect)
	assert.Equal(t, gfx.LayoutUndefined, b.OldLayout)
	assert.Equal(t, gfx.LayoutGeneral, b.NewLayout)
	assert.Equal(t, gfx.PipelineStageAllCommands, b.SrcStage)
	assert.Equal(t, gfx.PipelineStageAllCommands, b.DstStage)
	assert.Equal(t, gfx.AccessMemoryWrite, b.SrcAccess)
	assert.Equal(t, gfx.AccessMemoryWrite|gfx.AccessMemoryRead, b.DstAccess)
}

func TestTransitionDepth(t *testing.T) {
	gpu, cmd := recording(t)
	Transition(cmd, 6, gfx.LayoutUndefined, gfx.LayoutDepthAttachmentOptimal)
	assert.Equal(t, gfx.AspectDepth, gpu.Barriers()[0].Aspect)
}

func TestBlit(t *testing.T) {
	gpu, cmd := recording(t)
	src := gfx.Extent2D{Width: 1700, Height: 900}
	dst := gfx.Extent2D{Width: 800, Height: 600}
	Blit(cmd, 1, 2, src, dst)

	call := gpu.Calls[gpu.Index("cmd.BlitImage", 0)]
	assert.Equal(t, []any{gfx.Image(1), gfx.LayoutTransferSrcOptimal, gfx.Image(2), gfx.LayoutTransferDstOptimal, src, dst}, call.Args)
	assert.Empty(t, gpu.Errors)
}
