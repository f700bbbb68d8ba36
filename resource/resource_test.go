package resource

import (
	"context"
	"testing"

	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAspectFor(t *testing.T) {
	assert.Equal(t, gfx.AspectDepth, AspectFor(gfx.ImageUsageDepthStencilAttachment))
	assert.Equal(t, gfx.AspectColor, AspectFor(gfx.ImageUsageColorAttachment|gfx.ImageUsageStorage))
}

func TestCreateImageDerivesAspect(t *testing.T) {
	gpu := gfxtest.New()
	extent := gfx.Extent3D{Width: 64, Height: 32, Depth: 1}

	depth, err := CreateImage(gpu, gpu, gfx.FormatD32SFloat, gfx.ImageUsageDepthStencilAttachment, extent)
	require.NoError(t, err)
	assert.Equal(t, gfx.AspectDepth, depth.Aspect)
	assert.Equal(t, extent, depth.Extent)

	call := gpu.Calls[gpu.Index("CreateImageView", 0)]
	assert.Equal(t, gfx.AspectDepth, call.Args[3])

	depth.Destroy(gpu, gpu)
	assert.Empty(t, gpu.Live())
	assert.Empty(t, gpu.Errors)
}

func TestBufferWrite(t *testing.T) {
	gpu := gfxtest.New()
	buf, err := CreateBuffer(gpu, 8, gfx.BufferUsageUniform, gfx.MemoryCPUToGPU)
	require.NoError(t, err)

	require.NoError(t, buf.Write(gpu, 4, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, gpu.BufferData(buf.Buffer))
	assert.Equal(t, 1, gpu.Count("Unmap"))

	assert.Error(t, buf.Write(gpu, 6, []byte{1, 2, 3}))
}

func TestCreateBufferRejectsEmpty(t *testing.T) {
	gpu := gfxtest.New()
	_, err := CreateBuffer(gpu, 0, gfx.BufferUsageIndex, gfx.MemoryGPUOnly)
	assert.Error(t, err)
	assert.Zero(t, gpu.Count("CreateBuffer"))
}

func TestImmediateSubmit(t *testing.T) {
	gpu := gfxtest.New()
	imm, err := NewImmediateSubmitter(gpu, gpu)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		recorded := false
		err = imm.Submit(context.Background(), func(cmd gfx.CommandBuffer) {
			recorded = true
			cmd.Dispatch(1, 1, 1)
		})
		require.NoError(t, err)
		assert.True(t, recorded)
	}

	assert.Equal(t, 2, gpu.FenceSignals(imm.fence))
	assert.Equal(t, 2, gpu.FenceWaits(imm.fence))
	assert.Less(t, gpu.Index("ResetFence", 0), gpu.Index("Submit", 0))
	assert.Less(t, gpu.Index("Submit", 0), gpu.Index("WaitForFence", 0))
	assert.Empty(t, gpu.Errors)

	imm.Destroy()
	assert.Empty(t, gpu.Live())
}

func TestImmediateSubmitCanceled(t *testing.T) {
	gpu := gfxtest.New()
	imm, err := NewImmediateSubmitter(gpu, gpu)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = imm.Submit(ctx, func(gfx.CommandBuffer) { t.Fatal("recorded after cancel") })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, gpu.Count("Submit"))
}
