package frame

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/gfx/gfxtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*gfxtest.GPU, *Ring, gfx.Swapchain) {
	t.Helper()
	gpu := gfxtest.New()
	ring, err := NewRing(gpu, Options{DescriptorSets: 8})
	require.NoError(t, err)
	sc, _, err := gpu.CreateSwapchain(gfx.SwapchainCreateInfo{Extent: gfx.Extent2D{Width: 4, Height: 4}})
	require.NoError(t, err)
	return gpu, ring, sc
}

func runFrame(t *testing.T, gpu *gfxtest.GPU, ring *Ring, sc gfx.Swapchain) {
	t.Helper()
	_, err := ring.Begin(context.Background())
	require.NoError(t, err)
	f, err := ring.Acquire(gpu, sc)
	require.NoError(t, err)
	f.Cmd.Dispatch(1, 1, 1)
	require.NoError(t, ring.Submit(gpu))
	require.NoError(t, ring.Advance())
}

func TestFencesWaitedOnceAndSignaledOncePerFrame(t *testing.T) {
	gpu, ring, sc := setup(t)

	const frames = 7
	for i := 0; i < frames; i++ {
		runFrame(t, gpu, ring, sc)
	}
	assert.Equal(t, uint64(frames), ring.Number())

	uses := []int{4, 3}
	for i, f := range ring.Frames() {
		assert.Equal(t, uses[i], gpu.FenceWaits(f.Fence), "frame %d waits", i)
		assert.Equal(t, uses[i], gpu.FenceSignals(f.Fence), "frame %d signals", i)
	}
	assert.Empty(t, gpu.Errors)
}

func TestFenceWaitPrecedesCommandReset(t *testing.T) {
	gpu, ring, sc := setup(t)
	for i := 0; i < 4; i++ {
		runFrame(t, gpu, ring, sc)
	}

	for _, f := range ring.Frames() {
		cmd := f.Cmd.(*gfxtest.Cmd)
		var seq []string
		for _, c := range gpu.Calls {
			switch {
			case c.Op == "WaitForFence" && c.Args[0] == f.Fence:
				seq = append(seq, "wait")
			case c.Op == "cmd.Reset" && c.Args[0] == cmd.ID:
				seq = append(seq, "reset")
			}
		}
		assert.Equal(t, []string{"wait", "reset", "wait", "reset"}, seq)
	}
}

func TestSubmitSemaphores(t *testing.T) {
	gpu, ring, sc := setup(t)
	runFrame(t, gpu, ring, sc)

	f := ring.Frames()[0]
	call := gpu.Calls[gpu.Index("Submit", 0)]
	assert.Equal(t, f.Fence, call.Args[0])
	infos := call.Args[1].([]gfx.SubmitInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, []gfx.SemaphoreSubmit{{Semaphore: f.SwapchainSemaphore, Stage: gfx.PipelineStageColorAttachmentOutput}}, infos[0].Wait)
	assert.Equal(t, []gfx.SemaphoreSubmit{{Semaphore: f.RenderSemaphore, Stage: gfx.PipelineStageAllGraphics}}, infos[0].Signal)
	assert.Equal(t, f.SwapchainSemaphore, gpu.Calls[gpu.Index("AcquireNextImage", 0)].Args[1])
}

func TestOutOfDateAcquireAbandonsFrame(t *testing.T) {
	gpu, ring, sc := setup(t)
	gpu.AcquireErrs = []error{errors.Wrap(gfx.ErrOutOfDate, "acquire")}

	_, err := ring.Begin(context.Background())
	require.NoError(t, err)
	_, err = ring.Acquire(gpu, sc)
	assert.ErrorIs(t, err, ErrNeedsResize)

	f := ring.Current()
	assert.Equal(t, Idle, f.State())
	assert.True(t, gpu.FenceSignaled(f.Fence), "fence stays signaled")
	assert.Zero(t, gpu.Count("ResetFence"))
	assert.Zero(t, gpu.Count("Submit"))
	assert.Equal(t, uint64(0), ring.Number())

	// The retry on the same slot does not deadlock.
	runFrame(t, gpu, ring, sc)
	assert.Equal(t, 1, gpu.FenceSignals(f.Fence))
}

func TestBeginFailureAfterAcquireCanBeAbandoned(t *testing.T) {
	gpu, ring, sc := setup(t)
	gpu.BeginErrs = []error{errors.New("device lost")}

	_, err := ring.Begin(context.Background())
	require.NoError(t, err)
	_, err = ring.Acquire(gpu, sc)
	require.ErrorContains(t, err, "device lost")
	assert.False(t, errors.HasAssertionFailure(err))

	f := ring.Current()
	assert.Equal(t, Idle, f.State())
	assert.False(t, gpu.FenceSignaled(f.Fence))

	_, err = ring.Begin(context.Background())
	assert.True(t, errors.HasAssertionFailure(err), "the acquired image must be released first")

	require.NoError(t, ring.Abandon(gpu))
	call := gpu.Calls[gpu.Index("Submit", 0)]
	infos := call.Args[1].([]gfx.SubmitInfo)
	require.Len(t, infos, 1)
	assert.Empty(t, infos[0].CommandBuffers)
	assert.Equal(t, []gfx.SemaphoreSubmit{{Semaphore: f.SwapchainSemaphore, Stage: gfx.PipelineStageColorAttachmentOutput}}, infos[0].Wait)
	assert.True(t, gpu.FenceSignaled(f.Fence))
	assert.Equal(t, uint64(0), ring.Number())

	runFrame(t, gpu, ring, sc)
	assert.Empty(t, gpu.Errors)
}

func TestAbandonWhileRecording(t *testing.T) {
	gpu, ring, sc := setup(t)

	_, err := ring.Begin(context.Background())
	require.NoError(t, err)
	f, err := ring.Acquire(gpu, sc)
	require.NoError(t, err)
	f.Cmd.Dispatch(1, 1, 1)

	require.NoError(t, ring.Abandon(gpu))
	assert.Equal(t, Idle, f.State())
	assert.Equal(t, 1, gpu.Count("cmd.End"))
	assert.Equal(t, 1, gpu.FenceSignals(f.Fence))
	assert.Zero(t, gpu.Count("Present"))

	assert.True(t, errors.HasAssertionFailure(ring.Abandon(gpu)), "nothing left to abandon")
	runFrame(t, gpu, ring, sc)
	assert.Empty(t, gpu.Errors)
}

func TestSuboptimalAcquireProceeds(t *testing.T) {
	gpu, ring, sc := setup(t)
	gpu.AcquireErrs = []error{gfx.ErrSuboptimal}
	runFrame(t, gpu, ring, sc)
	assert.Equal(t, 1, gpu.Count("Submit"))
}

func TestInvalidTransitions(t *testing.T) {
	gpu, ring, sc := setup(t)

	err := ring.Submit(gpu)
	assert.True(t, errors.HasAssertionFailure(err))

	_, err = ring.Acquire(gpu, sc)
	assert.True(t, errors.HasAssertionFailure(err))

	err = ring.Advance()
	assert.True(t, errors.HasAssertionFailure(err))

	_, err = ring.Begin(context.Background())
	require.NoError(t, err)
	_, err = ring.Begin(context.Background())
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestDeletionRunsWhenSlotComesBack(t *testing.T) {
	gpu, ring, sc := setup(t)

	released := 0
	_, err := ring.Begin(context.Background())
	require.NoError(t, err)
	f, err := ring.Acquire(gpu, sc)
	require.NoError(t, err)
	f.Deletion.Push(func() { released++ })
	require.NoError(t, ring.Submit(gpu))
	require.NoError(t, ring.Advance())

	runFrame(t, gpu, ring, sc)
	assert.Zero(t, released, "other slot must not flush")

	_, err = ring.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestBeginClearsDescriptorPools(t *testing.T) {
	gpu, ring, sc := setup(t)
	_, err := ring.Begin(context.Background())
	require.NoError(t, err)
	f, err := ring.Acquire(gpu, sc)
	require.NoError(t, err)
	for i := 0; i < 9; i++ {
		_, err := f.Descriptors.Allocate(1)
		require.NoError(t, err)
	}
	require.Equal(t, 1, f.Descriptors.FullCount())
	require.NoError(t, ring.Submit(gpu))
	require.NoError(t, ring.Advance())
	runFrame(t, gpu, ring, sc)

	_, err = ring.Begin(context.Background())
	require.NoError(t, err)
	assert.Zero(t, f.Descriptors.FullCount())
	assert.Equal(t, 2, f.Descriptors.ReadyCount())
}

func TestBeginHonorsCanceledContext(t *testing.T) {
	_, ring, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ring.Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDestroyReleasesEverything(t *testing.T) {
	gpu, ring, sc := setup(t)
	runFrame(t, gpu, ring, sc)
	gpu.DestroySwapchain(sc)

	ring.Destroy()
	assert.Empty(t, gpu.Live())
	assert.Empty(t, gpu.Errors)
}
