package engine

import (
	"context"
	"encoding/binary"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/assets"
	"github.com/jvkengine/jvk/frame"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/gfx/gfxtest"
	"github.com/jvkengine/jvk/mesh"
	"github.com/jvkengine/jvk/pipeline"
	"github.com/jvkengine/jvk/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWindow struct {
	events [][]Event
	size   gfx.Extent2D
	polls  int
}

// PollEvents hands out one batch per call and asks to quit once it runs out.
func (w *fakeWindow) PollEvents() []Event {
	w.polls++
	if len(w.events) == 0 {
		return []Event{{Kind: EventQuit}}
	}
	batch := w.events[0]
	w.events = w.events[1:]
	return batch
}

func (w *fakeWindow) DrawableSize() gfx.Extent2D { return w.size }
func (w *fakeWindow) SetTitle(string)            {}

type fakeOverlay struct {
	updates int
	draws   int
	scale   float32
}

func (o *fakeOverlay) Update(_ Stats, s *Settings) {
	o.updates++
	if o.scale != 0 {
		s.RenderScale = o.scale
	}
}

func (o *fakeOverlay) Draw(cmd gfx.CommandBuffer, _ gfx.ImageView, _ gfx.Extent2D) {
	o.draws++
}

func spirv() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, 0x07230203)
	binary.LittleEndian.PutUint32(b[4:], 0x00010000)
	return b
}

func shaders() fstest.MapFS {
	fs := fstest.MapFS{}
	for _, name := range []string{pipeline.MeshVertexShader, pipeline.MeshFragmentShader, "gradient_color.comp.spv", "sky.comp.spv"} {
		fs["shaders/"+name] = &fstest.MapFile{Data: spirv()}
	}
	return fs
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DrawExtent = gfx.Extent2D{Width: 64, Height: 32}
	cfg.IdleSleep = time.Millisecond
	return cfg
}

func newEngine(t *testing.T, cfg Config, overlay Overlay) (*gfxtest.GPU, *fakeWindow, *Engine) {
	t.Helper()
	gpu := gfxtest.New()
	win := &fakeWindow{size: gfx.Extent2D{Width: 48, Height: 24}}
	e, err := New(context.Background(), cfg, Deps{
		Device:    gpu,
		Queue:     gpu,
		Allocator: gpu,
		Surface:   gpu,
		Window:    win,
		Overlay:   overlay,
		Shaders:   shaders(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Destroy)
	return gpu, win, e
}

type transition struct {
	image    gfx.Image
	from, to gfx.ImageLayout
}

func TestNewAndDestroyReleaseEverything(t *testing.T) {
	gpu, _, e := newEngine(t, testConfig(), nil)
	assert.Equal(t, []string{"gradient", "sky"}, e.Settings().EffectNames)
	require.NoError(t, e.Draw(context.Background()))

	e.Destroy()
	e.Destroy()
	assert.Empty(t, gpu.Live())
	assert.Empty(t, gpu.Errors)
	ops := gpu.Ops()
	assert.Equal(t, "DestroyAllocator", ops[len(ops)-1])
	assert.Equal(t, 1, gpu.Count("DestroyAllocator"))
}

func TestNewFailureReleasesPartialState(t *testing.T) {
	tests := map[string]struct {
		shaders fstest.MapFS
		scene   string
	}{
		"missing shaders":   {shaders: fstest.MapFS{}},
		"missing scene":     {shaders: shaders(), scene: "does/not/exist.glb"},
		"unsupported scene": {shaders: shaders(), scene: "scene.fbx"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			gpu := gfxtest.New()
			cfg := testConfig()
			cfg.ScenePath = tt.scene

			var (
				e   *Engine
				err error
			)
			require.NotPanics(t, func() {
				e, err = New(context.Background(), cfg, Deps{
					Device:    gpu,
					Queue:     gpu,
					Allocator: gpu,
					Surface:   gpu,
					Window:    &fakeWindow{size: gfx.Extent2D{Width: 8, Height: 8}},
					Shaders:   tt.shaders,
				})
			})
			require.Error(t, err)
			assert.Nil(t, e)
			assert.Empty(t, gpu.Live())
			assert.Equal(t, 1, gpu.Count("DestroyAllocator"))
		})
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(context.Background(), testConfig(), Deps{})
	assert.Error(t, err)
}

func TestDrawTransitionOrder(t *testing.T) {
	gpu, _, e := newEngine(t, testConfig(), nil)
	gpu.Reset()
	require.NoError(t, e.Draw(context.Background()))

	draw, depth := e.drawImage.Image, e.depthImage.Image
	swap := e.swapchain.Images[0]
	want := []transition{
		{draw, gfx.LayoutUndefined, gfx.LayoutGeneral},
		{draw, gfx.LayoutGeneral, gfx.LayoutColorAttachmentOptimal},
		{depth, gfx.LayoutUndefined, gfx.LayoutDepthAttachmentOptimal},
		{draw, gfx.LayoutColorAttachmentOptimal, gfx.LayoutTransferSrcOptimal},
		{swap, gfx.LayoutUndefined, gfx.LayoutTransferDstOptimal},
		{swap, gfx.LayoutTransferDstOptimal, gfx.LayoutColorAttachmentOptimal},
		{swap, gfx.LayoutColorAttachmentOptimal, gfx.LayoutPresentSrc},
	}
	var got []transition
	for _, b := range gpu.Barriers() {
		got = append(got, transition{b.Image, b.OldLayout, b.NewLayout})
	}
	assert.Equal(t, want, got)

	assert.Equal(t, 1, gpu.Count("Submit"))
	assert.Equal(t, 1, gpu.Count("Present"))
	assert.Less(t, gpu.Index("Submit", 0), gpu.Index("Present", 0))
	assert.Equal(t, uint64(1), e.Stats().Frame)
	assert.Empty(t, gpu.Errors)
}

func TestBackgroundEffectOrClear(t *testing.T) {
	gpu, _, e := newEngine(t, testConfig(), nil)
	gpu.Reset()
	require.NoError(t, e.Draw(context.Background()))
	assert.Equal(t, 1, gpu.Count("cmd.Dispatch"))
	assert.Zero(t, gpu.Count("cmd.ClearColorImage"))

	cfg := testConfig()
	cfg.Effects = []pipeline.EffectSpec{}
	gpu, _, e = newEngine(t, cfg, nil)
	gpu.Reset()
	require.NoError(t, e.Draw(context.Background()))
	assert.Zero(t, gpu.Count("cmd.Dispatch"))
	assert.Equal(t, 1, gpu.Count("cmd.ClearColorImage"))
}

func TestAcquireOutOfDateSkipsFrame(t *testing.T) {
	gpu, win, e := newEngine(t, testConfig(), nil)
	gpu.AcquireErrs = []error{gfx.ErrOutOfDate}
	gpu.Reset()

	require.NoError(t, e.Draw(context.Background()))
	assert.True(t, e.ResizeRequested())
	assert.Zero(t, gpu.Count("Submit"))
	assert.Zero(t, gpu.Count("Present"))
	assert.Zero(t, gpu.Count("ResetFence"))

	win.size = gfx.Extent2D{Width: 100, Height: 50}
	require.NoError(t, e.Resize())
	assert.False(t, e.ResizeRequested())
	assert.Equal(t, win.size, e.SwapchainExtent())

	require.NoError(t, e.Draw(context.Background()))
	assert.Equal(t, 1, gpu.Count("Present"))
	assert.Empty(t, gpu.Errors)
}

func TestFailedRecordingReleasesSwapchainImage(t *testing.T) {
	gpu, _, e := newEngine(t, testConfig(), nil)
	gpu.FailNextBufferCreate()
	gpu.Reset()

	err := e.Draw(context.Background())
	require.ErrorContains(t, err, "scene data buffer")
	assert.Zero(t, gpu.Count("Present"))

	f := e.frames.Current()
	assert.False(t, f.Acquired())
	assert.Equal(t, frame.Idle, f.State())
	assert.True(t, gpu.FenceSignaled(f.Fence))
	assert.Equal(t, uint64(0), e.Stats().Frame)

	require.NoError(t, e.Draw(context.Background()))
	assert.Equal(t, 1, gpu.Count("Present"))
	assert.Empty(t, gpu.Errors)
}

func TestFailedCommandBeginReleasesSwapchainImage(t *testing.T) {
	gpu, _, e := newEngine(t, testConfig(), nil)
	gpu.BeginErrs = []error{errors.New("device lost")}

	err := e.Draw(context.Background())
	require.ErrorContains(t, err, "device lost")
	assert.False(t, errors.HasAssertionFailure(err))
	assert.False(t, e.frames.Current().Acquired())

	require.NoError(t, e.Draw(context.Background()))
	assert.Empty(t, gpu.Errors)
}

func TestPresentOutOfDateRequestsResize(t *testing.T) {
	gpu, _, e := newEngine(t, testConfig(), nil)
	gpu.PresentErrs = []error{gfx.ErrSuboptimal}

	require.NoError(t, e.Draw(context.Background()))
	assert.True(t, e.ResizeRequested())
	assert.Equal(t, uint64(1), e.Stats().Frame)
}

func TestResizeWaitsForNonEmptyDrawable(t *testing.T) {
	gpu, win, e := newEngine(t, testConfig(), nil)
	e.resizeRequested = true
	win.size = gfx.Extent2D{}
	gpu.Reset()

	require.NoError(t, e.Resize())
	assert.True(t, e.ResizeRequested())
	assert.Zero(t, gpu.Count("DestroySwapchain"))
}

func TestRunSkipsFramesWhileMinimized(t *testing.T) {
	overlay := &fakeOverlay{}
	gpu, win, e := newEngine(t, testConfig(), overlay)
	win.events = [][]Event{
		{{Kind: EventMinimized}},
		nil,
		{{Kind: EventRestored}},
		nil,
	}
	gpu.Reset()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 5, win.polls)
	assert.Equal(t, 2, gpu.Count("Present"))
	assert.Equal(t, 2, overlay.updates)
	assert.Equal(t, 2, overlay.draws)
}

func TestRunRebuildsSwapchainOnResize(t *testing.T) {
	gpu, win, e := newEngine(t, testConfig(), nil)
	win.events = [][]Event{{{Kind: EventResized, Size: gfx.Extent2D{Width: 80, Height: 60}}}}
	win.size = gfx.Extent2D{Width: 80, Height: 60}
	gpu.Reset()

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 1, gpu.Count("DestroySwapchain"))
	assert.Equal(t, 1, gpu.Count("CreateSwapchain"))
	assert.Less(t, gpu.Index("WaitIdle", 0), gpu.Index("DestroySwapchain", 0))
	assert.Equal(t, win.size, e.SwapchainExtent())
}

func TestRunHonorsCanceledContext(t *testing.T) {
	_, _, e := newEngine(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Run(ctx), context.Canceled)
}

func TestOverlayRenderScaleIsClamped(t *testing.T) {
	overlay := &fakeOverlay{scale: 0.1}
	_, win, e := newEngine(t, testConfig(), overlay)
	win.events = [][]Event{nil}

	require.NoError(t, e.Run(context.Background()))
	assert.InDelta(t, MinRenderScale, e.Settings().RenderScale, 1e-6)
	assert.Equal(t, drawExtent(e.SwapchainExtent(), e.cfg.DrawExtent, MinRenderScale), e.DrawExtent())
}

func TestDrawGeometry(t *testing.T) {
	gpu, _, e := newEngine(t, testConfig(), nil)

	indices := []uint32{0, 1, 2, 0, 2, 3}
	vertices := make([]mesh.Vertex, 4)
	buffers, err := e.uploader.Upload(context.Background(), indices, vertices)
	require.NoError(t, err)

	asset := &mesh.Asset{
		Name: "quad",
		Surfaces: []mesh.Surface{
			{StartIndex: 0, Count: 3, Material: &e.opaqueMaterial},
			{StartIndex: 3, Count: 3, Material: &e.transparentMaterial},
		},
		Buffers: buffers,
	}
	s := &assets.Scene{Meshes: []*mesh.Asset{asset}, ByName: map[string]scene.NodeID{}}
	s.Graph.AddMesh("quad", mgl32.Translate3D(0, 0, -1), asset)
	e.scenes = append(e.scenes, s)
	e.deletion.Push(func() { s.Destroy(e.allocator) })
	gpu.Reset()

	require.NoError(t, e.Draw(context.Background()))
	assert.Equal(t, 2, gpu.Count("cmd.DrawIndexed"))
	assert.Equal(t, 2, e.Stats().DrawCallCount)
	assert.Equal(t, 2, e.Stats().TriangleCount)

	// Opaque surfaces are drawn before transparent ones.
	var pipelines []gfx.Pipeline
	for _, c := range gpu.Calls {
		if c.Op == "cmd.BindPipeline" && c.Args[0] == gfx.BindPointGraphics {
			pipelines = append(pipelines, c.Args[1].(gfx.Pipeline))
		}
	}
	assert.Equal(t, []gfx.Pipeline{e.opaqueMaterial.Pipeline.Pipeline, e.transparentMaterial.Pipeline.Pipeline}, pipelines)

	var uniform gfx.Buffer
	for _, c := range gpu.Calls {
		if c.Op == "CreateBuffer" && c.Args[2] == gfx.BufferUsageUniform {
			uniform = c.Args[0].(gfx.Buffer)
		}
	}
	require.NotZero(t, uniform)
	assert.Equal(t, e.Scene.Bytes(), gpu.BufferData(uniform))
	assert.True(t, gpu.IsLive(uint64(uniform)), "kept until the frame slot returns")
}

func TestDrawExtentScales(t *testing.T) {
	got := drawExtent(gfx.Extent2D{Width: 1920, Height: 1080}, gfx.Extent2D{Width: 1700, Height: 900}, 0.5)
	assert.Equal(t, gfx.Extent2D{Width: 850, Height: 450}, got)
}

func TestSceneDataSize(t *testing.T) {
	assert.Len(t, SceneData{}.Bytes(), SceneDataSize)
}

func TestCameraFlipsY(t *testing.T) {
	_, proj := cameraMatrices(gfx.Extent2D{Width: 200, Height: 100})
	assert.Less(t, proj.At(1, 1), float32(0))
	assert.Greater(t, proj.At(0, 0), float32(0))
}
