// Package engine drives the renderer: it owns every GPU object, records and
// submits one frame at a time and reacts to window events.
package engine

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/assets"
	"github.com/jvkengine/jvk/deletion"
	"github.com/jvkengine/jvk/descriptors"
	"github.com/jvkengine/jvk/frame"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/internal/logging"
	"github.com/jvkengine/jvk/mesh"
	"github.com/jvkengine/jvk/pipeline"
	"github.com/jvkengine/jvk/resource"
	"github.com/jvkengine/jvk/scene"
	"github.com/jvkengine/jvk/swapchain"
)

var logger = logging.Discard()

func SetLogger(l *slog.Logger) {
	logger = l
}

const (
	DrawFormat  = gfx.FormatR16G16B16A16SFloat
	DepthFormat = gfx.FormatD32SFloat
)

type Config struct {
	DrawExtent   gfx.Extent2D
	RenderScale  float32
	PresentMode  gfx.PresentMode
	FrameTimeout time.Duration
	ShaderDir    string
	// Effects are the background compute effects. Nil selects the defaults;
	// an empty slice clears the background with a flat color instead.
	Effects   []pipeline.EffectSpec
	ScenePath string
	IdleSleep time.Duration
}

func DefaultConfig() Config {
	return Config{
		DrawExtent:   gfx.Extent2D{Width: 1700, Height: 900},
		RenderScale:  1,
		PresentMode:  gfx.PresentModeFIFO,
		FrameTimeout: frame.DefaultFenceTimeout,
		ShaderDir:    "shaders",
		IdleSleep:    100 * time.Millisecond,
	}
}

// Deps are the collaborators the engine renders through. The engine owns
// Allocator: Destroy, or a failed New, destroys it after everything allocated
// from it.
type Deps struct {
	Device    gfx.Device
	Queue     gfx.Queue
	Allocator gfx.Allocator
	Surface   gfx.Surface
	Window    Window
	Overlay   Overlay
	Shaders   fs.FS
}

type Engine struct {
	cfg Config

	device    gfx.Device
	queue     gfx.Queue
	allocator gfx.Allocator
	surface   gfx.Surface
	window    Window
	overlay   Overlay
	shaders   fs.FS

	frames     *frame.Ring
	swapchain  *swapchain.Swapchain
	scOptions  swapchain.Options
	drawImage  resource.AllocatedImage
	depthImage resource.AllocatedImage
	drawExtent gfx.Extent2D
	immediate  *resource.ImmediateSubmitter
	uploader   *mesh.Uploader

	globalDescriptors *descriptors.Allocator
	drawImageLayout   gfx.DescriptorSetLayout
	drawImageSet      gfx.DescriptorSet
	sceneDataLayout   gfx.DescriptorSetLayout

	effects             *pipeline.Effects
	opaqueMaterial      mesh.Material
	transparentMaterial mesh.Material

	scenes   []*assets.Scene
	drawCtx  scene.DrawContext
	Scene    SceneData
	settings Settings
	stats    Stats

	deletion        deletion.Queue
	resizeRequested bool
	stopRendering   bool
	destroyed       bool
}

// New builds every long-lived GPU object. On failure whatever was already
// created is released before returning.
func New(ctx context.Context, cfg Config, deps Deps) (_ *Engine, err error) {
	if deps.Device == nil || deps.Queue == nil || deps.Allocator == nil || deps.Surface == nil || deps.Window == nil {
		return nil, errors.New("engine needs a device, queue, allocator, surface and window")
	}
	if cfg.Effects == nil {
		cfg.Effects = pipeline.DefaultEffects
	}

	eng := &Engine{
		cfg:       cfg,
		device:    deps.Device,
		queue:     deps.Queue,
		allocator: deps.Allocator,
		surface:   deps.Surface,
		window:    deps.Window,
		overlay:   deps.Overlay,
		shaders:   deps.Shaders,
		settings:  Settings{RenderScale: clampScale(cfg.RenderScale)},
	}
	defer func() {
		if err != nil {
			eng.Destroy()
		}
	}()

	eng.deletion.Push(eng.allocator.Destroy)

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"swapchain", eng.initSwapchain},
		{"commands", eng.initCommands},
		{"descriptors", eng.initDescriptors},
		{"pipelines", eng.initPipelines},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return nil, errors.Wrapf(err, "init %s", step.name)
		}
	}

	if cfg.ScenePath != "" {
		if err := eng.LoadScene(ctx, cfg.ScenePath); err != nil {
			return nil, err
		}
	}

	logger.Info("engine ready",
		"swapchain", eng.swapchain.Extent,
		"draw", eng.drawImage.Extent.Extent2D(),
		"effects", len(eng.settings.EffectNames))
	return eng, nil
}

func (e *Engine) initSwapchain(context.Context) error {
	e.scOptions = swapchain.DefaultOptions()
	e.scOptions.PresentMode = e.cfg.PresentMode

	sc, err := swapchain.New(e.device, e.surface, e.window.DrawableSize(), e.scOptions)
	if err != nil {
		return err
	}
	e.swapchain = sc

	size := gfx.Extent3D{Width: e.cfg.DrawExtent.Width, Height: e.cfg.DrawExtent.Height, Depth: 1}
	e.drawImage, err = resource.CreateImage(e.device, e.allocator, DrawFormat,
		gfx.ImageUsageTransferSrc|gfx.ImageUsageTransferDst|gfx.ImageUsageStorage|gfx.ImageUsageColorAttachment,
		size)
	if err != nil {
		return errors.Wrap(err, "draw image")
	}
	drawImage := e.drawImage
	e.deletion.Push(func() { drawImage.Destroy(e.device, e.allocator) })

	e.depthImage, err = resource.CreateImage(e.device, e.allocator, DepthFormat, gfx.ImageUsageDepthStencilAttachment, size)
	if err != nil {
		return errors.Wrap(err, "depth image")
	}
	depthImage := e.depthImage
	e.deletion.Push(func() { depthImage.Destroy(e.device, e.allocator) })
	return nil
}

func (e *Engine) initCommands(context.Context) error {
	frames, err := frame.NewRing(e.device, frame.Options{QueueFamily: e.queue.Family()})
	if err != nil {
		return err
	}
	if e.cfg.FrameTimeout > 0 {
		frames.FenceTimeout = e.cfg.FrameTimeout
		frames.AcquireTimeout = e.cfg.FrameTimeout
	}
	e.frames = frames
	e.deletion.Push(frames.Destroy)

	e.immediate, err = resource.NewImmediateSubmitter(e.device, e.queue)
	if err != nil {
		return err
	}
	e.deletion.Push(e.immediate.Destroy)

	e.uploader = &mesh.Uploader{Device: e.device, Allocator: e.allocator, Submitter: e.immediate}
	return nil
}

func (e *Engine) initDescriptors(context.Context) error {
	var err error
	e.globalDescriptors, err = descriptors.NewAllocator(e.device, 10, []descriptors.PoolSizeRatio{
		{Type: gfx.DescriptorStorageImage, Ratio: 1},
	})
	if err != nil {
		return err
	}
	e.deletion.Push(e.globalDescriptors.Destroy)

	var builder descriptors.LayoutBuilder
	builder.AddBinding(0, gfx.DescriptorStorageImage)
	if e.drawImageLayout, err = builder.Build(e.device, gfx.StageCompute); err != nil {
		return err
	}
	drawImageLayout := e.drawImageLayout
	e.deletion.Push(func() { e.device.DestroyDescriptorSetLayout(drawImageLayout) })

	if e.drawImageSet, err = e.globalDescriptors.Allocate(e.drawImageLayout); err != nil {
		return err
	}
	var writer descriptors.Writer
	writer.WriteImage(0, e.drawImage.View, 0, gfx.LayoutGeneral, gfx.DescriptorStorageImage)
	writer.UpdateSet(e.device, e.drawImageSet)

	builder.Clear()
	builder.AddBinding(0, gfx.DescriptorUniformBuffer)
	if e.sceneDataLayout, err = builder.Build(e.device, gfx.StageVertex|gfx.StageFragment); err != nil {
		return err
	}
	sceneDataLayout := e.sceneDataLayout
	e.deletion.Push(func() { e.device.DestroyDescriptorSetLayout(sceneDataLayout) })
	return nil
}

func (e *Engine) initPipelines(context.Context) error {
	if len(e.cfg.Effects) > 0 {
		effects, err := pipeline.NewEffects(e.device, e.shaders, e.cfg.ShaderDir, e.drawImageLayout, e.cfg.Effects)
		if err != nil {
			return err
		}
		e.effects = effects
		e.deletion.Push(func() { effects.Destroy(e.device) })
		for _, effect := range effects.List {
			e.settings.EffectNames = append(e.settings.EffectNames, effect.Name)
		}
	}

	opaque, transparent, err := pipeline.NewMeshPipeline(e.device, e.shaders, e.cfg.ShaderDir, DrawFormat, DepthFormat, e.sceneDataLayout)
	if err != nil {
		return err
	}
	e.deletion.Push(func() {
		e.device.DestroyPipeline(transparent.Pipeline)
		e.device.DestroyPipeline(opaque.Pipeline)
		e.device.DestroyPipelineLayout(opaque.Layout)
	})

	e.opaqueMaterial = mesh.Material{Name: "default", Pipeline: opaque, Pass: mesh.PassOpaque}
	e.transparentMaterial = mesh.Material{Name: "default transparent", Pipeline: transparent, Pass: mesh.PassTransparent}
	return nil
}

// LoadScene loads a glTF or OBJ file and adds it to what is drawn every
// frame. For OBJ files a .mtl file next to the model is used if present.
func (e *Engine) LoadScene(ctx context.Context, path string) error {
	opts := assets.Options{
		Opaque:         &e.opaqueMaterial,
		Transparent:    &e.transparentMaterial,
		NormalsAsColor: true,
	}

	var s *assets.Scene
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".obj":
		mtl := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
		if !fileExists(mtl) {
			mtl = ""
		}
		s, err = assets.LoadOBJ(ctx, e.uploader, path, mtl, opts)
	case ".gltf", ".glb":
		s, err = assets.LoadGLTF(ctx, e.uploader, e.allocator, path, opts)
	default:
		return errors.Newf("unsupported scene file %s", path)
	}
	if err != nil {
		return err
	}

	e.scenes = append(e.scenes, s)
	e.deletion.Push(func() { s.Destroy(e.allocator) })
	return nil
}

// Settings exposes the values the overlay edits.
func (e *Engine) Settings() *Settings {
	return &e.settings
}

func (e *Engine) Stats() Stats {
	return e.stats
}

// ResizeRequested reports whether the swapchain will be rebuilt before the
// next frame.
func (e *Engine) ResizeRequested() bool {
	return e.resizeRequested
}

func (e *Engine) DrawExtent() gfx.Extent2D {
	return e.drawExtent
}

// Destroy waits for the GPU and releases everything in reverse order of
// creation. It is safe to call more than once.
func (e *Engine) Destroy() {
	if e.destroyed {
		return
	}
	e.destroyed = true

	if err := e.device.WaitIdle(); err != nil {
		logger.Error("wait idle before teardown", "err", err)
	}
	if e.swapchain != nil {
		e.swapchain.Destroy(e.device, e.surface)
		e.swapchain = nil
	}
	e.deletion.Flush()
}

func cameraMatrices(extent gfx.Extent2D) (view, proj mgl32.Mat4) {
	view = mgl32.Translate3D(0, 0, -5)
	aspect := float32(1)
	if extent.Height > 0 {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	proj = mgl32.Perspective(mgl32.DegToRad(70), aspect, 0.1, 10000)
	// Vulkan clip space has y pointing down.
	proj.Set(1, 1, -proj.At(1, 1))
	return view, proj
}
