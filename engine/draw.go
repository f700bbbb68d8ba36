package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/barrier"
	"github.com/jvkengine/jvk/descriptors"
	"github.com/jvkengine/jvk/frame"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/pipeline"
	"github.com/jvkengine/jvk/resource"
	"github.com/jvkengine/jvk/scene"
	"github.com/loov/hrtime"
)

var backgroundColor = gfx.ClearColor{35.0 / 255, 43.0 / 255, 43.0 / 255, 1}

// Draw renders and presents one frame. A swapchain that went out of date is
// not an error: the frame is skipped and ResizeRequested reports true until
// the swapchain has been rebuilt.
func (e *Engine) Draw(ctx context.Context) error {
	start := hrtime.Now()

	e.updateScene()

	if _, err := e.frames.Begin(ctx); err != nil {
		return err
	}
	f, err := e.frames.Acquire(e.surface, e.swapchain.Handle)
	if errors.Is(err, frame.ErrNeedsResize) {
		e.resizeRequested = true
		return nil
	}
	if err != nil {
		return e.abandon(err)
	}

	e.drawExtent = drawExtent(e.swapchain.Extent, e.drawImage.Extent.Extent2D(), e.settings.RenderScale)
	swapImage := e.swapchain.Images[f.ImageIndex]
	swapView := e.swapchain.Views[f.ImageIndex]
	cmd := f.Cmd

	barrier.Transition(cmd, e.drawImage.Image, gfx.LayoutUndefined, gfx.LayoutGeneral)
	e.drawBackground(cmd)

	barrier.Transition(cmd, e.drawImage.Image, gfx.LayoutGeneral, gfx.LayoutColorAttachmentOptimal)
	barrier.Transition(cmd, e.depthImage.Image, gfx.LayoutUndefined, gfx.LayoutDepthAttachmentOptimal)
	if err := e.drawGeometry(cmd, f); err != nil {
		return e.abandon(err)
	}

	barrier.Transition(cmd, e.drawImage.Image, gfx.LayoutColorAttachmentOptimal, gfx.LayoutTransferSrcOptimal)
	barrier.Transition(cmd, swapImage, gfx.LayoutUndefined, gfx.LayoutTransferDstOptimal)
	barrier.Blit(cmd, e.drawImage.Image, swapImage, e.drawExtent, e.swapchain.Extent)

	barrier.Transition(cmd, swapImage, gfx.LayoutTransferDstOptimal, gfx.LayoutColorAttachmentOptimal)
	if e.overlay != nil {
		e.drawOverlay(cmd, swapView)
	}
	barrier.Transition(cmd, swapImage, gfx.LayoutColorAttachmentOptimal, gfx.LayoutPresentSrc)

	if err := e.frames.Submit(e.queue); err != nil {
		return e.abandon(err)
	}
	presentErr := e.queue.Present(e.swapchain.Handle, f.ImageIndex, f.RenderSemaphore)
	if err := e.frames.Advance(); err != nil {
		return err
	}
	switch {
	case errors.Is(presentErr, gfx.ErrOutOfDate), errors.Is(presentErr, gfx.ErrSuboptimal):
		e.resizeRequested = true
	case presentErr != nil:
		return errors.Wrap(presentErr, "present")
	}

	e.stats.Frame = e.frames.Number()
	e.stats.FrameTime = hrtime.Since(start)
	return nil
}

// abandon gives the current frame's swapchain image back after a failed
// frame so the slot can be used again. The original error is returned.
func (e *Engine) abandon(err error) error {
	if !e.frames.Current().Acquired() {
		return err
	}
	if abandonErr := e.frames.Abandon(e.queue); abandonErr != nil {
		return errors.CombineErrors(err, abandonErr)
	}
	return err
}

func (e *Engine) drawBackground(cmd gfx.CommandBuffer) {
	if e.effects == nil || len(e.effects.List) == 0 {
		cmd.ClearColorImage(e.drawImage.Image, gfx.LayoutGeneral, backgroundColor)
		return
	}
	idx := e.settings.EffectIndex
	if idx < 0 || idx >= len(e.effects.List) {
		idx = 0
		e.settings.EffectIndex = 0
	}
	e.effects.List[idx].Record(cmd, e.drawImageSet, e.drawExtent)
}

// drawGeometry records every visible surface into the draw image. The scene
// uniform buffer lives until this frame slot comes back around.
func (e *Engine) drawGeometry(cmd gfx.CommandBuffer, f *frame.Frame) error {
	start := hrtime.Now()

	sceneBuffer, err := resource.CreateBuffer(e.allocator, SceneDataSize, gfx.BufferUsageUniform, gfx.MemoryCPUToGPU)
	if err != nil {
		return errors.Wrap(err, "scene data buffer")
	}
	f.Deletion.Push(func() { sceneBuffer.Destroy(e.allocator) })
	if err := sceneBuffer.Write(e.allocator, 0, e.Scene.Bytes()); err != nil {
		return err
	}

	sceneSet, err := f.Descriptors.Allocate(e.sceneDataLayout)
	if err != nil {
		return err
	}
	var writer descriptors.Writer
	writer.WriteBuffer(0, sceneBuffer.Buffer, SceneDataSize, 0, gfx.DescriptorUniformBuffer)
	writer.UpdateSet(e.device, sceneSet)

	cmd.BeginRendering(gfx.RenderingInfo{
		Extent: e.drawExtent,
		Color: []gfx.RenderingAttachment{{
			View:   e.drawImage.View,
			Layout: gfx.LayoutColorAttachmentOptimal,
			Load:   gfx.LoadOpLoad,
		}},
		Depth: &gfx.RenderingAttachment{
			View:   e.depthImage.View,
			Layout: gfx.LayoutDepthAttachmentOptimal,
			Load:   gfx.LoadOpClear,
			Clear:  gfx.ClearValue{Depth: 1},
		},
	})
	cmd.SetViewport(gfx.Viewport{
		Width:    float32(e.drawExtent.Width),
		Height:   float32(e.drawExtent.Height),
		MaxDepth: 1,
	})
	cmd.SetScissor(gfx.Rect2D{Extent: e.drawExtent})

	e.stats.DrawCallCount = 0
	e.stats.TriangleCount = 0
	for _, objects := range [][]scene.RenderObject{e.drawCtx.Opaque, e.drawCtx.Transparent} {
		for i := range objects {
			e.drawObject(cmd, sceneSet, &objects[i])
		}
	}
	cmd.EndRendering()

	e.stats.MeshDrawTime = hrtime.Since(start)
	return nil
}

func (e *Engine) drawObject(cmd gfx.CommandBuffer, sceneSet gfx.DescriptorSet, obj *scene.RenderObject) {
	mp := obj.Material.Pipeline
	cmd.BindPipeline(gfx.BindPointGraphics, mp.Pipeline)
	cmd.BindDescriptorSets(gfx.BindPointGraphics, mp.Layout, 0, sceneSet)

	push := pipeline.MeshPushConstants{
		WorldMatrix:  e.Scene.ViewProj.Mul4(obj.Transform),
		VertexBuffer: obj.VertexBufferAddress,
	}
	cmd.PushConstants(mp.Layout, gfx.StageVertex, 0, push.Bytes())
	cmd.BindIndexBuffer(obj.IndexBuffer, 0, gfx.IndexTypeUInt32)
	cmd.DrawIndexed(obj.IndexCount, 1, obj.FirstIndex, 0, 0)

	e.stats.DrawCallCount++
	e.stats.TriangleCount += int(obj.IndexCount / 3)
}

func (e *Engine) drawOverlay(cmd gfx.CommandBuffer, target gfx.ImageView) {
	cmd.BeginRendering(gfx.RenderingInfo{
		Extent: e.swapchain.Extent,
		Color: []gfx.RenderingAttachment{{
			View:   target,
			Layout: gfx.LayoutColorAttachmentOptimal,
			Load:   gfx.LoadOpLoad,
		}},
	})
	e.overlay.Draw(cmd, target, e.swapchain.Extent)
	cmd.EndRendering()
}

// updateScene rebuilds the draw lists and the camera for the coming frame.
func (e *Engine) updateScene() {
	start := hrtime.Now()

	e.drawCtx.Reset()
	for _, s := range e.scenes {
		s.Draw(mgl32.Ident4(), &e.drawCtx)
	}

	extent := e.drawExtent
	if extent.Width == 0 || extent.Height == 0 {
		extent = e.drawImage.Extent.Extent2D()
	}
	view, proj := cameraMatrices(extent)
	e.Scene.View = view
	e.Scene.Proj = proj
	e.Scene.ViewProj = proj.Mul4(view)
	e.Scene.AmbientColor = mgl32.Vec4{0.1, 0.1, 0.1, 1}
	e.Scene.SunlightColor = mgl32.Vec4{1, 1, 1, 1}
	e.Scene.SunlightDirection = mgl32.Vec4{0, 1, 0.5, 1}

	e.stats.SceneUpdateTime = hrtime.Since(start)
}
