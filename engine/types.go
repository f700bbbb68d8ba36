package engine

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/jvkengine/jvk/gfx"
)

type EventKind int

const (
	EventQuit EventKind = iota
	EventMinimized
	EventRestored
	EventResized
)

type Event struct {
	Kind EventKind
	Size gfx.Extent2D
}

// Window is the windowing system as the engine sees it.
type Window interface {
	PollEvents() []Event
	DrawableSize() gfx.Extent2D
	SetTitle(title string)
}

// Overlay draws debug UI on top of the finished frame. Draw is called inside
// a rendering scope targeting the swapchain image, which already holds the
// scene.
type Overlay interface {
	Update(stats Stats, settings *Settings)
	Draw(cmd gfx.CommandBuffer, target gfx.ImageView, extent gfx.Extent2D)
}

// Settings are the knobs an overlay may change between frames.
type Settings struct {
	RenderScale float32
	EffectIndex int
	EffectNames []string
}

const (
	MinRenderScale = 0.3
	MaxRenderScale = 1.0
)

func clampScale(s float32) float32 {
	if s < MinRenderScale {
		return MinRenderScale
	}
	if s > MaxRenderScale {
		return MaxRenderScale
	}
	return s
}

type Stats struct {
	Frame           uint64
	FrameTime       time.Duration
	SceneUpdateTime time.Duration
	MeshDrawTime    time.Duration
	TriangleCount   int
	DrawCallCount   int
}

// SceneData is uploaded once per frame and read by the mesh shaders.
type SceneData struct {
	View              mgl32.Mat4
	Proj              mgl32.Mat4
	ViewProj          mgl32.Mat4
	AmbientColor      mgl32.Vec4
	SunlightDirection mgl32.Vec4
	SunlightColor     mgl32.Vec4
}

const SceneDataSize = 240

func (d SceneData) Bytes() []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.NativeEndian, d)
	return buf.Bytes()
}

// drawExtent scales the smaller of the swapchain and draw image sizes.
func drawExtent(swapchain, image gfx.Extent2D, scale float32) gfx.Extent2D {
	return gfx.Extent2D{
		Width:  uint32(float32(min(swapchain.Width, image.Width)) * scale),
		Height: uint32(float32(min(swapchain.Height, image.Height)) * scale),
	}
}
