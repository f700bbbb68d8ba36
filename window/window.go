// Package window adapts an SDL2 window to the engine.
package window

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/engine"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/internal/logging"
	"github.com/veandco/go-sdl2/sdl"
)

var logger = logging.Discard()

func SetLogger(l *slog.Logger) {
	logger = l
}

// Control is a keyboard command for the overlay.
type Control int

const (
	ScaleUp Control = iota
	ScaleDown
	NextEffect
)

// SDL is a resizable Vulkan-capable SDL window.
type SDL struct {
	window   *sdl.Window
	controls []Control
}

var _ engine.Window = (*SDL)(nil)

func Open(title string, width, height uint32) (*SDL, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}
	return &SDL{window: window}, nil
}

// Handle is the underlying window, needed to create the Vulkan surface.
func (w *SDL) Handle() *sdl.Window {
	return w.window
}

func (w *SDL) Close() {
	if w.window != nil {
		if err := w.window.Destroy(); err != nil {
			logger.Warn("destroy window", "err", err)
		}
		w.window = nil
	}
	sdl.Quit()
}

func (w *SDL) PollEvents() []engine.Event {
	var events []engine.Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if ev, ok := translate(event); ok {
			events = append(events, ev)
		}
		if c, ok := control(event); ok {
			w.controls = append(w.controls, c)
		}
	}
	return events
}

// TakeControls returns and clears the keyboard commands seen since the last
// call.
func (w *SDL) TakeControls() []Control {
	c := w.controls
	w.controls = nil
	return c
}

func (w *SDL) DrawableSize() gfx.Extent2D {
	width, height := w.window.VulkanGetDrawableSize()
	if width < 0 || height < 0 {
		return gfx.Extent2D{}
	}
	return gfx.Extent2D{Width: uint32(width), Height: uint32(height)}
}

func (w *SDL) SetTitle(title string) {
	w.window.SetTitle(title)
}

func translate(event sdl.Event) (engine.Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return engine.Event{Kind: engine.EventQuit}, true
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
			return engine.Event{Kind: engine.EventQuit}, true
		}
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_MINIMIZED:
			return engine.Event{Kind: engine.EventMinimized}, true
		case sdl.WINDOWEVENT_RESTORED:
			return engine.Event{Kind: engine.EventRestored}, true
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			size := gfx.Extent2D{}
			if e.Data1 > 0 && e.Data2 > 0 {
				size = gfx.Extent2D{Width: uint32(e.Data1), Height: uint32(e.Data2)}
			}
			return engine.Event{Kind: engine.EventResized, Size: size}, true
		}
	}
	return engine.Event{}, false
}

func control(event sdl.Event) (Control, bool) {
	e, ok := event.(*sdl.KeyboardEvent)
	if !ok || e.Type != sdl.KEYDOWN {
		return 0, false
	}
	switch e.Keysym.Sym {
	case sdl.K_EQUALS, sdl.K_KP_PLUS, sdl.K_PAGEUP:
		return ScaleUp, true
	case sdl.K_MINUS, sdl.K_KP_MINUS, sdl.K_PAGEDOWN:
		return ScaleDown, true
	case sdl.K_TAB:
		return NextEffect, true
	}
	return 0, false
}
