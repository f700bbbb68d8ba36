package engine

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/swapchain"
)

// Run draws frames until the window asks to quit or ctx is canceled. While
// the window is minimized no frames are drawn.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if quit := e.handleEvents(); quit {
			logger.Info("quit requested", "frames", e.frames.Number())
			return nil
		}

		if e.stopRendering {
			if err := sleep(ctx, e.cfg.IdleSleep); err != nil {
				return err
			}
			continue
		}

		if e.resizeRequested {
			if err := e.Resize(); err != nil {
				return err
			}
			if e.resizeRequested {
				// Zero sized drawable, wait for the window to come back.
				if err := sleep(ctx, e.cfg.IdleSleep); err != nil {
					return err
				}
				continue
			}
		}

		if e.overlay != nil {
			e.overlay.Update(e.stats, &e.settings)
			e.settings.RenderScale = clampScale(e.settings.RenderScale)
		}
		if err := e.Draw(ctx); err != nil {
			return err
		}
	}
}

func (e *Engine) handleEvents() (quit bool) {
	for _, ev := range e.window.PollEvents() {
		switch ev.Kind {
		case EventQuit:
			quit = true
		case EventMinimized:
			e.stopRendering = true
		case EventRestored:
			e.stopRendering = false
		case EventResized:
			e.resizeRequested = true
		}
	}
	return quit
}

// Resize rebuilds the swapchain at the window's current drawable size. If
// the drawable is empty the request stays pending.
func (e *Engine) Resize() error {
	if err := e.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait idle before resize")
	}

	size := e.window.DrawableSize()
	if size.Width == 0 || size.Height == 0 {
		return nil
	}

	e.swapchain.Destroy(e.device, e.surface)
	e.swapchain = nil
	sc, err := swapchain.New(e.device, e.surface, size, e.scOptions)
	if err != nil {
		return errors.Wrap(err, "rebuild swapchain")
	}
	e.swapchain = sc
	e.resizeRequested = false
	logger.Debug("swapchain rebuilt", "extent", size)
	return nil
}

func (e *Engine) SwapchainExtent() gfx.Extent2D {
	if e.swapchain == nil {
		return gfx.Extent2D{}
	}
	return e.swapchain.Extent
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
