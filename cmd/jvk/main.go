// Command jvk opens a window and renders a glTF or OBJ scene with Vulkan.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/assets"
	"github.com/jvkengine/jvk/config"
	"github.com/jvkengine/jvk/descriptors"
	"github.com/jvkengine/jvk/engine"
	"github.com/jvkengine/jvk/frame"
	"github.com/jvkengine/jvk/gfx"
	"github.com/jvkengine/jvk/internal/logging"
	"github.com/jvkengine/jvk/vkng"
	"github.com/jvkengine/jvk/window"
	"github.com/spf13/pflag"
)

func init() {
	// SDL must be driven from the thread that initialized it.
	runtime.LockOSThread()
}

func main() {
	flags := config.NewFlags("jvk")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprint(os.Stderr, flags.Usage())
			return
		}
		fmt.Fprintf(os.Stderr, "%v\n%s", err, flags.Usage())
		os.Exit(2)
	}

	cfg, err := flags.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(2)
	}

	log := logging.New(os.Stderr, cfg.LogLevel())
	for name, set := range map[string]func(*slog.Logger){
		"engine":      engine.SetLogger,
		"vkng":        vkng.SetLogger,
		"window":      window.SetLogger,
		"frame":       frame.SetLogger,
		"descriptors": descriptors.SetLogger,
		"assets":      assets.SetLogger,
	} {
		set(log.With("pkg", name))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error("jvk failed", "err", fmt.Sprintf("%+v", err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	win, err := window.Open(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return err
	}
	defer win.Close()

	vk, err := vkng.New(win.Handle(), vkng.Options{AppName: cfg.Window.Title, Validation: cfg.Render.Validation})
	if err != nil {
		return errors.Wrap(err, "init vulkan")
	}
	defer vk.Destroy()

	engineCfg := engine.DefaultConfig()
	engineCfg.DrawExtent = gfx.Extent2D{Width: cfg.Render.DrawWidth, Height: cfg.Render.DrawHeight}
	engineCfg.RenderScale = cfg.Render.RenderScale
	engineCfg.FrameTimeout = time.Duration(cfg.Render.FrameTimeout)
	engineCfg.ShaderDir = "."
	engineCfg.ScenePath = cfg.Scene.Path
	if !cfg.Render.VSync {
		engineCfg.PresentMode = gfx.PresentModeMailbox
	}

	e, err := engine.New(ctx, engineCfg, engine.Deps{
		Device:    vk.Device,
		Queue:     vk.Device,
		Allocator: vk.Allocator,
		Surface:   vk.Surface,
		Window:    win,
		Overlay:   window.NewTitleOverlay(win, cfg.Window.Title),
		Shaders:   os.DirFS(cfg.Shaders.Dir),
	})
	if err != nil {
		return errors.Wrap(err, "init engine")
	}
	defer e.Destroy()

	err = e.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
