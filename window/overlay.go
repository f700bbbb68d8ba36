package window

import (
	"fmt"
	"time"

	"github.com/jvkengine/jvk/engine"
	"github.com/jvkengine/jvk/gfx"
	"github.com/loov/hrtime"
)

const scaleStep = 0.1

type titleTarget interface {
	SetTitle(title string)
	TakeControls() []Control
}

// TitleOverlay reports frame statistics in the window title and applies the
// keyboard controls to the engine settings. It records no draw commands.
type TitleOverlay struct {
	target   titleTarget
	name     string
	interval time.Duration
	last     time.Duration
	now      func() time.Duration
}

var _ engine.Overlay = (*TitleOverlay)(nil)

func NewTitleOverlay(target titleTarget, name string) *TitleOverlay {
	return &TitleOverlay{
		target:   target,
		name:     name,
		interval: 250 * time.Millisecond,
		last:     -time.Hour,
		now:      hrtime.Now,
	}
}

func (o *TitleOverlay) Update(stats engine.Stats, settings *engine.Settings) {
	for _, c := range o.target.TakeControls() {
		switch c {
		case ScaleUp:
			settings.RenderScale += scaleStep
		case ScaleDown:
			settings.RenderScale -= scaleStep
		case NextEffect:
			if n := len(settings.EffectNames); n > 0 {
				settings.EffectIndex = (settings.EffectIndex + 1) % n
			}
		}
	}

	now := o.now()
	if now-o.last < o.interval {
		return
	}
	o.last = now
	o.target.SetTitle(o.title(stats, settings))
}

func (o *TitleOverlay) title(stats engine.Stats, settings *engine.Settings) string {
	effect := "clear"
	if i := settings.EffectIndex; i >= 0 && i < len(settings.EffectNames) {
		effect = settings.EffectNames[i]
	}
	return fmt.Sprintf("%s | %s x%.1f | %.2f ms | %d draws | %d tris",
		o.name, effect, settings.RenderScale,
		float64(stats.FrameTime.Microseconds())/1000,
		stats.DrawCallCount, stats.TriangleCount)
}

func (o *TitleOverlay) Draw(gfx.CommandBuffer, gfx.ImageView, gfx.Extent2D) {}
