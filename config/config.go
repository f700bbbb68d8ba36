// Package config holds the settings read from a TOML file and the command
// line.
package config

import (
	"bytes"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jvkengine/jvk/internal/logging"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

type Window struct {
	Title  string `toml:"title"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Render struct {
	// DrawWidth and DrawHeight size the offscreen image every frame is
	// rendered into before being copied to the swapchain.
	DrawWidth   uint32  `toml:"draw_width"`
	DrawHeight  uint32  `toml:"draw_height"`
	RenderScale float32 `toml:"render_scale"`
	VSync       bool    `toml:"vsync"`
	Validation  bool    `toml:"validation"`
	// FrameTimeout bounds fence waits and image acquisition, e.g. "1s".
	FrameTimeout Duration `toml:"frame_timeout"`
}

type Scene struct {
	Path string `toml:"path"`
}

type Shaders struct {
	Dir string `toml:"dir"`
}

type Log struct {
	Level string `toml:"level"`
}

type Config struct {
	Window  Window  `toml:"window"`
	Render  Render  `toml:"render"`
	Scene   Scene   `toml:"scene"`
	Shaders Shaders `toml:"shaders"`
	Log     Log     `toml:"log"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "duration %q", text)
	}
	*d = Duration(v)
	return nil
}

func Default() Config {
	return Config{
		Window: Window{Title: "jvk", Width: 1700, Height: 900},
		Render: Render{
			DrawWidth:    1700,
			DrawHeight:   900,
			RenderScale:  1,
			VSync:        true,
			FrameTimeout: Duration(time.Second),
		},
		Shaders: Shaders{Dir: "shaders"},
		Log:     Log{Level: "info"},
	}
}

// Parse decodes TOML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, errors.Wrapf(err, "line %d column %d", row, col)
		}
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Validate rejects settings the renderer cannot start with and clamps the
// render scale into range.
func (c *Config) Validate() error {
	if c.Window.Width == 0 || c.Window.Height == 0 {
		return errors.Newf("window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Render.DrawWidth == 0 || c.Render.DrawHeight == 0 {
		return errors.Newf("draw image size %dx%d", c.Render.DrawWidth, c.Render.DrawHeight)
	}
	if c.Render.FrameTimeout <= 0 {
		return errors.Newf("frame timeout %s must be positive", time.Duration(c.Render.FrameTimeout))
	}
	if c.Shaders.Dir == "" {
		return errors.New("shader directory is empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch {
	case c.Render.RenderScale < 0.3:
		c.Render.RenderScale = 0.3
	case c.Render.RenderScale > 1:
		c.Render.RenderScale = 1
	}
	return nil
}

func (c Config) LogLevel() slog.Level {
	level, _ := logging.ParseLevel(c.Log.Level)
	return level
}

// Flags are the command line options. Set values override the file.
type Flags struct {
	ConfigPath string
	ScenePath  string
	Validation bool
	LogLevel   string

	set *pflag.FlagSet
}

func NewFlags(name string) *Flags {
	f := &Flags{set: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	f.set.StringVarP(&f.ConfigPath, "config", "c", "", "TOML configuration file")
	f.set.StringVarP(&f.ScenePath, "scene", "s", "", "glTF or OBJ file to load")
	f.set.BoolVar(&f.Validation, "validation", false, "enable Vulkan validation layers")
	f.set.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	return f
}

func (f *Flags) Parse(args []string) error {
	return f.set.Parse(args)
}

func (f *Flags) Usage() string {
	return f.set.FlagUsages()
}

// Resolve loads the configuration file named by --config, or the defaults,
// and applies the flags that were given explicitly.
func (f *Flags) Resolve() (Config, error) {
	cfg := Default()
	if f.ConfigPath != "" {
		var err error
		if cfg, err = Load(f.ConfigPath); err != nil {
			return Config{}, err
		}
	}
	if f.set.Changed("scene") {
		cfg.Scene.Path = f.ScenePath
	}
	if f.set.Changed("validation") {
		cfg.Render.Validation = f.Validation
	}
	if f.set.Changed("log-level") {
		cfg.Log.Level = f.LogLevel
	}
	return cfg, cfg.Validate()
}
