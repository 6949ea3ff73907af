package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/swapframe"
)

// Duration is a time.Duration read from a TOML string such as "16ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Resize changes the panel size after Frame frames have rendered.
type Resize struct {
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Frame  uint64 `toml:"frame"`
}

func (r Resize) String() string {
	return fmt.Sprintf("%dx%d@%d", r.Width, r.Height, r.Frame)
}

// ParseResize parses WxH@frame.
func ParseResize(s string) (Resize, error) {
	size, frame, ok := strings.Cut(s, "@")
	if !ok {
		return Resize{}, fmt.Errorf("resize %q: want WxH@frame", s)
	}
	ws, hs, ok := strings.Cut(size, "x")
	if !ok {
		return Resize{}, fmt.Errorf("resize %q: want WxH@frame", s)
	}
	w, err := strconv.ParseUint(ws, 10, 32)
	if err != nil {
		return Resize{}, fmt.Errorf("resize %q: width: %w", s, err)
	}
	h, err := strconv.ParseUint(hs, 10, 32)
	if err != nil {
		return Resize{}, fmt.Errorf("resize %q: height: %w", s, err)
	}
	f, err := strconv.ParseUint(frame, 10, 64)
	if err != nil {
		return Resize{}, fmt.Errorf("resize %q: frame: %w", s, err)
	}
	return Resize{Width: uint32(w), Height: uint32(h), Frame: f}, nil
}

// resizeList is a repeatable -resize flag.
type resizeList struct {
	list *[]Resize
}

func (l resizeList) String() string {
	if l.list == nil {
		return ""
	}
	parts := make([]string, len(*l.list))
	for i, r := range *l.list {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

func (l resizeList) Set(s string) error {
	r, err := ParseResize(s)
	if err != nil {
		return err
	}
	*l.list = append(*l.list, r)
	return nil
}

// Config is the demo configuration. The TOML file and the command line set
// the same fields; flags win.
type Config struct {
	Backend  string    `toml:"backend"`
	Width    uint32    `toml:"width"`
	Height   uint32    `toml:"height"`
	Frames   uint64    `toml:"frames"`
	Interval Duration  `toml:"interval"`
	Timeout  Duration  `toml:"timeout"`
	Clear    []float64 `toml:"clear"`
	Resizes  []Resize  `toml:"resize"`
	Snapshot string    `toml:"snapshot"`
	Debug    bool      `toml:"debug"`
	Verbose  bool      `toml:"verbose"`

	path string
}

// DefaultConfig returns the demo defaults.
func DefaultConfig() Config {
	return Config{
		Backend:  "auto",
		Width:    800,
		Height:   600,
		Frames:   120,
		Interval: Duration{16 * time.Millisecond},
		Timeout:  Duration{swapframe.DefaultWaitTimeout},
		Clear:    []float64{0, 0, 0, 1},
	}
}

func flagSet(cfg *Config, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("swapdemo", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "device backend: native, sim or auto (hardware only)")
	fs.Func("width", "panel width", uintFlag(&cfg.Width))
	fs.Func("height", "panel height", uintFlag(&cfg.Height))
	fs.Uint64Var(&cfg.Frames, "frames", cfg.Frames, "frames to render, 0 runs until interrupted")
	fs.DurationVar(&cfg.Interval.Duration, "interval", cfg.Interval.Duration, "tick interval")
	fs.DurationVar(&cfg.Timeout.Duration, "timeout", cfg.Timeout.Duration, "fence wait timeout, 0 waits forever")
	fs.Var(resizeList{&cfg.Resizes}, "resize", "resize the panel to WxH after a frame, as WxH@frame (repeatable)")
	fs.StringVar(&cfg.Snapshot, "snapshot", cfg.Snapshot, "write the last frame to this BMP file")
	fs.StringVar(&cfg.path, "config", cfg.path, "TOML configuration file")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable the GPU debug layer")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")
	return fs
}

func uintFlag(dst *uint32) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return err
		}
		*dst = uint32(v)
		return nil
	}
}

// ParseArgs builds the configuration from the defaults, the -config file
// and the flags in args, in that order.
func ParseArgs(args []string, out io.Writer) (Config, error) {
	cfg := DefaultConfig()
	if err := flagSet(&cfg, out).Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.path != "" {
		path := cfg.path
		file, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = file
		if err := flagSet(&cfg, io.Discard).Parse(args); err != nil {
			return Config{}, err
		}
		cfg.path = path
	}
	return cfg, cfg.Validate()
}

// LoadConfig reads a TOML file over the defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return Config{}, fmt.Errorf("config %s:%d:%d: %w", path, row, col, err)
		}
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values a renderer cannot correct.
func (c Config) Validate() error {
	switch c.Backend {
	case "auto", "native", "sim":
	default:
		return fmt.Errorf("backend %q: want native, sim or auto", c.Backend)
	}
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("size %dx%d: %w", c.Width, c.Height, swapframe.ErrInvalidSize)
	}
	if c.Interval.Duration <= 0 {
		return fmt.Errorf("interval %v: must be positive", c.Interval)
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout %v: must not be negative", c.Timeout)
	}
	if len(c.Clear) != 4 {
		return fmt.Errorf("clear colour has %d components, want 4", len(c.Clear))
	}
	for _, r := range c.Resizes {
		if r.Width == 0 || r.Height == 0 {
			return fmt.Errorf("resize %v: %w", r, swapframe.ErrInvalidSize)
		}
	}
	return nil
}
