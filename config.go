package ssi

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the host-visible session configuration a driver loads once at
// startup: which source lines pause an interactive session, and which
// callee names get their arguments pretty-printed at each call site.
type Config struct {
	Breakpoints map[int]string      `toml:"breakpoints"`
	Verbose     map[string][]string `toml:"verbose"`
}

// LoadConfig reads and decodes a TOML config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Apply registers cfg's breakpoints and verbose-formatter lists on in. A
// breakpoint's associated string is currently unused beyond existing
// (future drivers may key behavior off it); its presence alone marks the
// line as pause-worthy for pause.
func (cfg *Config) Apply(in *Interpreter, pause func(*Interpreter)) {
	for line := range cfg.Breakpoints {
		in.BreakLine(line, pause)
	}
	for name, formatters := range cfg.Verbose {
		in.VerboseFn(name, formatters)
	}
}
