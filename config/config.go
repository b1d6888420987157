// Package config loads declarative handler specifications from YAML and
// applies them to an engine. Every field maps 1:1 to a handler option;
// validation runs before any handler is added so a bad file changes
// nothing.
//
//	handlers:
//	  - sink: logs/app.log
//	    level: INFO
//	    format: "{time} | {level:<8} | {message}"
//	    rotation: "100 MB"
//	    retention: "7 days"
//	    compression: true
//	    enqueue: true
//	  - sink: stderr
//	    level: WARNING
//	    colorize: auto
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/emberlog/ember"
)

// HandlerSpec is one declarative handler.
type HandlerSpec struct {
	// Sink selects the destination: a file path, or the stream markers
	// "stdout" / "stderr".
	Sink string `yaml:"sink"`

	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Serialize bool   `yaml:"serialize"`

	Rotation    string `yaml:"rotation"`
	Retention   string `yaml:"retention"`
	Compression bool   `yaml:"compression"`
	Enqueue     bool   `yaml:"enqueue"`
	QueueSize   int    `yaml:"queue_size"`
	Watch       bool   `yaml:"watch"`
	Delay       bool   `yaml:"delay"`

	// Colorize is "on", "off" or "auto" (console sinks only).
	Colorize string `yaml:"colorize"`
}

// Config is the file's top-level document.
type Config struct {
	Handlers []HandlerSpec `yaml:"handlers"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	for i := range cfg.Handlers {
		h := &cfg.Handlers[i]
		if h.Level == "" {
			h.Level = "TRACE"
		}
		if h.Format == "" {
			h.Format = ember.DefaultFormat
		}
		if h.Colorize == "" {
			h.Colorize = "auto"
		}
	}
}

// Validate checks the fields Add cannot see: a sink is present, colorize
// is on, off or auto, and console sinks carry no file options. Level
// names and rotation or retention specs are not checked here; Add
// rejects them during Apply.
func Validate(cfg *Config) error {
	if len(cfg.Handlers) == 0 {
		return fmt.Errorf("config declares no handlers")
	}
	for i, h := range cfg.Handlers {
		if h.Sink == "" {
			return fmt.Errorf("handler %d: sink is required", i)
		}
		switch h.Colorize {
		case "on", "off", "auto":
		default:
			return fmt.Errorf("handler %d: colorize must be on, off or auto, got %q", i, h.Colorize)
		}
		if isStream(h.Sink) {
			if h.Rotation != "" || h.Retention != "" || h.Compression || h.Enqueue {
				return fmt.Errorf("handler %d: file options on a console sink", i)
			}
		}
	}
	return nil
}

func isStream(sink string) bool {
	return sink == "stdout" || sink == "stderr"
}

// Apply adds every spec to the engine, in order. On failure the
// handlers added so far are removed again, so Apply is all-or-nothing.
func Apply(eng *ember.Engine, cfg *Config) ([]uint64, error) {
	var ids []uint64
	rollback := func() {
		for _, id := range ids {
			eng.Remove(id)
		}
	}
	for i, h := range cfg.Handlers {
		opts := []ember.Option{
			ember.Level(h.Level),
			ember.Format(h.Format),
			ember.Serialize(h.Serialize),
		}
		var (
			id  uint64
			err error
		)
		if isStream(h.Sink) {
			switch h.Colorize {
			case "on":
				opts = append(opts, ember.Colorize(true))
			case "off":
				opts = append(opts, ember.Colorize(false))
			}
			stream := os.Stdout
			if h.Sink == "stderr" {
				stream = os.Stderr
			}
			id, err = eng.AddConsole(stream, opts...)
		} else {
			opts = append(opts,
				ember.Rotation(h.Rotation),
				ember.Retention(h.Retention),
				ember.Compression(h.Compression),
				ember.Enqueue(h.Enqueue),
				ember.Watch(h.Watch),
				ember.Delay(h.Delay),
			)
			if h.QueueSize > 0 {
				opts = append(opts, ember.QueueSize(h.QueueSize))
			}
			id, err = eng.AddFile(h.Sink, opts...)
		}
		if err != nil {
			rollback()
			return nil, fmt.Errorf("handler %d (%s): %w", i, h.Sink, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
