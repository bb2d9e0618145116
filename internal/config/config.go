// Package config holds the run configuration. Values come from defaults,
// then an optional YAML file, then SCENEGEN_* environment variables, then
// command-line flags applied by the caller.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scenegen/internal/pkg/errors"
	"scenegen/internal/storage"
	"scenegen/internal/task"
)

// TaskAll selects every task kind.
const TaskAll = "all"

type Renderer struct {
	Binary       string        `yaml:"binary"`
	Args         []string      `yaml:"args,flow"`
	Env          []string      `yaml:"env"`
	WorkRoot     string        `yaml:"work_root"`
	KeepWorkDirs bool          `yaml:"keep_work_dirs"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Encoder struct {
	Binary string `yaml:"binary"`
	CRF    int    `yaml:"crf"`
	Preset string `yaml:"preset"`
}

type Retry struct {
	TransientRetries int           `yaml:"transient_retries"`
	MalformedRetries int           `yaml:"malformed_retries"`
	Backoff          time.Duration `yaml:"backoff"`
}

type Cache struct {
	Dir           string `yaml:"dir"`
	KeyTemplate   string `yaml:"key_template"`
	FetchAttempts int    `yaml:"fetch_attempts"`
}

type Redis struct {
	Addr  string `yaml:"addr"`
	Queue string `yaml:"queue"`
}

// Run is everything one generation run needs.
type Run struct {
	// Task is a kind name, a comma-separated list, or "all".
	Task string `yaml:"task"`
	// NumSamples is per kind, unless Split spreads it over the kinds.
	NumSamples int     `yaml:"num_samples"`
	Split      bool    `yaml:"split"`
	Seed       int64   `yaml:"seed"`
	Resolution int     `yaml:"resolution"`
	FPS        int     `yaml:"fps"`
	Duration   float64 `yaml:"duration"`

	ObjectList string   `yaml:"object_list"`
	Objects    []string `yaml:"objects"`

	OutputRoot    string        `yaml:"output_root"`
	WriteMetadata bool          `yaml:"write_metadata"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	MaxWorkers    int           `yaml:"max_workers"`

	Renderer Renderer        `yaml:"renderer"`
	Encoder  Encoder         `yaml:"encoder"`
	Retry    Retry           `yaml:"retry"`
	Cache    Cache           `yaml:"cache"`
	Store    storage.Options `yaml:"store"`
	Redis    Redis           `yaml:"redis"`
	// Ledger is a DSN for the run ledger; see ledger.Open.
	Ledger string `yaml:"ledger"`

	// Params overrides per-kind camera and placement parameters.
	Params map[task.Kind]task.Params `yaml:"params"`
}

// Default returns the built-in configuration.
func Default() Run {
	return Run{
		Task:       TaskAll,
		NumSamples: 10,
		Seed:       42,
		Resolution: 1024,
		FPS:        16,
		Duration:   4.0,
		OutputRoot: filepath.Join("data", "questions"),
		MaxWorkers: 16,
		Renderer: Renderer{
			Timeout: 600 * time.Second,
		},
		Encoder: Encoder{Binary: "ffmpeg", CRF: 18, Preset: "medium"},
		Retry: Retry{
			TransientRetries: 2,
			MalformedRetries: 1,
			Backoff:          2 * time.Second,
		},
		Cache: Cache{
			Dir:           filepath.Join("data", "objects"),
			FetchAttempts: 3,
		},
		Redis: Redis{Addr: "localhost:6379", Queue: "scenegen:samples"},
	}
}

// Load reads path over the defaults and then applies the environment. An
// empty path skips the file.
func Load(path string) (Run, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.WrapWithCode(err, errors.CodeValidation, "config.load", "read config file")
		}
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, errors.WrapWithCode(err, errors.CodeValidation, "config.load", "parse "+path)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overlays SCENEGEN_* variables, plus the GDRIVE_* and
// REDIS_ADDR names the worker deployment already sets, on c.
func (c *Run) ApplyEnv() {
	c.Task = Env("SCENEGEN_TASK", c.Task)
	c.NumSamples = IntEnv("SCENEGEN_NUM_SAMPLES", c.NumSamples)
	c.Split = BoolEnv("SCENEGEN_SPLIT", c.Split)
	c.Seed = Int64Env("SCENEGEN_SEED", c.Seed)
	c.Resolution = IntEnv("SCENEGEN_RESOLUTION", c.Resolution)
	c.FPS = IntEnv("SCENEGEN_FPS", c.FPS)
	c.Duration = FloatEnv("SCENEGEN_DURATION", c.Duration)
	c.ObjectList = Env("SCENEGEN_OBJECT_LIST", c.ObjectList)
	c.OutputRoot = Env("SCENEGEN_OUTPUT_ROOT", c.OutputRoot)
	c.WriteMetadata = BoolEnv("SCENEGEN_WRITE_METADATA", c.WriteMetadata)
	c.MaxWorkers = IntEnv("SCENEGEN_MAX_WORKERS", c.MaxWorkers)

	c.Renderer.Binary = Env("SCENEGEN_RENDERER", c.Renderer.Binary)
	c.Renderer.WorkRoot = Env("SCENEGEN_WORK_ROOT", c.Renderer.WorkRoot)
	c.Renderer.KeepWorkDirs = BoolEnv("SCENEGEN_KEEP_WORK_DIRS", c.Renderer.KeepWorkDirs)
	c.Renderer.Timeout = DurationEnv("SCENEGEN_RENDER_TIMEOUT", c.Renderer.Timeout)
	c.Encoder.Binary = Env("SCENEGEN_FFMPEG", c.Encoder.Binary)

	c.Cache.Dir = Env("SCENEGEN_CACHE_DIR", c.Cache.Dir)
	c.Store.Provider = Env("SCENEGEN_STORE_PROVIDER", c.Store.Provider)
	c.Store.LocalRoot = Env("SCENEGEN_STORE_ROOT", c.Store.LocalRoot)
	c.Store.BaseURL = Env("SCENEGEN_STORE_BASE_URL", c.Store.BaseURL)
	c.Store.GDriveClientID = Env("GDRIVE_CLIENT_ID", c.Store.GDriveClientID)
	c.Store.GDriveClientSecret = Env("GDRIVE_CLIENT_SECRET", c.Store.GDriveClientSecret)
	c.Store.GDriveRefreshToken = Env("GDRIVE_REFRESH_TOKEN", c.Store.GDriveRefreshToken)
	c.Store.GDriveFolderID = Env("GDRIVE_FOLDER_ID", c.Store.GDriveFolderID)

	c.Redis.Addr = Env("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Queue = Env("SCENEGEN_QUEUE", c.Redis.Queue)
	c.Ledger = Env("SCENEGEN_LEDGER", c.Ledger)
}

// Kinds parses Task.
func (c Run) Kinds() ([]task.Kind, error) {
	name := strings.TrimSpace(c.Task)
	if name == "" || strings.EqualFold(name, TaskAll) {
		return task.All(), nil
	}
	var out []task.Kind
	seen := map[task.Kind]bool{}
	for _, part := range strings.Split(name, ",") {
		k, err := task.Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

// Counts is the number of samples per kind.
func (c Run) Counts() (map[task.Kind]int, error) {
	kinds, err := c.Kinds()
	if err != nil {
		return nil, err
	}
	if c.Split {
		return task.Split(c.NumSamples, kinds), nil
	}
	out := make(map[task.Kind]int, len(kinds))
	for _, k := range kinds {
		out[k] = c.NumSamples
	}
	return out, nil
}

// ParamsFor returns the defaults for k with any configured overrides.
func (c Run) ParamsFor(k task.Kind) task.Params {
	p := task.DefaultParams(k)
	if o, ok := c.Params[k]; ok {
		p = p.Merge(o)
	}
	return p
}

// Validate checks everything that can be checked before any work starts.
// It does not touch the object list or the renderer binary.
func (c Run) Validate() error {
	kinds, err := c.Kinds()
	if err != nil {
		return err
	}
	for k := range c.Params {
		if !k.Valid() {
			return errors.ValidationField("params", fmt.Sprintf("unknown task kind %q in params", k))
		}
	}
	switch {
	case c.NumSamples <= 0:
		return errors.ValidationField("num_samples", "num_samples must be positive")
	case c.Resolution <= 0:
		return errors.ValidationField("resolution", "resolution must be positive")
	case c.FPS <= 0:
		return errors.ValidationField("fps", "fps must be positive")
	case c.Duration <= 0:
		return errors.ValidationField("duration", "duration must be positive")
	case c.MaxWorkers <= 0:
		return errors.ValidationField("max_workers", "max_workers must be positive")
	case c.Renderer.Timeout < 0:
		return errors.ValidationField("renderer.timeout", "renderer timeout must not be negative")
	case c.Retry.TransientRetries < 0 || c.Retry.MalformedRetries < 0:
		return errors.ValidationField("retry", "retry counts must not be negative")
	case c.OutputRoot == "":
		return errors.ValidationField("output_root", "output_root is required")
	case c.ObjectList == "" && len(c.Objects) == 0:
		return errors.ValidationField("object_list", "an object list file or inline objects are required")
	}
	for _, k := range kinds {
		if err := c.ParamsFor(k).Validate(k); err != nil {
			return err
		}
	}
	return nil
}
