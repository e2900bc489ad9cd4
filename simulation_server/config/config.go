package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that yaml-decodes from strings like "100ms".
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("could not parse duration %q: %w", s, err)
	}

	*d = Duration(dur)
	return nil
}

type Config struct {
	SimulationDir string `yaml:"simulation_dir"`
	MazeDir       string `yaml:"maze_dir"`
	TempDir       string `yaml:"temp_dir"`
	LogDir        string `yaml:"log_dir"`
	BackupDir     string `yaml:"backup_dir"`

	TextModelURL string `yaml:"text_model_url"`
	TextModelKey string `yaml:"text_model_key"`
	TextModel    string `yaml:"text_model"`

	EmbeddingURL   string `yaml:"embedding_url"`
	EmbeddingKey   string `yaml:"embedding_key"`
	EmbeddingModel string `yaml:"embedding_model"`

	// After how many steps the simulation state is snapshotted
	BackupInterval int `yaml:"backup_interval"`
	// How long to wait between polls for the next environment file
	ServerSleep Duration `yaml:"server_sleep"`

	// Headless servers supply their own environment files instead of
	// waiting for a frontend to write them
	Headless bool `yaml:"headless"`
	// Fast-forward the clock when every persona is asleep
	SkipSleep bool `yaml:"skip_sleep"`
	DebugLog  bool `yaml:"debug_log"`

	// Where to send personas whose activity address does not exist on the map
	FallbackAddress string `yaml:"fallback_address"`
}

func Default() Config {
	return Config{
		SimulationDir: "storage",
		MazeDir:       "mazes",
		TempDir:       "temp",
		LogDir:        "logs",
		BackupDir:     "backups",

		BackupInterval: 100,
		ServerSleep:    Duration(100 * time.Millisecond),

		Headless:  true,
		SkipSleep: true,
		DebugLog:  true,

		FallbackAddress: "the Ville:Johnson Park:park:park garden",
	}
}

// Load reads the config file at path over the defaults, then applies
// environment variable overrides. A missing file is not an error, the
// defaults and environment cover it.
func Load(path string) (Config, error) {
	conf := Default()

	content, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	} else if err == nil {
		if err := yaml.Unmarshal(content, &conf); err != nil {
			return Config{}, fmt.Errorf("could not unmarshal config yaml: %w", err)
		}
	}

	if err := conf.applyEnv(); err != nil {
		return Config{}, err
	}

	return conf, nil
}

func (c *Config) applyEnv() error {
	setString(&c.SimulationDir, "SIMULATION_DIR")
	setString(&c.MazeDir, "MAZE_DIR")
	setString(&c.TempDir, "TEMP_DIR")
	setString(&c.LogDir, "LOG_DIR")
	setString(&c.BackupDir, "BACKUP_DIR")

	setString(&c.TextModelURL, "TEXT_MODEL_URL")
	setString(&c.TextModelKey, "TEXT_MODEL_KEY")
	setString(&c.TextModel, "TEXT_MODEL_LLM")

	setString(&c.EmbeddingURL, "EMBEDDING_URL")
	setString(&c.EmbeddingKey, "EMBEDDING_KEY")
	setString(&c.EmbeddingModel, "EMBEDDING_MODEL")

	setString(&c.FallbackAddress, "FALLBACK_ADDRESS")

	if v := os.Getenv("BACKUP_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("could not parse BACKUP_INTERVAL %q: %w", v, err)
		}
		c.BackupInterval = n
	}

	if v := os.Getenv("SERVER_SLEEP"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("could not parse SERVER_SLEEP %q: %w", v, err)
		}
		c.ServerSleep = Duration(d)
	}

	if err := setBool(&c.Headless, "HEADLESS"); err != nil {
		return err
	}
	if err := setBool(&c.SkipSleep, "SKIP_SLEEP"); err != nil {
		return err
	}
	if err := setBool(&c.DebugLog, "DEBUG_LOG"); err != nil {
		return err
	}

	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("could not parse %s %q: %w", key, v, err)
	}

	*dst = b
	return nil
}
