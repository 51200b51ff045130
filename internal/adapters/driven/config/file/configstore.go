package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/stitch/internal/core/domain"
)

// ConfigFile is the configuration file name inside the config directory.
const ConfigFile = "config.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STITCH_"

// ConfigStore reads and writes the service configuration file.
type ConfigStore struct {
	filePath string
	lookup   func(string) (string, bool)
}

// NewConfigStore creates a config store for the given file path.
// If path is empty, defaults to ~/.stitch/config.toml.
func NewConfigStore(path string) (*ConfigStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".stitch", ConfigFile)
	}
	return &ConfigStore{filePath: path, lookup: os.LookupEnv}, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Load returns the effective configuration. A missing file is not an error;
// defaults and environment overrides still apply.
func (s *ConfigStore) Load() (domain.Config, error) {
	cfg := domain.DefaultConfig()

	data, err := os.ReadFile(s.filePath)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			var decodeErr *toml.DecodeError
			if errors.As(err, &decodeErr) {
				row, col := decodeErr.Position()
				return cfg, fmt.Errorf("parse %s:%d:%d: %w", s.filePath, row, col, err)
			}
			return cfg, fmt.Errorf("parse %s: %w", s.filePath, err)
		}
	case os.IsNotExist(err):
		// No config file yet - run on defaults
	default:
		return cfg, err
	}

	if err := s.applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to the configuration file, creating its directory.
func (s *ConfigStore) Save(cfg domain.Config) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0700); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	// Write with restricted permissions, the file may hold API keys
	return os.WriteFile(s.filePath, data, 0600)
}

// LoadPrompt reads a prompt file. An empty path yields an empty prompt.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// envBinding binds one STITCH_* variable to a config field.
type envBinding struct {
	name string
	set  func(string) error
}

func (s *ConfigStore) applyEnv(cfg *domain.Config) error {
	bindings := []envBinding{
		{"SERVER_ADDR", setString(&cfg.Server.Addr)},
		{"SERVER_PUBLIC_BASE_URL", setString(&cfg.Server.PublicBaseURL)},
		{"SERVER_MAX_UPLOAD_BYTES", setInt64(&cfg.Server.MaxUploadBytes)},
		{"STORAGE_DRIVER", setString(&cfg.Storage.Driver)},
		{"STORAGE_DATA_DIR", setString(&cfg.Storage.DataDir)},
		{"OBJECTS_DRIVER", setString(&cfg.Objects.Driver)},
		{"OBJECTS_ROOT", setString(&cfg.Objects.Root)},
		{"OBJECTS_BUCKET", setString(&cfg.Objects.Bucket)},
		{"OBJECTS_PREFIX", setString(&cfg.Objects.Prefix)},
		{"OBJECTS_REGION", setString(&cfg.Objects.Region)},
		{"OBJECTS_ENDPOINT", setString(&cfg.Objects.Endpoint)},
		{"OBJECTS_PRESIGN_TTL_SECONDS", setInt(&cfg.Objects.PresignTTLSeconds)},
		{"OBJECTS_SIGNING_KEY", setString(&cfg.Objects.SigningKey)},
		{"QUEUE_DRIVER", setString(&cfg.Queue.Driver)},
		{"QUEUE_REDIS_ADDR", setString(&cfg.Queue.RedisAddr)},
		{"QUEUE_STREAM", setString(&cfg.Queue.Stream)},
		{"QUEUE_SINK", setString(&cfg.Queue.Sink)},
		{"TRANSCRIBER_URL", setString(&cfg.Transcriber.URL)},
		{"TRANSCRIBER_API_KEY", setString(&cfg.Transcriber.APIKey)},
		{"TRANSCRIBER_TIMEOUT_SECONDS", setInt(&cfg.Transcriber.TimeoutSeconds)},
		{"SUMMARIZER_DRIVER", setString(&cfg.Summarizer.Driver)},
		{"SUMMARIZER_URL", setString(&cfg.Summarizer.URL)},
		{"SUMMARIZER_API_KEY", setString(&cfg.Summarizer.APIKey)},
		{"SUMMARIZER_MODEL", setString(&cfg.Summarizer.Model)},
		{"SUMMARIZER_PROMPT_FILE", setString(&cfg.Summarizer.PromptFile)},
		{"FINALIZER_URL", setString(&cfg.Finalizer.URL)},
		{"FINALIZER_API_KEY", setString(&cfg.Finalizer.APIKey)},
		{"SEGMENTATION_TOKEN_THRESHOLD", setInt(&cfg.Segmentation.TokenThreshold)},
		{"MERGE_EPSILON_SECONDS", setFloat(&cfg.Merge.EpsilonSeconds)},
	}

	var errs []error
	for _, b := range bindings {
		val, ok := s.lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.set(val); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.name, err))
		}
	}
	return errors.Join(errs...)
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setInt64(dst *int64) func(string) error {
	return func(v string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}
