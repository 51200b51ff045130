package domain

import (
	"fmt"
	"time"
)

// Driver names accepted in configuration.
const (
	DriverMemory    = "memory"
	DriverSQLite    = "sqlite"
	DriverFS        = "fs"
	DriverS3        = "s3"
	DriverPulse     = "pulse"
	DriverHTTP      = "http"
	DriverAnthropic = "anthropic"
)

// Defaults.
const (
	// DefaultTokenThreshold is the rolling token count at which a segment is cut.
	DefaultTokenThreshold = 3000

	// DefaultEpsilonSeconds absorbs timing jitter at overlapping chunk boundaries.
	DefaultEpsilonSeconds = 0.05
)

// Config is the complete service configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Objects      ObjectsConfig      `toml:"objects"`
	Queue        QueueConfig        `toml:"queue"`
	Transcriber  TranscriberConfig  `toml:"transcriber"`
	Summarizer   SummarizerConfig   `toml:"summarizer"`
	Finalizer    FinalizerConfig    `toml:"finalizer"`
	Segmentation SegmentationConfig `toml:"segmentation"`
	Merge        MergeConfig        `toml:"merge"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `toml:"addr"`

	// PublicBaseURL is the externally reachable base URL used to build webhook URLs.
	PublicBaseURL string `toml:"public_base_url"`

	// MaxUploadBytes bounds the size of an uploaded chunk.
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

// StorageConfig selects the entity store.
type StorageConfig struct {
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
}

// ObjectsConfig selects the object store.
type ObjectsConfig struct {
	Driver            string `toml:"driver"`
	Root              string `toml:"root"`
	Bucket            string `toml:"bucket"`
	Prefix            string `toml:"prefix"`
	Region            string `toml:"region"`
	Endpoint          string `toml:"endpoint"`
	PresignTTLSeconds int    `toml:"presign_ttl_seconds"`

	// SigningKey signs fs object URLs. A random key is used when empty.
	SigningKey string `toml:"signing_key"`
}

// PresignTTL returns the presigned URL lifetime.
func (c ObjectsConfig) PresignTTL() time.Duration {
	return time.Duration(c.PresignTTLSeconds) * time.Second
}

// QueueConfig selects the work queue.
type QueueConfig struct {
	Driver    string `toml:"driver"`
	RedisAddr string `toml:"redis_addr"`
	Stream    string `toml:"stream"`
	Sink      string `toml:"sink"`
	Buffer    int    `toml:"buffer"`
}

// TranscriberConfig configures remote transcription submission.
type TranscriberConfig struct {
	URL               string  `toml:"url"`
	APIKey            string  `toml:"api_key"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
}

// Timeout returns the submission timeout.
func (c TranscriberConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SummarizerConfig configures the segment summarizer.
type SummarizerConfig struct {
	Driver         string `toml:"driver"`
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`

	// PromptFile overrides the built-in system prompt for the anthropic driver.
	PromptFile string `toml:"prompt_file"`
}

// Timeout returns the summarizer call timeout.
func (c SummarizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FinalizerConfig configures the terminal finalizer function.
type FinalizerConfig struct {
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the finalizer call timeout.
func (c FinalizerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SegmentationConfig configures when segments are cut.
type SegmentationConfig struct {
	TokenThreshold int `toml:"token_threshold"`
}

// MergeConfig configures the merge engine.
type MergeConfig struct {
	EpsilonSeconds float64 `toml:"epsilon_seconds"`
}

// DefaultConfig returns sensible defaults for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			PublicBaseURL:  "http://localhost:8080",
			MaxUploadBytes: 50 << 20,
		},
		Storage: StorageConfig{Driver: DriverSQLite},
		Objects: ObjectsConfig{Driver: DriverFS, PresignTTLSeconds: 3600},
		Queue: QueueConfig{
			Driver: DriverMemory,
			Stream: "stitch-chunks",
			Sink:   "stitch-submitters",
			Buffer: 256,
		},
		Transcriber: TranscriberConfig{
			TimeoutSeconds:    30,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Summarizer: SummarizerConfig{
			Driver:         DriverHTTP,
			MaxTokens:      1024,
			TimeoutSeconds: 120,
		},
		Finalizer:    FinalizerConfig{TimeoutSeconds: 120},
		Segmentation: SegmentationConfig{TokenThreshold: DefaultTokenThreshold},
		Merge:        MergeConfig{EpsilonSeconds: DefaultEpsilonSeconds},
	}
}

// Validate checks that the configuration can drive the pipeline.
func (c *Config) Validate() error {
	if c.Segmentation.TokenThreshold <= 0 {
		return fmt.Errorf("%w: segmentation.token_threshold must be positive", ErrInvalidInput)
	}
	if c.Merge.EpsilonSeconds < 0 {
		return fmt.Errorf("%w: merge.epsilon_seconds must not be negative", ErrInvalidInput)
	}
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	default:
		return fmt.Errorf("%w: storage driver %q", ErrUnsupportedType, c.Storage.Driver)
	}
	switch c.Objects.Driver {
	case DriverMemory, DriverFS, DriverS3:
	default:
		return fmt.Errorf("%w: objects driver %q", ErrUnsupportedType, c.Objects.Driver)
	}
	if c.Objects.Driver == DriverS3 && c.Objects.Bucket == "" {
		return fmt.Errorf("%w: objects.bucket is required for s3", ErrInvalidInput)
	}
	switch c.Queue.Driver {
	case DriverMemory, DriverPulse:
	default:
		return fmt.Errorf("%w: queue driver %q", ErrUnsupportedType, c.Queue.Driver)
	}
	switch c.Summarizer.Driver {
	case DriverHTTP, DriverAnthropic:
	default:
		return fmt.Errorf("%w: summarizer driver %q", ErrUnsupportedType, c.Summarizer.Driver)
	}
	return nil
}
