package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/custodia-labs/stitch/internal/adapters/driven/config/file"
	"github.com/custodia-labs/stitch/internal/adapters/driven/function/httpfn"
	fsobjects "github.com/custodia-labs/stitch/internal/adapters/driven/objectstore/fs"
	s3objects "github.com/custodia-labs/stitch/internal/adapters/driven/objectstore/s3"
	memqueue "github.com/custodia-labs/stitch/internal/adapters/driven/queue/memory"
	pulsequeue "github.com/custodia-labs/stitch/internal/adapters/driven/queue/pulse"
	memstore "github.com/custodia-labs/stitch/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/stitch/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/stitch/internal/adapters/driven/summarizer/anthropic"
	"github.com/custodia-labs/stitch/internal/adapters/driven/transcriber/remote"
	"github.com/custodia-labs/stitch/internal/adapters/driving/cli"
	"github.com/custodia-labs/stitch/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/core/services"
	"github.com/custodia-labs/stitch/internal/logger"
)

// closers collects release functions in acquisition order.
type closers []func() error

func (c closers) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

// buildServices constructs every adapter selected by cfg and wires the
// pipeline services over them.
func buildServices(ctx context.Context, cfg domain.Config) (*cli.Services, func() error, error) {
	var release closers
	fail := func(err error) (*cli.Services, func() error, error) {
		return nil, nil, errors.Join(err, release.close())
	}

	store, closeStore, err := newEntityStore(cfg.Storage)
	if err != nil {
		return fail(err)
	}
	release = append(release, closeStore)

	objects, objectServer, err := newObjectStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	queue, err := newWorkQueue(ctx, cfg.Queue)
	if err != nil {
		return fail(err)
	}
	release = append(release, queue.Close)

	summarizer, err := newSummarizer(cfg.Summarizer)
	if err != nil {
		return fail(err)
	}

	orch := services.NewOrchestrator(store, objects, summarizer, services.OrchestratorConfig{
		Epsilon:          cfg.Merge.EpsilonSeconds,
		TokenThreshold:   cfg.Segmentation.TokenThreshold,
		SummarizeTimeout: cfg.Summarizer.Timeout(),
		PresignTTL:       cfg.Objects.PresignTTL(),
	})

	svc := &cli.Services{
		Config:       cfg,
		Query:        services.NewQueryService(store, objects),
		Dispatcher:   services.NewDispatcher(orch, objects, queue),
		Orchestrator: orch,
		Callbacks:    services.NewCallbackIngestor(orch),
		Objects:      objectServer,
	}

	if cfg.Finalizer.URL != "" {
		fn, err := httpfn.NewFinalizer(httpfn.Config{
			URL:     cfg.Finalizer.URL,
			APIKey:  cfg.Finalizer.APIKey,
			Timeout: cfg.Finalizer.Timeout(),
		})
		if err != nil {
			return fail(err)
		}
		svc.Finalizer = services.NewFinalizer(orch, fn, services.FinalizerConfig{
			Timeout:    cfg.Finalizer.Timeout(),
			PresignTTL: cfg.Objects.PresignTTL(),
		})
	} else {
		logger.Warn("finalizer.url is not set; finalize requests will fail")
		svc.Finalizer = unconfiguredFinalizer{}
	}

	if cfg.Transcriber.URL != "" {
		transcriber, err := remote.NewClient(remote.Config{
			URL:     cfg.Transcriber.URL,
			APIKey:  cfg.Transcriber.APIKey,
			Timeout: cfg.Transcriber.Timeout(),
			RateLimit: remote.RateLimitConfig{
				RequestsPerSecond: cfg.Transcriber.RequestsPerSecond,
				BurstSize:         cfg.Transcriber.Burst,
			},
		})
		if err != nil {
			return fail(err)
		}
		svc.Worker = services.NewSubmissionWorker(orch, objects, queue, transcriber, services.WorkerConfig{
			PublicBaseURL: cfg.Server.PublicBaseURL,
			SubmitTimeout: cfg.Transcriber.Timeout(),
			PresignTTL:    cfg.Objects.PresignTTL(),
		})
	} else {
		logger.Warn("transcriber.url is not set; queued chunks will not be submitted")
	}

	logger.Debug("pipeline wired: storage=%s objects=%s queue=%s summarizer=%s",
		cfg.Storage.Driver, cfg.Objects.Driver, cfg.Queue.Driver, cfg.Summarizer.Driver)
	return svc, release.close, nil
}

func newEntityStore(cfg domain.StorageConfig) (driven.EntityStore, func() error, error) {
	switch cfg.Driver {
	case domain.DriverMemory:
		logger.Warn("using in-memory storage; state is lost on exit")
		return memstore.NewStore(), func() error { return nil }, nil
	case domain.DriverSQLite:
		store, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		logger.Debug("sqlite store at %s", store.Path())
		return store.EntityStore(), store.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: storage driver %q", domain.ErrUnsupportedType, cfg.Driver)
	}
}

func newObjectStore(ctx context.Context, cfg domain.Config) (driven.ObjectStore, httpapi.ObjectServer, error) {
	switch cfg.Objects.Driver {
	case domain.DriverMemory:
		return memstore.NewObjectStore(), nil, nil
	case domain.DriverFS:
		key := cfg.Objects.SigningKey
		if key == "" {
			key = uuid.NewString()
			logger.Warn("objects.signing_key is not set; object URLs are only valid for this process")
		}
		root := cfg.Objects.Root
		if root == "" && cfg.Storage.DataDir != "" {
			root = filepath.Join(cfg.Storage.DataDir, "objects")
		}
		store, err := fsobjects.NewObjectStore(root, cfg.Server.PublicBaseURL, []byte(key))
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case domain.DriverS3:
		store, err := s3objects.New(ctx, s3objects.Options{
			Bucket:   cfg.Objects.Bucket,
			Prefix:   cfg.Objects.Prefix,
			Region:   cfg.Objects.Region,
			Endpoint: cfg.Objects.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: objects driver %q", domain.ErrUnsupportedType, cfg.Objects.Driver)
	}
}

func newWorkQueue(ctx context.Context, cfg domain.QueueConfig) (driven.WorkQueue, error) {
	switch cfg.Driver {
	case domain.DriverMemory:
		return memqueue.NewQueue(cfg.Buffer), nil
	case domain.DriverPulse:
		return pulsequeue.Dial(ctx, cfg.RedisAddr, pulsequeue.Options{
			Stream: cfg.Stream,
			Sink:   cfg.Sink,
		})
	default:
		return nil, fmt.Errorf("%w: queue driver %q", domain.ErrUnsupportedType, cfg.Driver)
	}
}

func newSummarizer(cfg domain.SummarizerConfig) (driven.Summarizer, error) {
	switch cfg.Driver {
	case domain.DriverAnthropic:
		prompt, err := file.LoadPrompt(cfg.PromptFile)
		if err != nil {
			return nil, err
		}
		return anthropic.NewFromAPIKey(anthropic.Config{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			MaxTokens:    cfg.MaxTokens,
			SystemPrompt: prompt,
		})
	case domain.DriverHTTP:
		if cfg.URL == "" {
			logger.Warn("summarizer.url is not set; segments will not be summarized")
			return unconfiguredSummarizer{}, nil
		}
		return httpfn.NewSummarizer(httpfn.Config{
			URL:     cfg.URL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout(),
		})
	default:
		return nil, fmt.Errorf("%w: summarizer driver %q", domain.ErrUnsupportedType, cfg.Driver)
	}
}

// unconfiguredFinalizer rejects finalize requests when no finalizer
// function is configured.
type unconfiguredFinalizer struct{}

func (unconfiguredFinalizer) Finalize(context.Context, string, domain.BusinessIDs) error {
	return fmt.Errorf("%w: finalizer.url is not configured", domain.ErrInvalidInput)
}

// unconfiguredSummarizer fails every summarization so segments stay
// retryable once a summarizer is configured.
type unconfiguredSummarizer struct{}

func (unconfiguredSummarizer) Summarize(context.Context, driven.SummarizeRequest) (json.RawMessage, error) {
	return nil, errors.New("summarizer.url is not configured")
}
