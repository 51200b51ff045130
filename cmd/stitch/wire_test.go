package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
)

func memoryConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.Storage.Driver = domain.DriverMemory
	cfg.Objects.Driver = domain.DriverMemory
	cfg.Queue.Driver = domain.DriverMemory
	return cfg
}

func TestBuildServices_Memory(t *testing.T) {
	svc, release, err := buildServices(context.Background(), memoryConfig())

	require.NoError(t, err)
	defer func() { assert.NoError(t, release()) }()
	assert.NotNil(t, svc.Query)
	assert.NotNil(t, svc.Dispatcher)
	assert.NotNil(t, svc.Orchestrator)
	assert.NotNil(t, svc.Callbacks)
	assert.NotNil(t, svc.Finalizer)
	assert.Nil(t, svc.Worker)
	assert.Nil(t, svc.Objects)

	err = svc.Finalizer.Finalize(context.Background(), "s1", domain.BusinessIDs{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuildServices_SQLiteAndFS(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Objects.SigningKey = "secret"
	cfg.Transcriber.URL = "http://transcriber.invalid"
	cfg.Finalizer.URL = "http://finalizer.invalid"

	svc, release, err := buildServices(context.Background(), cfg)

	require.NoError(t, err)
	defer func() { assert.NoError(t, release()) }()
	assert.NotNil(t, svc.Worker)
	assert.NotNil(t, svc.Objects)

	_, err = svc.Query.Session(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuildServices_Unsupported(t *testing.T) {
	cfg := memoryConfig()
	cfg.Queue.Driver = "kafka"

	_, _, err := buildServices(context.Background(), cfg)

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestNewSummarizer(t *testing.T) {
	s, err := newSummarizer(domain.SummarizerConfig{Driver: domain.DriverHTTP})
	require.NoError(t, err)
	_, err = s.Summarize(context.Background(), driven.SummarizeRequest{Text: "x"})
	assert.Error(t, err)

	_, err = newSummarizer(domain.SummarizerConfig{Driver: domain.DriverHTTP, URL: "http://summarizer.invalid"})
	assert.NoError(t, err)

	_, err = newSummarizer(domain.SummarizerConfig{Driver: domain.DriverAnthropic})
	assert.Error(t, err, "API key is required")

	_, err = newSummarizer(domain.SummarizerConfig{Driver: domain.DriverAnthropic, APIKey: "sk-test"})
	assert.NoError(t, err)

	_, err = newSummarizer(domain.SummarizerConfig{Driver: "gpt"})
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestClosers_ReverseOrder(t *testing.T) {
	var order []int
	c := closers{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return nil },
	}

	require.NoError(t, c.close())

	assert.Equal(t, []int{2, 1}, order)
}
