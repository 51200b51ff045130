package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driven"
	"github.com/custodia-labs/stitch/internal/core/ports/driving"
	"github.com/custodia-labs/stitch/internal/core/segmentation"
	"github.com/custodia-labs/stitch/internal/logger"
)

// Ensure Finalizer implements the interface.
var _ driving.SessionFinalizer = (*Finalizer)(nil)

// FinalizerConfig configures session finalization.
type FinalizerConfig struct {
	// Timeout bounds the finalizer function call. Zero means no timeout.
	Timeout time.Duration

	// PresignTTL is the lifetime of the consolidated summary URL.
	PresignTTL time.Duration
}

// ConsolidatedSummary is the artifact handed to the finalizer function.
type ConsolidatedSummary struct {
	SessionID string           `json:"session_id"`
	Segments  []SegmentSummary `json:"segments"`
}

// SegmentSummary is one segment's summary inside the consolidated artifact.
type SegmentSummary struct {
	Index   int             `json:"index"`
	Summary json.RawMessage `json:"summary"`
}

// Finalizer closes sessions: it cuts the remaining rolling text, combines
// the segment summaries and invokes the external finalizer.
type Finalizer struct {
	orch      *Orchestrator
	finalizer driven.Finalizer
	cfg       FinalizerConfig

	// serialises concurrent finalize calls for one session
	running *KeyedMutex
}

// NewFinalizer creates a finalizer that shares orch's segment primitive.
func NewFinalizer(orch *Orchestrator, finalizer driven.Finalizer, cfg FinalizerConfig) *Finalizer {
	return &Finalizer{
		orch:      orch,
		finalizer: finalizer,
		cfg:       cfg,
		running:   NewKeyedMutex(),
	}
}

// Finalize runs the end-of-session pipeline. Late business identifiers in
// ids override stored ones. The session must exist.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string, ids domain.BusinessIDs) error {
	release := f.running.Lock(sessionID)
	defer release()

	log := logger.With("session", sessionID)
	log.Info("finalizing")

	session, segment, text, err := f.begin(ctx, sessionID, ids)
	if err != nil {
		return err
	}

	if segment != nil {
		log.Info("cut final segment %d", segment.Index)
		if err := f.orch.summarizeCut(ctx, segment, text); err != nil {
			return err
		}
	}

	summaryKey, err := f.combine(ctx, sessionID)
	if err != nil {
		return domain.SessionStageError(sessionID, domain.StageCombine, err)
	}

	resultKey, err := f.invoke(ctx, session, summaryKey)
	if err != nil {
		return domain.SessionStageError(sessionID, domain.StageFinalize, err)
	}

	if err := f.complete(ctx, sessionID, summaryKey, resultKey); err != nil {
		return domain.SessionStageError(sessionID, domain.StageSaveSession, err)
	}
	log.Info("session complete")
	return nil
}

// begin marks the session FINALIZING and flushes its rolling text through
// the orchestrator's cut primitive.
func (f *Finalizer) begin(ctx context.Context, sessionID string, ids domain.BusinessIDs) (*domain.Session, *domain.Segment, string, error) {
	o := f.orch
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	var (
		session *domain.Session
		segment *domain.Segment
		cut     *segmentation.Cut
	)
	err := retryOnConflict(ctx, func() error {
		var err error
		session, err = o.store.GetSession(ctx, sessionID)
		if err != nil {
			return &stagedError{stage: domain.StageLoadSession, err: err}
		}

		session.Status = domain.SessionFinalizing
		session.EndRequested = true
		session.BusinessIDs.Merge(ids)

		var state segmentation.State
		state, cut = o.policy.Flush(segmentation.StateOf(session))
		state.ApplyTo(session)

		segment, err = o.commit(ctx, session, cut, nil)
		return err
	})
	if err != nil {
		return nil, nil, "", domain.SessionStageError(sessionID, stageOf(err), err)
	}
	if cut == nil {
		return session, nil, "", nil
	}
	return session, segment, cut.Text, nil
}

// combine writes the consolidated summary of every summarized segment, in
// index order, and returns its key.
func (f *Finalizer) combine(ctx context.Context, sessionID string) (string, error) {
	segments, err := f.orch.store.ListSegments(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("list segments: %w", err)
	}

	consolidated := ConsolidatedSummary{SessionID: sessionID, Segments: []SegmentSummary{}}
	for _, seg := range segments {
		if !seg.HasSummary() {
			logger.With("session", sessionID, "segment", seg.Index).Debug("no summary (%s), omitted", seg.Status)
			continue
		}
		data, err := f.orch.objects.Get(ctx, seg.SummaryKey)
		if err != nil {
			return "", fmt.Errorf("read summary %d: %w", seg.Index, err)
		}
		consolidated.Segments = append(consolidated.Segments, SegmentSummary{
			Index:   seg.Index,
			Summary: json.RawMessage(data),
		})
	}

	data, err := json.Marshal(consolidated)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}
	key := domain.FinalSummaryKey(sessionID)
	if err := f.orch.objects.Put(ctx, key, data, domain.ContentTypeJSON); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return key, nil
}

// invoke calls the finalizer function and stores its result. It returns the
// result key, or "" when the result was not valid JSON.
func (f *Finalizer) invoke(ctx context.Context, session *domain.Session, summaryKey string) (string, error) {
	req := driven.FinalizeRequest{
		SessionID:   session.ID,
		BusinessIDs: session.BusinessIDs,
		SummaryKey:  summaryKey,
	}
	url, err := f.orch.objects.PresignedGetURL(ctx, summaryKey, f.cfg.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("presign summary: %w", err)
	}
	req.SummaryURL = url

	callCtx, cancel := withTimeout(ctx, f.cfg.Timeout)
	result, err := f.finalizer.Finalize(callCtx, req)
	cancel()
	if err != nil {
		return "", err
	}
	if !json.Valid(result) {
		logger.With("session", session.ID).Warn("finalizer returned malformed JSON, result not stored")
		return "", nil
	}

	key := domain.FinalResultKey(session.ID)
	if err := f.orch.objects.Put(ctx, key, result, domain.ContentTypeJSON); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return key, nil
}

func (f *Finalizer) complete(ctx context.Context, sessionID, summaryKey, resultKey string) error {
	o := f.orch
	unlock := o.locks.Lock(sessionID)
	defer unlock()

	return retryOnConflict(ctx, func() error {
		session, err := o.store.GetSession(ctx, sessionID)
		if err != nil {
			return err
		}
		session.Status = domain.SessionComplete
		session.FinalSummaryKey = summaryKey
		session.FinalResultKey = resultKey
		session.UpdatedAt = o.now()
		if err := o.store.SaveSession(ctx, session); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		return nil
	})
}
