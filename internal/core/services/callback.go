package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/core/ports/driving"
	"github.com/custodia-labs/stitch/internal/logger"
)

// Ensure CallbackIngestor implements the interface.
var _ driving.CallbackIngestor = (*CallbackIngestor)(nil)

// CallbackIngestor maps remote transcriber callbacks onto chunk state.
type CallbackIngestor struct {
	orch driving.Orchestrator
}

// NewCallbackIngestor creates a callback ingestor.
func NewCallbackIngestor(orch driving.Orchestrator) *CallbackIngestor {
	return &CallbackIngestor{orch: orch}
}

// Handle processes one callback. Success is routed to the merge path;
// other known statuses update the chunk when the lifecycle allows it.
// Unknown statuses, regressions and duplicates are acknowledged unchanged.
func (c *CallbackIngestor) Handle(ctx context.Context, ref domain.CallbackRef, payload domain.CallbackPayload) error {
	if ref.SessionID == "" || ref.Seq < 0 {
		return fmt.Errorf("%w: callback without session or seq", domain.ErrInvalidInput)
	}
	log := logger.With("session", ref.SessionID, "seq", ref.Seq)
	status := domain.NormalizeRemoteStatus(payload.Status)

	if status.IsSuccess() {
		if payload.Output == nil {
			log.Warn("success callback without output")
			extra := domain.ChunkError("MALFORMED_OUTPUT", "success reported without transcription output")
			_, err := c.orch.TransitionChunk(ctx, ref.SessionID, ref.Seq, domain.ChunkFailed, extra)
			return err
		}
		return c.orch.HandleChunkSuccess(ctx, ref.SessionID, ref.Seq, payload.Output, ref.StartMs)
	}

	target, ok := status.ChunkStatus()
	if !ok {
		log.Info("ignoring unknown remote status %q", payload.Status)
		return nil
	}

	extra := &domain.ChunkStatusExtra{}
	if payload.ID != "" {
		extra.RemoteID = &payload.ID
	}
	if target.IsFailure() {
		code := string(status)
		extra.ErrorCode = &code
		msg := payload.Error
		extra.ErrorMessage = &msg
	}

	applied, err := c.orch.TransitionChunk(ctx, ref.SessionID, ref.Seq, target, extra)
	if err != nil {
		return err
	}
	if !applied {
		log.Debug("ignoring %s, chunk already past it", target)
		return nil
	}
	log.Debug("chunk now %s", target)
	return nil
}
