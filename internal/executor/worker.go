// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package executor

import (
	"context"
	"time"

	"github.com/specialistvlad/gridsplit/internal/ctxlog"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, workerID int) {
	defer e.workers.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for j := range e.queue {
		e.process(ctx, j, workerID)
		e.pending.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (e *Executor) process(ctx context.Context, j job, workerID int) {
	ctx = ctxlog.With(ctx,
		"workerID", workerID,
		"node", j.st.ID(),
		"render_id", j.ticket.RenderID,
		"epoch", j.ticket.Epoch,
	)
	logger := ctxlog.FromContext(ctx)

	if !j.st.IsCurrent(j.ticket) {
		logger.Debug("Ticket went stale while queued, skipping render.")
		return
	}
	if err := ctx.Err(); err != nil {
		logger.Warn("Context canceled, failing render.")
		j.st.Fail(j.ticket, err)
		return
	}

	logger.Debug("Worker picked up render.", "grid", j.ticket.Config.String())
	start := time.Now()
	artifacts, err := e.rendererFor(j.st.ID()).Render(ctx, j.ticket.Source, j.ticket.Config)
	if err != nil {
		if j.st.Fail(j.ticket, err) {
			logger.Error("Render failed.", "error", err)
		} else {
			logger.Debug("Discarded stale render failure.", "error", err)
		}
		return
	}

	if !j.st.Complete(j.ticket, artifacts) {
		logger.Info("Discarded stale render result.", "tiles", len(artifacts))
		return
	}
	logger.Info("Render complete.", "tiles", len(artifacts), "duration", time.Since(start))

	for _, h := range e.hooks {
		if err := h(ctx, j.st, j.ticket, artifacts); err != nil {
			logger.Error("Result hook failed.", "error", err)
		}
	}
}
