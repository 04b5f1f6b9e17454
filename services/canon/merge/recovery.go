// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package merge

import (
	"context"
	"log/slog"

	"github.com/jinterlante1206/AleutianCodex/services/canon/datatypes"
)

// ReconcileAudit backfills audit entries for committed merges that lost
// their audit append to a crash.
//
// # Description
//
// The audit entry is written after the ledger transaction commits, so a
// crash in between leaves a committed merge_operations row with no matching
// audit entry. This scans for such rows and synthesizes a reconciliation
// entry from the label's current state. The before snapshot is gone with the
// crash; the entry is marked merge.reconciled so readers know it was
// recovered rather than recorded live.
//
// Run at service startup, before traffic. Idempotent: reconciled operations
// gain an audit entry and drop out of the scan.
//
// # Outputs
//
//   - int: Number of entries backfilled.
//   - error: Store failure; reconciliation stops at the first one.
func (o *Orchestrator) ReconcileAudit(ctx context.Context, projectID string) (int, error) {
	ops, err := o.store.CommittedMergesWithoutAudit(ctx, projectID)
	if err != nil {
		return 0, err
	}

	for i, op := range ops {
		var after []byte
		label, err := o.store.GetLabel(ctx, projectID, op.SourceLabelID)
		if err != nil {
			slog.Warn("Reconciling merge with unreadable source label",
				"project_id", projectID, "operation_id", op.ID, "error", err)
		} else {
			after = label.Snapshot()
		}

		entry := &datatypes.AuditEntry{
			ProjectID:        projectID,
			SubjectLabelID:   op.SourceLabelID,
			Operation:        datatypes.AuditOpMergeReconciled,
			AfterSnapshot:    after,
			Actor:            op.Actor,
			MergeOperationID: op.ID,
		}
		if err := o.store.AppendAudit(ctx, entry); err != nil {
			return i, err
		}
	}

	if len(ops) > 0 {
		slog.Info("Audit reconciliation complete",
			"project_id", projectID, "backfilled", len(ops))
	}
	return len(ops), nil
}
