/*
ingest.go - Batch ingestion of provider records

PURPOSE:
  Drives one batch of raw provider records through the full pipeline:
  resolve identity -> normalize -> append to the event log -> re-derive the
  day entry. Each record fails independently; the batch continues and the
  outcome is collected into an OperationReport and persisted as an
  OperationRun.

IDEMPOTENCE:
  Re-ingesting the same batch is a no-op: the event log's dedup key silently
  absorbs already-seen punches and re-derivation converges on the same entry.
*/
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/identity"
)

// Ingestor wires the pipeline together.
type Ingestor struct {
	Resolver *identity.Resolver
	Events   engine.EventStore
	Deriver  *engine.Deriver
	Ops      engine.OperationLog
}

func NewIngestor(resolver *identity.Resolver, events engine.EventStore, deriver *engine.Deriver, ops engine.OperationLog) *Ingestor {
	return &Ingestor{Resolver: resolver, Events: events, Deriver: deriver, Ops: ops}
}

// Ingest processes a batch of raw records. Per-record failures are recorded
// and skipped; the batch never aborts. The returned report carries counts
// and the human-readable error list.
func (ing *Ingestor) Ingest(ctx context.Context, records []Record) (*engine.OperationReport, error) {
	report := engine.NewOperationReport(engine.OpIngest, fmt.Sprintf("%d records", len(records)))

	for _, rec := range records {
		if err := ing.ingestOne(ctx, rec); err != nil {
			report.Failure(rec.Ref(), err)
			continue
		}
		report.Success()
	}

	if err := ing.Ops.RecordRun(ctx, report.Run(uuid.NewString())); err != nil {
		return report, fmt.Errorf("failed to record ingest run: %w", err)
	}

	log.Printf("[Ingest] %d records: %d ok, %d failed", report.Attempted, report.Succeeded, report.Failed)
	return report, nil
}

func (ing *Ingestor) ingestOne(ctx context.Context, rec Record) error {
	match, err := ing.Resolver.Resolve(ctx, rec.EmployeeCode, rec.EmployeeName)
	if err != nil {
		return err
	}
	switch match.Decision {
	case identity.DecisionMapped, identity.DecisionAutoAccepted:
		// resolved
	default:
		return &engine.UnresolvedIdentityError{ExternalCode: rec.EmployeeCode, ExternalName: rec.EmployeeName}
	}

	events, err := Normalize(rec, match.UserID)
	if err != nil {
		return err
	}

	var day engine.Date
	for _, ev := range events {
		day = engine.DateOf(ev.At)
		if err := ing.Events.AppendEvent(ctx, ev); err != nil {
			if engine.IsDuplicate(err) {
				continue // already ingested, not an update
			}
			return err
		}
	}

	reason := ""
	if rec.Remark != "" {
		reason = "provider remark: " + rec.Remark
	}
	if _, err := ing.Deriver.DeriveWithReason(ctx, match.UserID, day, reason); err != nil {
		return err
	}
	return nil
}

// ParseBatch decodes a JSON array of records, the wire shape the provider
// delivers and the shape `attendd ingest` reads from disk.
func ParseBatch(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("invalid provider batch: %w", err)
	}
	return records, nil
}
