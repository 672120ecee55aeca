package lode

import (
	"context"
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/workbench/codec"
	"github.com/pithecene-io/workbench/log"
	"github.com/pithecene-io/workbench/metrics"
	"github.com/pithecene-io/workbench/tracelog"
	"github.com/pithecene-io/workbench/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RecordKindTrace marks exported trace records.
const RecordKindTrace = "trace"

// DeriveDay returns the day partition for a run start time.
func DeriveDay(start time.Time) string {
	return start.UTC().Format("2006-01-02")
}

// Exporter writes root traces of one task into a dataset.
type Exporter struct {
	dataset lode.Dataset
	task    string
	codec   *codec.Codec
	logger  *log.Logger
	metrics *metrics.Collector
}

// NewExporter creates an exporter for task.
func NewExporter(ds lode.Dataset, task string, c *codec.Codec, logger *log.Logger, m *metrics.Collector) *Exporter {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Exporter{dataset: ds, task: task, codec: c, logger: logger, metrics: m}
}

// Export writes the traces not already in the dataset as one snapshot and
// returns how many were written. Non-root records are ignored.
func (e *Exporter) Export(ctx context.Context, traces []*types.RunRecord) (int, error) {
	existing, err := e.exportedIDs(ctx)
	if err != nil {
		return 0, err
	}

	var records []any
	for _, r := range traces {
		if r == nil || !r.IsRoot() || existing[r.ID.String()] {
			continue
		}
		records = append(records, e.toRecord(r))
	}
	if len(records) == 0 {
		e.logger.Debug("export skipped, nothing new", map[string]any{"task": e.task})
		return 0, nil
	}

	if _, err := e.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		e.metrics.IncExportWriteFailure()
		return 0, WrapWriteError(err, string(e.dataset.ID()))
	}
	e.metrics.IncExportWriteSuccess()
	e.logger.Info("traces exported", map[string]any{
		"task":    e.task,
		"dataset": string(e.dataset.ID()),
		"count":   len(records),
	})
	return len(records), nil
}

func (e *Exporter) toRecord(r *types.RunRecord) map[string]any {
	rec := map[string]any{
		"record_kind": RecordKindTrace,
		"task":        e.task,
		"day":         DeriveDay(r.StartTime),
		"run_id":      r.ID.String(),
		"name":        r.Name,
		"run_type":    r.RunType,
		"start_time":  r.StartTime.UTC().Format(time.RFC3339Nano),
		"runs":        r.Count(),
		"record":      tracelog.Encode(r, e.codec),
	}
	if r.EndTime != nil {
		rec["end_time"] = r.EndTime.UTC().Format(time.RFC3339Nano)
	}
	if r.Error != nil {
		rec["error"] = *r.Error
	}
	return rec
}

func (e *Exporter) exportedIDs(ctx context.Context) (map[string]bool, error) {
	ids := make(map[string]bool)
	err := scan(ctx, e.dataset, e.task, func(rec map[string]any) {
		if id, ok := rec["run_id"].(string); ok {
			ids[id] = true
		}
	})
	return ids, err
}

// ExportedTrace is one trace read back from a dataset.
type ExportedTrace struct {
	Task   string
	Day    string
	Record *types.RunRecord
}

// ReadExport lists the traces exported for task, or for every task when task
// is empty, ordered by start time. Each run appears once.
func ReadExport(ctx context.Context, ds lode.Dataset, task string, c *codec.Codec, logger *log.Logger) ([]ExportedTrace, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	seen := make(map[string]bool)
	var out []ExportedTrace
	var decodeErr error
	err := scan(ctx, ds, task, func(rec map[string]any) {
		id, _ := rec["run_id"].(string)
		if seen[id] || decodeErr != nil {
			return
		}
		seen[id] = true

		r, err := decodeTrace(rec["record"], c, logger)
		if err != nil {
			decodeErr = fmt.Errorf("decode trace %s: %w", id, err)
			return
		}
		task, _ := rec["task"].(string)
		day, _ := rec["day"].(string)
		out = append(out, ExportedTrace{Task: task, Day: day, Record: r})
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.StartTime.Before(out[j].Record.StartTime)
	})
	return out, nil
}

// scan visits every trace record of task, newest snapshot first.
func scan(ctx context.Context, ds lode.Dataset, task string, fn func(map[string]any)) error {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "task", task) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		// Manifest filtering is coarse; record fields decide.
		for _, item := range data {
			rec, ok := item.(map[string]any)
			if !ok || rec["record_kind"] != RecordKindTrace {
				continue
			}
			if task != "" && rec["task"] != task {
				continue
			}
			fn(rec)
		}
	}
	return nil
}

func decodeTrace(v any, c *codec.Codec, logger *log.Logger) (*types.RunRecord, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r types.RunRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	tracelog.Decode(&r, c, logger)
	return &r, nil
}
