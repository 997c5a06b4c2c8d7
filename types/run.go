package types

import "time"

// SegmentSummary accounts for one variant's pass through the pipeline.
// RowsDropped counts rows filtered by the emissions join; it is reported
// explicitly because the join would otherwise drop data silently.
type SegmentSummary struct {
	CabType     string        `json:"cab_type"`
	SourceTable string        `json:"source_table"`
	OutputTable string        `json:"output_table"`
	RowsRead    int64         `json:"rows_read"`
	RowsWritten int64         `json:"rows_written"`
	RowsDropped int64         `json:"rows_dropped"`
	Duration    time.Duration `json:"duration"`
}

// RunSummary describes one complete ETL run across all variants. It is
// logged and returned to the caller, never persisted; the enriched tables
// themselves are the durable output.
type RunSummary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Segments   []SegmentSummary `json:"segments"`
}

func (r *RunSummary) TotalRowsRead() int64 {
	var n int64
	for _, s := range r.Segments {
		n += s.RowsRead
	}
	return n
}

func (r *RunSummary) TotalRowsWritten() int64 {
	var n int64
	for _, s := range r.Segments {
		n += s.RowsWritten
	}
	return n
}

func (r *RunSummary) TotalRowsDropped() int64 {
	var n int64
	for _, s := range r.Segments {
		n += s.RowsDropped
	}
	return n
}
