package storage

import (
	"context"
	"errors"

	"graduationScope/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RecordSink persists completed graduations.
type RecordSink interface {
	PutRecords(ctx context.Context, records []model.GraduationRecord) error
}

// Recorder adapts a RecordSink to the executor's outcome hook.
type Recorder struct {
	chainID uint64
	sinks   []RecordSink
}

// NewRecorder writes every outcome to each sink in order.
func NewRecorder(chainID uint64, sinks ...RecordSink) *Recorder {
	kept := make([]RecordSink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &Recorder{chainID: chainID, sinks: kept}
}

// RecordOutcome stores outcome in every sink and joins their errors.
func (r *Recorder) RecordOutcome(ctx context.Context, outcome model.GraduationOutcome) error {
	record := []model.GraduationRecord{model.NewGraduationRecord(r.chainID, outcome)}
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.PutRecords(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
