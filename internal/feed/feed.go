// Package feed loads rows from files and HTTP endpoints into entity
// fields. A run reads every record from a source, passes it through a
// transform chain and writes the survivors to entities.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scenes/internal/domain"
)

// Job holds the configuration of one feed.
type Job struct {
	Name       string            `json:"name" toml:"name"`
	Source     string            `json:"source" toml:"source"`
	Config     SourceConfig      `json:"config" toml:"config"`
	Transforms []TransformConfig `json:"transforms,omitempty" toml:"transforms"`
	Key        string            `json:"key,omitempty" toml:"key"`
	Entity     int64             `json:"entity,omitempty" toml:"entity"`
	// Schedule is a cron expression; empty means manual runs only.
	Schedule string `json:"schedule,omitempty" toml:"schedule"`
}

func (j Job) target() Target {
	return Target{Key: j.Key, Entity: domain.EntityID(j.Entity)}
}

// Validate checks the job without touching the source.
func (j Job) Validate() error {
	var errs []error
	src, err := GetSource(j.Source)
	if err != nil {
		errs = append(errs, err)
	} else if err := src.Spec().Validate(j.Config); err != nil {
		errs = append(errs, err)
	}
	if j.Key == "" && j.Entity == 0 {
		errs = append(errs, errors.New("key or entity is required"))
	}
	if _, err := BuildTransformers(j.Transforms); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one run.
type Result struct {
	Job         string        `json:"job"`
	Status      string        `json:"status"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	Fields      []string      `json:"fields"`
	Skipped     []string      `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

func (r *Result) fail(start time.Time, stage string, err error) (*Result, error) {
	r.Status = StatusError
	r.Error = fmt.Sprintf("%s: %s", stage, err)
	r.Duration = time.Since(start)
	return r, fmt.Errorf("%s: %w", stage, err)
}

// ── Engine ─────────────────────────────────────────────────

// Engine runs jobs against the registered sources and one destination.
type Engine struct {
	Dest Destination
}

// Run executes job end to end: read, transform, write. The result is
// returned even on error.
func (e *Engine) Run(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()
	result := &Result{Job: job.Name, Fields: []string{}}

	source, err := GetSource(job.Source)
	if err != nil {
		return result.fail(start, "source", err)
	}
	if err := source.Spec().Validate(job.Config); err != nil {
		return result.fail(start, "source", err)
	}
	transformers, err := BuildTransformers(job.Transforms)
	if err != nil {
		return result.fail(start, "transforms", err)
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(readCtx, job.Config)

	var records []Record
	for rec := range recCh {
		result.RowsRead++
		out, keep, err := ApplyTransformers(ctx, rec, transformers)
		if err != nil {
			cancel()
			drain(recCh)
			return result.fail(start, "transform", fmt.Errorf("record %d: %w", result.RowsRead-1, err))
		}
		if keep {
			records = append(records, out)
		}
	}
	if err := <-errCh; err != nil {
		return result.fail(start, "read", err)
	}

	written, err := e.Dest.Write(ctx, job.target(), records)
	if written != nil {
		result.RowsWritten = written.Written
		result.Fields = written.Fields
		result.Skipped = written.Skipped
	}
	if err != nil {
		return result.fail(start, "write", err)
	}

	result.Status = StatusSuccess
	result.Duration = time.Since(start)
	return result, nil
}

// Preview reads up to maxRows transformed records without writing them.
func (e *Engine) Preview(ctx context.Context, job Job, maxRows int) ([]Record, error) {
	source, err := GetSource(job.Source)
	if err != nil {
		return nil, err
	}
	transformers, err := BuildTransformers(job.Transforms)
	if err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	recCh, errCh := source.Read(readCtx, job.Config)

	records := []Record{}
	for rec := range recCh {
		out, keep, err := ApplyTransformers(ctx, rec, transformers)
		if err != nil {
			cancel()
			drain(recCh)
			return records, err
		}
		if keep {
			records = append(records, out)
		}
		if len(records) >= maxRows {
			cancel()
			drain(recCh)
			return records, nil
		}
	}
	if err := <-errCh; err != nil {
		return records, err
	}
	return records, nil
}

func drain(ch <-chan Record) {
	go func() {
		for range ch {
		}
	}()
}
