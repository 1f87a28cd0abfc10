package submission

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"plantwatch/internal/logger"
	"plantwatch/internal/model"
	"plantwatch/internal/service/clock"
)

// Recorder receives the outcome of every delivery attempt.
type Recorder interface {
	RecordSubmission(sink string, response map[string]any, err error, at time.Time)
}

// Result is the outcome of one sink.
type Result struct {
	Sink     string
	Response map[string]any
	Err      error
	Queued   bool
}

// Outcome collects per-sink results of a Submit call.
type Outcome struct {
	Results []Result
}

// Delivered reports whether at least one sink accepted the submission.
func (o Outcome) Delivered() bool {
	for _, r := range o.Results {
		if r.Err == nil {
			return true
		}
	}
	return false
}

// Err joins the errors of every failed sink.
func (o Outcome) Err() error {
	var errs []error
	for _, r := range o.Results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

// Result returns the result of the named sink.
func (o Outcome) Result(sink string) (Result, bool) {
	for _, r := range o.Results {
		if r.Sink == sink {
			return r, true
		}
	}
	return Result{}, false
}

// FlushStats summarizes a Flush run.
type FlushStats struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// Pipeline fans a submission out to every enabled sink.
type Pipeline struct {
	sinks    []Sink
	queue    *PendingQueue
	recorder Recorder
	clock    clock.Clock
	log      *logger.Logger
}

func NewPipeline(sinks []Sink, queue *PendingQueue, recorder Recorder, clk clock.Clock, log *logger.Logger) *Pipeline {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Pipeline{sinks: sinks, queue: queue, recorder: recorder, clock: clk, log: log}
}

// Enabled returns the sinks that have configuration.
func (p *Pipeline) Enabled() []Sink {
	var out []Sink
	for _, s := range p.sinks {
		if s.Enabled() {
			out = append(out, s)
		}
	}
	return out
}

// Queue returns the durable queue, nil when none is configured.
func (p *Pipeline) Queue() *PendingQueue {
	return p.queue
}

// Submit delivers sub to every enabled sink concurrently. Failures are
// recorded, and queued for durable sinks; they never abort other sinks.
func (p *Pipeline) Submit(ctx context.Context, sub *Submission) (Outcome, error) {
	sinks := p.Enabled()
	if len(sinks) == 0 {
		return Outcome{}, ErrNoSinks
	}

	results := make([]Result, len(sinks))
	var wg sync.WaitGroup
	for i, sink := range sinks {
		wg.Add(1)
		go func(i int, sink Sink) {
			defer wg.Done()
			results[i] = p.deliver(ctx, sink, sub)
		}(i, sink)
	}
	wg.Wait()
	return Outcome{Results: results}, nil
}

func (p *Pipeline) deliver(ctx context.Context, sink Sink, sub *Submission) Result {
	resp, err := sink.Send(ctx, sub)
	now := p.clock.Now()
	if p.recorder != nil {
		p.recorder.RecordSubmission(sink.Name(), resp, err, now)
	}

	result := Result{Sink: sink.Name(), Response: resp, Err: err}
	if err == nil {
		p.log.Info("Detection delivered to %s (%s)", sink.Name(), sub.Payload.Status)
		return result
	}

	p.log.Error("Delivery to %s failed: %v", sink.Name(), err)
	if sink.Durable() && p.queue != nil {
		entry := model.PendingSubmission{
			ID:        uuid.NewString(),
			Sink:      sink.Name(),
			Payload:   withoutImages(sub.Payload),
			ImageB64:  base64.StdEncoding.EncodeToString(sub.Image),
			Filename:  sub.Filename,
			Timestamp: now,
			Error:     err.Error(),
		}
		if qerr := p.queue.Append(entry); qerr != nil {
			p.log.Error("Could not queue failed %s delivery: %v", sink.Name(), qerr)
		} else {
			result.Queued = true
			p.log.Warning("Queued %s for retry in %s", sub.Filename, p.queue.Path())
		}
	}
	return result
}

// withoutImages drops inline base64 images; the queue keeps the main image once in image_b64.
func withoutImages(p model.SubmissionPayload) model.SubmissionPayload {
	p.MainImage = ""
	p.PlantImages = nil
	return p
}

// durableSink resolves the sink an entry belongs to. Entries written
// without a sink name go to the first enabled durable sink.
func (p *Pipeline) durableSink(name string) Sink {
	for _, s := range p.sinks {
		if !s.Enabled() || !s.Durable() {
			continue
		}
		if name == "" || s.Name() == name {
			return s
		}
	}
	return nil
}

// Flush retries every queued entry. Delivered entries are removed, failed
// ones get retries incremented; entries appended meanwhile are kept.
func (p *Pipeline) Flush(ctx context.Context) (FlushStats, error) {
	var stats FlushStats
	if p.queue == nil {
		return stats, nil
	}

	var pending []model.PendingSubmission
	err := p.queue.Update(func(entries []model.PendingSubmission) []model.PendingSubmission {
		for i := range entries {
			if entries[i].ID == "" {
				entries[i].ID = uuid.NewString()
			}
		}
		pending = append(pending, entries...)
		return entries
	})
	if err != nil {
		return stats, fmt.Errorf("failed to read pending queue: %w", err)
	}
	if len(pending) == 0 {
		return stats, nil
	}

	sent := make(map[string]bool)
	failed := make(map[string]string)
	for _, entry := range pending {
		if ctx.Err() != nil {
			break
		}
		sink := p.durableSink(entry.Sink)
		if sink == nil {
			stats.Skipped++
			continue
		}
		stats.Attempted++

		err := p.retry(ctx, sink, entry)
		if p.recorder != nil {
			p.recorder.RecordSubmission(sink.Name(), nil, err, p.clock.Now())
		}
		if err != nil {
			failed[entry.ID] = err.Error()
			stats.Failed++
			continue
		}
		sent[entry.ID] = true
		stats.Sent++
	}

	err = p.queue.Update(func(entries []model.PendingSubmission) []model.PendingSubmission {
		kept := entries[:0]
		for _, e := range entries {
			if sent[e.ID] {
				continue
			}
			if msg, ok := failed[e.ID]; ok {
				e.Retries++
				e.Error = msg
			}
			kept = append(kept, e)
		}
		stats.Remaining = len(kept)
		return kept
	})
	if err != nil {
		return stats, fmt.Errorf("failed to write pending queue: %w", err)
	}

	p.log.Info("Pending flush: %d sent, %d failed, %d skipped, %d remaining",
		stats.Sent, stats.Failed, stats.Skipped, stats.Remaining)
	return stats, nil
}

func (p *Pipeline) retry(ctx context.Context, sink Sink, entry model.PendingSubmission) error {
	image, err := base64.StdEncoding.DecodeString(entry.ImageB64)
	if err != nil {
		return fmt.Errorf("failed to decode queued image: %w", err)
	}
	filename := entry.Filename
	if filename == "" {
		filename = "pending.jpg"
	}
	_, err = sink.Send(ctx, &Submission{Payload: entry.Payload, Image: image, Filename: filename})
	return err
}
