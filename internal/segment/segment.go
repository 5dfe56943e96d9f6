// Package segment runs a Driver against one DataIO segment end to
// end, reporting lifecycle status and each chunk's spike batch to
// anyone listening — a live monitor, a log, or a test.
package segment

import (
	"fmt"
	"log"

	"github.com/ephyslab/peeler/internal/datasource"
	"github.com/ephyslab/peeler/internal/labels"
	"github.com/ephyslab/peeler/internal/peeler"
	"github.com/ephyslab/peeler/internal/server"
)

// Status is a segment run's lifecycle state.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusError
)

// String returns the status name, as used on the wire and in logs.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to listeners when a run's status changes.
type Event struct {
	Status  Status
	Message string
}

// Monitor is the subset of server.Handlers a Runner needs; satisfied
// by *server.Handlers, nil-able so a Runner works headless (e.g. in
// tests or batch reprocessing) without a live monitor attached.
type Monitor interface {
	UpdateSegment(server.SegmentInfo)
	Hub() *server.WSHub
}

// Runner drives one segment of one DataIO through one Driver: reset,
// iterate chunks, persist each chunk's processed signal and spikes,
// and report status and spike batches as it goes. One Runner serves
// one segment; run segments from separate Runners. Runners that run one
// after another may reuse a Driver, since Run re-initializes it; Runners
// that run concurrently need separate Drivers and may share only the
// Catalogue (see peeler.Driver's doc comment).
type Runner struct {
	driver    *peeler.Driver
	dataio    datasource.DataIO
	monitor   Monitor
	eventChan chan Event

	segNum    int
	chanGrp   int
	chunkSize int
}

// NewRunner builds a Runner for one segment. monitor may be nil.
func NewRunner(driver *peeler.Driver, dataio datasource.DataIO, segNum, chanGrp, chunkSize int, monitor Monitor) *Runner {
	return &Runner{
		driver:    driver,
		dataio:    dataio,
		monitor:   monitor,
		eventChan: make(chan Event, 100),
		segNum:    segNum,
		chanGrp:   chanGrp,
		chunkSize: chunkSize,
	}
}

// Events returns the run's status event channel. Events are dropped,
// not blocked on, if the listener falls behind — the peel loop must
// never stall waiting on a monitor (spec.md §5).
func (r *Runner) Events() <-chan Event {
	return r.eventChan
}

// Run executes the segment: initialize, reset outputs, iterate
// chunks through the Driver, persist and broadcast each chunk's
// results, then flush. It returns the first error encountered, after
// reporting StatusError.
func (r *Runner) Run() error {
	r.setStatus(StatusRunning, "initializing segment")

	if err := r.driver.InitializeSegment(); err != nil {
		return r.fail(fmt.Errorf("initialize segment: %w", err))
	}
	if err := r.dataio.ResetProcessedSignals(r.segNum); err != nil {
		return r.fail(fmt.Errorf("reset processed signals: %w", err))
	}
	if err := r.dataio.ResetSpikes(r.segNum); err != nil {
		return r.fail(fmt.Errorf("reset spikes: %w", err))
	}

	it, err := r.dataio.IterOverChunk(r.segNum, r.chanGrp, r.chunkSize)
	if err != nil {
		return r.fail(fmt.Errorf("open chunk iterator: %w", err))
	}

	r.setStatus(StatusRunning, "processing chunks")

	for {
		pos, chunk, ok := it.Next()
		if !ok {
			break
		}

		absHead, preprocessed, totalSpike, batch, emitted := r.driver.ProcessChunk(pos, chunk)
		if !emitted {
			continue
		}

		if err := r.dataio.SetSignalsChunk(r.segNum, absHead, preprocessed); err != nil {
			return r.fail(fmt.Errorf("persist processed signal: %w", err))
		}
		if err := r.dataio.AppendSpikes(r.segNum, batch); err != nil {
			return r.fail(fmt.Errorf("persist spikes: %w", err))
		}

		r.broadcastBatch(absHead, batch, totalSpike)
	}
	if err := it.Err(); err != nil {
		return r.fail(fmt.Errorf("read chunk: %w", err))
	}

	if err := r.dataio.FlushProcessedSignals(r.segNum); err != nil {
		return r.fail(fmt.Errorf("flush processed signals: %w", err))
	}
	if err := r.dataio.FlushSpikes(r.segNum); err != nil {
		return r.fail(fmt.Errorf("flush spikes: %w", err))
	}

	r.setStatus(StatusCompleted, "segment complete")
	return nil
}

func (r *Runner) fail(err error) error {
	r.setStatus(StatusError, err.Error())
	return err
}

func (r *Runner) broadcastBatch(chunkPos int64, batch []labels.Spike, totalSpike int64) {
	if r.monitor == nil {
		return
	}
	spikes := make([]server.Spike, len(batch))
	for i, s := range batch {
		spikes[i] = server.Spike{Index: s.Index, Label: s.Label, Jitter: s.Jitter}
	}
	r.monitor.Hub().BroadcastSpikeBatch(server.SpikeBatchPayload{
		SegNum:     r.segNum,
		ChunkPos:   chunkPos,
		Spikes:     spikes,
		TotalSpike: totalSpike,
	})
}

func (r *Runner) setStatus(status Status, message string) {
	event := Event{Status: status, Message: message}
	select {
	case r.eventChan <- event:
	default:
		log.Printf("segment %d: event channel full, dropping: %s - %s", r.segNum, status, message)
	}

	if r.monitor != nil {
		r.monitor.UpdateSegment(server.SegmentInfo{
			SegNum:     r.segNum,
			Status:     status.String(),
			Message:    message,
			TotalSpike: r.driver.TotalSpike(),
		})
		r.monitor.Hub().BroadcastSegmentStatus(server.SegmentStatusPayload{
			SegNum:  r.segNum,
			Status:  status.String(),
			Message: message,
		})
	}
}
