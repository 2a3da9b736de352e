// Package worker runs transfer jobs on a fixed pool of goroutines.
package worker

import (
	"sync"
	"sync/atomic"

	"dms_transfer/client/transport"
	"dms_transfer/errs"
	"dms_transfer/fileio"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TransferJob sends every file under Source to Destination
type TransferJob struct {
	Source      string // File or directory
	Destination transport.NetworkEndpoint
}

// JobState tracks a job through the pool
type JobState int

const (
	Unknown JobState = iota
	Queued
	InProgress
	Done
	PartiallyFailed // At least one chunk or file was skipped
	Failed          // Source could not be enumerated
)

func (s JobState) String() string {
	switch s {
	case Queued:
		return "queued"
	case InProgress:
		return "in progress"
	case Done:
		return "done"
	case PartiallyFailed:
		return "partially failed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Stats are running totals across all jobs
type Stats struct {
	Files        uint64
	Chunks       uint64 // Chunks delivered
	FailedChunks uint64
	Bytes        uint64 // Payload bytes delivered
}

// Manager owns the job queue and the worker pool
type Manager struct {
	chunkSize int
	transport transport.NetworkTransport
	queue     *JobQueue

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.Mutex
	states map[string]JobState

	files        atomic.Uint64
	chunks       atomic.Uint64
	failedChunks atomic.Uint64
	bytes        atomic.Uint64
}

// NewManager validates its arguments and starts concurrency workers right away
func NewManager(chunkSize, concurrency int, t transport.NetworkTransport) (*Manager, error) {
	if concurrency < 1 {
		return nil, errs.Newf(errs.ErrInvalidArgument, "concurrency must be >= 1, got %d", concurrency)
	}
	if chunkSize < 1 {
		return nil, errs.Newf(errs.ErrInvalidArgument, "chunk size must be >= 1, got %d", chunkSize)
	}
	if t == nil {
		return nil, errs.Newf(errs.ErrInvalidArgument, "transport is required")
	}

	m := &Manager{
		chunkSize: chunkSize,
		transport: t,
		queue:     newJobQueue(),
		states:    make(map[string]JobState),
	}

	// Start workers.
	for i := 0; i < concurrency; i++ {
		m.wg.Add(1)
		go m.work(i)
	}
	return m, nil
}

// SubmitJob queues job and returns its id. It never blocks.
func (m *Manager) SubmitJob(job TransferJob) (string, error) {
	id := uuid.NewString()

	m.mu.Lock()
	m.states[id] = Queued
	m.mu.Unlock()

	if !m.queue.Push(&queuedJob{id: id, job: job}) {
		m.mu.Lock()
		delete(m.states, id)
		m.mu.Unlock()
		return "", errs.New(errs.ErrManagerStopped, "submit "+job.Source, nil)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SubmitJob",
		"job":      id,
		"source":   job.Source,
		"endpoint": job.Destination.String(),
	}).Debug("Job queued")
	return id, nil
}

// WaitForCompletion stops accepting jobs and returns once every job submitted
// before the call has been processed. Safe to call more than once.
func (m *Manager) WaitForCompletion() {
	m.stopOnce.Do(m.queue.Close)
	m.wg.Wait()
}

// JobState returns the state of the job with the given id
func (m *Manager) JobState(id string) JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

// Stats returns the running totals
func (m *Manager) Stats() Stats {
	return Stats{
		Files:        m.files.Load(),
		Chunks:       m.chunks.Load(),
		FailedChunks: m.failedChunks.Load(),
		Bytes:        m.bytes.Load(),
	}
}

func (m *Manager) setState(id string, state JobState) {
	m.mu.Lock()
	m.states[id] = state
	m.mu.Unlock()
}

func (m *Manager) work(n int) {
	defer m.wg.Done()
	for {
		next := m.queue.PopFront()
		if next == nil {
			return
		}
		m.setState(next.id, InProgress)
		state := m.runJob(n, next.id, next.job)
		m.setState(next.id, state)
	}
}

// runJob sends one job and returns its final state. Chunks of a file go out in
// ascending offset order.
func (m *Manager) runJob(n int, id string, job TransferJob) JobState {
	log := logrus.WithFields(logrus.Fields{
		"function": "runJob",
		"worker":   n,
		"job":      id,
		"source":   job.Source,
		"endpoint": job.Destination.String(),
	})

	files, err := fileio.EnumerateFiles(job.Source)
	if err != nil {
		log.WithField("error", err.Error()).Error("Could not enumerate source")
		return Failed
	}

	state := Done
	checksumBuffer := fileio.ClampChecksumBuffer(m.chunkSize)
	for _, file := range files {
		flog := log.WithField("file", file)

		checksum, err := fileio.FileChecksumCRC32(file, checksumBuffer)
		if err != nil {
			flog.WithField("error", err.Error()).Error("Checksum failed, skipping file")
			state = PartiallyFailed
			continue
		}

		chunks, err := fileio.ChunkFile(file, m.chunkSize)
		if err != nil {
			flog.WithField("error", err.Error()).Error("Chunking failed, skipping file")
			state = PartiallyFailed
			continue
		}
		m.files.Add(1)

		relative := fileio.RelativeTo(job.Source, file)
		for _, chunk := range chunks {
			if err := m.sendChunk(job.Destination, chunk, relative, checksum); err != nil {
				flog.WithFields(logrus.Fields{
					"offset": chunk.Offset,
					"error":  err.Error(),
				}).Warn("Chunk failed, skipping")
				m.failedChunks.Add(1)
				state = PartiallyFailed
			}
		}
		flog.WithFields(logrus.Fields{
			"chunks":   len(chunks),
			"checksum": checksum,
		}).Debug("File processed")
	}

	log.WithField("state", state.String()).Info("Job finished")
	return state
}

func (m *Manager) sendChunk(endpoint transport.NetworkEndpoint, chunk fileio.FileChunk, relative, checksum string) error {
	data, err := fileio.ReadChunk(chunk)
	if err != nil {
		return err
	}
	err = m.transport.SendChunk(endpoint, transport.ChunkPayload{
		Path:         chunk.Path,
		RelativePath: relative,
		Offset:       chunk.Offset,
		Data:         data,
		ChecksumHex:  checksum,
	})
	if err != nil {
		return err
	}
	m.chunks.Add(1)
	m.bytes.Add(uint64(len(data)))
	return nil
}
