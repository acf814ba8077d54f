package rag

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobTTL is how long a completed job remains visible before lazy cleanup
// reclaims it.
const JobTTL = time.Hour

// InMemoryJobStore is a map+mutex job tracker with lazy TTL expiry: every
// mutation holds the mutex, reads copy the record, and stale completed jobs
// are swept opportunistically on lookup rather than by a background sweep.
type InMemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{jobs: make(map[string]Job)}
}

func (s *InMemoryJobStore) Create(filename, collection string) Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	job := Job{
		ID:         uuid.NewString(),
		Status:     JobProcessing,
		Filename:   filename,
		Collection: collection,
		CreatedAt:  time.Now(),
	}
	s.jobs[job.ID] = job
	return job
}

func (s *InMemoryJobStore) Complete(id string, result IngestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = result.Status
	job.Result = &result
	job.CompletedAt = &now
	s.jobs[id] = job
}

func (s *InMemoryJobStore) Fail(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.Status = JobError
	job.Error = err.Error()
	job.CompletedAt = &now
	s.jobs[id] = job
}

// Get returns a copy of the job, lazily evicting it first if it completed
// more than JobTTL ago.
func (s *InMemoryJobStore) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	if job.CompletedAt != nil && time.Since(*job.CompletedAt) > JobTTL {
		delete(s.jobs, id)
		return Job{}, false
	}
	return job, true
}

// sweepExpired removes every completed job older than JobTTL. No caller in
// this package invokes it; expiry happens lazily in Get, one job per
// lookup.
func (s *InMemoryJobStore) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if job.CompletedAt != nil && now.Sub(*job.CompletedAt) > JobTTL {
			delete(s.jobs, id)
		}
	}
}

var _ JobStore = (*InMemoryJobStore)(nil)
