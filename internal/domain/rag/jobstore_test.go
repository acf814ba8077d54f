package rag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryJobStore_CreateAndGetRoundTrip(t *testing.T) {
	s := NewInMemoryJobStore()
	job := s.Create("doc.pdf", "default")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "doc.pdf", job.Filename)
	assert.Equal(t, "default", job.Collection)
	assert.Equal(t, JobProcessing, job.Status)

	got, ok := s.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, JobProcessing, got.Status)
}

func TestInMemoryJobStore_CompleteStampsResultAndStatus(t *testing.T) {
	s := NewInMemoryJobStore()
	job := s.Create("doc.pdf", "default")

	s.Complete(job.ID, IngestResult{Status: JobSuccess, DocumentID: "doc-1", ChunksCreated: 3})

	got, ok := s.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobSuccess, got.Status)
	assert.Equal(t, "doc-1", got.Result.DocumentID)
	assert.Equal(t, 3, got.Result.ChunksCreated)
	require.NotNil(t, got.CompletedAt)
}

func TestInMemoryJobStore_CompleteWithDuplicateStatus(t *testing.T) {
	s := NewInMemoryJobStore()
	job := s.Create("doc.pdf", "default")

	s.Complete(job.ID, IngestResult{Status: JobDuplicate, DocumentID: "existing-doc"})

	got, ok := s.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobDuplicate, got.Status)
	assert.Equal(t, "existing-doc", got.Result.DocumentID)
}

func TestInMemoryJobStore_FailStoresErrorMessage(t *testing.T) {
	s := NewInMemoryJobStore()
	job := s.Create("doc.pdf", "default")

	s.Fail(job.ID, errors.New("extractor blew up"))

	got, ok := s.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, JobError, got.Status)
	assert.Equal(t, "extractor blew up", got.Error)
	require.NotNil(t, got.CompletedAt)
}

func TestInMemoryJobStore_GetUnknownIDReturnsFalse(t *testing.T) {
	s := NewInMemoryJobStore()
	_, ok := s.Get("does-not-exist")
	assert.False(t, ok)
}
