package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobType(t *testing.T) {
	for _, valid := range []string{"parse", "embed"} {
		got, err := ParseJobType(valid)
		require.NoError(t, err)
		assert.Equal(t, JobType(valid), got)
	}

	for _, invalid := range []string{"", "ocr", "Parse", "extract"} {
		_, err := ParseJobType(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestParseJobStatus(t *testing.T) {
	for _, valid := range []string{"pending", "running", "failed", "completed"} {
		got, err := ParseJobStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, JobStatus(valid), got)
	}

	for _, invalid := range []string{"", "queued", "done", "PENDING"} {
		_, err := ParseJobStatus(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestParseDocumentStatus(t *testing.T) {
	for _, valid := range []string{"uploading", "processing", "completed", "failed"} {
		got, err := ParseDocumentStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, DocumentStatus(valid), got)
	}

	_, err := ParseDocumentStatus("archived")
	assert.Error(t, err)
}

func TestDocumentStatusTerminal(t *testing.T) {
	assert.False(t, DocUploading.Terminal())
	assert.False(t, DocProcessing.Terminal())
	assert.True(t, DocCompleted.Terminal())
	assert.True(t, DocFailed.Terminal())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCompleted.Terminal())
}

func TestProcessingJobActive(t *testing.T) {
	job := &ProcessingJob{Status: JobPending}
	assert.True(t, job.Active())

	job.Status = JobRunning
	assert.True(t, job.Active())

	job.Status = JobFailed
	assert.False(t, job.Active())

	job.Status = JobCompleted
	assert.False(t, job.Active())
}
