package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestJobStatusValid(t *testing.T) {
	for _, status := range []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed} {
		assert.True(t, status.Valid(), status)
	}
	assert.False(t, JobStatus("DONE").Valid())
	assert.False(t, JobStatus("pending").Valid(), "status values are case sensitive")
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusProcessing.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
}

func TestParseJobStatusRejectsUnknown(t *testing.T) {
	status, err := ParseJobStatus("PROCESSING")
	require.NoError(t, err)
	assert.Equal(t, JobStatusProcessing, status)

	_, err = ParseJobStatus("RUNNING")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNNING")
}

func TestStagesDecoding(t *testing.T) {
	job := &VideoJob{}
	stages, err := job.Stages()
	require.NoError(t, err)
	assert.Empty(t, stages)

	job.ProcessingStages = datatypes.JSON(`{"extraction": true, "ai_generation": false}`)
	stages, err = job.Stages()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"extraction": true, "ai_generation": false}, stages)

	job.ProcessingStages = datatypes.JSON(`not json`)
	_, err = job.Stages()
	assert.Error(t, err)
}
