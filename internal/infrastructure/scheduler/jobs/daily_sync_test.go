package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-tracker/internal/application/command"
)

type stubPipeline struct {
	result   *command.RunPipelineResult
	err      error
	triggers []string
}

func (p *stubPipeline) Handle(_ context.Context, cmd command.RunPipelineCommand) (*command.RunPipelineResult, error) {
	p.triggers = append(p.triggers, cmd.Trigger)
	return p.result, p.err
}

func TestDailySyncJob_RunsPipeline(t *testing.T) {
	p := &stubPipeline{result: &command.RunPipelineResult{
		Sync: &command.SyncAllStudentsResult{Total: 3, Synced: 2, Failed: 1},
	}}
	job := NewDailySyncJob(p, "", nil)

	assert.Equal(t, DailySyncJobName, job.Name())
	assert.Nil(t, job.LastResult())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"schedule"}, p.triggers)
	require.NotNil(t, job.LastResult())
	assert.Equal(t, 2, job.LastResult().Sync.Synced)
}

func TestDailySyncJob_PropagatesPipelineError(t *testing.T) {
	p := &stubPipeline{err: command.ErrPipelineRunning}
	job := NewDailySyncJob(p, "startup", nil)

	err := job.Run(context.Background())
	assert.True(t, errors.Is(err, command.ErrPipelineRunning))
	assert.Equal(t, []string{"startup"}, p.triggers)
	assert.Nil(t, job.LastResult())
}
