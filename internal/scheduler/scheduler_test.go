package scheduler

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingJob struct {
	runs int
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	assert.Error(t, s.AddJob("not a schedule", &countingJob{}))
}

func TestAddJobAcceptsSixFieldSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	assert.NoError(t, s.AddJob("0 */30 * * * *", &countingJob{}))
}

func TestRunNowExecutesJob(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{}

	s.RunNow(job)
	assert.Equal(t, 1, job.runs)
}

func TestRunNowSurvivesJobFailure(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{err: fmt.Errorf("upstream down")}

	// A failing run is logged, never panics or aborts the scheduler.
	s.RunNow(job)
	s.RunNow(job)
	assert.Equal(t, 2, job.runs)
}
