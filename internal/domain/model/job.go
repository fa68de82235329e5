package model

type JobStatus string

const (
	JobStatusStarted         JobStatus = "STARTED"
	JobStatusRunning         JobStatus = "RUNNING"
	JobStatusCompleted       JobStatus = "COMPLETED"
	JobStatusError           JobStatus = "ERROR"
	JobStatusPartialComplete JobStatus = "PARTIAL_COMPLETE"
)

// Progress sentinels. Anything in between is an intermediate checkpoint.
const (
	ProgressCreated = 0
	ProgressPartial = 75
	ProgressDone    = 100
	ProgressFailed  = -1
)

// JobRecord is the externally visible state of one flow execution,
// persisted under a namespaced job key. CurrentOutput is cumulative:
// it only ever grows, except for the single terminal write.
type JobRecord struct {
	Progress      int       `json:"progress"`
	CurrentOutput string    `json:"current_output"`
	Status        JobStatus `json:"status"`
}

// StatusForProgress derives the job status from a progress value.
// PARTIAL_COMPLETE and STARTED are set explicitly by their writers;
// this covers the common running/terminal transitions.
func StatusForProgress(progress int) JobStatus {
	switch {
	case progress < 0:
		return JobStatusError
	case progress >= ProgressDone:
		return JobStatusCompleted
	default:
		return JobStatusRunning
	}
}

// Terminal reports whether the record will receive no further writes.
func (r JobRecord) Terminal() bool {
	return r.Progress < 0 || r.Progress >= ProgressDone ||
		r.Status == JobStatusPartialComplete
}
