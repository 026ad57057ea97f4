package reporter

import (
	"encoding/json"
	"time"
)

// Transaction is one application's usage delta inside a report. The
// timestamp is optional; an absent one means "when the report arrived".
type Transaction struct {
	AppID     string           `json:"app_id"`
	Usage     map[string]int64 `json:"usage"`
	Timestamp *time.Time       `json:"timestamp,omitempty"`
}

// Job is the queued unit of accounting work: one accepted report call,
// already pinned to a concrete service id.
type Job struct {
	ID           string        `json:"id"`
	ProviderKey  string        `json:"provider_key"`
	ServiceID    string        `json:"service_id"`
	EnqueuedAt   time.Time     `json:"enqueued_at"`
	Transactions []Transaction `json:"transactions"`
}

func (j *Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

func ParseJob(payload []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// At returns the instant a transaction's counters are attributed to.
func (j *Job) At(tx Transaction) time.Time {
	if tx.Timestamp != nil {
		return tx.Timestamp.UTC()
	}
	return j.EnqueuedAt.UTC()
}
