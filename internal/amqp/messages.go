package amqp

import (
	"encoding/json"
	"time"
)

// StatementJob tells the ingest worker to parse one uploaded statement file.
// Only the file path and source tag travel on the wire; the worker reads the
// file from shared storage.
type StatementJob struct {
	Path      string    `json:"path"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func NewStatementJob(path, source string) *StatementJob {
	return &StatementJob{
		Path:      path,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the job to JSON bytes
func (j *StatementJob) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// FromJSON creates a job from JSON bytes
func StatementJobFromJSON(data []byte) (*StatementJob, error) {
	var job StatementJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
