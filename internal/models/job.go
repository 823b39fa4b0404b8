package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Job status values. These are the literal strings stored in the
// jobs.status column.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusError      JobStatus = "error"
)

// JobStatuses lists every known job status.
var JobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusCancelled,
	JobStatusError,
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted,
		JobStatusCancelled, JobStatusError:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCancelled, JobStatusError:
		return true
	}
	return false
}

// Operation is one step of an edit recipe: an op name selecting a
// compiler method plus its payload, kept raw until dispatch validates
// and coerces it.
type Operation struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Operations is an ordered list of operations stored as a JSON column.
type Operations []Operation

// Value implements driver.Valuer for database storage.
func (o Operations) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshaling operations: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval.
func (o *Operations) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Operations", value)
	}
	if len(data) == 0 {
		*o = nil
		return nil
	}
	return json.Unmarshal(data, o)
}

// JobOutput describes the artifact produced by a completed job.
type JobOutput struct {
	Filename     string `json:"filename"`
	VideoFormat  string `json:"video_format,omitempty"`
	AudioFormat  string `json:"audio_format,omitempty"`
	AudioBitrate string `json:"audio_bitrate,omitempty"`
}

// Value implements driver.Valuer for database storage.
func (o *JobOutput) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshaling job output: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval.
func (o *JobOutput) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JobOutput", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, o)
}

// Job is one unit of work. Jobs sharing a uid form a workflow
// execution; output_version orders them and each job consumes the
// previous version's output as its input when its own input is empty.
type Job struct {
	BaseModel
	UID           string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_jobs_uid_version,priority:1;index" json:"uid"`
	OutputVersion int        `gorm:"not null;default:0;uniqueIndex:idx_jobs_uid_version,priority:2" json:"output_version"`
	Input         string     `gorm:"type:text" json:"input"`
	Action        Operations `gorm:"type:jsonb;not null" json:"action"`
	Output        *JobOutput `gorm:"type:jsonb" json:"output,omitempty"`
	Status        JobStatus  `gorm:"type:varchar(20);not null;default:queued;index" json:"status"`
	Retries       int        `gorm:"not null;default:0" json:"retries"`
	Error         string     `gorm:"type:text" json:"error,omitempty"`
	Progress      int        `gorm:"not null;default:0" json:"progress"`
}

// TableName specifies the database table name.
func (Job) TableName() string {
	return "jobs"
}

// HasOp reports whether the job's action list contains the given op.
func (j *Job) HasOp(name string) bool {
	for _, op := range j.Action {
		if op.Op == name {
			return true
		}
	}
	return false
}
