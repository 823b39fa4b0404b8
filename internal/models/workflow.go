package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// WorkflowSteps is an ordered list of steps, where each step is the
// ordered operation list for one job, stored as a JSON column.
type WorkflowSteps [][]Operation

// Value implements driver.Valuer for database storage.
func (s WorkflowSteps) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling workflow steps: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database retrieval.
func (s *WorkflowSteps) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into WorkflowSteps", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, s)
}

// Workflow is a reusable named recipe. Executing it expands each step
// into one job, chained by output_version.
type Workflow struct {
	BaseModel
	Name   string        `gorm:"type:varchar(255);not null;index" json:"name"`
	Search string        `gorm:"type:varchar(255)" json:"search,omitempty"`
	Steps  WorkflowSteps `gorm:"type:jsonb;not null" json:"steps"`
}

// TableName specifies the database table name.
func (Workflow) TableName() string {
	return "workflows"
}

// WorkflowExecution records one run of a workflow. Its uid matches the
// uid of the jobs generated for the run.
type WorkflowExecution struct {
	BaseModel
	WorkflowID uint   `gorm:"not null;index" json:"workflow_id"`
	UID        string `gorm:"type:varchar(36);not null;index" json:"uid"`
	Progress   int    `gorm:"not null;default:0" json:"progress"`
}

// TableName specifies the database table name.
func (WorkflowExecution) TableName() string {
	return "workflow_executions"
}
