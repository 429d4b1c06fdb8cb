package models

import "time"

// SystemAction is a business event that triggers can be bound to.
type SystemAction struct {
	ActionKey     string         `json:"actionKey"               validate:"required,max=100" yaml:"actionKey"`
	DisplayName   string         `json:"displayName"             validate:"required"         yaml:"displayName"`
	Description   string         `json:"description,omitempty"                               yaml:"description"`
	Category      string         `json:"category"                validate:"required"         yaml:"category"`
	ContextSchema map[string]any `json:"contextSchema,omitempty"                             yaml:"contextSchema"`
	IsSystem      bool           `json:"isSystem"                                            yaml:"isSystem"`
	IsActive      bool           `json:"isActive"                                            yaml:"isActive"`
	CreatedAt     time.Time      `json:"createdAt"                                           yaml:"-"`
	UpdatedAt     time.Time      `json:"updatedAt"                                           yaml:"-"`
}

// ActionLog records one fired action and the instances it started.
type ActionLog struct {
	ID                 string         `json:"id"`
	ActionKey          string         `json:"actionKey"`
	EntityType         string         `json:"entityType"`
	EntityID           string         `json:"entityId"`
	UserID             string         `json:"userId,omitempty"`
	ContextData        map[string]any `json:"contextData,omitempty"`
	TriggeredWorkflows []string       `json:"triggeredWorkflows"`
	Success            bool           `json:"success"`
	ErrorMessage       string         `json:"errorMessage,omitempty"`
	ExecutionTimeMs    int64          `json:"executionTimeMs"`
	CreatedAt          time.Time      `json:"createdAt"`
}

type ActionStatistics struct {
	Total            int     `json:"total"`
	Successful       int     `json:"successful"`
	Failed           int     `json:"failed"`
	SuccessRate      float64 `json:"successRate"`
	AvgExecutionTime float64 `json:"avgExecutionTime"`
}

// NewActionStatistics aggregates a set of logs.
func NewActionStatistics(logs []*ActionLog) ActionStatistics {
	var (
		stats ActionStatistics
		total int64
	)

	for _, l := range logs {
		stats.Total++

		if l.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}

		total += l.ExecutionTimeMs
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
		stats.AvgExecutionTime = float64(total) / float64(stats.Total)
	}

	return stats
}
