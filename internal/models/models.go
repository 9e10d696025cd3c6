// Package models defines the data types shared across the airflow-health
// service: Airflow DAG and run records, aggregated health summaries, and
// the API response envelopes.
package models

import "time"

// RunState is the state of a single DAG run as reported by Airflow.
type RunState string

const (
	StateSuccess RunState = "success"
	StateFailed  RunState = "failed"
	StateRunning RunState = "running"
	StateQueued  RunState = "queued"
	// StateUnknown buckets any state the dashboard does not recognize,
	// including a missing state on a malformed record. Unknown runs are
	// counted, never dropped.
	StateUnknown RunState = "unknown"
)

// ParseRunState maps an upstream state string onto the closed RunState set.
func ParseRunState(s string) RunState {
	switch RunState(s) {
	case StateSuccess, StateFailed, StateRunning, StateQueued:
		return RunState(s)
	default:
		return StateUnknown
	}
}

// TimeRange is a supported aggregation window.
type TimeRange string

const (
	Range24h TimeRange = "24h"
	Range7d  TimeRange = "7d"
	Range30d TimeRange = "30d"
)

// DefaultTimeRange is used when a request does not specify a window.
const DefaultTimeRange = Range24h

// ParseTimeRange validates a time range string. Empty input yields the
// default window.
func ParseTimeRange(s string) (TimeRange, bool) {
	switch TimeRange(s) {
	case Range24h, Range7d, Range30d:
		return TimeRange(s), true
	case "":
		return DefaultTimeRange, true
	default:
		return "", false
	}
}

// Duration returns the length of the aggregation window.
func (t TimeRange) Duration() time.Duration {
	switch t {
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

const (
	// DomainTagPrefix marks a DAG tag as a business-domain assignment,
	// e.g. "domain:finance".
	DomainTagPrefix = "domain:"

	// UntaggedDomain is the reserved group for DAGs with no domain tag.
	UntaggedDomain = "untagged"
)

// Dag is one Airflow DAG definition. Tags are normalized to a flat,
// de-duplicated string slice at the fetch boundary; order is preserved
// as returned by Airflow because domain grouping is first-match.
type Dag struct {
	ID          string   `json:"dag_id"`
	DisplayName string   `json:"dag_display_name,omitempty"`
	Description string   `json:"description,omitempty"`
	IsPaused    bool     `json:"is_paused"`
	Tags        []string `json:"tags"`
}

// DagRun is one execution instance of a DAG.
type DagRun struct {
	DagID         string     `json:"dag_id"`
	RunID         string     `json:"dag_run_id"`
	ExecutionDate time.Time  `json:"execution_date"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	State         RunState   `json:"state"`
	AirflowURL    string     `json:"airflow_url,omitempty"`
}

// DomainSummary aggregates the runs of every DAG sharing a domain tag
// over one time range.
type DomainSummary struct {
	DomainTag    string    `json:"domain_tag"`
	TotalDags    int       `json:"total_dags"`
	TotalRuns    int       `json:"total_runs"`
	FailedCount  int       `json:"failed_count"`
	SuccessCount int       `json:"success_count"`
	RunningCount int       `json:"running_count"`
	QueuedCount  int       `json:"queued_count"`
	UnknownCount int       `json:"unknown_count"`
	HasFailures  bool      `json:"has_failures"`
	HealthScore  float64   `json:"health_score"`
	LastUpdated  time.Time `json:"last_updated"`
}

// DagSummary is the per-DAG breakdown inside a domain detail view.
type DagSummary struct {
	DagID        string     `json:"dag_id"`
	DisplayName  string     `json:"dag_display_name,omitempty"`
	Description  string     `json:"description,omitempty"`
	IsPaused     bool       `json:"is_paused"`
	Tags         []string   `json:"tags"`
	TotalRuns    int        `json:"total_runs"`
	FailedCount  int        `json:"failed_count"`
	SuccessCount int        `json:"success_count"`
	RunningCount int        `json:"running_count"`
	QueuedCount  int        `json:"queued_count"`
	UnknownCount int        `json:"unknown_count"`
	LastRunState RunState   `json:"last_run_state,omitempty"`
	LastRunDate  *time.Time `json:"last_run_date,omitempty"`
	AirflowURL   string     `json:"airflow_dag_url,omitempty"`
}

// DashboardResponse is the main dashboard payload with all domain summaries.
// Stale is true when the data was served from the fallback cache tier
// because the upstream fetch failed.
type DashboardResponse struct {
	TimeRange    TimeRange       `json:"time_range"`
	Domains      []DomainSummary `json:"domains"`
	TotalDomains int             `json:"total_domains"`
	TotalDags    int             `json:"total_dags"`
	Stale        bool            `json:"stale"`
	LastUpdated  time.Time       `json:"last_updated"`
}

// DomainDetailResponse is the drill-down payload for one domain.
type DomainDetailResponse struct {
	DomainTag   string          `json:"domain_tag"`
	TimeRange   TimeRange       `json:"time_range"`
	Summary     DomainSummary   `json:"summary"`
	Dags        []DagSummary    `json:"dags"`
	Stale       bool            `json:"stale"`
	LastUpdated time.Time       `json:"last_updated"`
}

// FailureAnalysis is the structured output of the LLM failure analyzer.
type FailureAnalysis struct {
	Summary     string            `json:"summary"`
	Categories  []FailureCategory `json:"categories"`
	ActionItems []ActionItem      `json:"action_items"`
}

// FailureCategory groups similar failures.
type FailureCategory struct {
	Name        string   `json:"name"`
	Count       int      `json:"count"`
	DagIDs      []string `json:"dag_ids"`
	Description string   `json:"description"`
}

// ActionItem is one suggested remediation, prioritized by impact.
type ActionItem struct {
	Priority     string   `json:"priority"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	AffectedDags []string `json:"affected_dags"`
}
