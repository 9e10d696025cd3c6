package airflow

import (
	"encoding/json"
	"time"

	"github.com/jonesrussell/airflow-health/internal/models"
)

// dagListResponse is the wire shape of GET /api/v1/dags.
type dagListResponse struct {
	Dags         []apiDag `json:"dags"`
	TotalEntries int      `json:"total_entries"`
}

type apiDag struct {
	DagID       string  `json:"dag_id"`
	DisplayName string  `json:"dag_display_name"`
	Description string  `json:"description"`
	IsPaused    bool    `json:"is_paused"`
	Tags        tagList `json:"tags"`
}

func (d apiDag) toModel() models.Dag {
	return models.Dag{
		ID:          d.DagID,
		DisplayName: d.DisplayName,
		Description: d.Description,
		IsPaused:    d.IsPaused,
		Tags:        d.Tags,
	}
}

// tagList normalizes the two tag shapes Airflow emits: bare strings and
// {"name": ...} objects. Duplicates collapse; order is preserved because
// domain grouping picks the first matching tag.
type tagList []string

func (t *tagList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// Unrecognized shape degrades to no tags rather than failing the DAG.
		*t = nil
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))

	appendTag := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			appendTag(s)
			continue
		}

		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(item, &obj); err == nil {
			appendTag(obj.Name)
		}
	}

	*t = out
	return nil
}

// runListResponse is the wire shape of GET /api/v1/dags/{id}/dagRuns.
type runListResponse struct {
	DagRuns      []apiRun `json:"dag_runs"`
	TotalEntries int      `json:"total_entries"`
}

type apiRun struct {
	DagRunID      string     `json:"dag_run_id"`
	ExecutionDate time.Time  `json:"execution_date"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	State         string     `json:"state"`
}

func (r apiRun) toModel(dagID, baseURL string) models.DagRun {
	return models.DagRun{
		DagID:         dagID,
		RunID:         r.DagRunID,
		ExecutionDate: r.ExecutionDate,
		StartDate:     r.StartDate,
		EndDate:       r.EndDate,
		State:         models.ParseRunState(r.State),
		AirflowURL:    baseURL + "/dags/" + dagID + "/grid?dag_run_id=" + r.DagRunID,
	}
}
