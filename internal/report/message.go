package report

import (
	"fmt"
	"strings"

	"github.com/jonesrussell/airflow-health/internal/llm"
	"github.com/jonesrussell/airflow-health/internal/models"
	"github.com/jonesrussell/airflow-health/internal/slack"
)

const maxListedFailures = 10

// buildMessage renders the report as Block Kit. Layout: header, overall
// stats, failing DAG list, then the optional analysis.
func buildMessage(dashboard *models.DashboardResponse, failures []llm.DagFailure, analysis *models.FailureAnalysis) slack.Message {
	healthy := dashboard.TotalDomains
	for _, d := range dashboard.Domains {
		if d.HasFailures {
			healthy--
		}
	}

	title := "Airflow Health Report"
	if len(failures) == 0 {
		title += " - All Clear"
	}

	blocks := []slack.Block{
		slack.Header(title),
		slack.FieldSection(
			fmt.Sprintf("*Domains:* %d (%d healthy)", dashboard.TotalDomains, healthy),
			fmt.Sprintf("*DAGs:* %d", dashboard.TotalDags),
			fmt.Sprintf("*Window:* last %s", dashboard.TimeRange),
			fmt.Sprintf("*Failing DAGs:* %d", len(failures)),
		),
	}

	if dashboard.Stale {
		blocks = append(blocks, slack.Section(":warning: Airflow was unreachable; this report uses the last cached data."))
	}

	if len(failures) > 0 {
		blocks = append(blocks, slack.Divider(), slack.Section(formatFailures(failures)))
	}

	if analysis != nil && analysis.Summary != "" {
		blocks = append(blocks, slack.Divider(), slack.Section("*Analysis*\n"+analysis.Summary))
		for _, item := range analysis.ActionItems {
			blocks = append(blocks, slack.Section(fmt.Sprintf("• [%s] *%s*: %s", item.Priority, item.Title, item.Description)))
		}
	}

	fallback := fmt.Sprintf("Airflow health: %d/%d domains healthy, %d failing DAGs", healthy, dashboard.TotalDomains, len(failures))
	return slack.Message{Text: fallback, Blocks: blocks}
}

func formatFailures(failures []llm.DagFailure) string {
	var b strings.Builder
	b.WriteString("*Failing DAGs*\n")

	listed := failures
	if len(listed) > maxListedFailures {
		listed = listed[:maxListedFailures]
	}
	for _, f := range listed {
		fmt.Fprintf(&b, "• `%s` (%s): %d/%d runs failed\n", f.DagID, f.Domain, f.FailedCount, f.TotalRuns)
	}
	if extra := len(failures) - len(listed); extra > 0 {
		fmt.Fprintf(&b, "and %d more\n", extra)
	}
	return b.String()
}
