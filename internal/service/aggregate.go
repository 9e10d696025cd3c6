// Package service aggregates Airflow DAG runs into domain health
// summaries and orchestrates the cache-then-fetch-then-fallback flow
// behind the dashboard API.
package service

import (
	"sort"
	"strings"
	"time"

	"github.com/jonesrussell/airflow-health/internal/models"
)

// DomainForDag returns the domain a DAG belongs to: the first tag
// carrying the "domain:" prefix, with the prefix stripped. DAGs without
// a domain tag land in the reserved "untagged" group. Tag order is as
// returned by Airflow, which makes the assignment deterministic.
func DomainForDag(dag models.Dag) string {
	for _, tag := range dag.Tags {
		if strings.HasPrefix(tag, models.DomainTagPrefix) {
			name := strings.TrimPrefix(tag, models.DomainTagPrefix)
			if name != "" {
				return name
			}
		}
	}
	return models.UntaggedDomain
}

// GroupByDomain partitions DAGs into their domains.
func GroupByDomain(dags []models.Dag) map[string][]models.Dag {
	groups := make(map[string][]models.Dag)
	for _, dag := range dags {
		domain := DomainForDag(dag)
		groups[domain] = append(groups[domain], dag)
	}
	return groups
}

// HealthScore is the success percentage over all runs in the window.
// Running and queued runs count against the score until they finish; a
// domain with no runs scores a clean 100.
func HealthScore(successCount, totalRuns int) float64 {
	if totalRuns == 0 {
		return 100.0
	}
	return float64(successCount) / float64(totalRuns) * 100.0
}

type runCounts struct {
	total   int
	failed  int
	success int
	running int
	queued  int
	unknown int
}

func countRuns(runs []models.DagRun) runCounts {
	var c runCounts
	for _, run := range runs {
		c.total++
		switch run.State {
		case models.StateFailed:
			c.failed++
		case models.StateSuccess:
			c.success++
		case models.StateRunning:
			c.running++
		case models.StateQueued:
			c.queued++
		default:
			c.unknown++
		}
	}
	return c
}

// BuildDomainSummary aggregates the runs of every DAG in a domain.
func BuildDomainSummary(domainTag string, dags []models.Dag, runsByDag map[string][]models.DagRun, now time.Time) models.DomainSummary {
	var c runCounts
	for _, dag := range dags {
		dc := countRuns(runsByDag[dag.ID])
		c.total += dc.total
		c.failed += dc.failed
		c.success += dc.success
		c.running += dc.running
		c.queued += dc.queued
		c.unknown += dc.unknown
	}

	return models.DomainSummary{
		DomainTag:    domainTag,
		TotalDags:    len(dags),
		TotalRuns:    c.total,
		FailedCount:  c.failed,
		SuccessCount: c.success,
		RunningCount: c.running,
		QueuedCount:  c.queued,
		UnknownCount: c.unknown,
		HasFailures:  c.failed > 0,
		HealthScore:  HealthScore(c.success, c.total),
		LastUpdated:  now,
	}
}

// BuildDagSummary aggregates one DAG's runs, including its most recent
// run by execution date.
func BuildDagSummary(dag models.Dag, runs []models.DagRun, airflowBaseURL string) models.DagSummary {
	c := countRuns(runs)

	summary := models.DagSummary{
		DagID:        dag.ID,
		DisplayName:  dag.DisplayName,
		Description:  dag.Description,
		IsPaused:     dag.IsPaused,
		Tags:         dag.Tags,
		TotalRuns:    c.total,
		FailedCount:  c.failed,
		SuccessCount: c.success,
		RunningCount: c.running,
		QueuedCount:  c.queued,
		UnknownCount: c.unknown,
	}
	if airflowBaseURL != "" {
		summary.AirflowURL = airflowBaseURL + "/dags/" + dag.ID + "/grid"
	}

	var latest *models.DagRun
	for i := range runs {
		if latest == nil || runs[i].ExecutionDate.After(latest.ExecutionDate) {
			latest = &runs[i]
		}
	}
	if latest != nil {
		summary.LastRunState = latest.State
		date := latest.ExecutionDate
		summary.LastRunDate = &date
	}

	return summary
}

// BuildDashboard assembles the full dashboard for one time range.
// Domains with failures sort first so problems surface at the top, ties
// broken by name.
func BuildDashboard(timeRange models.TimeRange, dags []models.Dag, runsByDag map[string][]models.DagRun, now time.Time) *models.DashboardResponse {
	groups := GroupByDomain(dags)

	domains := make([]models.DomainSummary, 0, len(groups))
	for tag, domainDags := range groups {
		domains = append(domains, BuildDomainSummary(tag, domainDags, runsByDag, now))
	}

	sort.Slice(domains, func(i, j int) bool {
		if domains[i].HasFailures != domains[j].HasFailures {
			return domains[i].HasFailures
		}
		return domains[i].DomainTag < domains[j].DomainTag
	})

	return &models.DashboardResponse{
		TimeRange:    timeRange,
		Domains:      domains,
		TotalDomains: len(domains),
		TotalDags:    len(dags),
		LastUpdated:  now,
	}
}

// BuildDomainDetail assembles the drill-down view for one domain. DAGs
// with failures sort first, ties broken by DAG ID.
func BuildDomainDetail(domainTag string, timeRange models.TimeRange, domainDags []models.Dag, runsByDag map[string][]models.DagRun, airflowBaseURL string, now time.Time) *models.DomainDetailResponse {
	dagSummaries := make([]models.DagSummary, 0, len(domainDags))
	for _, dag := range domainDags {
		dagSummaries = append(dagSummaries, BuildDagSummary(dag, runsByDag[dag.ID], airflowBaseURL))
	}

	sort.Slice(dagSummaries, func(i, j int) bool {
		iFailed := dagSummaries[i].FailedCount > 0
		jFailed := dagSummaries[j].FailedCount > 0
		if iFailed != jFailed {
			return iFailed
		}
		return dagSummaries[i].DagID < dagSummaries[j].DagID
	})

	return &models.DomainDetailResponse{
		DomainTag:   domainTag,
		TimeRange:   timeRange,
		Summary:     BuildDomainSummary(domainTag, domainDags, runsByDag, now),
		Dags:        dagSummaries,
		Stale:       false,
		LastUpdated: now,
	}
}
