package report_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/airflow-health/internal/llm"
	"github.com/jonesrussell/airflow-health/internal/models"
	"github.com/jonesrussell/airflow-health/internal/report"
	"github.com/jonesrussell/airflow-health/internal/slack"
	"github.com/jonesrussell/airflow-health/internal/testhelpers"
)

type fakeHealth struct {
	dashboard *models.DashboardResponse
	details   map[string]*models.DomainDetailResponse
}

func (f *fakeHealth) Dashboard(context.Context, models.TimeRange) (*models.DashboardResponse, error) {
	return f.dashboard, nil
}

func (f *fakeHealth) DomainDetail(_ context.Context, domainTag string, _ models.TimeRange) (*models.DomainDetailResponse, error) {
	detail, ok := f.details[domainTag]
	if !ok {
		return nil, errors.New("detail unavailable")
	}
	return detail, nil
}

type fakeAnalyzer struct {
	enabled  bool
	analysis *models.FailureAnalysis
	got      []llm.DagFailure
}

func (f *fakeAnalyzer) Enabled() bool { return f.enabled }

func (f *fakeAnalyzer) AnalyzeFailures(_ context.Context, failures []llm.DagFailure) (*models.FailureAnalysis, error) {
	f.got = failures
	return f.analysis, nil
}

type fakeNotifier struct {
	enabled bool
	sent    []slack.Message
	err     error
}

func (f *fakeNotifier) Enabled() bool { return f.enabled }

func (f *fakeNotifier) Send(_ context.Context, msg slack.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func testDashboard() *models.DashboardResponse {
	now := time.Now()
	return &models.DashboardResponse{
		TimeRange: models.Range24h,
		Domains: []models.DomainSummary{
			{DomainTag: "finance", TotalDags: 2, FailedCount: 1, HasFailures: true, LastUpdated: now},
			{DomainTag: "etl", TotalDags: 1, LastUpdated: now},
		},
		TotalDomains: 2,
		TotalDags:    3,
		LastUpdated:  now,
	}
}

func newReporter(t *testing.T, health report.Dashboarder, analyzer report.Analyzer, notifier report.Notifier) *report.Reporter {
	t.Helper()
	r, err := report.NewReporter(report.Config{}, health, analyzer, notifier, testhelpers.NewTestMetrics(), testhelpers.NewTestLogger())
	require.NoError(t, err)
	return r
}

func TestReporter_RunSendsFailureReport(t *testing.T) {
	health := &fakeHealth{
		dashboard: testDashboard(),
		details: map[string]*models.DomainDetailResponse{
			"finance": {
				DomainTag: "finance",
				Dags: []models.DagSummary{
					{DagID: "billing", FailedCount: 2, TotalRuns: 5, LastRunState: models.StateFailed},
					{DagID: "ledger", SuccessCount: 3, TotalRuns: 3},
				},
			},
		},
	}
	analyzer := &fakeAnalyzer{
		enabled:  true,
		analysis: &models.FailureAnalysis{Summary: "billing credentials expired"},
	}
	notifier := &fakeNotifier{enabled: true}

	reporter := newReporter(t, health, analyzer, notifier)
	require.NoError(t, reporter.Run(context.Background()))

	// Only the failing DAG reaches the analyzer.
	require.Len(t, analyzer.got, 1)
	assert.Equal(t, "billing", analyzer.got[0].DagID)
	assert.Equal(t, "finance", analyzer.got[0].Domain)

	require.Len(t, notifier.sent, 1)
	msg := notifier.sent[0]
	assert.Contains(t, msg.Text, "1 failing DAGs")
	assert.NotEmpty(t, msg.Blocks)
}

func TestReporter_RunAllClear(t *testing.T) {
	dashboard := testDashboard()
	dashboard.Domains[0].HasFailures = false
	dashboard.Domains[0].FailedCount = 0

	notifier := &fakeNotifier{enabled: true}
	reporter := newReporter(t, &fakeHealth{dashboard: dashboard}, &fakeAnalyzer{}, notifier)

	require.NoError(t, reporter.Run(context.Background()))
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0].Text, "0 failing DAGs")
}

func TestReporter_RunWithoutNotifier(t *testing.T) {
	reporter := newReporter(t, &fakeHealth{dashboard: testDashboard()}, &fakeAnalyzer{}, &fakeNotifier{enabled: false})

	err := reporter.Run(context.Background())
	assert.ErrorIs(t, err, slack.ErrDisabled)
}

func TestReporter_SkipsUnloadableDomains(t *testing.T) {
	// finance detail is missing; the report still goes out without it.
	health := &fakeHealth{dashboard: testDashboard(), details: map[string]*models.DomainDetailResponse{}}
	notifier := &fakeNotifier{enabled: true}

	reporter := newReporter(t, health, &fakeAnalyzer{}, notifier)
	require.NoError(t, reporter.Run(context.Background()))
	require.Len(t, notifier.sent, 1)
}

func TestNewReporter_RejectsBadSchedule(t *testing.T) {
	_, err := report.NewReporter(
		report.Config{MorningSchedule: "not a cron spec"},
		&fakeHealth{}, &fakeAnalyzer{}, &fakeNotifier{},
		testhelpers.NewTestMetrics(), testhelpers.NewTestLogger(),
	)
	assert.Error(t, err)
}
