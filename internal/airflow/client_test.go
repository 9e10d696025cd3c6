package airflow_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/airflow-health/internal/airflow"
	"github.com/jonesrussell/airflow-health/internal/models"
	"github.com/jonesrussell/airflow-health/internal/testhelpers"
)

func newClient(t *testing.T, baseURL string) *airflow.Client {
	t.Helper()
	client, err := airflow.NewClient(airflow.Config{
		BaseURL:  baseURL,
		Username: "admin",
		Password: "admin",
		Timeout:  5 * time.Second,
	}, testhelpers.NewTestLogger())
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	log := testhelpers.NewTestLogger()

	_, err := airflow.NewClient(airflow.Config{}, log)
	assert.Error(t, err, "base url is required")

	_, err = airflow.NewClient(airflow.Config{BaseURL: "http://airflow.local"}, log)
	assert.Error(t, err, "credentials are required")

	client, err := airflow.NewClient(airflow.Config{BaseURL: "http://airflow.local/", APIToken: "tok"}, log)
	require.NoError(t, err)
	assert.Equal(t, "http://airflow.local", client.BaseURL(), "trailing slash is trimmed")
}

func TestListDags_FollowsPagination(t *testing.T) {
	const total = 150

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/dags", r.URL.Path)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var dags []map[string]any
		for i := offset; i < offset+limit && i < total; i++ {
			dags = append(dags, map[string]any{
				"dag_id": fmt.Sprintf("dag-%03d", i),
				"tags":   []string{"domain:etl"},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dags":          dags,
			"total_entries": total,
		})
	}))
	defer server.Close()

	dags, err := newClient(t, server.URL).ListDags(context.Background())
	require.NoError(t, err)
	assert.Len(t, dags, total)
	assert.Equal(t, "dag-000", dags[0].ID)
	assert.Equal(t, "dag-149", dags[total-1].ID)
}

func TestListDags_StopsOnEmptyPageDespiteInflatedTotal(t *testing.T) {
	const total = 100

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var dags []map[string]any
		for i := offset; i < offset+limit && i < total; i++ {
			dags = append(dags, map[string]any{"dag_id": fmt.Sprintf("dag-%03d", i)})
		}
		// Claims far more entries than it will ever serve.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"dags":          dags,
			"total_entries": 10000,
		})
	}))
	defer server.Close()

	dags, err := newClient(t, server.URL).ListDags(context.Background())
	require.NoError(t, err)
	assert.Len(t, dags, total)
	assert.Equal(t, int32(2), requests.Load(), "must stop on the first empty page")
}

func TestListDags_NormalizesTagShapes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Airflow 2.x emits tag objects; older payloads use bare strings.
		_, _ = w.Write([]byte(`{
			"dags": [{
				"dag_id": "mixed",
				"tags": [{"name": "domain:finance"}, "daily", {"name": "daily"}, {"name": ""}]
			}],
			"total_entries": 1
		}`))
	}))
	defer server.Close()

	dags, err := newClient(t, server.URL).ListDags(context.Background())
	require.NoError(t, err)
	require.Len(t, dags, 1)
	assert.Equal(t, []string{"domain:finance", "daily"}, dags[0].Tags)
}

func TestListRuns_BuildsDeepLinksAndStates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/dags/billing/dagRuns", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("start_date_gte"))
		assert.Equal(t, "-execution_date", r.URL.Query().Get("order_by"))

		_, _ = w.Write([]byte(`{
			"dag_runs": [
				{"dag_run_id": "run-1", "execution_date": "2026-08-29T10:00:00Z", "state": "success"},
				{"dag_run_id": "run-2", "execution_date": "2026-08-29T09:00:00Z", "state": "upstream_failed"}
			],
			"total_entries": 2
		}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	runs, err := client.ListRuns(context.Background(), "billing", models.Range24h, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, models.StateSuccess, runs[0].State)
	assert.Equal(t, server.URL+"/dags/billing/grid?dag_run_id=run-1", runs[0].AirflowURL)
	assert.Equal(t, models.StateUnknown, runs[1].State, "unrecognized state buckets as unknown")
}

func TestListRuns_ServerErrorIsUpstreamUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newClient(t, server.URL).ListRuns(context.Background(), "billing", models.Range24h, 10)
	require.ErrorIs(t, err, airflow.ErrUpstreamUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "5xx responses are not retried")
}

func TestListRunsForDags_ToleratesPartialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/dags/broken/dagRuns" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{
			"dag_runs": [{"dag_run_id": "r1", "execution_date": "2026-08-29T10:00:00Z", "state": "success"}],
			"total_entries": 1
		}`))
	}))
	defer server.Close()

	client := newClient(t, server.URL)
	results := client.ListRunsForDags(context.Background(), []string{"ok-1", "broken", "ok-2"}, models.Range24h)

	require.Len(t, results, 3, "every dag id appears in the result")
	assert.Len(t, results["ok-1"], 1)
	assert.Len(t, results["ok-2"], 1)
	assert.Empty(t, results["broken"], "failed dag contributes empty runs")
}

func TestClient_SendsBearerTokenWhenConfigured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"dags": [], "total_entries": 0}`))
	}))
	defer server.Close()

	client, err := airflow.NewClient(airflow.Config{BaseURL: server.URL, APIToken: "secret"}, testhelpers.NewTestLogger())
	require.NoError(t, err)

	_, err = client.ListDags(context.Background())
	require.NoError(t, err)
}
