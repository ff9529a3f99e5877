package firestoremetrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithProjectID("my-project"),
		WithTokenProvider(StaticTokenProvider("test-token")),
		WithEndpoint(srv.URL),
	}, opts...)
	client, err := NewClient(context.Background(), opts...)
	require.NoError(t, err)
	return client
}

func TestClientQuery(t *testing.T) {
	var gotReq *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		fmt.Fprint(w, `{
			"timeSeries": [{
				"metric": {"type": "firestore.googleapis.com/read_count", "labels": {"type": "QUERY"}},
				"points": [{
					"interval": {"startTime": "2023-07-22T21:37:00Z", "endTime": "2023-07-22T21:38:00Z"},
					"value": {"int64Value": "48"}
				}]
			}]
		}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	start := time.Date(2023, 7, 22, 21, 0, 0, 0, time.UTC)
	end := time.Date(2023, 7, 22, 22, 0, 0, 0, time.UTC)

	result, err := client.ReadCount(context.Background(), start, end)
	require.NoError(t, err)

	require.NotNil(t, gotReq)
	assert.Equal(t, "/projects/my-project/timeSeries", gotReq.URL.Path)
	assert.Equal(t, "Bearer test-token", gotReq.Header.Get("Authorization"))
	query := gotReq.URL.Query()
	assert.Equal(t, `metric.type = "firestore.googleapis.com/read_count"`, query.Get("filter"))
	assert.Equal(t, "2023-07-22T21:00:00Z", query.Get("interval.startTime"))
	assert.Equal(t, "2023-07-22T22:00:00Z", query.Get("interval.endTime"))

	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, "OK", result.StatusText)
	require.Len(t, result.Data, 1)
	assert.Equal(t, int64(48), result.Data[0].Count)
	assert.Equal(t, "QUERY", result.Data[0].Labels["type"])
}

func TestClientMetricNames(t *testing.T) {
	var filters []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filters = append(filters, r.URL.Query().Get("filter"))
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)
	end := time.Now()

	calls := []func(context.Context, time.Time, time.Time) (*QueryResult, error){
		client.ReadCount,
		client.WriteCount,
		client.DeleteCount,
		client.SnapshotListeners,
		client.ActiveConnections,
		client.TTLDeletionCount,
		client.RuleEvaluationCount,
		client.APIRequestCount,
	}
	for _, call := range calls {
		result, err := call(ctx, start, end)
		require.NoError(t, err)
		assert.Empty(t, result.Data)
	}

	want := []string{
		`metric.type = "firestore.googleapis.com/read_count"`,
		`metric.type = "firestore.googleapis.com/write_count"`,
		`metric.type = "firestore.googleapis.com/delete_count"`,
		`metric.type = "firestore.googleapis.com/network/snapshot_listeners"`,
		`metric.type = "firestore.googleapis.com/network/active_connections"`,
		`metric.type = "firestore.googleapis.com/document/ttl_deletion_count"`,
		`metric.type = "firestore.googleapis.com/rules/evaluation_count"`,
		`metric.type = "firestore.googleapis.com/api/request_count"`,
	}
	assert.Equal(t, want, filters)
}

func TestClientNon200CarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error": {"message": "billing is not enabled"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.ReadCount(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)

	apiErr, ok := err.(*googleapi.Error)
	require.True(t, ok, "expected *googleapi.Error, got %T", err)
	assert.Equal(t, http.StatusForbidden, apiErr.Code)
	assert.Contains(t, apiErr.Body, "billing is not enabled")
}

func TestClientDedupModeApplied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"timeSeries": [
				{
					"metric": {"labels": {"type": "QUERY"}},
					"points": [{"interval": {"startTime": "2023-07-22T21:37:00Z", "endTime": "2023-07-22T21:38:00Z"}, "value": {"int64Value": "4"}}]
				},
				{
					"metric": {"labels": {"type": "LOOKUP"}},
					"points": [{"interval": {"startTime": "2023-07-22T21:37:00Z", "endTime": "2023-07-22T21:38:00Z"}, "value": {"int64Value": "6"}}]
				}
			]
		}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv, WithDedupMode(DedupByStartTime))
	result, err := client.ReadCount(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "QUERY", result.Data[0].Labels["type"])
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background())
	assert.Error(t, err)
}

func TestNewClientRequiresProjectID(t *testing.T) {
	_, err := NewClient(context.Background(), WithTokenProvider(StaticTokenProvider("tok")))
	assert.Error(t, err)
}

func TestNewClientDerivesProjectFromKey(t *testing.T) {
	client, err := NewClient(context.Background(), WithCredentialsJSON(fakeServiceAccountJSON(t, "derived-project")))
	require.NoError(t, err)
	assert.Equal(t, "derived-project", client.projectID)
}

func TestRefreshTokenIsSafeOnStaticProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	client.RefreshToken()
	_, err := client.ReadCount(context.Background(), time.Now().Add(-time.Hour), time.Now())
	assert.NoError(t, err)
}
