package firestoremetrics

import (
	"context"
	"fmt"
	"time"

	monitoring "cloud.google.com/go/monitoring/apiv3"
	"github.com/golang/protobuf/ptypes/timestamp"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	monitoringpb "google.golang.org/genproto/googleapis/monitoring/v3"
)

// GRPCQuerier fetches the same usage metrics over the Monitoring gRPC API
// instead of REST. Series are reshaped into the REST encoding and run
// through the same normalizer, so output is identical across transports.
type GRPCQuerier struct {
	projectID string
	dedup     DedupMode
	client    *monitoring.MetricClient
}

func NewGRPCQuerier(ctx context.Context, projectID string, dedup DedupMode, opts ...option.ClientOption) (*GRPCQuerier, error) {
	client, err := monitoring.NewMetricClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create metric client")
	}
	return &GRPCQuerier{projectID: projectID, dedup: dedup, client: client}, nil
}

func (q *GRPCQuerier) Close() error {
	return q.client.Close()
}

// Query lists the given firestore.googleapis.com metric over [start, end)
// and returns the normalized records.
func (q *GRPCQuerier) Query(ctx context.Context, metric string, start, end time.Time) ([]TimeIntervalMetric, error) {
	req := &monitoringpb.ListTimeSeriesRequest{
		Name:   "projects/" + q.projectID,
		Filter: fmt.Sprintf("metric.type = \"firestore.googleapis.com/%s\"", metric),
		Interval: &monitoringpb.TimeInterval{
			StartTime: &timestamp.Timestamp{Seconds: start.Unix()},
			EndTime:   &timestamp.Timestamp{Seconds: end.Unix()},
		},
		View: monitoringpb.ListTimeSeriesRequest_FULL,
	}

	it := q.client.ListTimeSeries(ctx, req)
	var series []*monitoringpb.TimeSeries
	for {
		ts, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "list time series for %s", metric)
		}
		series = append(series, ts)
	}
	return NormalizeResponse(timeSeriesFromProto(series), q.dedup)
}
