package firestoremetrics

import (
	"encoding/json"
	"strconv"
	"time"

	monitoringpb "google.golang.org/genproto/googleapis/monitoring/v3"
)

// TimeSeriesResponse is the body of a Monitoring v3 REST timeSeries.list call.
// The timeSeries field is absent when the filter matches no data.
type TimeSeriesResponse struct {
	TimeSeries []TimeSeries `json:"timeSeries"`
}

type TimeSeries struct {
	Metric MetricDescriptor `json:"metric"`
	Points []Point          `json:"points"`
}

type MetricDescriptor struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels"`
}

type Point struct {
	Interval TimeInterval `json:"interval"`
	Value    PointValue   `json:"value"`
}

// TimeInterval holds the window a point covers. Timestamps stay as the
// RFC 3339 strings the API returned.
type TimeInterval struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// PointValue carries the sample value. The REST encoding transmits int64
// as a decimal string.
type PointValue struct {
	Int64Value string `json:"int64Value"`
}

// TimeIntervalMetric is one normalized usage record. Labels are flattened
// to the top level when marshaled, next to interval and count:
//
//	{"type":"QUERY","interval":{"startTime":...,"endTime":...},"count":48}
type TimeIntervalMetric struct {
	Labels   map[string]string
	Interval TimeInterval
	Count    int64
}

func (m TimeIntervalMetric) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(m.Labels)+2)
	for k, v := range m.Labels {
		out[k] = v
	}
	out["interval"] = m.Interval
	out["count"] = m.Count
	return json.Marshal(out)
}

func (m TimeIntervalMetric) equal(o TimeIntervalMetric) bool {
	if m.Count != o.Count || m.Interval != o.Interval || len(m.Labels) != len(o.Labels) {
		return false
	}
	for k, v := range m.Labels {
		if ov, ok := o.Labels[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// timeSeriesFromProto reshapes series returned by the gRPC API into the REST
// encoding, so both transports feed the same normalizer.
func timeSeriesFromProto(series []*monitoringpb.TimeSeries) *TimeSeriesResponse {
	resp := &TimeSeriesResponse{}
	for _, ts := range series {
		s := TimeSeries{
			Metric: MetricDescriptor{
				Type:   ts.GetMetric().GetType(),
				Labels: ts.GetMetric().GetLabels(),
			},
		}
		for _, p := range ts.GetPoints() {
			s.Points = append(s.Points, Point{
				Interval: TimeInterval{
					StartTime: p.GetInterval().GetStartTime().AsTime().UTC().Format(time.RFC3339),
					EndTime:   p.GetInterval().GetEndTime().AsTime().UTC().Format(time.RFC3339),
				},
				Value: PointValue{
					Int64Value: strconv.FormatInt(p.GetValue().GetInt64Value(), 10),
				},
			})
		}
		resp.TimeSeries = append(resp.TimeSeries, s)
	}
	return resp
}
