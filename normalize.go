package firestoremetrics

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// placeholderLabel is what the Monitoring API reports when Firestore could
// not attribute an operation to a concrete label value.
const placeholderLabel = "__unknown__"

// DedupMode selects how duplicate points are suppressed during
// normalization. First occurrence wins in either mode.
type DedupMode int

const (
	// DedupStructural drops a record only when an identical record
	// (labels, interval and count all equal) was already emitted.
	DedupStructural DedupMode = iota
	// DedupByStartTime keeps at most one record per interval.startTime.
	// Distinct label combinations sharing a window collapse to the first.
	DedupByStartTime
)

// Normalize parses a raw timeSeries.list response body and flattens it into
// usage records. A body without a timeSeries field means no data in range
// and yields an empty slice, not an error. Malformed JSON is returned as-is
// to the caller; there is no recovery or retry at this layer.
func Normalize(body []byte, mode DedupMode) ([]TimeIntervalMetric, error) {
	var resp TimeSeriesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "parse time series response")
	}
	return NormalizeResponse(&resp, mode)
}

// NormalizeResponse flattens an already-decoded response. Records come out
// in input traversal order: series order, then point order within a series.
// Zero-count points are dropped, as are label keys whose value is empty or
// the __unknown__ placeholder.
func NormalizeResponse(resp *TimeSeriesResponse, mode DedupMode) ([]TimeIntervalMetric, error) {
	out := make([]TimeIntervalMetric, 0)
	seenStart := make(map[string]bool)
	for _, ts := range resp.TimeSeries {
		for _, p := range ts.Points {
			if p.Value.Int64Value == "0" {
				continue
			}
			count, err := strconv.ParseInt(p.Value.Int64Value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parse point value %q", p.Value.Int64Value)
			}
			if count == 0 {
				continue
			}
			rec := TimeIntervalMetric{
				Labels:   cleanLabels(ts.Metric.Labels),
				Interval: p.Interval,
				Count:    count,
			}
			if isDuplicate(out, seenStart, rec, mode) {
				continue
			}
			seenStart[rec.Interval.StartTime] = true
			out = append(out, rec)
		}
	}
	return out, nil
}

func cleanLabels(labels map[string]string) map[string]string {
	cleaned := make(map[string]string, len(labels))
	for k, v := range labels {
		if v == "" || v == placeholderLabel {
			continue
		}
		cleaned[k] = v
	}
	return cleaned
}

func isDuplicate(out []TimeIntervalMetric, seenStart map[string]bool, rec TimeIntervalMetric, mode DedupMode) bool {
	if mode == DedupByStartTime {
		return seenStart[rec.Interval.StartTime]
	}
	for _, existing := range out {
		if existing.equal(rec) {
			return true
		}
	}
	return false
}
