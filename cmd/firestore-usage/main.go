package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	firestoremetrics "github.com/syou6162/firestore_usage_metrics"
)

func main() {
	var (
		project = flag.String("project", "", "GCP project (default: derived from credentials)")
		metric  = flag.String("metric", firestoremetrics.MetricReadCount, "Firestore metric name")
		creds   = flag.String("creds", "", "Path to service account key file")
		start   = flag.Int64("start", time.Now().Add(time.Duration(-10)*time.Minute).Unix(), "Start time (unix time)")
		end     = flag.Int64("end", time.Now().Unix(), "End time (unix time)")
		useGRPC = flag.Bool("grpc", false, "Query over the gRPC API instead of REST")
		dedup   = flag.String("dedup", "structural", "Dedup mode: structural or starttime")
	)
	flag.Parse()
	ctx := context.Background()

	var mode firestoremetrics.DedupMode
	switch *dedup {
	case "structural":
		mode = firestoremetrics.DedupStructural
	case "starttime":
		mode = firestoremetrics.DedupByStartTime
	default:
		logrus.Fatalf("unknown dedup mode: %s", *dedup)
	}

	records, err := fetch(ctx, *project, *metric, *creds, mode, *useGRPC,
		time.Unix(*start, 0), time.Unix(*end, 0))
	if err != nil {
		logrus.Fatal(err)
	}

	out, err := json.Marshal(records)
	if err != nil {
		logrus.Fatal(err)
	}
	fmt.Println(string(out))
}

func fetch(ctx context.Context, project, metric, creds string, mode firestoremetrics.DedupMode,
	useGRPC bool, start, end time.Time) ([]firestoremetrics.TimeIntervalMetric, error) {
	if useGRPC {
		if project == "" {
			logrus.Fatal("-project is required with -grpc")
		}
		var opts []option.ClientOption
		if creds != "" {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
		q, err := firestoremetrics.NewGRPCQuerier(ctx, project, mode, opts...)
		if err != nil {
			return nil, err
		}
		defer q.Close()
		return q.Query(ctx, metric, start, end)
	}

	opts := []firestoremetrics.Option{firestoremetrics.WithDedupMode(mode)}
	if creds != "" {
		opts = append(opts, firestoremetrics.WithCredentialsFile(creds))
	}
	if project != "" {
		opts = append(opts, firestoremetrics.WithProjectID(project))
	}
	client, err := firestoremetrics.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	result, err := client.Query(ctx, metric, start, end)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}
