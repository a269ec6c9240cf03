package influxx

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"facility-compliance-system/shared/config"
)

type Client struct {
	client influxdb2.Client
	org    string
	bucket string
}

// Point is one sample in line-protocol terms.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Time        time.Time
}

// Record is one row returned by QueryRecords.
type Record struct {
	Time   time.Time
	Field  string
	Value  any
	Values map[string]any
}

func New(cfg config.Config) (*Client, error) {
	if cfg.InfluxURL == "" || cfg.InfluxToken == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, errors.New("INFLUX_URL/INFLUX_TOKEN/INFLUX_ORG/INFLUX_BUCKET are required")
	}
	// request timeout is expressed in whole seconds
	secs := (cfg.InfluxTimeoutMS + 999) / 1000
	if secs < 1 {
		secs = 1
	}
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(secs))
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken, opts)
	return &Client{client: client, org: cfg.InfluxOrg, bucket: cfg.InfluxBucket}, nil
}

func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	ok, err := c.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influx not ready")
	}
	return nil
}

func (c *Client) WritePoint(ctx context.Context, measurement string, tags map[string]string, fields map[string]any, ts time.Time) error {
	return c.WritePoints(ctx, Point{Measurement: measurement, Tags: tags, Fields: fields, Time: ts})
}

func (c *Client) WritePoints(ctx context.Context, points ...Point) error {
	if c == nil || c.client == nil {
		return errors.New("influx client not initialized")
	}
	if len(points) == 0 {
		return nil
	}
	converted := make([]*write.Point, 0, len(points))
	for _, p := range points {
		ts := p.Time
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		converted = append(converted, influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, ts))
	}
	return c.client.WriteAPIBlocking(c.org, c.bucket).WritePoint(ctx, converted...)
}

func (c *Client) Query(ctx context.Context, flux string) (*api.QueryTableResult, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("influx client not initialized")
	}
	return c.client.QueryAPI(c.org).Query(ctx, flux)
}

// QueryRecords drains a flux result into plain records.
func (c *Client) QueryRecords(ctx context.Context, flux string) ([]Record, error) {
	res, err := c.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	var out []Record
	for res.Next() {
		rec := res.Record()
		out = append(out, Record{Time: rec.Time(), Field: rec.Field(), Value: rec.Value(), Values: rec.Values()})
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	return out, nil
}

// RangeFlux selects one measurement over the trailing window, newest first.
func RangeFlux(bucket, measurement string, window time.Duration) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == %q)
  |> sort(columns: ["_time"], desc: true)`, bucket, int64(window/time.Second), measurement)
}

func (c *Client) Close() {
	if c == nil || c.client == nil {
		return
	}
	c.client.Close()
}
