package audit

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/OCAP2/mapsync/internal/config"
)

// InfluxMeasurement is the measurement audit points are written to.
const InfluxMeasurement = "marker_mutation"

// InfluxSink writes one point per entry to an InfluxDB bucket.
type InfluxSink struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPIBlocking
}

// NewInfluxSink creates a sink writing to cfg.Bucket.
func NewInfluxSink(cfg config.AuditInfluxConfig) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// Name implements Sink.
func (s *InfluxSink) Name() string {
	return "influx"
}

// Append writes e as a point tagged by op and actor.
func (s *InfluxSink) Append(ctx context.Context, e Entry) error {
	p := influxdb2.NewPoint(
		InfluxMeasurement,
		map[string]string{
			"op":    string(e.Op),
			"actor": e.Actor,
		},
		map[string]interface{}{
			"marker_id":   e.MarkerID,
			"marker_name": e.MarkerName,
			"message":     e.Message(),
		},
		e.Time,
	)
	if err := s.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}
