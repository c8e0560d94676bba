package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/strata/internal/migrate"
	"github.com/nerrad567/strata/internal/monitor"
)

// slowQueryEvent is the payload published for a slow operation.
type slowQueryEvent struct {
	Operation  string    `json:"operation"`
	DurationMS float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
	Success    bool      `json:"success"`
}

// migrationEvent is the payload published on schema changes.
type migrationEvent struct {
	Version    int       `json:"version"`
	Name       string    `json:"name"`
	Checksum   string    `json:"checksum"`
	AppliedAt  time.Time `json:"applied_at"`
	DurationMS int64     `json:"duration_ms"`
}

// PublishSlowQuery publishes a slow-query alert. Wire this to the
// monitor's slow-query callback:
//
//	mon.SetOnSlow(func(s monitor.Sample) { publisher.PublishSlowQuery(s) })
//
// Alerts are not retained; subscribers only care about live ones.
func (p *Publisher) PublishSlowQuery(sample monitor.Sample) error {
	payload, err := json.Marshal(slowQueryEvent{
		Operation:  sample.Operation,
		DurationMS: float64(sample.Duration) / float64(time.Millisecond),
		Timestamp:  sample.Timestamp,
		Success:    sample.Success,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding slow-query event: %w", ErrPublishFailed, err)
	}

	topic := Topics{}.SlowQuery(sample.Operation)
	// #nosec G115 -- QoS validated to 0..2 by config
	return p.Publish(topic, payload, byte(p.cfg.QoS), false)
}

// PublishMigrationApplied publishes an applied-migration event. Wire this
// to the store's migration hooks.
func (p *Publisher) PublishMigrationApplied(record migrate.Record) error {
	return p.publishMigration(Topics{}.MigrationApplied(), record)
}

// PublishMigrationRolledBack publishes a rolled-back-migration event.
func (p *Publisher) PublishMigrationRolledBack(record migrate.Record) error {
	return p.publishMigration(Topics{}.MigrationRolledBack(), record)
}

func (p *Publisher) publishMigration(topic string, record migrate.Record) error {
	payload, err := json.Marshal(migrationEvent{
		Version:    record.Version,
		Name:       record.Name,
		Checksum:   record.Checksum,
		AppliedAt:  record.AppliedAt,
		DurationMS: record.DurationMS,
	})
	if err != nil {
		return fmt.Errorf("%w: encoding migration event: %w", ErrPublishFailed, err)
	}

	// #nosec G115 -- QoS validated to 0..2 by config
	return p.Publish(topic, payload, byte(p.cfg.QoS), false)
}
