package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quantfold/mmsim/internal/domain"
)

// statusTTL bounds how long stale run state survives in the cache.
const statusTTL = 24 * time.Hour

// Key layout, per run.
const (
	tickKeyFmt    = "mmsim:run:%s:tick"
	reportKeyFmt  = "mmsim:run:%s:report"
	tickChannel   = "mmsim:ticks"
	reportChannel = "mmsim:reports"
)

// StatusPublisher implements domain.StatusPublisher on Redis. Each tick
// status overwrites the previous one and is fanned out on a pub/sub
// channel for live consumers.
type StatusPublisher struct {
	rdb *redis.Client
}

// NewStatusPublisher creates a StatusPublisher backed by the given Client.
func NewStatusPublisher(c *Client) *StatusPublisher {
	return &StatusPublisher{rdb: c.Underlying()}
}

// PublishTick stores the completed tick's status and fans it out.
func (p *StatusPublisher) PublishTick(ctx context.Context, status domain.TickStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("redis: marshal tick status: %w", err)
	}

	key := fmt.Sprintf(tickKeyFmt, status.RunID)
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, key, data, statusTTL)
	pipe.Publish(ctx, tickChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish tick: %w", err)
	}
	return nil
}

// PublishReport caches the finalized report and fans it out.
func (p *StatusPublisher) PublishReport(ctx context.Context, report domain.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: marshal report: %w", err)
	}

	key := fmt.Sprintf(reportKeyFmt, report.RunID)
	pipe := p.rdb.Pipeline()
	pipe.Set(ctx, key, data, statusTTL)
	pipe.Publish(ctx, reportChannel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish report: %w", err)
	}
	return nil
}

// LatestTick reads back the most recent published tick for a run.
func (p *StatusPublisher) LatestTick(ctx context.Context, runID string) (domain.TickStatus, error) {
	data, err := p.rdb.Get(ctx, fmt.Sprintf(tickKeyFmt, runID)).Bytes()
	if err == redis.Nil {
		return domain.TickStatus{}, fmt.Errorf("redis: tick status %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.TickStatus{}, fmt.Errorf("redis: get tick status: %w", err)
	}
	var status domain.TickStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return domain.TickStatus{}, fmt.Errorf("redis: decode tick status: %w", err)
	}
	return status, nil
}

// LatestReport reads back the cached report for a run.
func (p *StatusPublisher) LatestReport(ctx context.Context, runID string) (domain.RunReport, error) {
	data, err := p.rdb.Get(ctx, fmt.Sprintf(reportKeyFmt, runID)).Bytes()
	if err == redis.Nil {
		return domain.RunReport{}, fmt.Errorf("redis: report %s: %w", runID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.RunReport{}, fmt.Errorf("redis: get report: %w", err)
	}
	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.RunReport{}, fmt.Errorf("redis: decode report: %w", err)
	}
	return report, nil
}
