package agentclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oneone404/One-Shield-sub000/internal/hostmetrics"
	"github.com/oneone404/One-Shield-sub000/pkg/agentapi"
)

// collectMetrics is swapped out in tests.
var collectMetrics = hostmetrics.Collect

// Consecutive failures walk this schedule and stay at the last step.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

func backoff(failures int) time.Duration {
	if failures > len(backoffSchedule) {
		failures = len(backoffSchedule)
	}
	return backoffSchedule[failures-1]
}

// HeartbeatLoop reports to the server until ctx is cancelled. The first
// heartbeat fires immediately. A 401 triggers one re-enrollment with the
// configured credentials; any other failure backs off and retries.
func (c *Client) HeartbeatLoop(ctx context.Context) error {
	failures := 0
	for {
		err := c.heartbeatOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, ErrUnauthorized):
			c.logger.Warn().Msg("Agent token rejected, re-enrolling")
			if rerr := c.reenroll(ctx); rerr != nil {
				failures++
				c.logger.Error().Err(rerr).Msg("Re-enrollment failed")
			} else {
				// Heartbeat again right away with the fresh token.
				failures = 0
				continue
			}
		default:
			failures++
			c.logger.Warn().Err(err).Int("failures", failures).Msg("Heartbeat failed")
		}

		delay := c.interval
		if failures > 0 {
			delay = backoff(failures)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) heartbeatOnce(ctx context.Context) error {
	snap, err := collectMetrics(ctx)
	if err != nil {
		return fmt.Errorf("collect metrics: %w", err)
	}

	c.mu.Lock()
	token := c.state.AgentToken
	known := c.policyVersion
	c.mu.Unlock()

	req := agentapi.HeartbeatRequest{
		CPUPercent:    snap.CPUPercent,
		MemoryPercent: snap.MemoryPercent,
		DiskPercent:   snap.DiskPercent,
		ProcessCount:  snap.ProcessCount,
		AgentVersion:  c.cfg.Version,
		PolicyVersion: known,
	}
	var resp agentapi.HeartbeatResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/agent/heartbeat", token, req, &resp); err != nil {
		return err
	}
	c.recordSample(snap)

	if resp.Command != nil {
		// This build does not execute commands; delivery is at-least-once,
		// so an unacted command simply shows up again later.
		c.logger.Info().
			Str("type", resp.Command.Type).
			Int("version", resp.Command.Version).
			Msg("Command received")
	}
	if resp.HasPolicyUpdate {
		if err := c.fetchPolicy(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Policy fetch failed")
		}
	}
	return nil
}

// fetchPolicy pulls the current policy and remembers its version, which the
// next heartbeat echoes back as acknowledgement.
func (c *Client) fetchPolicy(ctx context.Context) error {
	var resp agentapi.PolicyResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/agent/policy", c.token(), nil, &resp); err != nil {
		return err
	}
	c.mu.Lock()
	c.policyVersion = resp.Version
	c.mu.Unlock()
	c.logger.Info().Str("policy", resp.Name).Int("version", resp.Version).Msg("Policy updated")
	return nil
}

// baselineStats accumulates per-heartbeat samples between syncs. The three
// tracked dimensions are cpu, memory, and disk utilisation.
type baselineStats struct {
	count   int
	sum     [3]float64
	sumSq   [3]float64
	version int
}

func (c *Client) recordSample(snap hostmetrics.Snapshot) {
	disk := 0.0
	if snap.DiskPercent != nil {
		disk = *snap.DiskPercent
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.count++
	for i, v := range [3]float64{snap.CPUPercent, snap.MemoryPercent, disk} {
		c.stats.sum[i] += v
		c.stats.sumSq[i] += v * v
	}
}

// SyncLoop periodically uploads a behavioral baseline computed from the
// heartbeat samples gathered since the last sync.
func (c *Client) SyncLoop(ctx context.Context) error {
	ticker := time.NewTicker(baselineEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.syncBaseline(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn().Err(err).Msg("Baseline sync failed")
			}
		}
	}
}

func (c *Client) syncBaseline(ctx context.Context) error {
	c.mu.Lock()
	if c.stats.count == 0 {
		c.mu.Unlock()
		return nil
	}
	n := float64(c.stats.count)
	means := make([]float64, 3)
	variances := make([]float64, 3)
	for i := range means {
		mean := c.stats.sum[i] / n
		means[i] = mean
		variance := c.stats.sumSq[i]/n - mean*mean
		if variance < 0 {
			// Floating-point cancellation can dip just below zero.
			variance = 0
		}
		variances[i] = variance
	}
	count := c.stats.count
	version := c.stats.version + 1
	token := c.state.AgentToken
	c.mu.Unlock()

	req := agentapi.BaselineSyncRequest{
		BaselineHash:   baselineHash(means, variances, count),
		MeanValues:     means,
		VarianceValues: variances,
		SampleCount:    count,
		Version:        version,
	}
	var resp agentapi.BaselineSyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/agent/sync/baseline", token, req, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.stats = baselineStats{version: resp.Version}
	c.mu.Unlock()
	c.logger.Debug().Int("version", resp.Version).Int("samples", count).Msg("Baseline synced")
	return nil
}

func baselineHash(means, variances []float64, count int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%v|%v|%d", means, variances, count)
	return hex.EncodeToString(h.Sum(nil))
}
