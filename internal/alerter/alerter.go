// Package alerter evaluates alert rules against cached cluster state.
package alerter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsops/gpfsmon/internal/cache"
	"github.com/fsops/gpfsmon/internal/gpfs"
	"github.com/fsops/gpfsmon/internal/notify"
	"github.com/fsops/gpfsmon/internal/poolio"
	"github.com/fsops/gpfsmon/internal/store"
	"github.com/fsops/gpfsmon/internal/ytab"
)

// PoolIOSource exposes the current pool throughput snapshot. The poolio
// cache satisfies it; the alerter only looks at the stale flag.
type PoolIOSource interface {
	Current() *poolio.Snapshot
}

// SustainedAlert fires once its condition has held for Duration. Disk
// and node states flap during planned maintenance; the duration keeps a
// reboot from paging anyone.
type SustainedAlert struct {
	Duration time.Duration
	Severity string
	Cooldown time.Duration
}

// SimpleAlert fires as soon as its condition is observed.
type SimpleAlert struct {
	Severity string
	Cooldown time.Duration
}

// AlertConfig holds the per-rule settings. A nil rule is disabled.
type AlertConfig struct {
	DiskDown      *SustainedAlert
	NodeDown      *SustainedAlert
	QuotaExceeded *SimpleAlert
	Deadlock      *SimpleAlert
	PoolIOStale   *SimpleAlert
}

// DefaultAlertConfig returns sensible alert defaults.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		DiskDown: &SustainedAlert{
			Duration: 2 * time.Minute, Severity: "critical", Cooldown: 30 * time.Minute,
		},
		NodeDown: &SustainedAlert{
			Duration: 2 * time.Minute, Severity: "critical", Cooldown: 30 * time.Minute,
		},
		QuotaExceeded: &SimpleAlert{
			Severity: "warning", Cooldown: 6 * time.Hour,
		},
		Deadlock: &SimpleAlert{
			Severity: "critical", Cooldown: 30 * time.Minute,
		},
		PoolIOStale: &SimpleAlert{
			Severity: "warning", Cooldown: 1 * time.Hour,
		},
	}
}

// Alerter evaluates rules and sends notifications.
type Alerter struct {
	cache     *cache.Cache
	store     *store.Store
	source    PoolIOSource
	providers []notify.Provider
	config    AlertConfig
	interval  time.Duration

	// Deduplication: maps alert key → last fired time
	lastFired map[string]time.Time

	// Track sustained conditions: maps alert key → first observed time
	sustained map[string]time.Time
}

// NewAlerter creates a new alerter. source may be nil when pool
// throughput sampling is disabled.
func NewAlerter(c *cache.Cache, s *store.Store, source PoolIOSource, providers []notify.Provider, cfg AlertConfig) *Alerter {
	return &Alerter{
		cache:     c,
		store:     s,
		source:    source,
		providers: providers,
		config:    cfg,
		interval:  30 * time.Second,
		lastFired: make(map[string]time.Time),
		sustained: make(map[string]time.Time),
	}
}

// Run starts the alerter evaluation loop.
func (a *Alerter) Run(ctx context.Context) error {
	slog.Info("alerter started", "interval", a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("alerter stopped")
			return ctx.Err()
		case <-ticker.C:
			a.evaluate(ctx)
		}
	}
}

func (a *Alerter) cleanup(now time.Time) {
	const maxAge = 6 * time.Hour
	for key, t := range a.lastFired {
		if now.Sub(t) > maxAge {
			delete(a.lastFired, key)
		}
	}
	for key, t := range a.sustained {
		if now.Sub(t) > maxAge {
			delete(a.sustained, key)
		}
	}
}

func (a *Alerter) evaluate(ctx context.Context) {
	snap := a.cache.Snapshot()
	now := time.Now()

	a.cleanup(now)

	// Disk availability alerts
	if a.config.DiskDown != nil {
		for fs, disks := range snap.Disks {
			for _, d := range disks {
				key := fmt.Sprintf("disk_down:%s/%s", fs, d.Name)
				a.checkSustained(ctx, now, key, !d.Availability.Healthy(), a.config.DiskDown, notify.Notification{
					Rule:      "disk_down",
					Severity:  a.config.DiskDown.Severity,
					Title:     fmt.Sprintf("Disk Down: %s/%s", fs, d.Name),
					Message:   fmt.Sprintf("[%s] disk %s in pool %s is %s", fs, d.Name, d.Pool, d.Availability),
					Subject:   fmt.Sprintf("%s/%s", fs, d.Name),
					Timestamp: now,
					Metadata: map[string]string{
						"availability": string(d.Availability),
						"pool":         d.Pool,
					},
				})
			}
		}
	}

	// Node down alerts. Arbitrating nodes are forming quorum, not down.
	if a.config.NodeDown != nil {
		for node, st := range snap.States {
			key := "node_down:" + node
			a.checkSustained(ctx, now, key, st.State == "down", a.config.NodeDown, notify.Notification{
				Rule:      "node_down",
				Severity:  a.config.NodeDown.Severity,
				Title:     "Node Down: " + node,
				Message:   fmt.Sprintf("%s daemon state is %s", node, st.State),
				Subject:   node,
				Timestamp: now,
				Metadata:  map[string]string{"state": st.State},
			})
		}
	}

	// Quota alerts: block grace expired, or usage at the hard limit.
	if a.config.QuotaExceeded != nil {
		for fs, entries := range snap.Quotas {
			for _, e := range entries {
				over := e.BlockGrace.State == ytab.GraceExpired ||
					(e.BlockLimitBytes > 0 && e.BlockUsageBytes > 0 && uint64(e.BlockUsageBytes) >= e.BlockLimitBytes)
				if !over {
					continue
				}
				subject := quotaSubject(fs, e)
				a.fire(ctx, now, "quota:"+subject, a.config.QuotaExceeded.Cooldown, notify.Notification{
					Rule:      "quota_exceeded",
					Severity:  a.config.QuotaExceeded.Severity,
					Title:     fmt.Sprintf("Quota Exceeded: %s on %s", e.Name, fs),
					Message:   quotaMessage(fs, e),
					Subject:   subject,
					Timestamp: now,
					Metadata: map[string]string{
						"kind":  string(e.Kind),
						"grace": e.BlockGrace.State.String(),
					},
				})
			}
		}
	}

	// Deadlock alerts
	if a.config.Deadlock != nil && snap.Deadlock.Count() > 0 {
		a.fire(ctx, now, "deadlock", a.config.Deadlock.Cooldown, notify.Notification{
			Rule:      "deadlock",
			Severity:  a.config.Deadlock.Severity,
			Title:     fmt.Sprintf("Deadlock: %d nodes", snap.Deadlock.Count()),
			Message:   "Deadlocked waiters reported on: " + strings.Join(snap.Deadlock.Nodes, ", "),
			Subject:   "cluster",
			Timestamp: now,
		})
	}

	// Pool throughput sampling gone stale
	if a.config.PoolIOStale != nil && a.source != nil {
		if s := a.source.Current(); s != nil && s.Stale {
			a.fire(ctx, now, "poolio_stale", a.config.PoolIOStale.Cooldown, notify.Notification{
				Rule:      "poolio_stale",
				Severity:  a.config.PoolIOStale.Severity,
				Title:     "Pool Throughput Stale",
				Message:   "Pool throughput sampling has not succeeded since " + s.Taken.Format(time.RFC3339),
				Subject:   "poolio",
				Timestamp: now,
			})
		}
	}
}

func quotaSubject(fs string, e gpfs.QuotaEntry) string {
	subject := fmt.Sprintf("%s/%s/%s", fs, e.Kind, e.Name)
	if e.Fileset != "" {
		subject += "@" + e.Fileset
	}
	return subject
}

func quotaMessage(fs string, e gpfs.QuotaEntry) string {
	const gib = 1 << 30
	used := float64(e.BlockUsageBytes) / gib
	limit := float64(e.BlockLimitBytes) / gib
	msg := fmt.Sprintf("[%s] %s %s: %.1f GiB used of %.1f GiB hard limit", fs, e.Kind, e.Name, used, limit)
	if e.BlockGrace.State == ytab.GraceExpired {
		msg += ", grace expired"
	}
	return msg
}

func (a *Alerter) checkSustained(ctx context.Context, now time.Time, key string, active bool, cfg *SustainedAlert, notif notify.Notification) {
	if !active {
		delete(a.sustained, key)
		return
	}
	first, ok := a.sustained[key]
	if !ok {
		a.sustained[key] = now
		return
	}
	if now.Sub(first) >= cfg.Duration {
		a.fire(ctx, now, key, cfg.Cooldown, notif)
	}
}

func (a *Alerter) fire(ctx context.Context, now time.Time, key string, cooldown time.Duration, notif notify.Notification) {
	if last, ok := a.lastFired[key]; ok && now.Sub(last) < cooldown {
		return // still in cooldown
	}
	a.lastFired[key] = now

	// Log to store
	if err := a.store.InsertAlert(now.Unix(), notif.Rule, notif.Subject, notif.Message, notif.Severity); err != nil {
		slog.Error("storing alert", "rule", notif.Rule, "error", err)
	}

	// Send to all providers
	for _, p := range a.providers {
		if err := p.Send(ctx, notif); err != nil {
			slog.Error("sending notification", "provider", p.Name(), "alert", notif.Rule, "error", err)
		}
	}

	slog.Warn("alert fired",
		"rule", notif.Rule,
		"severity", notif.Severity,
		"subject", notif.Subject,
		"title", notif.Title,
	)
}
