package sync

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"clearner-backend/internal/config"
	"clearner-backend/internal/logger"
	"clearner-backend/internal/store"
)

// Maintenance is the local half of the synchronization story: it
// reports how much state awaits reconciliation and clears out what
// no worker will ever deliver. The network worker that drains the
// queue against the remote authority lives outside this service.
type Maintenance struct {
	cfg     config.MaintenanceConfig
	store   store.Store
	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
	running bool
}

func NewMaintenance(cfg config.MaintenanceConfig, st store.Store) *Maintenance {
	return &Maintenance{
		cfg:   cfg,
		store: st,
		cron:  cron.New(),
	}
}

func (m *Maintenance) Start() {
	if !m.cfg.Enabled {
		logger.Log.Info("Maintenance is disabled")
		return
	}

	logger.Log.Info("Starting maintenance", zap.String("interval", m.cfg.Interval))

	id, err := m.cron.AddFunc(m.cfg.Interval, func() {
		m.runOnce()
	})
	if err != nil {
		logger.Log.Error("Failed to schedule maintenance job", zap.Error(err))
		return
	}

	m.entryID = id
	m.cron.Start()
}

func (m *Maintenance) Stop() {
	if m.cron != nil {
		m.cron.Stop()
	}
	logger.Log.Info("Stopped maintenance")
}

// Stats exposes the current reconciliation backlog.
func (m *Maintenance) Stats(ctx context.Context) (*store.SyncStats, error) {
	return m.store.GetSyncStats(ctx)
}

func (m *Maintenance) runOnce() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		logger.Log.Info("Maintenance already running, skipping scheduled run")
		return
	}
	m.running = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := m.store.GetSyncStats(ctx)
	if err != nil {
		logger.Log.Error("Failed to collect sync stats", zap.Error(err))
		return
	}
	logger.Log.Info("Sync backlog",
		zap.Int64("pendingOperations", stats.PendingOperations),
		zap.Int64("dirtyUsers", stats.DirtyUsers),
		zap.Int64("dirtyProgress", stats.DirtyProgress),
		zap.Int64("dirtyEvents", stats.DirtyEvents),
		zap.Int64("dirtyPreferences", stats.DirtyPreferences),
		zap.Int64("pendingNotifications", stats.PendingNotifications),
	)

	pruned, err := m.store.PruneSyncEntries(ctx, m.cfg.MaxRetries)
	if err != nil {
		logger.Log.Error("Failed to prune sync queue", zap.Error(err))
	} else if pruned > 0 {
		logger.Log.Warn("Dropped sync entries that exhausted retries",
			zap.Int64("count", pruned),
			zap.Int("maxRetries", m.cfg.MaxRetries),
		)
	}

	retention := m.cfg.GetNotificationRetention()
	if retention > 0 {
		cutoff := time.Now().Add(-retention).UnixMilli()
		removed, err := m.store.PruneNotifications(ctx, cutoff)
		if err != nil {
			logger.Log.Error("Failed to prune notifications", zap.Error(err))
		} else if removed > 0 {
			logger.Log.Info("Pruned delivered notifications", zap.Int64("count", removed))
		}
	}
}
