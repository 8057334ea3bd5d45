package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/creditstudio/CreditStudio/internal/config"
	"github.com/creditstudio/CreditStudio/internal/models"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultSweepBatchSize  = 500
	maxSweepBatchesPerRun  = 200
	abandonedMessageReason = "abandoned: step did not finish"
)

// StaleMessageSweeper fails user messages left pending or processing by a step that never
// finished, e.g. after a crash during the provider call. Charges are unaffected: a step that
// did not commit never deducted.
type StaleMessageSweeper struct {
	db         *gorm.DB
	interval   time.Duration
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
}

// NewStaleMessageSweeper returns nil when cfg.SweepInterval is negative.
func NewStaleMessageSweeper(db *gorm.DB, cfg config.WorkflowConfig) *StaleMessageSweeper {
	cfg.ApplyDefaults()
	if db == nil || cfg.SweepInterval < 0 {
		return nil
	}
	return &StaleMessageSweeper{
		db:         db,
		interval:   cfg.SweepInterval,
		staleAfter: cfg.ProviderTimeout + cfg.LockExpiry,
		batchSize:  defaultSweepBatchSize,
		now:        time.Now,
	}
}

// Start runs a sweep immediately and then every interval until ctx is done.
func (s *StaleMessageSweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	sweep := func() {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("stale message sweeper: sweep failed")
		}
	}
	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(fmt.Sprintf("@every %s", s.interval), sweep); err != nil {
		log.WithError(err).Error("stale message sweeper: schedule")
		return
	}
	go sweep()
	scheduler.Start()
	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
	log.Infof("stale message sweeper started (interval=%s, stale_after=%s)", s.interval, s.staleAfter)
}

// SweepOnce fails every stale message and returns how many were updated.
func (s *StaleMessageSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	var total int64
	for i := 0; i < maxSweepBatchesPerRun; i++ {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := s.sweepBatch(ctx, cutoff)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		log.Infof("stale message sweeper: failed %d messages (cutoff=%s)", total, cutoff.Format(time.RFC3339))
	}
	return total, nil
}

// sweepBatch selects ids first; MySQL rejects LIMIT inside an IN subquery.
func (s *StaleMessageSweeper) sweepBatch(ctx context.Context, cutoff time.Time) (int64, error) {
	stale := []models.MessageStatus{models.MessageStatusPending, models.MessageStatusProcessing}
	var ids []uint64
	errIDs := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("status IN ? AND updated_at < ?", stale, cutoff).
		Order("id ASC").
		Limit(s.batchSize).
		Pluck("id", &ids).Error
	if errIDs != nil || len(ids) == 0 {
		return 0, errIDs
	}
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id IN ? AND status IN ?", ids, stale).
		Updates(map[string]any{"status": models.MessageStatusFailed, "error": abandonedMessageReason})
	return res.RowsAffected, res.Error
}
