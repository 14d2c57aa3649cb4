package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
	"github.com/wardenlabs/feishu-warden/internal/metrics"
)

// staleFactor times the reset window must pass before a violation record
// is swept. Read-time reset keeps queries correct even if the sweep never
// runs; sweeping is storage hygiene only.
const staleFactor = 7

// Janitor runs the background housekeeping loops: expiring mute records
// and sweeping long-stale violation records.
type Janitor struct {
	muteRepo repo.MuteRepo
	ledgerUC *usecase.LedgerUsecase

	resetWindow time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewJanitor creates a new janitor
func NewJanitor(muteRepo repo.MuteRepo, ledgerUC *usecase.LedgerUsecase, resetWindow time.Duration) *Janitor {
	return &Janitor{
		muteRepo:    muteRepo,
		ledgerUC:    ledgerUC,
		resetWindow: resetWindow,
	}
}

// Start starts the janitor loops
func (j *Janitor) Start(ctx context.Context) {
	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(2)
	go j.muteLoop()
	go j.sweepLoop()

	fmt.Println("[Janitor] Started")
}

// Stop stops the janitor
func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
	fmt.Println("[Janitor] Stopped")
}

// muteLoop expires mute records once a minute
func (j *Janitor) muteLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.expireMutes()
		}
	}
}

// sweepLoop prunes stale violation records (runs every 6 hours)
func (j *Janitor) sweepLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.sweepLedger()
		}
	}
}

// expireMutes drops ended mutes and refreshes the active-mute gauge
func (j *Janitor) expireMutes() {
	ctx := context.Background()

	count, err := j.muteRepo.DeleteExpired(ctx, time.Now())
	if err != nil {
		fmt.Printf("[Janitor] Mute expiry error: %v\n", err)
		return
	}
	if count > 0 {
		fmt.Printf("[Janitor] Expired %d mutes\n", count)
	}

	active, err := j.muteRepo.ListActive(ctx, time.Now())
	if err != nil {
		return
	}
	metrics.ActiveMutes.Set(float64(len(active)))
}

// sweepLedger deletes records untouched for several reset windows
func (j *Janitor) sweepLedger() {
	if j.resetWindow <= 0 {
		// Counts never expire, so nothing is ever stale.
		return
	}
	ctx := context.Background()

	count, err := j.ledgerUC.SweepStale(ctx, staleFactor*j.resetWindow)
	if err != nil {
		fmt.Printf("[Janitor] Ledger sweep error: %v\n", err)
		return
	}
	if count > 0 {
		fmt.Printf("[Janitor] Swept %d stale violation records\n", count)
	}
}
