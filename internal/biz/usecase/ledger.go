package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wardenlabs/feishu-warden/internal/biz/domain"
	"github.com/wardenlabs/feishu-warden/internal/biz/repo"
)

// OffenseStatus is the ledger's answer to a query
type OffenseStatus struct {
	Count   uint
	ResetAt time.Time               // zero when no pending expiry
	Record  *domain.ViolationRecord // nil when the user has no record yet
}

// LedgerUsecase owns all reads and writes of violation records. Operations
// on the same user x conversation key are serialized by a per-key mutex so
// concurrent detections cannot double-increment or lose an update; other
// keys proceed independently. The durable store is the source of truth and
// the in-memory cache is refreshed on every successful write.
type LedgerUsecase struct {
	store repo.ViolationRepo
	locks keyedMutex
	cache recordCache
}

// NewLedgerUsecase creates a new ledger usecase
func NewLedgerUsecase(store repo.ViolationRepo) *LedgerUsecase {
	return &LedgerUsecase{
		store: store,
		locks: keyedMutex{locks: make(map[string]*sync.Mutex)},
		cache: recordCache{records: make(map[string]*domain.ViolationRecord)},
	}
}

// RecordViolation applies one detection event and returns the new count.
// The stale counter is reset first when the inactivity window elapsed, then
// the count advances by exactly one. On store failure the count is reported
// as 0 with the error, and the caller skips escalation for this message.
func (uc *LedgerUsecase) RecordViolation(ctx context.Context, userID, conversationID string, trigger domain.Trigger, resetWindow time.Duration) (uint, error) {
	unlock := uc.locks.lock(domain.RecordKey(userID, conversationID))
	defer unlock()

	rec, err := uc.load(ctx, userID, conversationID)
	if err != nil {
		return 0, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		rec = &domain.ViolationRecord{UserID: userID, ConversationID: conversationID}
	}

	now := time.Now()
	rec.ResetIfExpired(now, resetWindow)
	rec.RecordTrigger(now, trigger)

	if err := uc.store.Save(ctx, rec); err != nil {
		uc.cache.invalidate(rec.Key())
		return 0, fmt.Errorf("save record: %w", err)
	}
	uc.cache.put(rec)
	return rec.Count, nil
}

// RecordAction stores the punishment outcome of the latest trigger. It is
// the second write of a detection event; the count does not move here.
func (uc *LedgerUsecase) RecordAction(ctx context.Context, userID, conversationID string, action domain.ActionKind) error {
	unlock := uc.locks.lock(domain.RecordKey(userID, conversationID))
	defer unlock()

	rec, err := uc.load(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return nil
	}

	rec.RecordAction(action)
	if err := uc.store.Save(ctx, rec); err != nil {
		uc.cache.invalidate(rec.Key())
		return fmt.Errorf("save record: %w", err)
	}
	uc.cache.put(rec)
	return nil
}

// Query returns the current offense status, applying the read-time reset.
// A user without a record gets an empty status; the durable row appears
// only once a violation is recorded.
func (uc *LedgerUsecase) Query(ctx context.Context, userID, conversationID string, resetWindow time.Duration) (*OffenseStatus, error) {
	unlock := uc.locks.lock(domain.RecordKey(userID, conversationID))
	defer unlock()

	rec, err := uc.load(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if rec == nil {
		return &OffenseStatus{}, nil
	}

	if rec.ResetIfExpired(time.Now(), resetWindow) {
		if err := uc.store.Save(ctx, rec); err != nil {
			uc.cache.invalidate(rec.Key())
			return nil, fmt.Errorf("save record: %w", err)
		}
		uc.cache.put(rec)
	}

	return &OffenseStatus{
		Count:   rec.Count,
		ResetAt: rec.ResetETA(resetWindow),
		Record:  rec.Clone(),
	}, nil
}

// Reset force-clears one user's record, reporting whether one existed
func (uc *LedgerUsecase) Reset(ctx context.Context, userID, conversationID string) (bool, error) {
	unlock := uc.locks.lock(domain.RecordKey(userID, conversationID))
	defer unlock()

	existed, err := uc.store.Delete(ctx, userID, conversationID)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	uc.cache.invalidate(domain.RecordKey(userID, conversationID))
	return existed, nil
}

// ListActive returns the users whose counts are still inside the reset
// window. An empty conversationID scans every conversation.
func (uc *LedgerUsecase) ListActive(ctx context.Context, conversationID string, resetWindow time.Duration) ([]string, error) {
	var (
		records []*domain.ViolationRecord
		err     error
	)
	if conversationID == "" {
		records, err = uc.store.ListAll(ctx)
	} else {
		records, err = uc.store.ListByConversation(ctx, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	now := time.Now()
	var users []string
	for _, rec := range records {
		if rec.Count == 0 || rec.Expired(now, resetWindow) {
			continue
		}
		users = append(users, rec.UserID)
	}
	return users, nil
}

// ClearAll drops every record, returning how many were cleared
func (uc *LedgerUsecase) ClearAll(ctx context.Context) (int64, error) {
	cleared, err := uc.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete all records: %w", err)
	}
	uc.cache.purge()
	return cleared, nil
}

// SweepStale deletes records whose newest activity is older than the given
// age, returning how many were dropped. Housekeeping only: read-time reset
// already neutralizes stale counts, so correctness never depends on this.
func (uc *LedgerUsecase) SweepStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	records, err := uc.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}

	cutoff := time.Now().Add(-olderThan).UnixMilli()
	var swept int64
	for _, rec := range records {
		if lastActivity(rec) >= cutoff {
			continue
		}
		unlock := uc.locks.lock(rec.Key())
		_, err := uc.store.Delete(ctx, rec.UserID, rec.ConversationID)
		uc.cache.invalidate(rec.Key())
		unlock()
		if err != nil {
			return swept, fmt.Errorf("delete record: %w", err)
		}
		swept++
	}
	return swept, nil
}

// lastActivity returns the record's newest timestamp, falling back to the
// history for records whose live trigger time was already reset.
func lastActivity(rec *domain.ViolationRecord) int64 {
	if rec.LastTriggerAt != 0 {
		return rec.LastTriggerAt
	}
	if n := len(rec.History); n > 0 {
		return rec.History[n-1].Timestamp
	}
	return 0
}

// Resync rebuilds the read cache from the durable store and returns the
// number of records loaded.
func (uc *LedgerUsecase) Resync(ctx context.Context) (int64, error) {
	records, err := uc.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}
	uc.cache.replaceAll(records)
	return int64(len(records)), nil
}

func (uc *LedgerUsecase) load(ctx context.Context, userID, conversationID string) (*domain.ViolationRecord, error) {
	if rec, ok := uc.cache.get(domain.RecordKey(userID, conversationID)); ok {
		return rec, nil
	}
	rec, err := uc.store.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		uc.cache.put(rec)
	}
	return rec, nil
}

// keyedMutex hands out one mutex per record key. Lock ordering is flat: the
// map guard is never held while a key lock is taken, so unrelated keys never
// block each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// recordCache is a read accelerator over the violation store. Entries are
// deep-copied both ways so callers never alias cached state.
type recordCache struct {
	mu      sync.RWMutex
	records map[string]*domain.ViolationRecord
}

func (c *recordCache) get(key string) (*domain.ViolationRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (c *recordCache) put(rec *domain.ViolationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.Key()] = rec.Clone()
}

func (c *recordCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, key)
}

func (c *recordCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[string]*domain.ViolationRecord)
}

func (c *recordCache) replaceAll(records []*domain.ViolationRecord) {
	fresh := make(map[string]*domain.ViolationRecord, len(records))
	for _, rec := range records {
		fresh[rec.Key()] = rec.Clone()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = fresh
}
