package reputation

import (
	"context"
	"sort"
	"sync"
	"time"
)

type eventKey struct {
	GuildID   string
	MessageID string
	GrantorID string
}

// MemoryStore — хранилище в памяти для одного процесса и тестов.
// Атомарность InGrantorTx обеспечивается одним мьютексом на всё хранилище;
// fn должна успешно завершиться, иначе её изменения откатываются.
type MemoryStore struct {
	mu        sync.Mutex
	events    map[eventKey]Event
	order     []eventKey // порядок вставки для стабильного лидерборда
	rateLimit []RateLimitRecord
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[eventKey]Event)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) RecordReaction(_ context.Context, e *Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(e), nil
}

func (s *MemoryStore) RemoveReaction(_ context.Context, guildID, messageID, grantorID, source string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventKey{GuildID: guildID, MessageID: messageID, GrantorID: grantorID}
	e, ok := s.events[key]
	if !ok || e.Source != source {
		return false, nil
	}
	delete(s.events, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *MemoryStore) TotalFor(_ context.Context, guildID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked(guildID, userID), nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, guildID string, limit int) ([]LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := make(map[string]int64)
	var users []string
	for _, key := range s.order {
		e := s.events[key]
		if e.GuildID != guildID {
			continue
		}
		if _, seen := totals[e.RecipientID]; !seen {
			users = append(users, e.RecipientID)
		}
		totals[e.RecipientID] += int64(e.Amount)
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, LeaderboardEntry{UserID: u, Total: totals[u]})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Total > entries[j].Total })

	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *MemoryStore) HasReceivedAny(_ context.Context, guildID, userID string, sources []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		wanted[src] = struct{}{}
	}
	for _, e := range s.events {
		if e.GuildID != guildID || e.RecipientID != userID {
			continue
		}
		if _, ok := wanted[e.Source]; ok {
			return true, nil
		}
	}
	return false, nil
}

// InGrantorTx держит мьютекс всё время выполнения fn. Ошибка fn откатывает
// события и записи лимитов, добавленные внутри.
func (s *MemoryStore) InGrantorTx(ctx context.Context, _, _ string, fn func(tx GrantTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (s *MemoryStore) PruneRateLimitLog(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.rateLimit[:0]
	var pruned int64
	for _, rec := range s.rateLimit {
		if rec.CreatedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, rec)
	}
	s.rateLimit = kept
	return pruned, nil
}

// EventCount — количество событий (для тестов и диагностики).
func (s *MemoryStore) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// RateLimitRecordCount — количество записей лога лимитов.
func (s *MemoryStore) RateLimitRecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rateLimit)
}

func (s *MemoryStore) insertLocked(e *Event) bool {
	key := eventKey{GuildID: e.GuildID, MessageID: e.MessageID, GrantorID: e.GrantorID}
	if _, exists := s.events[key]; exists {
		return false
	}
	s.events[key] = *e
	s.order = append(s.order, key)
	return true
}

func (s *MemoryStore) totalLocked(guildID, userID string) int64 {
	var total int64
	for _, e := range s.events {
		if e.GuildID == guildID && e.RecipientID == userID {
			total += int64(e.Amount)
		}
	}
	return total
}

func (s *MemoryStore) countLocked(guildID, grantorID, recipientID string, since time.Time) int {
	count := 0
	for _, rec := range s.rateLimit {
		if rec.GuildID != guildID || rec.GrantorID != grantorID {
			continue
		}
		if recipientID != "" && rec.RecipientID != recipientID {
			continue
		}
		if rec.CreatedAt.After(since) {
			count++
		}
	}
	return count
}

// memoryTx вызывается под мьютексом MemoryStore.
type memoryTx struct {
	store      *MemoryStore
	newEvents  []eventKey
	newRecords int
}

func (t *memoryTx) CountGrants(_ context.Context, guildID, grantorID string, since time.Time) (int, error) {
	return t.store.countLocked(guildID, grantorID, "", since), nil
}

func (t *memoryTx) CountGrantsTo(_ context.Context, guildID, grantorID, recipientID string, since time.Time) (int, error) {
	return t.store.countLocked(guildID, grantorID, recipientID, since), nil
}

func (t *memoryTx) InsertRateLimitRecord(_ context.Context, rec *RateLimitRecord) error {
	t.store.rateLimit = append(t.store.rateLimit, *rec)
	t.newRecords++
	return nil
}

func (t *memoryTx) InsertEvent(_ context.Context, e *Event) (bool, error) {
	inserted := t.store.insertLocked(e)
	if inserted {
		t.newEvents = append(t.newEvents, eventKey{GuildID: e.GuildID, MessageID: e.MessageID, GrantorID: e.GrantorID})
	}
	return inserted, nil
}

func (t *memoryTx) TotalFor(_ context.Context, guildID, userID string) (int64, error) {
	return t.store.totalLocked(guildID, userID), nil
}

func (t *memoryTx) rollback() {
	s := t.store
	s.rateLimit = s.rateLimit[:len(s.rateLimit)-t.newRecords]
	for _, key := range t.newEvents {
		delete(s.events, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}
