package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var (
	_ domain.HabitRepository      = (*InMemoryHabitRepository)(nil)
	_ domain.CompletionRepository = (*InMemoryCompletionRepository)(nil)
	_ domain.FreezeRepository     = (*InMemoryFreezeRepository)(nil)
	_ domain.StreakStore          = (*MemoryStore)(nil)
)

// MemoryStore keeps habits, completions and freeze balances behind one lock
// so that CommitStreak can write a habit and a balance atomically. Values are
// cloned on the way in and out.
type MemoryStore struct {
	habits      map[string]*domain.Habit
	completions map[string]map[civil.Date]*domain.CompletionRecord
	balances    map[string]*domain.FreezeBalance

	mu sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		habits:      make(map[string]*domain.Habit),
		completions: make(map[string]map[civil.Date]*domain.CompletionRecord),
		balances:    make(map[string]*domain.FreezeBalance),
	}
}

func (s *MemoryStore) Habits() *InMemoryHabitRepository {
	return &InMemoryHabitRepository{s: s}
}

func (s *MemoryStore) Completions() *InMemoryCompletionRepository {
	return &InMemoryCompletionRepository{s: s}
}

func (s *MemoryStore) Freezes() *InMemoryFreezeRepository {
	return &InMemoryFreezeRepository{s: s}
}

func (s *MemoryStore) CommitStreak(ctx context.Context, userID string, fn domain.StreakMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.balanceLocked(userID)
	working := balance.Clone()

	habit, err := fn(working)
	if err != nil || habit == nil {
		return err
	}

	stored, ok := s.habits[habit.ID]
	if !ok || stored.IsDeleted() {
		return domain.ErrHabitNotFound
	}
	if stored.Version != habit.Version {
		return domain.ErrHabitConflict
	}

	now := time.Now().UTC()

	next := stored.Clone()
	copyStreakFields(next, habit)
	next.Version++
	next.UpdatedAt = now
	s.habits[next.ID] = next
	habit.Version = next.Version
	habit.UpdatedAt = now

	if *working != *balance {
		working.Version = balance.Version + 1
		working.UpdatedAt = now
		s.balances[userID] = working
	}

	return nil
}

func (s *MemoryStore) balanceLocked(userID string) *domain.FreezeBalance {
	b, ok := s.balances[userID]
	if !ok {
		b = domain.NewFreezeBalance(userID)
		s.balances[userID] = b
	}
	return b
}

func copyStreakFields(dst, src *domain.Habit) {
	c := src.Clone()
	dst.LastCompletedDate = c.LastCompletedDate
	dst.Streak = c.Streak
	dst.HighestStreakAchieved = c.HighestStreakAchieved
	dst.CurrentGapStartDate = c.CurrentGapStartDate
	dst.FreezeDaysUsedForCurrentGap = c.FreezeDaysUsedForCurrentGap
	dst.FreezeAppliedDates = c.FreezeAppliedDates
	dst.StreakBrokenOn = c.StreakBrokenOn
}

type InMemoryHabitRepository struct {
	s *MemoryStore
}

func NewInMemoryHabitRepository() *InMemoryHabitRepository {
	return NewMemoryStore().Habits()
}

func (r *InMemoryHabitRepository) Create(ctx context.Context, habit *domain.Habit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if habit.Version == 0 {
		habit.Version = 1
	}
	r.s.habits[habit.ID] = habit.Clone()
	return nil
}

func (r *InMemoryHabitRepository) GetByID(ctx context.Context, id string) (*domain.Habit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	habit, ok := r.s.habits[id]
	if !ok || habit.IsDeleted() {
		return nil, domain.ErrHabitNotFound
	}
	return habit.Clone(), nil
}

func (r *InMemoryHabitRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Habit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	habits := make([]*domain.Habit, 0)
	for _, h := range r.s.habits {
		if h.UserID == userID && !h.IsDeleted() {
			habits = append(habits, h.Clone())
		}
	}

	sort.Slice(habits, func(i, j int) bool {
		if habits[i].CreatedAt.Equal(habits[j].CreatedAt) {
			return habits[i].ID < habits[j].ID
		}
		return habits[i].CreatedAt.Before(habits[j].CreatedAt)
	})

	return habits, nil
}

func (r *InMemoryHabitRepository) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, h := range r.s.habits {
		if h.IsDeleted() {
			continue
		}
		if _, ok := seen[h.UserID]; ok {
			continue
		}
		seen[h.UserID] = struct{}{}
		ids = append(ids, h.UserID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Update writes title and schedule fields only. Streak fields belong to
// CommitStreak.
func (r *InMemoryHabitRepository) Update(ctx context.Context, habit *domain.Habit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.habits[habit.ID]
	if !ok || stored.IsDeleted() {
		return domain.ErrHabitNotFound
	}
	if stored.Version != habit.Version {
		return domain.ErrHabitConflict
	}

	next := stored.Clone()
	next.Title = habit.Title
	next.Recurrence = habit.Recurrence
	next.ReminderHour = habit.ReminderHour
	next.ReminderMinute = habit.ReminderMinute
	next.ReminderEnabled = habit.ReminderEnabled
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	r.s.habits[next.ID] = next

	habit.Version = next.Version
	habit.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *InMemoryHabitRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.habits[id]
	if !ok || stored.IsDeleted() {
		return domain.ErrHabitNotFound
	}

	next := stored.Clone()
	next.Delete()
	next.Version++
	r.s.habits[id] = next
	return nil
}

type InMemoryCompletionRepository struct {
	s *MemoryStore
}

func (r *InMemoryCompletionRepository) Create(ctx context.Context, record *domain.CompletionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	byDate, ok := r.s.completions[record.HabitID]
	if !ok {
		byDate = make(map[civil.Date]*domain.CompletionRecord)
		r.s.completions[record.HabitID] = byDate
	}
	if _, exists := byDate[record.Date]; exists {
		return domain.ErrCompletionExists
	}

	c := *record
	byDate[record.Date] = &c
	return nil
}

func (r *InMemoryCompletionRepository) Delete(ctx context.Context, habitID string, date civil.Date) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	byDate, ok := r.s.completions[habitID]
	if !ok {
		return domain.ErrCompletionNotFound
	}
	if _, exists := byDate[date]; !exists {
		return domain.ErrCompletionNotFound
	}
	delete(byDate, date)
	return nil
}

func (r *InMemoryCompletionRepository) ListByHabitID(ctx context.Context, habitID string) ([]*domain.CompletionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := make([]*domain.CompletionRecord, 0, len(r.s.completions[habitID]))
	for _, rec := range r.s.completions[habitID] {
		c := *rec
		records = append(records, &c)
	}
	sortRecords(records)
	return records, nil
}

func (r *InMemoryCompletionRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.CompletionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := make([]*domain.CompletionRecord, 0)
	for _, byDate := range r.s.completions {
		for _, rec := range byDate {
			if rec.UserID == userID {
				c := *rec
				records = append(records, &c)
			}
		}
	}
	sortRecords(records)
	return records, nil
}

func sortRecords(records []*domain.CompletionRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date == records[j].Date {
			return records[i].HabitID < records[j].HabitID
		}
		return records[i].Date.Before(records[j].Date)
	})
}

type InMemoryFreezeRepository struct {
	s *MemoryStore
}

func (r *InMemoryFreezeRepository) Get(ctx context.Context, userID string) (*domain.FreezeBalance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.balanceLocked(userID).Clone(), nil
}

func (r *InMemoryFreezeRepository) CompareAndSwap(ctx context.Context, b *domain.FreezeBalance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored := r.s.balanceLocked(b.UserID)
	if stored.Version != b.Version {
		return domain.ErrFreezeConflict
	}

	next := b.Clone()
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now().UTC()
	r.s.balances[b.UserID] = next

	b.Version = next.Version
	b.UpdatedAt = next.UpdatedAt
	return nil
}
