package services

import (
	"cmp"
	"encoding/hex"
	"hash/fnv"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

const DefaultOverdueBucket = time.Minute

// OverdueEvaluator computes the overdue set of a group of habits and keeps
// the latest result as an immutable snapshot.
//
// The snapshot is keyed by (habit id set, date, time bucket). Readers load it
// through an atomic pointer and never block writers. Concurrent misses on
// the same key and token share one computation. A forced refresh always
// computes and bumps the generation, so any older in-flight computation is
// discarded instead of overwriting the newer snapshot.
type OverdueEvaluator struct {
	bucket     time.Duration
	current    atomic.Pointer[overdueSnapshot]
	generation atomic.Uint64
	group      singleflight.Group
}

type overdueSnapshot struct {
	key        string
	generation uint64
	items      []domain.OverdueHabit
}

func NewOverdueEvaluator(bucket time.Duration) *OverdueEvaluator {
	if bucket <= 0 {
		bucket = DefaultOverdueBucket
	}
	return &OverdueEvaluator{bucket: bucket}
}

// OverdueToken marks the cache generation observed before the inputs of an
// evaluation were read. A result is only cached if no Invalidate or forced
// refresh happened after its token was taken.
type OverdueToken uint64

// Begin returns the token to pass to GetOverdueHabitsAt. Take it before
// loading habits and completions.
func (e *OverdueEvaluator) Begin() OverdueToken {
	return OverdueToken(e.generation.Load())
}

// GetOverdueHabits evaluates with a token taken now, for callers whose
// inputs cannot change underneath them.
func (e *OverdueEvaluator) GetOverdueHabits(habits []*domain.Habit, ledgers map[string]domain.CompletionLedger, now time.Time, forceRefresh bool) []domain.OverdueHabit {
	return e.GetOverdueHabitsAt(e.Begin(), habits, ledgers, now, forceRefresh)
}

// GetOverdueHabitsAt returns the overdue habits at now, most overdue first.
// ledgers is keyed by habit id; a missing ledger means not completed. The
// returned habits are snapshot copies and must be treated as read-only.
//
// The caller always gets the result computed from its own inputs, but that
// result only becomes the cached snapshot when tok is still current.
func (e *OverdueEvaluator) GetOverdueHabitsAt(tok OverdueToken, habits []*domain.Habit, ledgers map[string]domain.CompletionLedger, now time.Time, forceRefresh bool) []domain.OverdueHabit {
	key := e.cacheKey(habits, now)

	if forceRefresh {
		overdueCacheTotal.WithLabelValues("forced").Inc()
		items := evaluateOverdue(habits, ledgers, now)
		// Claim the next generation only if nothing superseded tok; the
		// bump discards every older computation still in flight.
		gen := uint64(tok) + 1
		if !e.generation.CompareAndSwap(uint64(tok), gen) || !e.store(&overdueSnapshot{key: key, generation: gen, items: items}) {
			overdueCacheTotal.WithLabelValues("discarded").Inc()
		}
		return slices.Clone(items)
	}

	if snap := e.current.Load(); snap != nil && snap.key == key && snap.generation >= uint64(tok) {
		overdueCacheTotal.WithLabelValues("hit").Inc()
		return slices.Clone(snap.items)
	}

	overdueCacheTotal.WithLabelValues("miss").Inc()
	gen := uint64(tok)
	flight := key + "|" + strconv.FormatUint(gen, 10)
	v, _, _ := e.group.Do(flight, func() (any, error) {
		items := evaluateOverdue(habits, ledgers, now)
		if !e.store(&overdueSnapshot{key: key, generation: gen, items: items}) {
			overdueCacheTotal.WithLabelValues("discarded").Inc()
		}
		return items, nil
	})

	return slices.Clone(v.([]domain.OverdueHabit))
}

// Invalidate drops the snapshot and supersedes any computation in flight.
func (e *OverdueEvaluator) Invalidate() {
	e.generation.Add(1)
	e.current.Store(nil)
}

// store publishes s unless a newer generation has started or been stored.
func (e *OverdueEvaluator) store(s *overdueSnapshot) bool {
	for {
		if s.generation != e.generation.Load() {
			return false
		}
		cur := e.current.Load()
		if cur != nil && cur.generation > s.generation {
			return false
		}
		if e.current.CompareAndSwap(cur, s) {
			return true
		}
	}
}

func (e *OverdueEvaluator) cacheKey(habits []*domain.Habit, now time.Time) string {
	ids := make([]string, 0, len(habits))
	for _, h := range habits {
		ids = append(ids, h.ID)
	}
	slices.Sort(ids)

	hasher := fnv.New64a()
	for _, id := range ids {
		hasher.Write([]byte(id))
		hasher.Write([]byte{0})
	}

	today := domain.DateIn(now, now.Location())
	bucket := now.Truncate(e.bucket).Unix()

	return hex.EncodeToString(hasher.Sum(nil)) + "|" + today.String() + "|" + strconv.FormatInt(bucket, 10)
}

func evaluateOverdue(habits []*domain.Habit, ledgers map[string]domain.CompletionLedger, now time.Time) []domain.OverdueHabit {
	start := time.Now()
	defer func() {
		overdueEvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	items := make([]domain.OverdueHabit, 0)
	for _, h := range habits {
		if h == nil {
			continue
		}
		if d, overdue := h.OverdueAt(ledgers[h.ID], now); overdue {
			items = append(items, domain.OverdueHabit{Habit: h.Clone(), Overdue: d})
		}
	}

	slices.SortFunc(items, func(a, b domain.OverdueHabit) int {
		if c := cmp.Compare(b.Overdue, a.Overdue); c != 0 {
			return c
		}
		return cmp.Compare(a.Habit.ID, b.Habit.ID)
	})

	return items
}
