package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-engine/engagement/domain"
)

func newLimiter(t *testing.T) (RateLimiter, *memCache, *fakeStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	cache := newMemCache(clock)
	store := newFakeStore()
	return RateLimiter{Cache: cache, Ratings: store, Clock: clock.Now}, cache, store, clock
}

func TestRateLimiter_LimitPlusOneIsExceeded(t *testing.T) {
	l, _, _, _ := newLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		n, err := l.Increment(ctx, 1, domain.ActionContact)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if n != int64(i) {
			t.Fatalf("expected count %d, got %d", i, n)
		}
	}

	n, err := l.Increment(ctx, 1, domain.ActionContact)
	var le *domain.LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if !errors.Is(err, domain.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded")
	}
	if n != 11 || le.Limit != 10 {
		t.Fatalf("expected count 11 limit 10, got %d / %d", n, le.Limit)
	}
}

func TestRateLimiter_FreshWindowAfterExpiry(t *testing.T) {
	l, _, _, clock := newLimiter(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = l.Increment(ctx, 1, domain.ActionContact)
	}
	if err := l.Check(ctx, 1, domain.ActionContact); !errors.Is(err, domain.ErrLimitExceeded) {
		t.Fatalf("expected limit reached, got %v", err)
	}

	clock.Advance(time.Hour + time.Second)

	if err := l.Check(ctx, 1, domain.ActionContact); err != nil {
		t.Fatalf("expected fresh window, got %v", err)
	}
	n, err := l.Increment(ctx, 1, domain.ActionContact)
	if err != nil || n != 1 {
		t.Fatalf("expected count 1 in new window, got %d, %v", n, err)
	}
}

func TestRateLimiter_WindowDoesNotSlide(t *testing.T) {
	l, _, _, clock := newLimiter(t)
	ctx := context.Background()
	_, _ = l.Increment(ctx, 1, domain.ActionContact)
	clock.Advance(59 * time.Minute)
	_, _ = l.Increment(ctx, 1, domain.ActionContact)
	clock.Advance(2 * time.Minute)

	n, err := l.Peek(ctx, 1, domain.ActionContact)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected window opened by the first action to have expired, got %d", n)
	}
}

func TestRateLimiter_PeekDoesNotCreateWindow(t *testing.T) {
	l, cache, _, _ := newLimiter(t)
	ctx := context.Background()
	n, err := l.Peek(ctx, 3, domain.ActionContact)
	if err != nil || n != 0 {
		t.Fatalf("expected 0, got %d, %v", n, err)
	}
	if _, ok, _ := cache.Get(ctx, domain.RateLimitKey(3, domain.ActionContact)); ok {
		t.Fatalf("peek must not create a counter")
	}
}

func TestRateLimiter_UsersAreIndependent(t *testing.T) {
	l, _, _, _ := newLimiter(t)
	l.Contact = domain.Policy{Class: domain.ActionContact, Limit: 1, Kind: domain.WindowTrailing, Length: time.Hour}
	ctx := context.Background()
	_, _ = l.Increment(ctx, 1, domain.ActionContact)

	if err := l.Check(ctx, 1, domain.ActionContact); !errors.Is(err, domain.ErrLimitExceeded) {
		t.Fatalf("expected user 1 limited, got %v", err)
	}
	if err := l.Check(ctx, 2, domain.ActionContact); err != nil {
		t.Fatalf("expected user 2 free, got %v", err)
	}
}

func TestRateLimiter_FailsClosed(t *testing.T) {
	l, cache, _, _ := newLimiter(t)
	cache.fail = errBoom
	ctx := context.Background()

	err := l.Check(ctx, 1, domain.ActionContact)
	if !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
	if _, err := l.Increment(ctx, 1, domain.ActionContact); !errors.Is(err, domain.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable, got %v", err)
	}
}

func TestRateLimiter_RatingCalendarDay(t *testing.T) {
	l, _, store, clock := newLimiter(t)
	l.Rating = domain.Policy{Class: domain.ActionRating, Limit: 2, Kind: domain.WindowCalendarDay}
	ctx := context.Background()

	// 23:30 UTC: duas avaliações consomem o dia
	clock.Advance(11*time.Hour + 30*time.Minute)
	for p := domain.ProviderID(1); p <= 2; p++ {
		_, _, _ = store.UpsertRating(ctx, 1, p, 5, nil, clock.Now())
	}
	if err := l.Check(ctx, 1, domain.ActionRating); !errors.Is(err, domain.ErrLimitExceeded) {
		t.Fatalf("expected rating limit reached, got %v", err)
	}
	n, err := l.Peek(ctx, 1, domain.ActionRating)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 ratings today, got %d, %v", n, err)
	}

	// passou da meia-noite UTC
	clock.Advance(31 * time.Minute)
	if err := l.Check(ctx, 1, domain.ActionRating); err != nil {
		t.Fatalf("expected new calendar day, got %v", err)
	}
}

func TestRateLimiter_UnknownClass(t *testing.T) {
	l, _, _, _ := newLimiter(t)
	if err := l.Check(context.Background(), 1, "poke"); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if l.Limit("poke") != 0 {
		t.Fatalf("expected limit 0 for unknown class")
	}
	if l.Limit(domain.ActionRating) != 20 {
		t.Fatalf("expected default rating limit 20")
	}
}

func TestRateLimiter_ConcurrentIncrementsAreCounted(t *testing.T) {
	l, _, _, _ := newLimiter(t)
	l.Contact = domain.Policy{Class: domain.ActionContact, Limit: 1000, Kind: domain.WindowTrailing, Length: time.Hour}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Increment(ctx, 1, domain.ActionContact)
		}()
	}
	wg.Wait()

	n, _ := l.Peek(ctx, 1, domain.ActionContact)
	if n != 50 {
		t.Fatalf("expected 50, got %d", n)
	}
}
