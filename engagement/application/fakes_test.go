package application

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"marketplace-engine/engagement/domain"
)

var errBoom = errors.New("boom")

// fakeClock é um relógio manual compartilhado entre cache e serviços.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type cacheEntry struct {
	val      []byte
	expireAt time.Time
}

// memCache é um SessionCache em memória com TTL avaliado no fakeClock.
type memCache struct {
	mu    sync.Mutex
	clock *fakeClock
	data  map[string]cacheEntry
	fail  error
	sets  int
}

func newMemCache(c *fakeClock) *memCache {
	return &memCache{clock: c, data: make(map[string]cacheEntry)}
}

func (m *memCache) live(key string) (cacheEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return cacheEntry{}, false
	}
	if !m.clock.Now().Before(e.expireAt) {
		delete(m.data, key)
		return cacheEntry{}, false
	}
	return e, true
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, false, m.fail
	}
	e, ok := m.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.val...), true, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sets++
	m.data[key] = cacheEntry{val: append([]byte(nil), value...), expireAt: m.clock.Now().Add(ttl)}
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.data, key)
	return nil
}

func (m *memCache) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	e, ok := m.live(key)
	if !ok {
		e = cacheEntry{val: []byte("0"), expireAt: m.clock.Now().Add(ttl)}
	}
	n, _ := strconv.ParseInt(string(e.val), 10, 64)
	n++
	e.val = []byte(strconv.FormatInt(n, 10))
	m.data[key] = e
	return n, nil
}

func (m *memCache) Touch(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return false, m.fail
	}
	e, ok := m.live(key)
	if !ok {
		return false, nil
	}
	e.expireAt = m.clock.Now().Add(ttl)
	m.data[key] = e
	return true, nil
}

type pair struct {
	u domain.UserID
	p domain.ProviderID
}

// fakeStore é um ProviderStore em memória.
type fakeStore struct {
	mu        sync.Mutex
	providers map[domain.ProviderID]domain.Provider
	ratings   map[pair]*domain.RatingRecord
	favorites map[pair]domain.FavoriteRecord
	contacts  []domain.ContactRecord
	nextID    int64

	listErr      error
	writeAggErr  error
	appendErr    error
	incContactEr error
	aggWrites    int
}

func newFakeStore(ps ...domain.Provider) *fakeStore {
	s := &fakeStore{
		providers: make(map[domain.ProviderID]domain.Provider),
		ratings:   make(map[pair]*domain.RatingRecord),
		favorites: make(map[pair]domain.FavoriteRecord),
	}
	for _, p := range ps {
		s.providers[p.ID] = p
	}
	return s
}

func (s *fakeStore) GetProvider(_ context.Context, id domain.ProviderID) (domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return domain.Provider{}, domain.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) ListProviders(_ context.Context, f domain.Filter) ([]domain.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.Provider
	for _, p := range s.providers {
		if p.LocationID == f.LocationID && p.CategoryID == f.CategoryID && p.Active && p.Approved {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) GetRating(_ context.Context, u domain.UserID, p domain.ProviderID) (domain.RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[pair{u, p}]
	if !ok {
		return domain.RatingRecord{}, domain.ErrNotFound
	}
	return *r, nil
}

func (s *fakeStore) UpsertRating(_ context.Context, u domain.UserID, p domain.ProviderID, value int, comment *string, now time.Time) (domain.RatingRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.ratings[pair{u, p}]; ok {
		r.Value = value
		r.Comment = comment
		r.UpdatedAt = now
		return *r, false, nil
	}
	s.nextID++
	r := &domain.RatingRecord{ID: s.nextID, UserID: u, ProviderID: p, Value: value, Comment: comment, Moderated: true, CreatedAt: now, UpdatedAt: now}
	s.ratings[pair{u, p}] = r
	return *r, true, nil
}

func (s *fakeStore) SetRatingModerated(_ context.Context, u domain.UserID, p domain.ProviderID, moderated bool, now time.Time) (domain.RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ratings[pair{u, p}]
	if !ok {
		return domain.RatingRecord{}, domain.ErrNotFound
	}
	r.Moderated = moderated
	r.UpdatedAt = now
	return *r, nil
}

func (s *fakeStore) ListModeratedRatings(_ context.Context, p domain.ProviderID, limit int) ([]domain.RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RatingRecord
	for _, r := range s.ratings {
		if r.ProviderID == p && r.Moderated {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CountRatingsSince(_ context.Context, u domain.UserID, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.ratings {
		if r.UserID == u && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) WriteAggregate(_ context.Context, p domain.ProviderID, avg float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeAggErr != nil {
		return s.writeAggErr
	}
	pr := s.providers[p]
	pr.AverageRating = avg
	pr.RatingCount = count
	s.providers[p] = pr
	s.aggWrites++
	return nil
}

func (s *fakeStore) AddFavorite(_ context.Context, u domain.UserID, p domain.ProviderID, now time.Time) (domain.FavoriteRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.favorites[pair{u, p}]; ok {
		return f, false, nil
	}
	f := domain.FavoriteRecord{UserID: u, ProviderID: p, CreatedAt: now}
	s.favorites[pair{u, p}] = f
	return f, true, nil
}

func (s *fakeStore) RemoveFavorite(_ context.Context, u domain.UserID, p domain.ProviderID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.favorites[pair{u, p}]; !ok {
		return false, nil
	}
	delete(s.favorites, pair{u, p})
	return true, nil
}

func (s *fakeStore) ListFavorites(_ context.Context, u domain.UserID) ([]domain.FavoriteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FavoriteRecord
	for k, f := range s.favorites {
		if k.u == u {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) GetFavorite(_ context.Context, u domain.UserID, p domain.ProviderID) (domain.FavoriteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.favorites[pair{u, p}]
	if !ok {
		return domain.FavoriteRecord{}, domain.ErrNotFound
	}
	return f, nil
}

func (s *fakeStore) AppendContact(_ context.Context, u domain.UserID, p domain.ProviderID, at time.Time) (domain.ContactRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return domain.ContactRecord{}, s.appendErr
	}
	rec := domain.ContactRecord{ID: strconv.Itoa(len(s.contacts) + 1), UserID: u, ProviderID: p, ContactedAt: at}
	s.contacts = append(s.contacts, rec)
	return rec, nil
}

func (s *fakeStore) IncrementContactCount(_ context.Context, p domain.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incContactEr != nil {
		return s.incContactEr
	}
	pr := s.providers[p]
	pr.ContactCount++
	s.providers[p] = pr
	return nil
}

func (s *fakeStore) IncrementViewCount(_ context.Context, p domain.ProviderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.providers[p]
	if !ok {
		return domain.ErrNotFound
	}
	pr.ViewCount++
	s.providers[p] = pr
	return nil
}

func (s *fakeStore) MostContacted(_ context.Context, limit int) ([]domain.ContactCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[domain.ProviderID]int64{}
	for _, c := range s.contacts {
		counts[c.ProviderID]++
	}
	var out []domain.ContactCount
	for p, n := range counts {
		out = append(out, domain.ContactCount{ProviderID: p, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) CountContactsSince(_ context.Context, u domain.UserID, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.contacts {
		if c.UserID == u && !c.ContactedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) provider(id domain.ProviderID) domain.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providers[id]
}

// mutexLocker é um KeyLocker de processo único para os testes.
type mutexLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *mutexLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

func activeProvider(id domain.ProviderID, loc domain.LocationID, cat domain.CategoryID, avg float64, contacts int64) domain.Provider {
	return domain.Provider{
		ID: id, LocationID: loc, CategoryID: cat, Active: true, Approved: true,
		ProviderAggregate: domain.ProviderAggregate{AverageRating: avg, ContactCount: contacts},
	}
}
