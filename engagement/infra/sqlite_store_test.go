package infra

import (
	"context"
	"testing"
	"time"

	"marketplace-engine/engagement/domain"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = NewMigrationRunner(db).Run()
	require.NoError(t, err)

	s := NewSQLiteStore(db, WithStoreClock(func() time.Time { return baseTime }))
	ctx := context.Background()
	require.NoError(t, s.SaveLocation(ctx, domain.Location{ID: 1, Names: domain.LocalizedText{EN: "Tashkent", RU: "Ташкент"}, Active: true}))
	require.NoError(t, s.SaveLocation(ctx, domain.Location{ID: 2, Names: domain.LocalizedText{EN: "Samarkand"}, Active: false}))
	require.NoError(t, s.SaveCategory(ctx, domain.Category{ID: 1, Names: domain.LocalizedText{EN: "Plumbing"}, Icon: "wrench", Active: true}))
	return s
}

func seedProvider(t *testing.T, s *SQLiteStore, p domain.Provider) domain.ProviderID {
	t.Helper()
	if p.LocationID == 0 {
		p.LocationID = 1
	}
	if p.CategoryID == 0 {
		p.CategoryID = 1
	}
	id, err := s.SaveProvider(context.Background(), p)
	require.NoError(t, err)
	return id
}

func fptr(v float64) *float64 { return &v }

func TestMigrationRunner_Idempotent(t *testing.T) {
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	r := NewMigrationRunner(db)
	applied, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	applied, err = r.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	v, err := r.Version()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestSQLiteStore_ProviderRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := seedProvider(t, s, domain.Provider{
		Name: "Aziz", Phone: "+998901234567", PriceMin: fptr(100), PriceMax: fptr(500),
		Active: true, Approved: true, Available: true,
	})

	p, err := s.GetProvider(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Aziz", p.Name)
	assert.Equal(t, "UZS", p.Currency)
	assert.Empty(t, p.TelegramUsername)
	require.NotNil(t, p.PriceMax)
	assert.Equal(t, 500.0, *p.PriceMax)
	assert.Equal(t, baseTime, p.CreatedAt.UTC())

	p.Name = "Aziz Plumbing"
	_, err = s.SaveProvider(ctx, p)
	require.NoError(t, err)
	p, err = s.GetProvider(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Aziz Plumbing", p.Name)

	_, err = s.GetProvider(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.SaveProvider(ctx, domain.Provider{ID: 999, Name: "x", LocationID: 1, CategoryID: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ListProvidersOrderAndFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := seedProvider(t, s, domain.Provider{Name: "a", Active: true, Approved: true, Available: true, PriceMin: fptr(50), PriceMax: fptr(100)})
	b := seedProvider(t, s, domain.Provider{Name: "b", Active: true, Approved: true, Available: false, PriceMin: fptr(200), PriceMax: fptr(300)})
	c := seedProvider(t, s, domain.Provider{Name: "c", Active: true, Approved: true, Available: true})
	seedProvider(t, s, domain.Provider{Name: "pending", Active: true, Approved: false})
	seedProvider(t, s, domain.Provider{Name: "inactive", Active: false, Approved: true})

	require.NoError(t, s.WriteAggregate(ctx, a, 4.0, 2))
	require.NoError(t, s.WriteAggregate(ctx, b, 4.5, 2))
	require.NoError(t, s.WriteAggregate(ctx, c, 4.0, 1))
	require.NoError(t, s.IncrementContactCount(ctx, c))

	ids := func(ps []domain.Provider) []domain.ProviderID {
		out := make([]domain.ProviderID, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.ID)
		}
		return out
	}

	all, err := s.ListProviders(ctx, domain.Filter{LocationID: 1, CategoryID: 1})
	require.NoError(t, err)
	assert.Equal(t, []domain.ProviderID{b, c, a}, ids(all))

	avail, err := s.ListProviders(ctx, domain.Filter{LocationID: 1, CategoryID: 1, AvailableOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.ProviderID{c, a}, ids(avail))

	priced, err := s.ListProviders(ctx, domain.Filter{LocationID: 1, CategoryID: 1, PriceMin: fptr(150)})
	require.NoError(t, err)
	assert.Equal(t, []domain.ProviderID{b}, ids(priced))

	rated, err := s.ListProviders(ctx, domain.Filter{LocationID: 1, CategoryID: 1, MinRating: 4.2})
	require.NoError(t, err)
	assert.Equal(t, []domain.ProviderID{b}, ids(rated))

	none, err := s.ListProviders(ctx, domain.Filter{LocationID: 2, CategoryID: 1})
	require.NoError(t, err)
	assert.Empty(t, none)

	top, err := s.TopRated(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.ProviderID{b, c}, ids(top))
}

func TestSQLiteStore_UpsertRatingKeepsIdentity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProvider(t, s, domain.Provider{Name: "p", Active: true, Approved: true})

	comment := "great"
	first, created, err := s.UpsertRating(ctx, 1, p, 5, &comment, baseTime)
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, first.Moderated)
	require.NotNil(t, first.Comment)

	second, created, err := s.UpsertRating(ctx, 1, p, 3, nil, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Value)
	assert.Nil(t, second.Comment)
	assert.Equal(t, baseTime, second.CreatedAt.UTC())
	assert.Equal(t, baseTime.Add(time.Hour), second.UpdatedAt.UTC())

	_, err = s.GetRating(ctx, 2, p)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ModeratedRatingsAndWindowCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProvider(t, s, domain.Provider{Name: "p", Active: true, Approved: true})

	for u := domain.UserID(1); u <= 3; u++ {
		_, _, err := s.UpsertRating(ctx, u, p, int(u)+2, nil, baseTime.Add(time.Duration(u)*time.Minute))
		require.NoError(t, err)
	}
	_, err := s.SetRatingModerated(ctx, 2, p, false, baseTime.Add(time.Hour))
	require.NoError(t, err)

	list, err := s.ListModeratedRatings(ctx, p, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, domain.UserID(3), list[0].UserID, "most recent first")
	assert.Equal(t, domain.UserID(1), list[1].UserID)

	limited, err := s.ListModeratedRatings(ctx, p, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := s.CountRatingsSince(ctx, 3, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.CountRatingsSince(ctx, 3, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = s.SetRatingModerated(ctx, 9, p, true, baseTime)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.WriteAggregate(ctx, 999, 1, 1), domain.ErrNotFound)
}

func TestSQLiteStore_FavoritesIdempotentAndOrdered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p1 := seedProvider(t, s, domain.Provider{Name: "p1", Active: true, Approved: true})
	p2 := seedProvider(t, s, domain.Provider{Name: "p2", Active: true, Approved: true})

	rec, created, err := s.AddFavorite(ctx, 1, p1, baseTime)
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.AddFavorite(ctx, 1, p1, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, rec.CreatedAt.UTC(), again.CreatedAt.UTC())

	_, _, err = s.AddFavorite(ctx, 1, p2, baseTime.Add(time.Minute))
	require.NoError(t, err)

	favs, err := s.ListFavorites(ctx, 1)
	require.NoError(t, err)
	require.Len(t, favs, 2)
	assert.Equal(t, p2, favs[0].ProviderID)
	assert.Equal(t, p1, favs[1].ProviderID)

	removed, err := s.RemoveFavorite(ctx, 1, p1)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.RemoveFavorite(ctx, 1, p1)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.GetFavorite(ctx, 1, p1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ContactLedger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p1 := seedProvider(t, s, domain.Provider{Name: "p1", Active: true, Approved: true})
	p2 := seedProvider(t, s, domain.Provider{Name: "p2", Active: true, Approved: true})

	rec, err := s.AppendContact(ctx, 1, p2, baseTime)
	require.NoError(t, err)
	id, err := ulid.Parse(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(baseTime), id.Time())

	// contatos repetidos nunca são deduplicados
	_, err = s.AppendContact(ctx, 1, p2, baseTime.Add(time.Minute))
	require.NoError(t, err)
	_, err = s.AppendContact(ctx, 2, p1, baseTime.Add(2*time.Minute))
	require.NoError(t, err)

	top, err := s.MostContacted(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.ContactCount{{ProviderID: p2, Count: 2}, {ProviderID: p1, Count: 1}}, top)

	n, err := s.CountContactsSince(ctx, 1, baseTime.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, s.IncrementViewCount(ctx, p1))
	assert.ErrorIs(t, s.IncrementViewCount(ctx, 999), domain.ErrNotFound)
	got, err := s.GetProvider(ctx, p1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ViewCount)
}

func TestSQLiteStore_ProfilesCatalogAndOverview(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateProfile(ctx, 42, domain.Profile{FirstName: "Ali", LastName: "Valiev", Phone: "+998901234567", LocationID: 1}))
	p, err := s.GetProfile(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "Ali", p.FirstName)
	assert.Equal(t, domain.LocationID(1), p.LocationID)

	_, err = s.GetProfile(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	loc, err := s.GetLocation(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ташкент", loc.Name(domain.LangRU, domain.LangEN))
	loc2, err := s.GetLocation(ctx, 2)
	require.NoError(t, err)
	assert.False(t, loc2.Active)

	cat, err := s.GetCategory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "wrench", cat.Icon)
	_, err = s.GetCategory(ctx, 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	seedProvider(t, s, domain.Provider{Name: "a", Active: true, Approved: true})
	seedProvider(t, s, domain.Provider{Name: "b", Active: true, Approved: false})
	seedProvider(t, s, domain.Provider{Name: "c", Active: false, Approved: false})

	ov, err := s.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Overview{TotalUsers: 1, ActiveUsers: 1, TotalProviders: 3, ActiveProviders: 2, PendingProviders: 2}, ov)
}
