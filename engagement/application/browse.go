package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"marketplace-engine/engagement/domain"
)

const (
	// DefaultSessionTTL é a expiração deslizante do estado de navegação.
	DefaultSessionTTL = time.Hour

	browsingStateName = "browsing_state"
)

// BrowsingService é o gerenciador do cursor de navegação paginada.
//
// Falhas do SessionCache em leitura/avanço são tratadas como "sem estado"
// (ErrNotFound): o chamador pede ao usuário que reinicie pela seleção de filtro.
type BrowsingService struct {
	Cache     domain.SessionCache
	Providers domain.ProviderReader
	// Catalog é opcional; quando presente, Select valida local e categoria.
	Catalog domain.CatalogReader
	TTL     time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
}

func (s BrowsingService) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

// StartBrowse substitui qualquer estado existente por um novo snapshot com índice 0.
// A ordem de ids é responsabilidade do chamador (ver domain.RankProviders).
func (s BrowsingService) StartBrowse(ctx context.Context, user domain.UserID, location domain.LocationID, category domain.CategoryID, ids []domain.ProviderID) error {
	return s.start(ctx, user, domain.BrowsingState{LocationID: location, CategoryID: category, ProviderIDs: ids})
}

func (s BrowsingService) start(ctx context.Context, user domain.UserID, st domain.BrowsingState) error {
	if len(st.ProviderIDs) == 0 {
		return fmt.Errorf("%w: empty provider snapshot", domain.ErrInvalidArgument)
	}
	snapshot := make([]domain.ProviderID, len(st.ProviderIDs))
	copy(snapshot, st.ProviderIDs)
	st.ProviderIDs = snapshot
	st.CurrentIndex = 0

	if err := s.save(ctx, user, st); err != nil {
		loggerOr(s.Logger).Warn("browse start failed", "user", user, "error", err)
		return domain.Unavailable("start browse", err)
	}
	return nil
}

// Select consulta os prestadores do filtro, ordena pela política e inicia a navegação.
func (s BrowsingService) Select(ctx context.Context, user domain.UserID, f domain.Filter) (domain.Position, error) {
	if s.Providers == nil {
		return domain.Position{}, errors.New("browsing: provider reader not configured")
	}
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	if s.Catalog != nil {
		loc, err := s.Catalog.GetLocation(cctx, f.LocationID)
		if err != nil {
			return domain.Position{}, storeErr("get location", err)
		}
		cat, err := s.Catalog.GetCategory(cctx, f.CategoryID)
		if err != nil {
			return domain.Position{}, storeErr("get category", err)
		}
		if !loc.Active || !cat.Active {
			return domain.Position{}, fmt.Errorf("%w: location %d / category %d inactive", domain.ErrNotFound, f.LocationID, f.CategoryID)
		}
	}

	providers, err := s.Providers.ListProviders(cctx, f)
	if err != nil {
		return domain.Position{}, storeErr("list providers", err)
	}
	if len(providers) == 0 {
		_ = s.Reset(ctx, user)
		return domain.Position{}, fmt.Errorf("%w: no providers for location %d category %d", domain.ErrNotFound, f.LocationID, f.CategoryID)
	}

	filter := f
	st := domain.BrowsingState{
		LocationID:  f.LocationID,
		CategoryID:  f.CategoryID,
		ProviderIDs: domain.ProviderIDs(domain.RankProviders(providers)),
		Filter:      &filter,
	}
	if err := s.start(ctx, user, st); err != nil {
		return domain.Position{}, err
	}
	return domain.Position{ProviderID: st.ProviderIDs[0], Index: 0, Total: len(st.ProviderIDs)}, nil
}

// Advance move o cursor em delta, limitado a [0, len-1]. Bater na borda é no-op.
func (s BrowsingService) Advance(ctx context.Context, user domain.UserID, delta int) (domain.Position, error) {
	st, err := s.load(ctx, user)
	if err != nil {
		return domain.Position{}, err
	}

	next := domain.Clamp(st.CurrentIndex, delta, len(st.ProviderIDs))
	if next == st.CurrentIndex {
		// posição inalterada: só estende o TTL, sem reescrever (não atropela um avanço concorrente)
		if err := s.touch(ctx, user); err != nil {
			return domain.Position{}, err
		}
		return st.Position(), nil
	}

	st.CurrentIndex = next
	if err := s.save(ctx, user, st); err != nil {
		loggerOr(s.Logger).Warn("browse advance failed, treating as no state", "user", user, "error", err)
		return domain.Position{}, fmt.Errorf("%w: browsing state unavailable", domain.ErrNotFound)
	}
	return st.Position(), nil
}

// Current devolve a posição exibida sem mover o cursor (e estende o TTL).
func (s BrowsingService) Current(ctx context.Context, user domain.UserID) (domain.Position, error) {
	st, err := s.load(ctx, user)
	if err != nil {
		return domain.Position{}, err
	}
	if err := s.touch(ctx, user); err != nil {
		return domain.Position{}, err
	}
	return st.Position(), nil
}

// Reset remove o estado explicitamente (ex: usuário voltou ao menu de navegação).
func (s BrowsingService) Reset(ctx context.Context, user domain.UserID) error {
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	if err := s.Cache.Delete(cctx, domain.SessionKey(user, browsingStateName)); err != nil {
		return domain.Unavailable("reset browse", err)
	}
	return nil
}

func (s BrowsingService) save(ctx context.Context, user domain.UserID, st domain.BrowsingState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	return s.Cache.Set(cctx, domain.SessionKey(user, browsingStateName), b, s.ttl())
}

func (s BrowsingService) load(ctx context.Context, user domain.UserID) (domain.BrowsingState, error) {
	key := domain.SessionKey(user, browsingStateName)
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()

	b, ok, err := s.Cache.Get(cctx, key)
	if err != nil {
		loggerOr(s.Logger).Warn("browse state read failed, treating as no state", "user", user, "error", err)
		return domain.BrowsingState{}, fmt.Errorf("%w: browsing state unavailable", domain.ErrNotFound)
	}
	if !ok {
		return domain.BrowsingState{}, fmt.Errorf("%w: no browsing state", domain.ErrNotFound)
	}

	var st domain.BrowsingState
	if err := json.Unmarshal(b, &st); err != nil || !st.Valid() {
		loggerOr(s.Logger).Warn("discarding corrupt browse state", "user", user)
		_ = s.Cache.Delete(cctx, key)
		return domain.BrowsingState{}, fmt.Errorf("%w: no browsing state", domain.ErrNotFound)
	}
	return st, nil
}

func (s BrowsingService) touch(ctx context.Context, user domain.UserID) error {
	cctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	ok, err := s.Cache.Touch(cctx, domain.SessionKey(user, browsingStateName), s.ttl())
	if err != nil {
		// leitura já foi bem-sucedida; o TTL só não foi estendido
		loggerOr(s.Logger).Warn("browse ttl refresh failed", "user", user, "error", err)
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: browsing state expired", domain.ErrNotFound)
	}
	return nil
}
