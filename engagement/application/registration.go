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

const registrationName = "registration"

// RegistrationFlow persiste o FSM de cadastro no SessionCache e executa os
// efeitos devolvidos por domain.Transition.
type RegistrationFlow struct {
	Cache domain.SessionCache
	Users domain.UserStore
	// Catalog é opcional; quando presente, o local informado precisa existir e estar ativo.
	Catalog domain.CatalogReader
	TTL     time.Duration
	Timeout time.Duration
	Logger  *slog.Logger
}

func (f RegistrationFlow) ttl() time.Duration {
	if f.TTL <= 0 {
		return DefaultSessionTTL
	}
	return f.TTL
}

// Begin (re)inicia o cadastro no primeiro passo.
func (f RegistrationFlow) Begin(ctx context.Context, user domain.UserID) (domain.Registration, error) {
	r := domain.NewRegistration()
	if err := f.save(ctx, user, r); err != nil {
		loggerOr(f.Logger).Warn("registration begin failed", "user", user, "error", err)
		return domain.Registration{}, domain.Unavailable("begin registration", err)
	}
	return r, nil
}

// Current devolve o cadastro em andamento. Sem estado (ou cache fora) => ErrNotFound.
func (f RegistrationFlow) Current(ctx context.Context, user domain.UserID) (domain.Registration, error) {
	return f.load(ctx, user)
}

// Submit aplica uma entrada ao passo corrente.
//
// Entrada inválida devolve o estado inalterado e ErrInvalidArgument. No passo
// final o perfil é gravado e o estado da sessão removido.
func (f RegistrationFlow) Submit(ctx context.Context, user domain.UserID, input string) (domain.Registration, []domain.Effect, error) {
	r, err := f.load(ctx, user)
	if err != nil {
		return domain.Registration{}, nil, err
	}

	next, effects, err := domain.Transition(r, input)
	if err != nil {
		return r, nil, err
	}

	for _, eff := range effects {
		if eff.Kind != domain.EffectSaveProfile || eff.Profile == nil {
			continue
		}
		if err := f.checkLocation(ctx, eff.Profile.LocationID); err != nil {
			return r, nil, err
		}
		cctx, cancel := withTimeout(ctx, f.Timeout)
		err := f.Users.UpdateProfile(cctx, user, *eff.Profile)
		cancel()
		if err != nil {
			// estado fica no passo de local: o usuário pode reenviar
			return r, nil, storeErr("update profile", err)
		}
		cctx, cancel = withTimeout(ctx, f.Timeout)
		if err := f.Cache.Delete(cctx, domain.SessionKey(user, registrationName)); err != nil {
			loggerOr(f.Logger).Warn("registration state cleanup failed", "user", user, "error", err)
		}
		cancel()
		return next, effects, nil
	}

	if err := f.save(ctx, user, next); err != nil {
		loggerOr(f.Logger).Warn("registration save failed", "user", user, "error", err)
		return r, nil, domain.Unavailable("save registration", err)
	}
	return next, effects, nil
}

func (f RegistrationFlow) checkLocation(ctx context.Context, id domain.LocationID) error {
	if f.Catalog == nil {
		return nil
	}
	cctx, cancel := withTimeout(ctx, f.Timeout)
	defer cancel()
	loc, err := f.Catalog.GetLocation(cctx, id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && !loc.Active) {
		return fmt.Errorf("%w: unknown location %d", domain.ErrInvalidArgument, id)
	}
	if err != nil {
		return storeErr("get location", err)
	}
	return nil
}

func (f RegistrationFlow) save(ctx context.Context, user domain.UserID, r domain.Registration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	cctx, cancel := withTimeout(ctx, f.Timeout)
	defer cancel()
	return f.Cache.Set(cctx, domain.SessionKey(user, registrationName), b, f.ttl())
}

func (f RegistrationFlow) load(ctx context.Context, user domain.UserID) (domain.Registration, error) {
	cctx, cancel := withTimeout(ctx, f.Timeout)
	defer cancel()
	b, ok, err := f.Cache.Get(cctx, domain.SessionKey(user, registrationName))
	if err != nil {
		loggerOr(f.Logger).Warn("registration read failed, treating as no state", "user", user, "error", err)
		return domain.Registration{}, fmt.Errorf("%w: registration state unavailable", domain.ErrNotFound)
	}
	if !ok {
		return domain.Registration{}, fmt.Errorf("%w: no registration in progress", domain.ErrNotFound)
	}
	var r domain.Registration
	if err := json.Unmarshal(b, &r); err != nil || r.Step == "" {
		return domain.Registration{}, fmt.Errorf("%w: no registration in progress", domain.ErrNotFound)
	}
	return r, nil
}
