package engagement

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"marketplace-engine/engagement/application"
	"marketplace-engine/engagement/domain"
)

const maxBodyBytes = 1 << 20

// Handler liga as rotas /v1 aos casos de uso.
type Handler struct {
	Browse       application.BrowsingService
	Limits       application.RateLimiter
	Ratings      application.RatingAggregator
	Ledger       application.Ledger
	Registration application.RegistrationFlow
	Stats        application.StatsService

	Providers domain.ProviderReader
	// Catalog é opcional; sem ele o cartão do prestador sai sem nomes de local/categoria.
	Catalog domain.CatalogReader

	Admins      map[domain.UserID]bool
	DefaultLang domain.Lang
	Logger      *slog.Logger
}

// Routes monta o ServeMux com todas as rotas do motor.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/browse", h.withUser(h.selectProviders))
	mux.HandleFunc("POST /v1/browse/advance", h.withUser(h.advance))
	mux.HandleFunc("GET /v1/browse", h.withUser(h.current))
	mux.HandleFunc("DELETE /v1/browse", h.withUser(h.reset))

	mux.HandleFunc("GET /v1/providers/{provider}", h.withUser(h.providerCard))
	mux.HandleFunc("GET /v1/providers/{provider}/ratings", h.withUser(h.providerRatings))
	mux.HandleFunc("PUT /v1/ratings/{provider}", h.withUser(h.rate))
	mux.HandleFunc("POST /v1/views/{provider}", h.withUser(h.view))

	mux.HandleFunc("GET /v1/favorites", h.withUser(h.listFavorites))
	mux.HandleFunc("GET /v1/favorites/{provider}", h.withUser(h.isFavorite))
	mux.HandleFunc("POST /v1/favorites/{provider}", h.withUser(h.addFavorite))
	mux.HandleFunc("DELETE /v1/favorites/{provider}", h.withUser(h.removeFavorite))

	mux.HandleFunc("POST /v1/contacts/{provider}", h.withUser(h.contact))

	mux.HandleFunc("GET /v1/registration", h.withUser(h.registrationState))
	mux.HandleFunc("POST /v1/registration", h.withUser(h.register))

	mux.HandleFunc("GET /v1/stats/overview", h.withAdmin(h.overview))
	mux.HandleFunc("GET /v1/stats/top-rated", h.withAdmin(h.topRated))
	mux.HandleFunc("GET /v1/stats/most-contacted", h.withAdmin(h.mostContacted))

	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, user domain.UserID)

func (h *Handler) withUser(fn userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserHeader))
		if raw == "" {
			h.writeError(w, r, fmt.Errorf("%w: missing %s header", domain.ErrInvalidArgument, UserHeader))
			return
		}
		user, err := domain.ParseUserID(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		fn(w, r, user)
	}
}

func (h *Handler) withAdmin(fn userHandler) http.HandlerFunc {
	return h.withUser(func(w http.ResponseWriter, r *http.Request, user domain.UserID) {
		if !h.Admins[user] {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
			return
		}
		fn(w, r, user)
	})
}

// decodeBody lê JSON limitado a maxBodyBytes. Corpo vazio devolve io.EOF.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("%w: malformed body: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func providerParam(r *http.Request) (domain.ProviderID, error) {
	return domain.ParseProviderID(r.PathValue("provider"))
}

func limitParam(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit %q", domain.ErrInvalidArgument, raw)
	}
	return n, nil
}

// requestLang resolve ?lang= e depois Accept-Language (só a primeira tag).
func (h *Handler) requestLang(r *http.Request) domain.Lang {
	fallback := h.DefaultLang
	if !fallback.Valid() {
		fallback = domain.LangRU
	}
	if v := r.URL.Query().Get("lang"); v != "" {
		return domain.ParseLang(v, fallback)
	}
	al := r.Header.Get("Accept-Language")
	if i := strings.IndexAny(al, ",;"); i >= 0 {
		al = al[:i]
	}
	return domain.ParseLang(al, fallback)
}

// --- navegação ---

type selectRequest struct {
	LocationID domain.LocationID `json:"location_id"`
	CategoryID domain.CategoryID `json:"category_id"`
	Filters    *domain.Filter    `json:"filters,omitempty"`
}

func (h *Handler) selectProviders(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	var req selectRequest
	if err := decodeBody(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}
		h.writeError(w, r, err)
		return
	}
	f := domain.Filter{}
	if req.Filters != nil {
		f = *req.Filters
	}
	f.LocationID, f.CategoryID = req.LocationID, req.CategoryID

	pos, err := h.Browse.Select(r.Context(), user, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type advanceRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	var req advanceRequest
	if err := decodeBody(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}
		h.writeError(w, r, err)
		return
	}
	pos, err := h.Browse.Advance(r.Context(), user, req.Delta)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	pos, err := h.Browse.Current(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	if err := h.Browse.Reset(r.Context(), user); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- prestadores e avaliações ---

type providerCard struct {
	domain.Provider
	LocationName string `json:"location_name,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	Lang         string `json:"lang"`
}

func (h *Handler) providerCard(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Providers.GetProvider(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !p.Active || !p.Approved {
		h.writeError(w, r, fmt.Errorf("provider %d: %w", id, domain.ErrNotFound))
		return
	}

	lang := h.requestLang(r)
	card := providerCard{Provider: p, Lang: string(lang)}
	if h.Catalog != nil {
		if loc, err := h.Catalog.GetLocation(r.Context(), p.LocationID); err == nil {
			card.LocationName = loc.Name(lang, h.DefaultLang)
		}
		if cat, err := h.Catalog.GetCategory(r.Context(), p.CategoryID); err == nil {
			card.CategoryName = cat.Name(lang, h.DefaultLang)
		}
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handler) providerRatings(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.Ratings.ProviderRatings(r.Context(), id, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.RatingRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ratings": list})
}

type rateRequest struct {
	Value   int     `json:"value"`
	Comment *string `json:"comment,omitempty"`
}

type rateResponse struct {
	Rating    domain.RatingRecord       `json:"rating"`
	WasNew    bool                      `json:"was_new"`
	Aggregate *domain.ProviderAggregate `json:"aggregate,omitempty"`
	Stale     bool                      `json:"stale,omitempty"`
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req rateRequest
	if err := decodeBody(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: empty body", domain.ErrInvalidArgument)
		}
		h.writeError(w, r, err)
		return
	}

	if err := h.Limits.Check(r.Context(), user, domain.ActionRating); err != nil {
		h.Stats.Record(r.Context(), user, string(domain.ActionRating), outcomeOf(err))
		h.writeError(w, r, err)
		return
	}

	rec, wasNew, err := h.Ratings.UpsertRating(r.Context(), user, id, req.Value, req.Comment)
	stale := errors.Is(err, domain.ErrStaleAggregate)
	if err != nil && !stale {
		h.Stats.Record(r.Context(), user, string(domain.ActionRating), outcomeOf(err))
		h.writeError(w, r, err)
		return
	}
	h.Stats.Record(r.Context(), user, string(domain.ActionRating), domain.OutcomeAllowed)

	resp := rateResponse{Rating: rec, WasNew: wasNew, Stale: stale}
	if !stale && h.Providers != nil {
		if p, err := h.Providers.GetProvider(r.Context(), id); err == nil {
			agg := p.ProviderAggregate
			resp.Aggregate = &agg
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Ledger.RecordView(r.Context(), user, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- favoritos e contatos ---

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	ids, err := h.Ledger.ListFavorites(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []domain.ProviderID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider_ids": ids})
}

func (h *Handler) isFavorite(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ok, err := h.Ledger.IsFavorite(r.Context(), user, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": ok})
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rec, err := h.Ledger.AddFavorite(r.Context(), user, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	removed, err := h.Ledger.RemoveFavorite(r.Context(), user, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (h *Handler) contact(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	id, err := providerParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.Limits.Check(r.Context(), user, domain.ActionContact); err != nil {
		h.Stats.Record(r.Context(), user, string(domain.ActionContact), outcomeOf(err))
		h.writeError(w, r, err)
		return
	}

	rec, err := h.Ledger.RecordContact(r.Context(), user, id)
	if err != nil {
		h.Stats.Record(r.Context(), user, string(domain.ActionContact), outcomeOf(err))
		h.writeError(w, r, err)
		return
	}
	h.Stats.Record(r.Context(), user, string(domain.ActionContact), domain.OutcomeAllowed)
	writeJSON(w, http.StatusCreated, rec)
}

func outcomeOf(err error) domain.Outcome {
	if errors.Is(err, domain.ErrLimitExceeded) {
		return domain.OutcomeDenied
	}
	return domain.OutcomeFailed
}

// --- cadastro ---

type registrationRequest struct {
	Input *string `json:"input"`
}

type registrationResponse struct {
	Registration domain.Registration `json:"registration"`
	Effects      []domain.Effect     `json:"effects,omitempty"`
}

func (h *Handler) registrationState(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	reg, err := h.Registration.Current(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationResponse{Registration: reg})
}

// register começa o fluxo com corpo vazio (ou sem "input") e avança com input.
func (h *Handler) register(w http.ResponseWriter, r *http.Request, user domain.UserID) {
	var req registrationRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, err)
		return
	}

	if req.Input == nil {
		reg, err := h.Registration.Begin(r.Context(), user)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, registrationResponse{Registration: reg})
		return
	}

	reg, effects, err := h.Registration.Submit(r.Context(), user, *req.Input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationResponse{Registration: reg, Effects: effects})
}

// --- estatísticas do operador ---

func (h *Handler) overview(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	ov, err := h.Stats.Overview(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (h *Handler) topRated(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.Stats.TopRated(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Provider{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": list})
}

func (h *Handler) mostContacted(w http.ResponseWriter, r *http.Request, _ domain.UserID) {
	limit, err := limitParam(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.Stats.MostContacted(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.ContactCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": list})
}
