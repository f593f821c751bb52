package engagement

import (
	"log/slog"
	"net/http"
	"time"

	"marketplace-engine/engagement/application"
	"marketplace-engine/engagement/domain"
	"marketplace-engine/engagement/infra"
)

// ConcurrencyOptions limita requisições em voo. Max <= 0 desliga o middleware.
type ConcurrencyOptions struct {
	Max            int
	AcquireTimeout time.Duration
	// RetryAfter vai no header das respostas 503 (padrão 1s).
	RetryAfter time.Duration
	Stats      domain.StatsStore
	Logger     *slog.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
		Logger:         opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, adm := svc.Acquire(r.Context())
			switch adm {
			case application.Admitted:
				defer release()
				next.ServeHTTP(w, r)
			case application.Saturated:
				if opts.Stats != nil {
					user, _ := domain.ParseUserID(r.Header.Get(UserHeader))
					_ = opts.Stats.Record(r.Context(), domain.ActionEvent{
						User: user, Action: "request", Outcome: domain.OutcomeFailed, At: time.Now(),
					})
				}
				w.Header().Set("Retry-After", formatInt(int(opts.RetryAfter.Seconds())))
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "server busy"})
			default:
				// cliente já desistiu; não há quem leia o corpo
				w.WriteHeader(http.StatusServiceUnavailable)
			}
		})
	}
}
