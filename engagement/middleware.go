package engagement

import (
	"net"
	"net/http"
	"strings"
	"time"

	"marketplace-engine/engagement/application"
	"marketplace-engine/engagement/domain"
)

// UserHeader identifica o usuário em todas as rotas do motor.
const UserHeader = "X-User-Id"

type KeyFunc func(r *http.Request) string

// FloodOptions configura o guarda de rajada por usuário.
type FloodOptions struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// DefaultKeyFunc usa o id do usuário; sem ele, cai para o IP do cliente.
func DefaultKeyFunc(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if v := strings.TrimSpace(r.Header.Get(UserHeader)); v != "" {
			return "user:" + v
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				ip := strings.TrimSpace(strings.Split(xff, ",")[0])
				if ip != "" {
					return "ip:" + ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return "ip:" + host
		}
		if r.RemoteAddr != "" {
			return "ip:" + r.RemoteAddr
		}
		return "unknown"
	}
}

// FloodGuard nega com 429 + Retry-After quando o bucket do usuário esvazia.
// É independente das cotas de contato/avaliação (essas ficam no RateLimiter).
func FloodGuard(opts FloodOptions) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.TrustXForwardedFor)
	}

	svc := application.FloodService{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Key", key)
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := svc.Decide(domain.Key(key))
			if !dec.Allowed {
				if opts.Stats != nil {
					user, _ := domain.ParseUserID(r.Header.Get(UserHeader))
					_ = opts.Stats.Record(r.Context(), domain.ActionEvent{
						User:    user,
						Action:  "request",
						Outcome: domain.OutcomeDenied,
						At:      time.Now(),
					})
				}
				w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
				writeJSON(w, opts.RejectStatus, errorBody{Error: "too many requests"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
