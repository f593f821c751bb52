// Package logging monta o *slog.Logger do motor e os canais por componente.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Canais usados pelos componentes do motor.
const (
	ChannelStartup   = "startup"
	ChannelBrowse    = "browse"
	ChannelRateLimit = "ratelimit"
	ChannelRating    = "rating"
	ChannelLedger    = "ledger"
	ChannelCache     = "cache"
	ChannelStore     = "store"
	ChannelHTTP      = "http"
	ChannelStats     = "stats"
	ChannelSignup    = "registration"
)

type Options struct {
	Level  string    // debug | info | warn | error
	Format string    // json (padrão) | text
	Writer io.Writer // nil => stderr
}

// ParseLevel aceita os nomes do slog sem diferenciar maiúsculas.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if strings.TrimSpace(s) == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", s, err)
	}
	return l, nil
}

func New(o Options) (*slog.Logger, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}
	w := o.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(o.Format)) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, ho)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, ho)), nil
	default:
		return nil, fmt.Errorf("log format %q: want json or text", o.Format)
	}
}

// Channel marca o logger com o componente. Logger nil vira descarte.
func Channel(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l.With("channel", name)
}
