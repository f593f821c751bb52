package domain

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

// Lang é o idioma de exibição de um usuário.
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
	LangUZ Lang = "uz"
)

var (
	supportedLangs = []Lang{LangEN, LangRU, LangUZ}
	langMatcher    = language.NewMatcher([]language.Tag{language.English, language.Russian, language.Uzbek})
)

// ParseLang resolve uma tag BCP 47 qualquer (ex: "ru-RU", "uz-Latn") para um
// idioma suportado. Tag vazia, inválida ou sem correspondência => fallback.
func ParseLang(s string, fallback Lang) Lang {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	tag, err := language.Parse(s)
	if err != nil {
		return fallback
	}
	_, idx, conf := langMatcher.Match(tag)
	if conf == language.No {
		return fallback
	}
	return supportedLangs[idx]
}

func (l Lang) Valid() bool {
	for _, s := range supportedLangs {
		if l == s {
			return true
		}
	}
	return false
}

// LocalizedText guarda um campo por idioma, resolvido em tempo de compilação.
type LocalizedText struct {
	EN string `json:"en"`
	RU string `json:"ru"`
	UZ string `json:"uz"`
}

func (t LocalizedText) get(l Lang) string {
	switch l {
	case LangRU:
		return t.RU
	case LangUZ:
		return t.UZ
	default:
		return t.EN
	}
}

// In devolve o texto no idioma pedido; vazio cai para fallback e depois para EN.
func (t LocalizedText) In(l, fallback Lang) string {
	if v := t.get(l); v != "" {
		return v
	}
	if v := t.get(fallback); v != "" {
		return v
	}
	return t.EN
}

type Location struct {
	ID     LocationID    `json:"id"`
	Names  LocalizedText `json:"names"`
	Active bool          `json:"active"`
}

func (l Location) Name(lang, fallback Lang) string { return l.Names.In(lang, fallback) }

type Category struct {
	ID           CategoryID    `json:"id"`
	Names        LocalizedText `json:"names"`
	Descriptions LocalizedText `json:"descriptions"`
	Icon         string        `json:"icon,omitempty"`
	Active       bool          `json:"active"`
}

func (c Category) Name(lang, fallback Lang) string { return c.Names.In(lang, fallback) }

func (c Category) Description(lang, fallback Lang) string {
	return c.Descriptions.In(lang, fallback)
}

// CatalogReader lê locais e categorias. Devolve ErrNotFound se não existir.
type CatalogReader interface {
	GetLocation(ctx context.Context, id LocationID) (Location, error)
	GetCategory(ctx context.Context, id CategoryID) (Category, error)
}
