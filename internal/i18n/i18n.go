package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	mu          sync.RWMutex
	bundle      *i18n.Bundle
	defaultLang string
	log         = zerolog.Nop()
)

// Init loads the embedded translations. lang is used when a request names
// no language this service knows.
func Init(lang string, logger zerolog.Logger) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
	}

	mu.Lock()
	bundle = b
	defaultLang = tag.String()
	log = logger.With().Str("component", "i18n").Logger()
	mu.Unlock()

	log.Debug().Int("locales", len(entries)).Str("default", defaultLang).Msg("Translations loaded")
	return nil
}

// Languages lists the loaded language tags.
func Languages() []language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		return nil
	}
	return bundle.LanguageTags()
}

// NewLocalizer creates a localizer preferring langs in order. Each entry
// may be a tag or a full Accept-Language header value.
func NewLocalizer(langs ...string) *i18n.Localizer {
	mu.RLock()
	defer mu.RUnlock()
	if bundle == nil {
		return nil
	}
	return i18n.NewLocalizer(bundle, append(langs, defaultLang)...)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localizerFromCtx(ctx context.Context) *i18n.Localizer {
	if ctx != nil {
		if loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer); ok && loc != nil {
			return loc
		}
	}
	return NewLocalizer()
}

// T translates a message by ID. Unknown IDs come back unchanged.
func T(ctx context.Context, msgID string) string {
	return Td(ctx, msgID, nil)
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	loc := localizerFromCtx(ctx)
	if loc == nil {
		return msgID
	}
	s, err := loc.Localize(&i18n.LocalizeConfig{
		MessageID:    msgID,
		TemplateData: data,
	})
	if err != nil {
		log.Warn().Err(err).Str("id", msgID).Msg("Missing translation")
		return msgID
	}
	return s
}
