package app

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/MRCCollective/Babbler/internal/domain"
)

// PublishUpdate takes a recognition result from the presenter's client,
// resolves the text for the room's target language and fans it out. Publishes
// against a stopped or unknown room are dropped silently: a client that has
// not yet observed a server-side stop must not be punished for the race.
func (c *Coordinator) PublishUpdate(rawID string, p domain.ClientPublish) {
	id, err := NormalizeRoomID(rawID)
	if err != nil {
		return
	}

	c.mu.Lock()
	room, ok := c.roomLocked(id)
	if !ok || !room.IsRunning {
		c.mu.Unlock()
		log.Debug().Str("module", "app.publish").Str("room", rawID).Msg("publish dropped, room not running")
		return
	}
	now := c.now()

	src := strings.TrimSpace(p.SourceText)
	translated := resolveTranslation(room.TargetLanguage, p.Translations)
	if translated == "" {
		// Caption-only mode: show the source text as-is.
		translated = src
	}
	if translated == "" {
		c.mu.Unlock()
		return
	}

	room.LastClientPublishAt = now
	room.LastSourceText = src
	room.LastTranslatedText = translated

	sourceLang := p.SourceLanguage
	if sourceLang == "" {
		sourceLang = room.SourceLanguage
	}
	upd := domain.TranslationUpdate{
		SourceText:     src,
		TranslatedText: translated,
		SourceLanguage: sourceLang,
		TargetLanguage: string(room.TargetLanguage),
		Translations:   p.Translations,
		IsFinal:        p.IsFinal,
		Timestamp:      now.UTC(),
	}
	c.mu.Unlock()

	// Deliberately outside the gate: slow subscribers must not block rooms.
	c.notify(id, upd)
}

// resolveTranslation picks the display text for target from the supplied
// translations: case-insensitive exact key match, then prefix match (an
// "en-US" key satisfies a bare "en" target), then any non-empty value as a
// last resort. The last tier can surface text in an unrelated language when
// the recognizer produced none for the target; that behavior is intentional.
func resolveTranslation(target domain.Language, translations map[string]string) string {
	t := strings.ToLower(string(target))
	for k, v := range translations {
		if v != "" && strings.ToLower(k) == t {
			return v
		}
	}
	for k, v := range translations {
		if v != "" && strings.HasPrefix(strings.ToLower(k), t) {
			return v
		}
	}
	for _, v := range translations {
		if v != "" {
			return v
		}
	}
	return ""
}
