package domain

import "strings"

// Language is a normalized (lowercase) BCP-47-ish target language tag.
type Language string

// supportedTargets is the closed set of languages a room may translate into.
var supportedTargets = map[Language]string{
	"sv":      "Swedish",
	"da":      "Danish",
	"nb":      "Norwegian Bokmål",
	"fi":      "Finnish",
	"en":      "English",
	"de":      "German",
	"fr":      "French",
	"es":      "Spanish",
	"it":      "Italian",
	"pt":      "Portuguese",
	"nl":      "Dutch",
	"pl":      "Polish",
	"uk":      "Ukrainian",
	"ru":      "Russian",
	"ja":      "Japanese",
	"ko":      "Korean",
	"zh-hans": "Chinese (Simplified)",
	"ar":      "Arabic",
}

// NormalizeTarget lowercases and trims tag and reports whether it is one of
// the supported target languages.
func NormalizeTarget(tag string) (Language, bool) {
	l := Language(strings.ToLower(strings.TrimSpace(tag)))
	_, ok := supportedTargets[l]
	return l, ok
}

// DisplayName returns the human-readable name of a supported language,
// or the tag itself when unknown.
func DisplayName(l Language) string {
	if name, ok := supportedTargets[l]; ok {
		return name
	}
	return string(l)
}

// SupportedTargets returns the supported tags, for the API surface.
func SupportedTargets() []Language {
	out := make([]Language, 0, len(supportedTargets))
	for l := range supportedTargets {
		out = append(out, l)
	}
	return out
}
