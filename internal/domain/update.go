package domain

import "time"

// TranslationUpdate is the transient payload fanned out to display clients.
// It is never persisted.
type TranslationUpdate struct {
	SourceText     string            `json:"sourceText,omitempty"`
	TranslatedText string            `json:"translatedText,omitempty"`
	SourceLanguage string            `json:"sourceLanguage,omitempty"`
	TargetLanguage string            `json:"targetLanguage,omitempty"`
	Translations   map[string]string `json:"translations,omitempty"`
	IsFinal        bool              `json:"isFinal"`
	Timestamp      time.Time         `json:"timestamp"`
	SystemMessage  string            `json:"systemMessage,omitempty"`
}

// ClientPublish is what the presenter's recognition client sends over the
// realtime channel. encoding/json matches keys case-insensitively, so both
// camelCase and PascalCase spellings from loosely-typed clients decode here.
type ClientPublish struct {
	SourceText     string            `json:"sourceText"`
	SourceLanguage string            `json:"sourceLanguage"`
	IsFinal        bool              `json:"isFinal"`
	Translations   map[string]string `json:"translations"`
}
