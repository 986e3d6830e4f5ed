// Package domain contains entity types without behavior beyond validation.
package domain

import "time"

type RoomID string

// Room is an isolated broadcast session. PIN and AccessToken are generated
// once at creation and never change; every other field is mutated only by the
// coordinator while it holds its gate.
type Room struct {
	ID          RoomID
	PIN         string
	AccessToken string

	SourceLanguage string
	TargetLanguage Language

	IsRunning          bool
	SessionStartedAt   time.Time // zero unless running
	LastStateChangedAt time.Time
	LastStoppedAt      time.Time
	LastStopReason     string

	LastClientPublishAt time.Time
	LastSourceText      string
	LastTranslatedText  string
}
