package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScanEvent is an immutable record of one resolved scan
type ScanEvent struct {
	ID          uuid.UUID    `json:"id"`
	TagID       uuid.UUID    `json:"nfc_tag_id"`
	ResolvedURL string       `json:"resolved_url"`
	Kind        RedirectKind `json:"redirect_type"`
	ClientIP    string       `json:"client_ip"`
	UserAgent   string       `json:"user_agent"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AnalyticsEvent is the payload published to the analytics ingestion sink.
type AnalyticsEvent struct {
	EventType string             `json:"event_type"`
	EventData AnalyticsEventData `json:"event_data"`
}

type AnalyticsEventData struct {
	UID          string       `json:"uid"`
	Bizcode      string       `json:"bizcode"`
	TargetURL    string       `json:"target_url"`
	BaseURL      string       `json:"base_url"`
	RedirectType RedirectKind `json:"redirect_type"`
	UserAgent    string       `json:"user_agent"`
	IP           string       `json:"ip"`
	Title        string       `json:"title"`
	ScannedAt    time.Time    `json:"scanned_at"`
}

const EventTypeNFCRedirect = "nfc_redirect"
