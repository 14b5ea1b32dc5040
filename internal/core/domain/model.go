package domain

import (
	"strconv"
	"strings"
	"time"
)

// ChatMessage is a normalized message from any backend.
type ChatMessage struct {
	ID       string
	Nick     string
	Identity string
	Body     string
	IsAdmin  bool
	Private  bool
	// Module is empty for messages received from a backend and set to the
	// originating module when a handler synthesizes or tunnels a message.
	Module string
}

// PresenceEvent is a normalized join, leave or rename.
type PresenceEvent struct {
	Nick     string
	Identity string
	Online   bool
	// NewNick is only set when a user changes nickname, which backends report
	// as going offline under the old one.
	NewNick string
}

// Result tells the dispatcher whether later handlers should see a message.
type Result int

const (
	Continue Result = iota
	Stop
)

func (r Result) String() string {
	if r == Stop {
		return "stop"
	}
	return "continue"
}

// Record is a single key/value pair of a persistent table.
type Record struct {
	Key   string
	Value string
}

// FindMode selects what part of a record a search pattern is matched against.
type FindMode int

const (
	FindKeys FindMode = iota
	FindValues
	FindAll
)

// FormatDuration renders a duration as "1d 2h 3m 4s", omitting leading zero units.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	var parts []string
	if days > 0 {
		parts = append(parts, formatUnit(days, "d"))
	}
	if days > 0 || hours > 0 {
		parts = append(parts, formatUnit(hours, "h"))
	}
	if days > 0 || hours > 0 || minutes > 0 {
		parts = append(parts, formatUnit(minutes, "m"))
	}
	parts = append(parts, formatUnit(seconds, "s"))

	return strings.Join(parts, " ")
}

func formatUnit(v int64, unit string) string {
	return strconv.FormatInt(v, 10) + unit
}

// FeedItem is the newest entry of an RSS feed.
type FeedItem struct {
	Title       string
	Link        string
	PubDate     string
	Description string
	GUID        string
}
