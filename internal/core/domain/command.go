package domain

import (
	"strconv"
	"strings"

	"github.com/gofrs/uuid/v5"
)

// ParseCommandArgs returns everything after the first word.
func ParseCommandArgs(args string) string {
	command := strings.Split(args, " ")
	return strings.TrimSpace(strings.Join(command[1:], " "))
}

// ParseCommand returns the lowercased first word.
func ParseCommand(args string) string {
	command := strings.Split(args, " ")
	return strings.ToLower(command[0])
}

// CommandArguments reports whether body invokes command and returns its
// trimmed arguments. "!seenfoo" does not invoke "!seen".
func CommandArguments(body, command string) (string, bool) {
	if ParseCommand(body) != command {
		return "", false
	}

	return ParseCommandArgs(body), true
}

// ParseID parses a positive numeric identifier typed by a user.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidNumber
	}

	return id, nil
}

// NewMessageID returns a trace id for a dispatched message.
func NewMessageID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return ""
	}

	return id.String()
}
