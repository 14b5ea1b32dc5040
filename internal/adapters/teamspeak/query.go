package teamspeak

import (
	"fmt"
	"relaybot/internal/core/domain"
	"strconv"
	"strings"
)

// Line is one parsed ServerQuery line: an optional command or event name
// followed by one or more '|' separated entries of key=value fields.
type Line struct {
	Name    string
	Entries []map[string]string
}

// Status is the result line closing every command response.
type Status struct {
	ID  int
	Msg string
}

func (s Status) OK() bool {
	return s.ID == 0
}

// ParseLine tokenizes a line by delimiters and decodes field values by name.
func ParseLine(raw string) (Line, error) {
	raw = strings.Trim(raw, "\r\n ")
	if raw == "" {
		return Line{}, fmt.Errorf("empty line: %w", domain.ErrMalformedLine)
	}

	var line Line
	if name, rest, _ := strings.Cut(raw, " "); !strings.Contains(name, "=") {
		line.Name = name
		raw = rest
	}

	for _, entry := range strings.Split(raw, "|") {
		fields := make(map[string]string)
		for _, token := range strings.Fields(entry) {
			key, value, _ := strings.Cut(token, "=")
			if key == "" {
				return Line{}, fmt.Errorf("token %q without key: %w", token, domain.ErrMalformedLine)
			}
			fields[key] = Unescape(value)
		}
		line.Entries = append(line.Entries, fields)
	}

	return line, nil
}

// Field returns a field of the first entry.
func (l Line) Field(key string) (string, bool) {
	if len(l.Entries) == 0 {
		return "", false
	}
	v, ok := l.Entries[0][key]
	return v, ok
}

// Status interprets an "error id=<n> msg=<text>" line.
func (l Line) Status() (Status, bool) {
	if l.Name != "error" {
		return Status{}, false
	}

	rawID, ok := l.Field("id")
	if !ok {
		return Status{}, false
	}
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return Status{}, false
	}

	msg, _ := l.Field("msg")
	return Status{ID: id, Msg: msg}, true
}

var unescaper = strings.NewReplacer(
	`\\`, `\`,
	`\/`, `/`,
	`\s`, ` `,
	`\p`, `|`,
	`\a`, "\a",
	`\b`, "\b",
	`\f`, "\f",
	`\n`, "\n",
	`\r`, "\r",
	`\t`, "\t",
	`\v`, "\v",
)

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`/`, `\/`,
	` `, `\s`,
	`|`, `\p`,
	"\a", `\a`,
	"\b", `\b`,
	"\f", `\f`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"\v", `\v`,
)

func Unescape(s string) string {
	return unescaper.Replace(s)
}

func Escape(s string) string {
	return escaper.Replace(s)
}
