package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandArgs(t *testing.T) {
	type TestCase struct {
		description string
		args        string
		want        string
	}

	testCases := []TestCase{
		{
			description: "should discard first word",
			args:        "!seen alice",
			want:        "alice",
		},
		{
			description: "should only discard first word",
			args:        "!aq hello there",
			want:        "hello there",
		},
		{
			description: "empty on no args",
			args:        "!gq",
			want:        "",
		},
		{
			description: "empty on no input",
			args:        "",
			want:        "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			got := ParseCommandArgs(testCase.args)

			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestParseCommand(t *testing.T) {
	type TestCase struct {
		description string
		args        string
		want        string
	}

	testCases := []TestCase{
		{
			description: "should return first word",
			args:        "!ts",
			want:        "!ts",
		},
		{
			description: "should discard following words",
			args:        "!help seen now",
			want:        "!help",
		},
		{
			description: "should lowercase",
			args:        "!HELP",
			want:        "!help",
		},
		{
			description: "empty on no input",
			args:        "",
			want:        "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			got := ParseCommand(testCase.args)

			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestCommandArguments(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		command string
		args    string
		ok      bool
	}{
		{name: "bare command", body: "!seen", command: "!seen", ok: true},
		{name: "with argument", body: "!seen bob", command: "!seen", args: "bob", ok: true},
		{name: "longer command is no match", body: "!seenjid bob", command: "!seen"},
		{name: "plain text", body: "hello", command: "!seen"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args, ok := CommandArguments(tc.body, tc.command)

			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.args, args)
		})
	}
}

func TestParseID(t *testing.T) {
	id, err := ParseID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "abc", "-1", "0", "4x"} {
		_, err := ParseID(bad)
		require.ErrorIs(t, err, ErrInvalidNumber, bad)
	}
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		name string
		in   time.Duration
		want string
	}{
		{name: "all units", in: 93784 * time.Second, want: "1d 2h 3m 4s"},
		{name: "seconds only", in: 5 * time.Second, want: "5s"},
		{name: "zero hours kept inside", in: 24*time.Hour + 5*time.Second, want: "1d 0h 0m 5s"},
		{name: "minutes", in: 61 * time.Second, want: "1m 1s"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatDuration(tc.in))
		})
	}
}

func TestNewMessageID(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
