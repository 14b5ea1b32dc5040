package teamspeak

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State int

const (
	NotConnected State = iota
	ServerQueryConnected
	Authorized
	VirtualServerConnected
	Subscribed
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "not connected"
	case ServerQueryConnected:
		return "serverquery connected"
	case Authorized:
		return "authorized"
	case VirtualServerConnected:
		return "virtual server connected"
	case Subscribed:
		return "subscribed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	greeting       = "Welcome to the TeamSpeak 3 ServerQuery interface"
	eventEnterView = "notifycliententerview"
	eventLeftView  = "notifyclientleftview"
	queryClient    = "1"

	keepaliveCommand = "whoami"
)

type Credentials struct {
	Login      string
	Password   string
	ServerPort int
}

// Machine is the ServerQuery session state. It consumes inbound lines and
// returns the commands to write back. States only move forward.
type Machine struct {
	creds    Credentials
	announce func(string)

	mu      sync.Mutex
	state   State
	clients map[string]string // clid -> nickname

	l zerolog.Logger
}

func NewMachine(creds Credentials, announce func(string)) *Machine {
	return &Machine{
		creds:    creds,
		announce: announce,
		clients:  make(map[string]string),
		l:        log.With().Str("adapter", "teamspeak").Logger(),
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Clients returns the nicknames of the tracked clients, sorted.
func (m *Machine) Clients() []string {
	m.mu.Lock()
	nicks := make([]string, 0, len(m.clients))
	for _, nick := range m.clients {
		nicks = append(nicks, nick)
	}
	m.mu.Unlock()

	slices.Sort(nicks)
	return nicks
}

// Feed applies one inbound line and returns the commands to send.
func (m *Machine) Feed(raw string) []string {
	m.mu.Lock()
	commands, announcements := m.feed(raw)
	m.mu.Unlock()

	for _, text := range announcements {
		m.announce(text)
	}

	return commands
}

func (m *Machine) feed(raw string) ([]string, []string) {
	if m.state == NotConnected {
		if !strings.Contains(raw, greeting) {
			return nil, nil
		}
		m.advance(ServerQueryConnected)
		return []string{fmt.Sprintf("login %s %s", Escape(m.creds.Login), Escape(m.creds.Password))}, nil
	}

	line, err := ParseLine(raw)
	if err != nil {
		m.l.Warn().Err(err).Str("line", raw).Msg("discarding line")
		return nil, nil
	}

	if m.state != Subscribed {
		return m.handshake(line), nil
	}

	switch line.Name {
	case eventEnterView:
		return nil, m.entered(line)
	case eventLeftView:
		return nil, m.left(line)
	default:
		return nil, nil
	}
}

func (m *Machine) handshake(line Line) []string {
	status, ok := line.Status()
	if !ok {
		return nil
	}
	if !status.OK() {
		m.l.Error().Int("id", status.ID).Str("msg", status.Msg).Stringer("state", m.state).
			Msg("serverquery command failed")
		return nil
	}

	switch m.state {
	case ServerQueryConnected:
		m.advance(Authorized)
		return []string{fmt.Sprintf("use port=%d", m.creds.ServerPort)}
	case Authorized:
		m.advance(VirtualServerConnected)
		return []string{"servernotifyregister event=server"}
	case VirtualServerConnected:
		m.advance(Subscribed)
	}

	return nil
}

func (m *Machine) entered(line Line) []string {
	var announcements []string

	for _, entry := range line.Entries {
		clid, nick := entry["clid"], entry["client_nickname"]
		if clid == "" || nick == "" {
			m.l.Warn().Interface("fields", entry).Msg("client enter without clid or nickname")
			continue
		}
		if entry["client_type"] == queryClient {
			continue
		}

		m.clients[clid] = nick
		announcements = append(announcements, "TeamSpeak user connected: "+nick)
	}

	return announcements
}

func (m *Machine) left(line Line) []string {
	var announcements []string

	for _, entry := range line.Entries {
		clid := entry["clid"]
		nick, ok := m.clients[clid]
		if !ok {
			m.l.Debug().Str("clid", clid).Msg("unknown client left")
			continue
		}

		delete(m.clients, clid)
		announcements = append(announcements, "TeamSpeak user disconnected: "+nick)
	}

	return announcements
}

func (m *Machine) advance(next State) {
	m.l.Info().Stringer("from", m.state).Stringer("to", next).Msg("serverquery state change")
	m.state = next
}
