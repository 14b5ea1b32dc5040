package service

import (
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// PresenceDirectory maps the nicknames currently in the room to stable
// identities and back. Both maps are kept exact inverses of each other.
type PresenceDirectory struct {
	mu         sync.RWMutex
	identities map[string]string // nick -> identity
	nicks      map[string]string // identity -> nick
}

func NewPresenceDirectory() *PresenceDirectory {
	return &PresenceDirectory{
		identities: make(map[string]string),
		nicks:      make(map[string]string),
	}
}

// Resolve returns the identity behind nick, or "" if the nick is unknown.
func (p *PresenceDirectory) Resolve(nick string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.identities[nick]
}

// ResolveNick returns the nickname an identity is currently using, or "".
func (p *PresenceDirectory) ResolveNick(identity string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.nicks[identity]
}

// Update applies a presence change and reports whether an online event
// introduced a nick that had no mapping before.
func (p *PresenceDirectory) Update(nick, identity string, online bool, newNick string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if identity == "" {
		identity = p.identities[nick]
	}

	l := log.With().
		Str("nick", nick).
		Str("identity", identity).
		Bool("online", online).
		Str("newNick", newNick).
		Logger()

	if online {
		if identity == "" {
			l.Debug().Msg("ignoring presence without identity")
			return false
		}

		prev, known := p.identities[nick]
		if known && prev != identity {
			delete(p.nicks, prev)
		}
		if oldNick, ok := p.nicks[identity]; ok && oldNick != nick {
			delete(p.identities, oldNick)
		}

		p.identities[nick] = identity
		p.nicks[identity] = nick

		l.Trace().Bool("new", !known).Msg("user online")
		return !known
	}

	if prev, ok := p.identities[nick]; ok {
		delete(p.identities, nick)
		if p.nicks[prev] == nick {
			delete(p.nicks, prev)
		}
	}
	if identity == "" {
		return false
	}

	if newNick != "" {
		if old, ok := p.nicks[identity]; ok {
			delete(p.identities, old)
		}
		if stale, ok := p.identities[newNick]; ok && stale != identity {
			delete(p.nicks, stale)
		}
		p.nicks[identity] = newNick
		p.identities[newNick] = identity
		l.Trace().Msg("user renamed")
		return false
	}

	l.Trace().Msg("user offline")

	return false
}

// Nicks returns the sorted nicknames currently present.
func (p *PresenceDirectory) Nicks() []string {
	p.mu.RLock()
	nicks := make([]string, 0, len(p.identities))
	for nick := range p.identities {
		nicks = append(nicks, nick)
	}
	p.mu.RUnlock()

	slices.Sort(nicks)
	return nicks
}

// Len returns the number of mapped users.
func (p *PresenceDirectory) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.identities)
}
