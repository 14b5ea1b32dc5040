package service

import (
	"fmt"
	"relaybot/internal/core/port"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const initialDelay = time.Second

// Gateway serializes every send to the primary backend and slows bursts down
// instead of dropping them: each send arriving within the current delay of the
// previous one grows the delay by a second and waits it out.
type Gateway struct {
	backend port.Sender

	mutex    sync.Mutex
	lastSend time.Time
	delay    time.Duration

	now   func() time.Time
	sleep func(time.Duration)
}

func NewGateway(backend port.Sender) *Gateway {
	return &Gateway{
		backend: backend,
		delay:   initialDelay,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

func (g *Gateway) Send(text string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.now().Before(g.lastSend.Add(g.delay)) {
		g.delay += time.Second
		log.Debug().Dur("delay", g.delay).Msg("throttling outbound message")
		g.sleep(g.delay)
	} else {
		g.delay = initialDelay
	}

	err := g.backend.Send(text)
	g.lastSend = g.now()
	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}

	return nil
}

// Delay returns the delay the next burst send would be measured against.
func (g *Gateway) Delay() time.Duration {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.delay
}
