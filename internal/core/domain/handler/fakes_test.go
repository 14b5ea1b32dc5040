package handler

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"relaybot/internal/core/domain"
	"slices"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type fakeBot struct {
	mu     sync.Mutex
	sent   []string
	online map[string]string // identity -> nick
}

func (b *fakeBot) SendMessage(_ context.Context, text, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, text)
}

func (b *fakeBot) OnMessage(context.Context, domain.ChatMessage) {}

func (b *fakeBot) TunnelMessage(context.Context, domain.ChatMessage, string) {}

func (b *fakeBot) ResolveNick(identity string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online[identity]
}

func (b *fakeBot) OnlineUsers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Values(b.online))
}

func (b *fakeBot) messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

func (b *fakeBot) last() string {
	msgs := b.messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// memMap is an in-memory table with the ordering and matching rules of the
// badger-backed store.
type memMap struct {
	mu      sync.Mutex
	table   string
	live    bool
	initErr error
	data    map[string]string
}

func newMemMap() *memMap {
	return &memMap{data: make(map[string]string)}
}

func (m *memMap) Init(table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initErr != nil {
		return m.initErr
	}
	m.table = table
	m.live = true
	return nil
}

func (m *memMap) IsOK() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

func (m *memMap) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok && m.live
}

func (m *memMap) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live {
		return domain.ErrStoreUnavailable
	}
	m.data[key] = value
	return nil
}

func (m *memMap) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	delete(m.data, key)
	return ok && m.live
}

func (m *memMap) Find(pattern string, mode domain.FindMode) ([]domain.Record, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPattern, err)
	}

	var out []domain.Record
	m.ForEach(func(r domain.Record) bool {
		keyMatch := mode != domain.FindValues && re.MatchString(r.Key)
		valueMatch := mode != domain.FindKeys && re.MatchString(r.Value)
		if keyMatch || valueMatch {
			out = append(out, r)
		}
		return true
	})
	return out, nil
}

func (m *memMap) ForEach(visit func(domain.Record) bool) {
	m.mu.Lock()
	if !m.live {
		m.mu.Unlock()
		return
	}
	records := make([]domain.Record, 0, len(m.data))
	for _, k := range slices.Sorted(maps.Keys(m.data)) {
		records = append(records, domain.Record{Key: k, Value: m.data[k]})
	}
	m.mu.Unlock()

	for _, r := range records {
		if !visit(r) {
			return
		}
	}
}

type MockTextGenerator struct {
	mock.Mock
}

func (m *MockTextGenerator) GenerateFromPrompt(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockFeedReader struct {
	mock.Mock
}

func (m *MockFeedReader) Latest(ctx context.Context, url string) (domain.FeedItem, error) {
	args := m.Called(ctx, url)
	item, _ := args.Get(0).(domain.FeedItem)
	return item, args.Error(1)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
