// Package mediagroups collects the parts of a Telegram album so the bot can
// treat the album as a single message.
package mediagroups

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultProcessDelay is how long to wait for the remaining parts of an album.
	DefaultProcessDelay = 1500 * time.Millisecond
	// DefaultMaxGroupSize is the largest album Telegram sends.
	DefaultMaxGroupSize = 10
)

// ProcessFunc handles a completed album. messages are ordered by message id.
type ProcessFunc func(ctx context.Context, groupID string, messages []telego.Message) error

type groupState struct {
	mu       sync.Mutex
	messages []telego.Message
	timer    *time.Timer
}

// Manager buffers album parts until no new part arrived for the process delay.
type Manager struct {
	groups  sync.Map // map[string]*groupState
	delay   time.Duration
	maxSize int
	handler ProcessFunc
	baseCtx context.Context
}

// NewManager creates a Manager that calls handler for every completed album.
// baseCtx is used for processing, so a cancelled update context does not drop
// an album whose timer fires later.
func NewManager(baseCtx context.Context, handler ProcessFunc, delay time.Duration, maxSize int) *Manager {
	if delay <= 0 {
		delay = DefaultProcessDelay
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxGroupSize
	}
	return &Manager{delay: delay, maxSize: maxSize, handler: handler, baseCtx: baseCtx}
}

// Add stores an album part. It reports false for messages that are not part of an album.
func (m *Manager) Add(message telego.Message) bool {
	if message.MediaGroupID == "" {
		return false
	}
	groupID := message.MediaGroupID

	state := m.lockGroup(groupID)
	defer state.mu.Unlock()

	for _, msg := range state.messages {
		if msg.MessageID == message.MessageID {
			return true
		}
	}
	if len(state.messages) >= m.maxSize {
		log.Warn().Str("group_id", groupID).Int("message_id", message.MessageID).Msg("[MediaGroups] Album limit reached, part dropped")
		return true
	}

	state.messages = append(state.messages, message)
	sort.Slice(state.messages, func(i, j int) bool {
		return state.messages[i].MessageID < state.messages[j].MessageID
	})

	// Every new part pushes the deadline back.
	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = time.AfterFunc(m.delay, func() { m.flush(groupID) })
	return true
}

// lockGroup returns the live state of groupID, locked. A state that a flush
// removed between the lookup and the lock is never returned.
func (m *Manager) lockGroup(groupID string) *groupState {
	for {
		val, _ := m.groups.LoadOrStore(groupID, &groupState{
			messages: make([]telego.Message, 0, m.maxSize),
		})
		state := val.(*groupState)

		state.mu.Lock()
		if current, ok := m.groups.Load(groupID); ok && current == val {
			return state
		}
		state.mu.Unlock()
	}
}

func (m *Manager) flush(groupID string) {
	messages := m.take(groupID)
	if len(messages) == 0 {
		return
	}

	log.Debug().Str("group_id", groupID).Int("parts", len(messages)).Msg("[MediaGroups] Processing album")
	if err := m.handler(m.baseCtx, groupID, messages); err != nil {
		log.Error().Err(err).Str("group_id", groupID).Msg("[MediaGroups] Album handler failed")
		sentry.CaptureException(err)
	}
}

// take removes a group and returns a copy of its messages.
func (m *Manager) take(groupID string) []telego.Message {
	val, loaded := m.groups.LoadAndDelete(groupID)
	if !loaded {
		return nil
	}
	state := val.(*groupState)

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}

	out := make([]telego.Message, len(state.messages))
	copy(out, state.messages)
	return out
}

// Pending returns the number of albums still being collected.
func (m *Manager) Pending() int {
	n := 0
	m.groups.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Shutdown stops every pending timer. Albums still being collected are dropped.
func (m *Manager) Shutdown() {
	stopped := 0
	m.groups.Range(func(key, value interface{}) bool {
		state := value.(*groupState)
		state.mu.Lock()
		if state.timer != nil && state.timer.Stop() {
			stopped++
		}
		state.timer = nil
		state.mu.Unlock()
		m.groups.Delete(key)
		return true
	})
	log.Info().Int("stopped", stopped).Msg("[MediaGroups] Shutdown complete")
}

// Lead picks the part that represents the album: the first one with a
// caption, or the first part.
func Lead(messages []telego.Message) telego.Message {
	for _, msg := range messages {
		if msg.Caption != "" {
			return msg
		}
	}
	return messages[0]
}
