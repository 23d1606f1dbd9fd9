// Package agent implements the Agent Controller (C8): the single-turn
// process_query loop, grounded on original_source/app/ai/agent.py's
// FinancialAgent, and its process-local conversation memory, grounded on
// the same original's ConversationManager. The teacher has no analogue for
// either; the concurrency shape (one mutex per shared entry, a background
// sweep) follows the pattern internal/jobs/inmemory.Store already uses for
// its job map.
package agent

import (
	"sync"
	"time"

	"github.com/dvloznov/finance-agent/internal/llm"
)

// Conversation is one process_query thread of messages. All mutation goes
// through its mutex so the controller's "per-conversation ordering"
// guarantee (spec.md §5) holds even if a caller races two requests for the
// same conversation_id.
type Conversation struct {
	mu         sync.Mutex
	ID         string
	Messages   []llm.Message
	LastActive time.Time
}

// Lock/Unlock expose the conversation's mutex directly so the controller
// can hold it across the whole process_query turn, not just individual
// slice mutations.
func (c *Conversation) Lock()   { c.mu.Lock() }
func (c *Conversation) Unlock() { c.mu.Unlock() }

func (c *Conversation) append(msg llm.Message, maxMessages int) {
	c.Messages = append(c.Messages, msg)
	if maxMessages > 0 && len(c.Messages) > maxMessages {
		c.Messages = c.Messages[len(c.Messages)-maxMessages:]
	}
	c.LastActive = time.Now()
}

// Memory is process-local conversation storage with a sliding per-
// conversation message cap and an idle TTL, swept in the background.
type Memory struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	ttl           time.Duration
	maxMessages   int
}

// NewMemory builds a Memory. ttl<=0 defaults to 1h idle; maxMessages<=0
// defaults to 50, matching spec.md §4.8's "sliding cap (e.g., last 50
// messages)" and "per-conversation TTL (e.g., 1h idle)".
func NewMemory(ttl time.Duration, maxMessages int) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxMessages <= 0 {
		maxMessages = 50
	}
	return &Memory{conversations: make(map[string]*Conversation), ttl: ttl, maxMessages: maxMessages}
}

// GetOrCreate returns the conversation for id, creating one if id is empty
// or unknown. Returns the conversation and its (possibly newly-assigned) id.
func (m *Memory) GetOrCreate(id string, newID func() string) (*Conversation, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "" {
		if conv, ok := m.conversations[id]; ok {
			return conv, id
		}
	}
	if id == "" {
		id = newID()
	}
	conv := &Conversation{ID: id, LastActive: time.Now()}
	m.conversations[id] = conv
	return conv, id
}

// Append adds msg to conv's history under the memory's sliding cap. conv
// must already be locked by the caller (the controller holds the
// conversation lock for the whole process_query turn).
func (m *Memory) Append(conv *Conversation, msg llm.Message) {
	conv.append(msg, m.maxMessages)
}

// Sweep removes every conversation idle longer than the TTL and returns how
// many were reclaimed. Run periodically from a background goroutine in the
// process that owns the Memory (cmd/api, cmd/worker), mirroring internal/jobs/inmemory's map-plus-mutex
// shape rather than adding a new concurrency primitive.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, conv := range m.conversations {
		conv.Lock()
		idle := now.Sub(conv.LastActive)
		conv.Unlock()
		if idle > m.ttl {
			delete(m.conversations, id)
			removed++
		}
	}
	return removed
}

// Count reports how many conversations are currently held, for health
// endpoints and tests.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conversations)
}
