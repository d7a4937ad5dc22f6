package qa

import (
	"sync"

	"github.com/xhad/tubeqa/pkg/llm"
)

const DefaultSession = "default"

// Memory keeps the most recent turns of each session.
type Memory struct {
	mu       sync.Mutex
	maxTurns int
	sessions map[string][]llm.Turn
}

func NewMemory(maxTurns int) *Memory {
	if maxTurns <= 0 {
		maxTurns = 10
	}
	return &Memory{maxTurns: maxTurns, sessions: make(map[string][]llm.Turn)}
}

func (m *Memory) History(session string) []llm.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.sessions[session]
	out := make([]llm.Turn, len(turns))
	copy(out, turns)
	return out
}

func (m *Memory) Append(session string, turn llm.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := append(m.sessions[session], turn)
	if len(turns) > m.maxTurns {
		turns = turns[len(turns)-m.maxTurns:]
	}
	m.sessions[session] = turns
}

func (m *Memory) Reset(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, session)
}
