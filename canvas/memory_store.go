package canvas

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store double for tests and for running the
// core against a canvas that hasn't stood up its own service yet.
type MemoryStore struct {
	mu          sync.Mutex
	cards       map[string]Card
	connections map[string]Connection
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:       make(map[string]Card),
		connections: make(map[string]Connection),
	}
}

func (m *MemoryStore) CreateCard(_ context.Context, card Card) (Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	m.cards[card.ID] = card
	return card, nil
}

func (m *MemoryStore) GetCard(_ context.Context, canvasID, cardID string) (Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok || card.CanvasID != canvasID {
		return Card{}, fmt.Errorf("canvas: card %q not found on canvas %q", cardID, canvasID)
	}
	return card, nil
}

func (m *MemoryStore) ListCards(_ context.Context, canvasID string) ([]Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Card
	for _, c := range m.cards {
		if c.CanvasID == canvasID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateCard(_ context.Context, canvasID, cardID string, patch CardPatch) (Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	card, ok := m.cards[cardID]
	if !ok || card.CanvasID != canvasID {
		return Card{}, fmt.Errorf("canvas: card %q not found on canvas %q", cardID, canvasID)
	}
	if patch.Title != nil {
		card.Title = *patch.Title
	}
	if patch.Content != nil {
		card.Content = *patch.Content
	}
	if patch.Tags != nil {
		card.Tags = patch.Tags
	}
	if patch.CardData != nil {
		card.CardData = patch.CardData
	}
	if patch.ParentID != nil {
		card.ParentID = *patch.ParentID
	}
	if patch.Conflict != nil {
		card.Conflict = *patch.Conflict
	}
	m.cards[cardID] = card
	return card, nil
}

func (m *MemoryStore) CreateConnection(_ context.Context, conn Connection) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.SourceID == conn.TargetID {
		return Connection{}, fmt.Errorf("canvas: self-loop connections are forbidden")
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	m.connections[conn.ID] = conn
	return conn, nil
}

func (m *MemoryStore) ListConnections(_ context.Context, canvasID string) ([]Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Connection
	for _, c := range m.connections {
		if c.CanvasID == canvasID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
