package memory

import "time"

// Message is one turn of a conversation, the unit GraphBasedMemory
// stores and retrieves.
type Message struct {
	ID         string
	Role       string
	Content    string
	Timestamp  time.Time
	TokenCount int
}

// Stats reports how much of a memory's stored history is active context
// versus compressed away.
type Stats struct {
	TotalMessages   int
	TotalTokens     int
	ActiveMessages  int
	ActiveTokens    int
	CompressionRate float64
}
