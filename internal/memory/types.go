package memory

import (
	"errors"
	"time"
)

var (
	// ErrWeightNotFound is returned when a recall/update targets a
	// session/message pair that was never scored. Callers must see this;
	// losing recall bookkeeping silently would corrupt ranking over time.
	ErrWeightNotFound = errors.New("memory weight not found")

	// ErrWeightExists is returned when a message is scored twice. Weights
	// are created once and mutated only through UpdateWeights.
	ErrWeightExists = errors.New("memory weight already exists")
)

// MemoryType classifies what kind of recall value a stored exchange has.
type MemoryType string

const (
	TypeConversational MemoryType = "conversational"
	TypeEmotional      MemoryType = "emotional"
	TypeFactual        MemoryType = "factual"
	TypeRelational     MemoryType = "relational"
)

// ValidMemoryType reports whether t is one of the known memory types.
func ValidMemoryType(t MemoryType) bool {
	switch t {
	case TypeConversational, TypeEmotional, TypeFactual, TypeRelational:
		return true
	}
	return false
}

// WeightVector holds the four significance dimensions, each in [0,10].
type WeightVector struct {
	EmotionalImpact       int        `json:"emotional_impact"`
	RelationshipRelevance int        `json:"relationship_relevance"`
	PersonalSignificance  int        `json:"personal_significance"`
	ContextualImportance  int        `json:"contextual_importance"`
	MemoryType            MemoryType `json:"memory_type"`
}

// Total is the single ordering key: the equal-weighted sum of the four
// dimensions, in [0,40]. It is always derived, never persisted.
func (v WeightVector) Total() int {
	return v.EmotionalImpact + v.RelationshipRelevance + v.PersonalSignificance + v.ContextualImportance
}

// Clamped returns a copy with each dimension forced into [0,10] and an
// unknown memory type replaced by conversational.
func (v WeightVector) Clamped() WeightVector {
	v.EmotionalImpact = clampDim(v.EmotionalImpact)
	v.RelationshipRelevance = clampDim(v.RelationshipRelevance)
	v.PersonalSignificance = clampDim(v.PersonalSignificance)
	v.ContextualImportance = clampDim(v.ContextualImportance)
	if !ValidMemoryType(v.MemoryType) {
		v.MemoryType = TypeConversational
	}
	return v
}

func clampDim(n int) int {
	if n < 0 {
		return 0
	}
	if n > 10 {
		return 10
	}
	return n
}

// MemoryWeight is the persisted significance record for one message.
type MemoryWeight struct {
	ID              string
	MessageID       string
	SessionID       string
	Vector          WeightVector
	RecallFrequency int
	LastRecalledAt  *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message is one append-only chat history row.
type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// WeightedMessage pairs a message with its weight for ranking.
type WeightedMessage struct {
	Message           Message
	Weight            MemoryWeight
	TotalSignificance int
}
