package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/stellarlinkco/reverie/internal/config"
	"github.com/stellarlinkco/reverie/internal/connect"
	"github.com/stellarlinkco/reverie/internal/llm"
	"github.com/stellarlinkco/reverie/internal/memory"
)

// Scorer assigns the initial significance vector to a stored message.
type Scorer interface {
	Score(ctx context.Context, role, content string) (memory.WeightVector, error)
}

// Searcher runs deep memory search for one utterance.
type Searcher interface {
	Search(ctx context.Context, sessionID, utterance string, recentIDs []string, minTotal int) ([]memory.WeightedMessage, error)
}

// Presence pushes payloads to a user's live connection.
type Presence interface {
	Deliver(userID string, payload []byte) bool
}

// Service handles one chat turn end to end: persist the utterance, recall
// what matters, generate in character, persist and push the reply.
type Service struct {
	engine   *memory.Engine
	scorer   Scorer
	searcher Searcher
	registry Presence
	client   llm.Client

	model           string
	maxTokens       int
	characterName   string
	persona         string
	recentWindow    int
	significanceMin int
}

func NewService(engine *memory.Engine, scorer Scorer, searcher Searcher, registry Presence, client llm.Client, cfg *config.Config) *Service {
	return &Service{
		engine:          engine,
		scorer:          scorer,
		searcher:        searcher,
		registry:        registry,
		client:          client,
		model:           cfg.Provider.Model,
		maxTokens:       cfg.Provider.MaxTokens,
		characterName:   cfg.Character.Name,
		persona:         cfg.Character.Persona,
		recentWindow:    cfg.Memory.RecentWindow,
		significanceMin: cfg.Memory.SignificanceMin,
	}
}

// HandleTurn processes one inbound utterance. Scoring and deep search are
// best effort: a broken scorer or search degrades to a plain reply, never
// a dead turn. Persistence failures are fatal for the turn.
func (s *Service) HandleTurn(ctx context.Context, userID, sessionID, content string) error {
	userMsg, err := s.engine.AppendMessage(sessionID, "user", content)
	if err != nil {
		return fmt.Errorf("handle turn (session %s): %w", sessionID, err)
	}
	s.scoreMessage(ctx, sessionID, userMsg)

	recent, err := s.engine.RecentMessages(sessionID, s.recentWindow)
	if err != nil {
		return fmt.Errorf("handle turn (session %s): %w", sessionID, err)
	}
	recentIDs := make([]string, len(recent))
	for i, m := range recent {
		recentIDs[i] = m.ID
	}

	memories, err := s.searcher.Search(ctx, sessionID, content, recentIDs, s.significanceMin)
	if err != nil {
		log.Printf("[chat] deep search failed, replying without memories: %v", err)
		memories = nil
	}
	for _, m := range memories {
		if err := s.engine.IncrementRecall(sessionID, m.Message.ID); err != nil {
			log.Printf("[chat] increment recall for message %s: %v", m.Message.ID, err)
		}
	}

	reply, err := s.client.Complete(ctx, llm.Request{
		Model:       s.model,
		System:      s.systemPrompt(memories),
		Prompt:      s.turnPrompt(recent, content),
		Temperature: 0.8,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return fmt.Errorf("handle turn (session %s): %w", sessionID, err)
	}

	replyMsg, err := s.engine.AppendMessage(sessionID, "assistant", reply)
	if err != nil {
		return fmt.Errorf("handle turn (session %s): %w", sessionID, err)
	}
	s.scoreMessage(ctx, sessionID, replyMsg)

	payload, err := json.Marshal(connect.Envelope{
		Type:      connect.EnvelopeMessage,
		MessageID: replyMsg.ID,
		SessionID: sessionID,
		Content:   reply,
	})
	if err != nil {
		return fmt.Errorf("handle turn (session %s): %w", sessionID, err)
	}
	if !s.registry.Deliver(userID, payload) {
		// The reply is already durable; a dropped socket just means the
		// client reads it from history later.
		log.Printf("[chat] push reply to user %s failed, message %s kept in history", userID, replyMsg.ID)
	}
	return nil
}

// scoreMessage is best effort: an unscored message just never surfaces in
// deep search.
func (s *Service) scoreMessage(ctx context.Context, sessionID string, msg memory.Message) {
	if s.scorer == nil {
		return
	}
	v, err := s.scorer.Score(ctx, msg.Role, msg.Content)
	if err != nil {
		log.Printf("[chat] score message %s: %v", msg.ID, err)
		return
	}
	if _, err := s.engine.SaveWeight(sessionID, msg.ID, v); err != nil {
		log.Printf("[chat] save weight for message %s: %v", msg.ID, err)
	}
}

func (s *Service) systemPrompt(memories []memory.WeightedMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. %s\n", s.characterName, s.persona)
	b.WriteString("Stay in character. Reply with the message text only.\n")

	if len(memories) > 0 {
		b.WriteString("\nThings you remember from earlier that feel relevant now:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s: %s\n", m.Message.Role, m.Message.Content)
		}
	}
	return b.String()
}

func (s *Service) turnPrompt(recent []memory.Message, content string) string {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "The user just said: %s", content)
	return b.String()
}
