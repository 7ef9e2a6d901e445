package proactive

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/stellarlinkco/reverie/internal/connect"
	"github.com/stellarlinkco/reverie/internal/llm"
	"github.com/stellarlinkco/reverie/internal/memory"
)

// Status is the outcome of one delivery attempt.
type Status string

const (
	// StatusDelivered: the message is in history and was pushed (or the
	// push failed after persistence, which still consumes the engagement).
	StatusDelivered Status = "delivered"
	// StatusPending: the user was offline; nothing was generated or
	// persisted, and the engagement stays queued.
	StatusPending Status = "pending"
	// StatusFailed: persistence failed; the engagement stays queued.
	StatusFailed Status = "failed"
)

const ReasonUserOffline = "user_offline"

// Result reports what happened to one engagement. MessageID is set only
// for StatusDelivered; Reason only for the other two.
type Result struct {
	Status    Status
	MessageID string
	Reason    string
}

const proactivePrompt = `You are %s reaching out to the user on your own initiative.
Context for why you are reaching out:
%s

Write a short, warm message in character. Output only the message text.`

// historyAppender is the slice of the memory engine the deliverer needs.
type historyAppender interface {
	AppendMessage(sessionID, role, content string) (memory.Message, error)
}

// presence is the slice of the connection registry the deliverer needs.
type presence interface {
	IsConnected(userID string) bool
	Deliver(userID string, payload []byte) bool
}

// Deliverer turns one due engagement into a persisted, pushed character
// message. The offline check comes before any generation so that absent
// users cost nothing.
type Deliverer struct {
	registry  presence
	history   historyAppender
	client    llm.Client
	model     string
	character string
	maxTokens int
}

func NewDeliverer(registry presence, history historyAppender, client llm.Client, model, character string, maxTokens int) *Deliverer {
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Deliverer{
		registry:  registry,
		history:   history,
		client:    client,
		model:     model,
		character: character,
		maxTokens: maxTokens,
	}
}

// Deliver attempts one engagement. Persist-then-push: the message enters
// history before the socket write, so a dropped push never loses content.
func (d *Deliverer) Deliver(ctx context.Context, eng Engagement) Result {
	if !d.registry.IsConnected(eng.UserID) {
		return Result{Status: StatusPending, Reason: ReasonUserOffline}
	}

	content := strings.TrimSpace(eng.EngagementContent)
	if content == "" {
		generated, err := d.client.Complete(ctx, llm.Request{
			Model:       d.model,
			Prompt:      fmt.Sprintf(proactivePrompt, d.character, eng.TriggerContext),
			Temperature: 0.8,
			MaxTokens:   d.maxTokens,
		})
		if err != nil {
			log.Printf("[proactive] generation failed for engagement %s, falling back to trigger context: %v", eng.ID, err)
			content = eng.TriggerContext
		} else {
			content = generated
		}
	}

	msg, err := d.history.AppendMessage(eng.SessionID, "assistant", content)
	if err != nil {
		return Result{
			Status: StatusFailed,
			Reason: fmt.Sprintf("persist proactive message: %v", err),
		}
	}

	payload, err := json.Marshal(connect.Envelope{
		Type:        connect.EnvelopeProactive,
		MessageID:   msg.ID,
		SessionID:   eng.SessionID,
		CharacterID: eng.CharacterID,
		Content:     content,
	})
	if err != nil {
		log.Printf("[proactive] marshal envelope for engagement %s: %v", eng.ID, err)
	} else if !d.registry.Deliver(eng.UserID, payload) {
		// The message survives in history; the client catches up on the
		// next fetch.
		log.Printf("[proactive] push to user %s failed after persist, message %s kept in history", eng.UserID, msg.ID)
	}

	return Result{Status: StatusDelivered, MessageID: msg.ID}
}
