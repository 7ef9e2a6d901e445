package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// inboundFrame is what clients send up the socket.
type inboundFrame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Gateway owns the websocket endpoint that feeds the registry. One user,
// one socket: a reconnect replaces the previous connection.
type Gateway struct {
	registry *Registry
	host     string
	port     int
	server   *http.Server

	// OnMessage handles one inbound utterance. Set before Start.
	OnMessage func(ctx context.Context, userID, sessionID, content string)
}

func NewGateway(registry *Registry, host string, port int) *Gateway {
	return &Gateway{
		registry: registry,
		host:     host,
		port:     port,
	}
}

func (g *Gateway) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)

	g.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", g.host, g.port),
		Handler: mux,
	}

	go func() {
		log.Printf("[gateway] listening on %s", g.server.Addr)
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[gateway] server error: %v", err)
		}
	}()

	return nil
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	sessionID := r.URL.Query().Get("session")
	if userID == "" || sessionID == "" {
		http.Error(w, "user and session query parameters are required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[gateway] websocket accept error: %v", err)
		return
	}

	ch := newWSChannel(conn)
	if err := g.registry.Register(userID, ch); err != nil {
		log.Printf("[gateway] register user %s: %v", userID, err)
		conn.CloseNow()
		return
	}
	log.Printf("[gateway] user connected: %s", userID)

	defer func() {
		g.registry.Release(userID, ch)
		ch.Close(statusGoingAway, "client disconnected")
		conn.CloseNow()
		log.Printf("[gateway] user disconnected: %s", userID)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Type != EnvelopeMessage || frame.Content == "" {
			continue
		}

		if g.OnMessage != nil {
			g.OnMessage(r.Context(), userID, sessionID, frame.Content)
		}
	}
}

func (g *Gateway) Stop() error {
	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.server.Shutdown(ctx); err != nil {
			log.Printf("[gateway] shutdown error: %v", err)
		}
	}
	log.Printf("[gateway] stopped")
	return nil
}
