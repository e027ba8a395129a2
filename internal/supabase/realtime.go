package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RealtimeEvent is one postgres change delivered over the realtime socket.
type RealtimeEvent struct {
	Type      string                 `json:"type"` // INSERT, UPDATE, DELETE
	Schema    string                 `json:"schema"`
	Table     string                 `json:"table"`
	Record    map[string]interface{} `json:"record"`
	OldRecord map[string]interface{} `json:"old_record"`
	Timestamp time.Time              `json:"timestamp"`
}

// RealtimeHandler consumes realtime events.
type RealtimeHandler func(event RealtimeEvent)

// RealtimeClient subscribes to postgres change feeds over the Supabase
// realtime websocket (Phoenix channel protocol).
type RealtimeClient struct {
	client *Client

	mu      sync.Mutex
	conn    *websocket.Conn
	ref     int
	stopCh  chan struct{}
	started bool
}

type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// Subscribe opens the socket and listens for changes on schema.table,
// invoking handler for every event. It reconnects with a fixed backoff until
// ctx is cancelled or Close is called.
func (r *RealtimeClient) Subscribe(ctx context.Context, schema, table string, handler RealtimeHandler) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("realtime client already subscribed")
	}
	r.started = true
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx, schema, table, handler)
	return nil
}

// Close stops the subscription loop.
func (r *RealtimeClient) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	r.started = false
	close(r.stopCh)
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

func (r *RealtimeClient) run(ctx context.Context, schema, table string, handler RealtimeHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}

		if err := r.listen(ctx, schema, table, handler); err != nil {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (r *RealtimeClient) listen(ctx context.Context, schema, table string, handler RealtimeHandler) error {
	urlStr := r.client.realtimeURL + "?apikey=" + r.client.apiKey() + "&vsn=1.0.0"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, urlStr, nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.conn == conn {
			r.conn = nil
		}
		r.mu.Unlock()
		_ = conn.Close()
	}()

	topic := fmt.Sprintf("realtime:%s:%s", schema, table)
	join := map[string]interface{}{
		"config": map[string]interface{}{
			"postgres_changes": []map[string]string{
				{"event": "*", "schema": schema, "table": table},
			},
		},
	}
	if err := r.send(conn, topic, "phx_join", join); err != nil {
		return err
	}

	// Phoenix requires a heartbeat or the server drops the socket.
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-heartbeatDone:
				return
			case <-ticker.C:
				_ = r.send(conn, "phoenix", "heartbeat", map[string]interface{}{})
			}
		}
	}()

	for {
		var msg phoenixMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read realtime message: %w", err)
		}
		if msg.Event != "postgres_changes" {
			continue
		}

		var payload struct {
			Data struct {
				Type      string                 `json:"type"`
				Schema    string                 `json:"schema"`
				Table     string                 `json:"table"`
				Record    map[string]interface{} `json:"record"`
				OldRecord map[string]interface{} `json:"old_record"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			continue
		}

		handler(RealtimeEvent{
			Type:      payload.Data.Type,
			Schema:    payload.Data.Schema,
			Table:     payload.Data.Table,
			Record:    payload.Data.Record,
			OldRecord: payload.Data.OldRecord,
			Timestamp: time.Now(),
		})
	}
}

func (r *RealtimeClient) send(conn *websocket.Conn, topic, event string, payload interface{}) error {
	r.mu.Lock()
	r.ref++
	ref := r.ref
	r.mu.Unlock()

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(phoenixMessage{
		Topic:   topic,
		Event:   event,
		Payload: raw,
		Ref:     fmt.Sprintf("%d", ref),
	})
}
