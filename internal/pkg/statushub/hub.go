package statushub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const eventsChannel = "tapfinity:status_events"

// Event is a terminal request-state transition pushed to subscribers.
// Status fields are monotonic, so delivering the latest value once is
// equivalent to polling.
type Event struct {
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"` // "payment" | "provision"
	Status    string `json:"status"`

	// Origin identifies the publishing instance so the pub/sub echo of
	// our own publish is not delivered a second time.
	Origin string `json:"origin,omitempty"`
}

// Hub fans request-state transitions out to WebSocket subscribers. With a
// Redis client it also relays transitions across API instances, the same
// shape as the chat hub's pub/sub but keyed per request.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}

	instanceID string

	redis  *redis.Client
	pubsub *redis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(redisClient *redis.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		subs:       make(map[string]map[chan Event]struct{}),
		instanceID: uuid.NewString(),
		redis:      redisClient,
		ctx:        ctx,
		cancel:     cancel,
	}
	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(ctx, eventsChannel)
	}
	return h
}

// Run consumes cross-instance events until Close. No-op without Redis.
func (h *Hub) Run() {
	if h.pubsub == nil {
		return
	}
	ch := h.pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.relay(msg.Payload)
		}
	}
}

func (h *Hub) Close() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}

// Subscribe registers for events on one request id. The returned cancel
// func must be called when the client goes away.
func (h *Hub) Subscribe(requestID string) (<-chan Event, func()) {
	ch := make(chan Event, 4)

	h.mu.Lock()
	if h.subs[requestID] == nil {
		h.subs[requestID] = make(map[chan Event]struct{})
	}
	h.subs[requestID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[requestID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, requestID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish pushes a transition to local subscribers and, when Redis is
// configured, to every other instance. Publishing is best-effort: the
// status field in the database stays authoritative for pollers.
func (h *Hub) Publish(ctx context.Context, event Event) {
	event.Origin = h.instanceID
	h.deliver(event)

	if h.redis != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		if err := h.redis.Publish(ctx, eventsChannel, payload).Err(); err != nil {
			log.Warn().Err(err).Str("request_id", event.RequestID).Msg("failed to relay status event")
		}
	}
}

// relay handles one raw pub/sub payload. Our own publishes come back on
// the channel too; those were already delivered locally, so they are
// dropped here instead of reaching subscribers twice.
func (h *Hub) relay(payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		log.Warn().Err(err).Msg("malformed status event on pub/sub channel")
		return
	}
	if event.Origin == h.instanceID {
		return
	}
	h.deliver(event)
}

func (h *Hub) deliver(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[event.RequestID] {
		select {
		case ch <- event:
		default:
			// slow subscriber; it will see the terminal status on reconnect
		}
	}
}
