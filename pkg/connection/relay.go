package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// DefaultSubjectPrefix namespaces per-connection push subjects.
	DefaultSubjectPrefix = "flowrun.connections."
	// DefaultPushTimeout bounds one delivery round trip.
	DefaultPushTimeout = 2 * time.Second
	subscriptionBuffer = 64
)

// ErrConnectionGone means the client side of a binding no longer listens.
var ErrConnectionGone = errors.New("connection gone")

// Pusher delivers a payload to the client owning connectionID.
type Pusher interface {
	Push(ctx context.Context, connectionID string, payload []byte) error
}

// Relay is a Pusher whose receiving side can be subscribed to by the process
// that holds the client connection.
type Relay interface {
	Pusher
	// Subscribe returns a channel of payloads for connectionID and a function
	// that releases the subscription.
	Subscribe(ctx context.Context, connectionID string) (<-chan []byte, func(), error)
}

// MemoryRelay connects pushers and subscribers inside one process.
type MemoryRelay struct {
	mutex       sync.RWMutex
	subscribers map[string]chan []byte
}

var _ Relay = (*MemoryRelay)(nil)

func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{subscribers: make(map[string]chan []byte)}
}

func (r *MemoryRelay) Push(ctx context.Context, connectionID string, payload []byte) error {
	r.mutex.RLock()
	ch, ok := r.subscribers[connectionID]
	r.mutex.RUnlock()

	if !ok {
		return ErrConnectionGone
	}

	select {
	case ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *MemoryRelay) Subscribe(_ context.Context, connectionID string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriptionBuffer)

	r.mutex.Lock()
	if _, exists := r.subscribers[connectionID]; exists {
		r.mutex.Unlock()

		return nil, nil, fmt.Errorf("connection %s already subscribed", connectionID)
	}

	r.subscribers[connectionID] = ch
	r.mutex.Unlock()

	var once sync.Once

	release := func() {
		once.Do(func() {
			r.mutex.Lock()
			delete(r.subscribers, connectionID)
			r.mutex.Unlock()
		})
	}

	return ch, release, nil
}

// NATSRelay pushes payloads as NATS requests to a per-connection subject.
// The subscriber acknowledges each payload, so a push without responders
// reports ErrConnectionGone.
type NATSRelay struct {
	conn        *nats.Conn
	prefix      string
	pushTimeout time.Duration
}

var _ Relay = (*NATSRelay)(nil)

func NewNATSRelay(conn *nats.Conn, prefix string, pushTimeout time.Duration) *NATSRelay {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	if pushTimeout <= 0 {
		pushTimeout = DefaultPushTimeout
	}

	return &NATSRelay{conn: conn, prefix: prefix, pushTimeout: pushTimeout}
}

func (r *NATSRelay) subject(connectionID string) string {
	return r.prefix + connectionID
}

func (r *NATSRelay) Push(ctx context.Context, connectionID string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, r.pushTimeout)
	defer cancel()

	_, err := r.conn.RequestWithContext(ctx, r.subject(connectionID), payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return ErrConnectionGone
		}

		return fmt.Errorf("failed to push to connection %s: %w", connectionID, err)
	}

	return nil
}

func (r *NATSRelay) Subscribe(ctx context.Context, connectionID string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriptionBuffer)
	done := make(chan struct{})

	sub, err := r.conn.Subscribe(r.subject(connectionID), func(msg *nats.Msg) {
		select {
		case ch <- msg.Data:
			_ = msg.Respond([]byte("ok"))
		case <-done:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to subscribe connection %s: %w", connectionID, err)
	}

	var once sync.Once

	release := func() {
		once.Do(func() {
			close(done)
			_ = sub.Unsubscribe()
		})
	}

	return ch, release, nil
}

// ConnectNATS dials url with reconnect defaults suited to a long-running service.
func ConnectNATS(ctx context.Context, url, name string) (*nats.Conn, error) {
	type result struct {
		conn *nats.Conn
		err  error
	}

	resultCh := make(chan result, 1)

	go func() {
		conn, err := nats.Connect(url,
			nats.Name(name),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.Timeout(5*time.Second),
		)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("nats connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", res.err)
		}

		return res.conn, nil
	}
}
