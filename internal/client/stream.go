package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/session"
	"github.com/kapu/persona-script-go/internal/util"
)

type EventCallback func(ev session.Event)

type StateCallback func(state StreamState)

type eventCallbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// EventStream follows a session's event feed and reconnects after drops.
type EventStream struct {
	url                  string
	conn                 *websocket.Conn
	connMu               sync.Mutex
	state                StreamState
	stateMu              sync.RWMutex
	eventCallbacks       []eventCallbackEntry
	stateCallbacks       []stateCallbackEntry
	nextCallbackID       int
	callbacksMu          sync.RWMutex
	reconnectAttempts    int
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	logger               *zap.Logger
	stopCh               chan struct{}
	stopOnce             sync.Once
	doneCh               chan struct{}
	doneOnce             sync.Once
	listenerWg           sync.WaitGroup
}

func NewEventStream(url string, maxReconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *EventStream {
	return &EventStream{
		url:                  url,
		state:                StreamDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		logger:               logger,
		stopCh:               make(chan struct{}),
		doneCh:               make(chan struct{}),
		nextCallbackID:       1,
	}
}

func (es *EventStream) Connect(ctx context.Context) error {
	es.stateMu.Lock()
	if es.state == StreamConnected || es.state == StreamConnecting {
		es.stateMu.Unlock()
		es.logger.Warn("Event stream already connected or connecting")
		return nil
	}
	es.stateMu.Unlock()

	es.setState(StreamConnecting)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, es.url, nil)
	if err != nil {
		es.logger.Error("Failed to connect event stream", zap.Error(err))
		es.setState(StreamFailed)
		es.scheduleReconnect(ctx)
		return err
	}

	es.connMu.Lock()
	es.conn = conn
	es.reconnectAttempts = 0
	es.connMu.Unlock()
	es.setState(StreamConnected)

	es.logger.Info("Event stream connected", zap.String("url", es.url))

	es.listenerWg.Add(1)
	go es.listen(ctx, conn)

	return nil
}

func (es *EventStream) listen(ctx context.Context, conn *websocket.Conn) {
	defer es.listenerWg.Done()
	defer es.logger.Debug("Event stream listener stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-es.stopCh:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-es.stopCh:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway) {
				es.logger.Info("Server closed the event stream")
				es.setState(StreamDisconnected)
				es.finish()
				return
			}
			es.logger.Warn("Event stream read error", zap.Error(err))
			es.setState(StreamDisconnected)
			es.scheduleReconnect(ctx)
			return
		}

		es.handleMessage(data)
	}
}

func (es *EventStream) handleMessage(data []byte) {
	var ev session.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		es.logger.Error("Failed to parse event",
			zap.Error(err),
			zap.String("data", util.Preview(string(data), 200)),
		)
		return
	}

	es.callbacksMu.RLock()
	callbacks := make([]eventCallbackEntry, len(es.eventCallbacks))
	copy(callbacks, es.eventCallbacks)
	es.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(ev)
	}
}

func (es *EventStream) scheduleReconnect(ctx context.Context) {
	es.connMu.Lock()
	es.reconnectAttempts++
	attempt := es.reconnectAttempts
	es.connMu.Unlock()

	if attempt > es.maxReconnectAttempts {
		es.logger.Error("Max reconnect attempts reached", zap.Int("attempts", attempt))
		es.setState(StreamFailed)
		es.finish()
		return
	}

	es.setState(StreamReconnecting)

	es.logger.Info("Scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Int("max", es.maxReconnectAttempts),
		zap.Duration("delay", es.reconnectDelay),
	)

	go func() {
		select {
		case <-time.After(es.reconnectDelay):
			if err := es.Connect(ctx); err != nil {
				es.logger.Warn("Reconnect failed", zap.Error(err))
			}
		case <-es.stopCh:
		case <-ctx.Done():
		}
	}()
}

// Done is closed once the stream stops for good: the server closed it, reconnects ran
// out or Disconnect was called.
func (es *EventStream) Done() <-chan struct{} {
	return es.doneCh
}

func (es *EventStream) finish() {
	es.doneOnce.Do(func() { close(es.doneCh) })
}

func (es *EventStream) OnEvent(callback EventCallback) func() {
	es.callbacksMu.Lock()
	id := es.nextCallbackID
	es.nextCallbackID++
	es.eventCallbacks = append(es.eventCallbacks, eventCallbackEntry{id: id, callback: callback})
	es.callbacksMu.Unlock()

	return func() {
		es.callbacksMu.Lock()
		defer es.callbacksMu.Unlock()
		for i, entry := range es.eventCallbacks {
			if entry.id == id {
				es.eventCallbacks = append(es.eventCallbacks[:i], es.eventCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (es *EventStream) OnStateChange(callback StateCallback) func() {
	es.callbacksMu.Lock()
	id := es.nextCallbackID
	es.nextCallbackID++
	es.stateCallbacks = append(es.stateCallbacks, stateCallbackEntry{id: id, callback: callback})
	es.callbacksMu.Unlock()

	return func() {
		es.callbacksMu.Lock()
		defer es.callbacksMu.Unlock()
		for i, entry := range es.stateCallbacks {
			if entry.id == id {
				es.stateCallbacks = append(es.stateCallbacks[:i], es.stateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (es *EventStream) setState(newState StreamState) {
	es.stateMu.Lock()
	oldState := es.state
	es.state = newState
	es.stateMu.Unlock()

	if oldState == newState {
		return
	}
	es.logger.Debug("Event stream state changed",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	es.callbacksMu.RLock()
	callbacks := make([]stateCallbackEntry, len(es.stateCallbacks))
	copy(callbacks, es.stateCallbacks)
	es.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(newState)
	}
}

func (es *EventStream) State() StreamState {
	es.stateMu.RLock()
	defer es.stateMu.RUnlock()
	return es.state
}

func (es *EventStream) Disconnect() error {
	es.stopOnce.Do(func() {
		close(es.stopCh)
	})

	es.connMu.Lock()
	conn := es.conn
	es.conn = nil
	es.connMu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		if err := conn.Close(); err != nil {
			es.logger.Warn("Failed to close event stream", zap.Error(err))
		}
	}
	es.setState(StreamDisconnected)
	es.finish()

	done := make(chan struct{})
	go func() {
		es.listenerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		es.logger.Warn("Timeout waiting for listener to stop")
	}
	return nil
}
