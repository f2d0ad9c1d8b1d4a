package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sardine-ai/go-config-sync/model"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned for calls on a WSDispatcher whose connection is gone.
var ErrClosed = errors.New("websocket dispatcher closed")

// WSDispatcher invokes backend commands over a single WebSocket connection.
// Responses are matched to requests by frame ID, so calls may be issued
// concurrently. Events pushed by the backend are delivered on Events.
type WSDispatcher struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan model.Frame

	events chan model.Frame
	done   chan struct{}
	err    error
}

// DialWS connects to the backend WebSocket endpoint at rawURL.
func DialWS(ctx context.Context, rawURL, apiKey string) (*WSDispatcher, error) {
	header := http.Header{}
	if apiKey != "" {
		header.Set("X-API-KEY", apiKey)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial backend websocket (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial backend websocket: %w", err)
	}
	d := &WSDispatcher{
		conn:    conn,
		pending: make(map[string]chan model.Frame),
		events:  make(chan model.Frame, 16),
		done:    make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

// Events returns the backend events. The channel is closed when the
// connection ends. Events are dropped while the channel is full.
func (d *WSDispatcher) Events() <-chan model.Frame {
	return d.events
}

// Invoke sends a request frame and waits for the matching response.
func (d *WSDispatcher) Invoke(ctx context.Context, command string, args, reply any) error {
	var params json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("marshalling %s arguments: %w", command, err)
		}
		params = data
	}

	id := uuid.NewString()
	ch := make(chan model.Frame, 1)
	d.pendingMu.Lock()
	d.pending[id] = ch
	d.pendingMu.Unlock()
	defer func() {
		d.pendingMu.Lock()
		delete(d.pending, id)
		d.pendingMu.Unlock()
	}()

	if err := d.write(ctx, model.Frame{Type: model.FrameRequest, ID: id, Method: command, Params: params}); err != nil {
		return err
	}

	select {
	case frame := <-ch:
		if !frame.OK {
			return &CommandError{Command: command, Message: frame.Error}
		}
		if reply != nil {
			if err := json.Unmarshal(frame.Payload, reply); err != nil {
				return fmt.Errorf("decoding %s reply: %w", command, err)
			}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return d.err
	}
}

func (d *WSDispatcher) write(ctx context.Context, frame model.Frame) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	select {
	case <-d.done:
		return d.err
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := d.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := d.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", frame.Method, err)
	}
	return nil
}

func (d *WSDispatcher) readLoop() {
	defer close(d.events)
	for {
		var frame model.Frame
		if err := d.conn.ReadJSON(&frame); err != nil {
			d.err = fmt.Errorf("%w: %v", ErrClosed, err)
			close(d.done)
			return
		}

		switch frame.Type {
		case model.FrameResponse:
			d.pendingMu.Lock()
			ch, ok := d.pending[frame.ID]
			d.pendingMu.Unlock()
			if !ok {
				logrus.WithField("id", frame.ID).Debug("response for unknown request")
				continue
			}
			select {
			case ch <- frame:
			default:
			}
		case model.FrameEvent:
			select {
			case d.events <- frame:
			default:
				logrus.WithField("event", frame.Method).Warn("event channel full, dropping event")
			}
		default:
			logrus.WithField("type", frame.Type).Debug("ignoring frame")
		}
	}
}

// Close closes the connection and waits for the reader to stop. Calls still
// waiting for a response fail with ErrClosed.
func (d *WSDispatcher) Close() error {
	d.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := d.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	d.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		logrus.WithError(err).Debug("error sending close frame")
	}

	closeErr := d.conn.Close()
	<-d.done
	return closeErr
}
