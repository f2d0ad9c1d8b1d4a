package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sardine-ai/go-config-sync/model"
)

const writeWait = 10 * time.Second

// serveWS dispatches request frames to the router and pushes a
// config_updated event whenever the active configuration changes.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	updates, unsubscribe := s.Backend.Subscribe()
	defer unsubscribe()

	send := make(chan model.Frame, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeFrames(ctx, conn, send, updates)
		// Unblock the reader when the writer stops first.
		cancel()
		conn.Close()
	}()

	for {
		var frame model.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithError(err).Debug("websocket read failed")
			}
			break
		}
		if frame.Type != model.FrameRequest {
			logrus.WithField("type", frame.Type).Debug("ignoring frame")
			continue
		}

		res := model.Frame{Type: model.FrameResponse, ID: frame.ID}
		result, err := s.Router.Dispatch(ctx, frame.Method, frame.Params)
		if err != nil {
			res.Error = err.Error()
		} else if res.Payload, err = json.Marshal(result); err != nil {
			res.Error = err.Error()
		} else {
			res.OK = true
		}

		select {
		case send <- res:
		case <-ctx.Done():
		}
	}

	cancel()
	wg.Wait()
}

func writeFrames(ctx context.Context, conn *websocket.Conn, send <-chan model.Frame, updates <-chan model.Config) {
	write := func(frame model.Frame) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return false
		}
		if err := conn.WriteJSON(frame); err != nil {
			logrus.WithError(err).Debug("websocket write failed")
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		case frame := <-send:
			if !write(frame) {
				return
			}
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(cfg)
			if err != nil {
				logrus.WithError(err).Error("error encoding config event")
				continue
			}
			if !write(model.Frame{Type: model.FrameEvent, Method: model.EventConfigUpdated, Payload: payload}) {
				return
			}
		}
	}
}

func isLocalhostOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
