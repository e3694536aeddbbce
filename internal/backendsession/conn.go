// Copyright 2025 James Ross
package backendsession

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn a session needs, narrowed to an
// interface so tests can drive the protocol state machines with an
// in-memory fake instead of a real socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

var _ wsConn = (*websocket.Conn)(nil)

func readFrame(c wsConn) (Frame, error) {
	_, data, err := c.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func writeFrame(c wsConn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, data)
}
