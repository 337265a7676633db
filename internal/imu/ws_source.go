// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// WebSocketSource reads samples streamed by the phone recorder. Each text
// frame holds either one JSON sample or a JSON array of samples.
type WebSocketSource struct {
	conn    *websocket.Conn
	pending []RawSample
}

// DialWebSocket connects to the phone sensor stream at url
// (e.g. ws://192.168.1.20:8765/imu).
func DialWebSocket(ctx context.Context, url string) (*WebSocketSource, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imu stream dial %s: %w", url, err)
	}
	return &WebSocketSource{conn: conn}, nil
}

// Next blocks until the next sample arrives. A normal close by the phone is
// reported as io.EOF.
func (s *WebSocketSource) Next() (RawSample, error) {
	for len(s.pending) == 0 {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return RawSample{}, io.EOF
			}
			return RawSample{}, fmt.Errorf("imu stream read: %w", err)
		}
		batch, err := decodeFrame(payload)
		if errors.Is(err, errEmptyFrame) {
			continue
		}
		if err != nil {
			return RawSample{}, err
		}
		s.pending = batch
	}
	v := s.pending[0]
	s.pending = s.pending[1:]
	return v, nil
}

func (s *WebSocketSource) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
	return s.conn.Close()
}

var errEmptyFrame = errors.New("imu stream: empty frame")

func decodeFrame(payload []byte) ([]RawSample, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errEmptyFrame
	}
	if payload[0] == '[' {
		var batch []RawSample
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, fmt.Errorf("imu stream decode batch: %w", err)
		}
		if len(batch) == 0 {
			return nil, errEmptyFrame
		}
		return batch, nil
	}
	var one RawSample
	if err := json.Unmarshal(payload, &one); err != nil {
		return nil, fmt.Errorf("imu stream decode sample: %w", err)
	}
	return []RawSample{one}, nil
}
