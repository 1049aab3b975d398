// Package conn implements the satellite's backend link: mDNS discovery, the
// persistent WebSocket stream, the wire codec, and the reconnect and
// reply-watchdog controller. It runs entirely inside the event-loop domain
// and talks to the capture domain only through the [session.Uplink] mailbox
// pair.
package conn

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Control message type names on the wire.
const (
	typeBeginUtterance = "begin_utterance"
	typeEndUtterance   = "end_utterance"
	typeAbort          = "abort"
	typePing           = "ping"

	typeStream = "stream"
	typeDone   = "done"
	typeError  = "error"
	typePong   = "pong"
)

// chunkHeaderLen is the size of the big-endian sequence number prefixing
// every binary audio chunk.
const chunkHeaderLen = 8

// ErrShortChunk is returned by [DecodeChunk] for a binary frame too small to
// carry the sequence header.
var ErrShortChunk = errors.New("conn: binary frame shorter than chunk header")

type beginUtteranceMsg struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	UtteranceID string `json:"utterance_id"`
	SampleRate  int    `json:"sample_rate"`
	Codec       string `json:"codec"`
}

type endUtteranceMsg struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Chunks      int    `json:"chunks"`
}

type abortMsg struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
}

type pingMsg struct {
	Type string `json:"type"`
}

// ServerMessage is a parsed inbound control frame.
type ServerMessage struct {
	Type            string `json:"type"`
	Delta           string `json:"delta,omitempty"`
	AlreadyRendered bool   `json:"already_rendered,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Codec marshals outbound control messages for one session. Control
// messages are JSON text frames; audio chunks are binary frames built with
// [EncodeChunk].
type Codec struct {
	// SessionID identifies this satellite session in every begin_utterance.
	SessionID string
}

// EncodeBegin marshals the begin_utterance handshake for an utterance.
func (c Codec) EncodeBegin(utteranceID string, sampleRate int, codecName string) ([]byte, error) {
	return json.Marshal(beginUtteranceMsg{
		Type:        typeBeginUtterance,
		SessionID:   c.SessionID,
		UtteranceID: utteranceID,
		SampleRate:  sampleRate,
		Codec:       codecName,
	})
}

// EncodeEnd marshals the end_utterance marker carrying the chunk count the
// backend should have received.
func (c Codec) EncodeEnd(utteranceID string, chunks int) ([]byte, error) {
	return json.Marshal(endUtteranceMsg{
		Type:        typeEndUtterance,
		UtteranceID: utteranceID,
		Chunks:      chunks,
	})
}

// EncodeAbort marshals the abort control message for an in-flight utterance.
func (c Codec) EncodeAbort(utteranceID string) ([]byte, error) {
	return json.Marshal(abortMsg{
		Type:        typeAbort,
		UtteranceID: utteranceID,
	})
}

// EncodePing marshals the keepalive ping.
func (c Codec) EncodePing() ([]byte, error) {
	return json.Marshal(pingMsg{Type: typePing})
}

// EncodeChunk builds a binary audio frame: an 8-byte big-endian sequence
// number followed by the payload.
func EncodeChunk(seq uint64, payload []byte) []byte {
	buf := make([]byte, chunkHeaderLen+len(payload))
	binary.BigEndian.PutUint64(buf, seq)
	copy(buf[chunkHeaderLen:], payload)
	return buf
}

// DecodeChunk splits a binary audio frame into sequence number and payload.
// The payload aliases the input slice.
func DecodeChunk(frame []byte) (uint64, []byte, error) {
	if len(frame) < chunkHeaderLen {
		return 0, nil, ErrShortChunk
	}
	return binary.BigEndian.Uint64(frame), frame[chunkHeaderLen:], nil
}

// DecodeServerMessage parses an inbound JSON control frame.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ServerMessage{}, fmt.Errorf("conn: parse server message: %w", err)
	}
	if msg.Type == "" {
		return ServerMessage{}, errors.New("conn: server message without type")
	}
	return msg, nil
}
