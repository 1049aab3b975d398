package conn

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestCodec_EncodeBegin(t *testing.T) {
	c := Codec{SessionID: "sat-kitchen"}
	data, err := c.EncodeBegin("utt-1", 16000, "opus")
	if err != nil {
		t.Fatalf("EncodeBegin: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"type":         "begin_utterance",
		"session_id":   "sat-kitchen",
		"utterance_id": "utt-1",
		"sample_rate":  float64(16000),
		"codec":        "opus",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("field %q = %v, want %v", k, got[k], v)
		}
	}
}

func TestCodec_EncodeEnd(t *testing.T) {
	c := Codec{SessionID: "sat"}
	data, err := c.EncodeEnd("utt-1", 42)
	if err != nil {
		t.Fatalf("EncodeEnd: %v", err)
	}
	var got endUtteranceMsg
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != typeEndUtterance || got.UtteranceID != "utt-1" || got.Chunks != 42 {
		t.Errorf("decoded = %+v", got)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0xff}
	frame := EncodeChunk(7, payload)

	if len(frame) != chunkHeaderLen+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), chunkHeaderLen+len(payload))
	}

	seq, got, err := DecodeChunk(frame)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if seq != 7 {
		t.Errorf("seq = %d, want 7", seq)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %v, want %v", got, payload)
	}
}

func TestDecodeChunk_TooShort(t *testing.T) {
	_, _, err := DecodeChunk([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortChunk) {
		t.Fatalf("err = %v, want ErrShortChunk", err)
	}
}

func TestDecodeServerMessage(t *testing.T) {
	t.Run("stream delta", func(t *testing.T) {
		msg, err := DecodeServerMessage([]byte(`{"type":"stream","delta":"hello there"}`))
		if err != nil {
			t.Fatalf("DecodeServerMessage: %v", err)
		}
		if msg.Type != typeStream || msg.Delta != "hello there" {
			t.Errorf("decoded = %+v", msg)
		}
	})

	t.Run("done with rendered flag", func(t *testing.T) {
		msg, err := DecodeServerMessage([]byte(`{"type":"done","already_rendered":true}`))
		if err != nil {
			t.Fatalf("DecodeServerMessage: %v", err)
		}
		if msg.Type != typeDone || !msg.AlreadyRendered {
			t.Errorf("decoded = %+v", msg)
		}
	})

	t.Run("error", func(t *testing.T) {
		msg, err := DecodeServerMessage([]byte(`{"type":"error","code":"overloaded","message":"busy"}`))
		if err != nil {
			t.Fatalf("DecodeServerMessage: %v", err)
		}
		if msg.Code != "overloaded" || msg.Message != "busy" {
			t.Errorf("decoded = %+v", msg)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := DecodeServerMessage([]byte(`{"type":`)); err == nil {
			t.Fatal("want error for truncated JSON")
		}
	})

	t.Run("missing type", func(t *testing.T) {
		if _, err := DecodeServerMessage([]byte(`{"delta":"x"}`)); err == nil {
			t.Fatal("want error for message without type")
		}
	})
}
