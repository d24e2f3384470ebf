package session

import (
	"testing"
	"time"
)

func encoderTestSession() *Session {
	now := time.Now()
	return &Session{
		SessionID:  "sid-1",
		UserID:     "user-1",
		SecretHash: [32]byte{1, 2, 3},
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(time.Hour).Unix(),
		IP:         "203.0.113.7",
		UserAgent:  "test-agent/1.0",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sess := encoderTestSession()

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if data[0] != CurrentSchemaVersion {
		t.Fatalf("expected version byte %d, got %d", CurrentSchemaVersion, data[0])
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	// SessionID travels in the Redis key, not the blob.
	if decoded.SessionID != "" {
		t.Fatalf("decoded session id should be empty, got %q", decoded.SessionID)
	}
	if decoded.UserID != sess.UserID ||
		decoded.SecretHash != sess.SecretHash ||
		decoded.CreatedAt != sess.CreatedAt ||
		decoded.ExpiresAt != sess.ExpiresAt ||
		decoded.IP != sess.IP ||
		decoded.UserAgent != sess.UserAgent {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, sess)
	}
}

func TestEncodeEmptyOptionalFields(t *testing.T) {
	sess := encoderTestSession()
	sess.IP = ""
	sess.UserAgent = ""

	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.IP != "" || decoded.UserAgent != "" {
		t.Fatalf("expected empty optional fields, got %+v", decoded)
	}
}

func TestEncodeRejectsInvalidSessions(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Fatal("expected error for nil session")
	}

	noUser := encoderTestSession()
	noUser.UserID = ""
	if _, err := Encode(noUser); err == nil {
		t.Fatal("expected error for empty user id")
	}

	longUA := encoderTestSession()
	longUA.UserAgent = string(make([]byte, maxUserAgentLen+1))
	if _, err := Encode(longUA); err == nil {
		t.Fatal("expected error for oversized user agent")
	}
}

func TestDecodeRejectsCorruptBlobs(t *testing.T) {
	valid, err := Encode(encoderTestSession())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	cases := [][]byte{
		nil,
		{},
		{99},
		valid[:10],
		valid[:len(valid)-4],
	}

	for i, data := range cases {
		if _, err := Decode(data); err == nil {
			t.Fatalf("case %d: expected decode error", i)
		}
	}
}
