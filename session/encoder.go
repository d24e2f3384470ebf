package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// CurrentSchemaVersion is the encoding version written by Encode.
const CurrentSchemaVersion = 1

const (
	maxUserIDLen    = 255
	maxIPLen        = 255
	maxUserAgentLen = 1024
)

var errCorruptSession = errors.New("corrupt session blob")

// Encode serializes a session into the compact binary layout stored in
// Redis:
//
//	version(1) | uidLen(1) uid | secretHash(32) | ipLen(1) ip |
//	uaLen(2) ua | createdAt(8) | expiresAt(8)
//
// The layout is append-only: future versions may add trailing fields but
// never reinterpret existing ones.
func Encode(sess *Session) ([]byte, error) {
	if sess == nil {
		return nil, errors.New("nil session")
	}
	if len(sess.UserID) == 0 || len(sess.UserID) > maxUserIDLen {
		return nil, errors.New("invalid session user id length")
	}
	if len(sess.IP) > maxIPLen {
		return nil, errors.New("session ip too long")
	}
	if len(sess.UserAgent) > maxUserAgentLen {
		return nil, errors.New("session user agent too long")
	}

	var buf bytes.Buffer
	buf.WriteByte(CurrentSchemaVersion)

	buf.WriteByte(byte(len(sess.UserID)))
	buf.WriteString(sess.UserID)

	buf.Write(sess.SecretHash[:])

	buf.WriteByte(byte(len(sess.IP)))
	buf.WriteString(sess.IP)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(sess.UserAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(sess.UserAgent)

	if err := binary.Write(&buf, binary.BigEndian, sess.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, sess.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode reverses [Encode]. SessionID is left empty; the store fills it
// in from the Redis key.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, errCorruptSession
	}
	if version != CurrentSchemaVersion {
		return nil, errCorruptSession
	}

	sess := &Session{}

	uid, err := readString8(reader)
	if err != nil {
		return nil, errCorruptSession
	}
	if uid == "" {
		return nil, errCorruptSession
	}
	sess.UserID = uid

	if _, err := io.ReadFull(reader, sess.SecretHash[:]); err != nil {
		return nil, errCorruptSession
	}

	if sess.IP, err = readString8(reader); err != nil {
		return nil, errCorruptSession
	}

	var uaLen uint16
	if err := binary.Read(reader, binary.BigEndian, &uaLen); err != nil {
		return nil, errCorruptSession
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(reader, ua); err != nil {
		return nil, errCorruptSession
	}
	sess.UserAgent = string(ua)

	if err := binary.Read(reader, binary.BigEndian, &sess.CreatedAt); err != nil {
		return nil, errCorruptSession
	}
	if err := binary.Read(reader, binary.BigEndian, &sess.ExpiresAt); err != nil {
		return nil, errCorruptSession
	}

	return sess, nil
}

func readString8(reader *bytes.Reader) (string, error) {
	n, err := reader.ReadByte()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}

	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
