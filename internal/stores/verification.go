package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const verificationRecordVersionV1 = 1

var (
	ErrVerificationNotFound       = errors.New("verification record not found")
	ErrVerificationSecretMismatch = errors.New("verification secret mismatch")
	ErrVerificationUnavailable    = errors.New("verification store unavailable")
)

// consumeVerificationLua atomically performs GET→validate→DEL on a
// verification record. The delete happens inside the script, so two
// concurrent consumers of the same token resolve to exactly one winner.
//
// KEYS[1] = record key
// ARGV[1] = provided secret hash (32 bytes)
// ARGV[2] = current unix timestamp
//
// Returns record bytes on success, or an error string:
// "not_found", "expired", "secret_mismatch". A mismatched secret leaves
// the record in place; a guessed record ID must not burn the real token.
var consumeVerificationLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local nowUnix = tonumber(ARGV[2])

-- Binary layout: version(1) purpose(1) expiresAt(8 big-endian) userIDLen(2) userID secretHash(32)
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 3, 10)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

local userIDLen = string.byte(data, 11) * 256 + string.byte(data, 12)
local hashOffset = 13 + userIDLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  return {err='secret_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// VerificationRecord is the persisted half of a verification token. The
// plaintext secret is never stored; only its SHA-256 hash.
type VerificationRecord struct {
	UserID     string
	Purpose    uint8
	SecretHash [32]byte
	ExpiresAt  int64
}

// VerificationStore persists single-use verification records in Redis.
// Records carry their own TTL, so expired tokens are swept by Redis key
// expiry without an application-level reaper.
type VerificationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewVerificationStore(redisClient redis.UniversalClient, prefix string) *VerificationStore {
	if prefix == "" {
		prefix = "ag:v"
	}
	return &VerificationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *VerificationStore) key(recordID string) string {
	return s.prefix + ":" + recordID
}

func (s *VerificationStore) Save(
	ctx context.Context,
	recordID string,
	record *VerificationRecord,
	ttl time.Duration,
) error {
	encoded, err := encodeVerificationRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(recordID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	return nil
}

// Consume validates and deletes a record in one atomic step. On success
// the returned record is the only copy that will ever exist; a second
// Consume with the same token gets ErrVerificationNotFound.
func (s *VerificationStore) Consume(
	ctx context.Context,
	recordID string,
	providedHash [32]byte,
) (*VerificationRecord, error) {
	result, err := consumeVerificationLua.Run(ctx, s.redis,
		[]string{s.key(recordID)},
		string(providedHash[:]),
		time.Now().Unix(),
	).Result()

	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrVerificationNotFound
		case "secret_mismatch":
			return nil, ErrVerificationSecretMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrVerificationUnavailable)
	}

	record, decErr := decodeVerificationRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, decErr)
	}

	// Lua string comparison is not constant-time; recheck here.
	if subtle.ConstantTimeCompare(record.SecretHash[:], providedHash[:]) != 1 {
		return nil, ErrVerificationSecretMismatch
	}

	return record, nil
}

func encodeVerificationRecord(record *VerificationRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(verificationRecordVersionV1)
	buf.WriteByte(record.Purpose)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 {
		return nil, errors.New("verification record user id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	buf.Write(record.SecretHash[:])

	return buf.Bytes(), nil
}

func decodeVerificationRecord(data []byte) (*VerificationRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != verificationRecordVersionV1 {
		return nil, errors.New("invalid verification record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &VerificationRecord{
		Purpose: purpose,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userIDLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userIDLen); err != nil {
		return nil, err
	}

	userID := make([]byte, userIDLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	record.UserID = string(userID)

	if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
