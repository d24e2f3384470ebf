package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newStoreTest(t *testing.T, sliding bool) (*Store, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(rdb, "ags", time.Hour, sliding)
	return store, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func storeTestSession(sid string) *Session {
	now := time.Now()
	return &Session{
		SessionID:  sid,
		UserID:     "user-1",
		SecretHash: [32]byte{7},
		CreatedAt:  now.Unix(),
		ExpiresAt:  now.Add(time.Hour).Unix(),
		IP:         "203.0.113.7",
		UserAgent:  "test-agent/1.0",
	}
}

func TestSaveAndGet(t *testing.T) {
	store, _, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	sess := storeTestSession("sid-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionID != "sid-1" || got.UserID != sess.UserID || got.SecretHash != sess.SecretHash {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetUnknownSession(t *testing.T) {
	store, _, done := newStoreTest(t, false)
	defer done()

	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetExpiredSessionDeletes(t *testing.T) {
	store, rdb, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	sess := storeTestSession("sid-exp")
	sess.ExpiresAt = time.Now().Add(time.Second).Unix()
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Rewrite the blob with an expiry in the past while the Redis key
	// TTL is still alive. Get must enforce the embedded expiry itself.
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	data, err := Encode(sess)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := rdb.Set(ctx, "ags:sid-exp", data, time.Hour).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, err := store.Get(ctx, "sid-exp"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	// Deleted on the way out, index entry included.
	if _, err := store.Get(ctx, "sid-exp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry delete, got %v", err)
	}
	members, err := rdb.SMembers(ctx, "ags:u:user-1").Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty user index, got %v", members)
	}
}

func TestGetAtExpiryBoundary(t *testing.T) {
	store, rdb, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	sess := storeTestSession("sid-edge")

	writeBlob := func(exp int64) {
		sess.ExpiresAt = exp
		data, err := Encode(sess)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := rdb.Set(ctx, "ags:sid-edge", data, time.Hour).Err(); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	// A session is live up to and including its expiry instant. The
	// wall clock can tick over between the write and the read, so
	// retry until both happen within the same second.
	for attempt := 0; ; attempt++ {
		if attempt == 5 {
			t.Fatal("could not read within the expiry second")
		}
		exp := time.Now().Unix()
		writeBlob(exp)
		got, err := store.Get(ctx, "sid-edge")
		if time.Now().Unix() != exp {
			continue
		}
		if err != nil {
			t.Fatalf("get at expiry instant: %v", err)
		}
		if got.SessionID != "sid-edge" {
			t.Fatalf("unexpected session: %+v", got)
		}
		break
	}

	// One second past the instant is strictly after: rejected.
	writeBlob(time.Now().Unix() - 1)
	if _, err := store.Get(ctx, "sid-edge"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired past the instant, got %v", err)
	}
}

func TestGetManyAtExpiryBoundary(t *testing.T) {
	store, rdb, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	sess := storeTestSession("sid-many-edge")

	for attempt := 0; ; attempt++ {
		if attempt == 5 {
			t.Fatal("could not read within the expiry second")
		}
		exp := time.Now().Unix()
		sess.ExpiresAt = exp
		data, err := Encode(sess)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := rdb.Set(ctx, "ags:sid-many-edge", data, time.Hour).Err(); err != nil {
			t.Fatalf("set: %v", err)
		}
		sessions, err := store.GetManyReadOnly(ctx, []string{"sid-many-edge"})
		if time.Now().Unix() != exp {
			continue
		}
		if err != nil {
			t.Fatalf("get many: %v", err)
		}
		if len(sessions) != 1 {
			t.Fatalf("expected session at its expiry instant, got %d", len(sessions))
		}
		break
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, rdb, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	sess := storeTestSession("sid-1")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete of unknown session: %v", err)
	}

	members, err := rdb.SMembers(ctx, "ags:u:user-1").Result()
	if err != nil {
		t.Fatalf("smembers: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty user index, got %v", members)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	for _, sid := range []string{"sid-1", "sid-2", "sid-3"} {
		sess := storeTestSession(sid)
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}

	other := storeTestSession("sid-other")
	other.UserID = "user-2"
	if err := store.Save(ctx, other); err != nil {
		t.Fatalf("save other: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}

	for _, sid := range []string{"sid-1", "sid-2", "sid-3"} {
		if _, err := store.Get(ctx, sid); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected %s gone, got %v", sid, err)
		}
	}
	if _, err := store.Get(ctx, "sid-other"); err != nil {
		t.Fatalf("other user's session must survive: %v", err)
	}
}

func TestSlidingGetExtendsExpiry(t *testing.T) {
	store, _, done := newStoreTest(t, true)
	defer done()
	ctx := context.Background()

	sess := storeTestSession("sid-1")
	sess.ExpiresAt = time.Now().Add(time.Minute).Unix()
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Renewed to roughly now+ttl (one hour), far past the original
	// one-minute expiry.
	min := time.Now().Add(50 * time.Minute).Unix()
	if got.ExpiresAt < min {
		t.Fatalf("expected renewed expiry past %d, got %d", min, got.ExpiresAt)
	}
}

func TestFixedGetDoesNotExtend(t *testing.T) {
	store, _, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	sess := storeTestSession("sid-1")
	original := sess.ExpiresAt
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ExpiresAt != original {
		t.Fatalf("expiry changed in fixed mode: %d vs %d", got.ExpiresAt, original)
	}
}

func TestActiveSessionIDsAndGetMany(t *testing.T) {
	store, _, done := newStoreTest(t, false)
	defer done()
	ctx := context.Background()

	for _, sid := range []string{"sid-1", "sid-2"} {
		if err := store.Save(ctx, storeTestSession(sid)); err != nil {
			t.Fatalf("save %s: %v", sid, err)
		}
	}

	ids, err := store.ActiveSessionIDs(ctx, "user-1")
	if err != nil {
		t.Fatalf("active ids: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	// Include a stale id: GetManyReadOnly must skip it silently.
	sessions, err := store.GetManyReadOnly(ctx, append(ids, "gone"))
	if err != nil {
		t.Fatalf("get many: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	for _, sess := range sessions {
		if sess.SessionID == "" || sess.UserID != "user-1" {
			t.Fatalf("unexpected session: %+v", sess)
		}
	}
}

func TestSaveRejectsExpiredSession(t *testing.T) {
	store, _, done := newStoreTest(t, false)
	defer done()

	sess := storeTestSession("sid-1")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(context.Background(), sess); err == nil {
		t.Fatal("expected error saving an already expired session")
	}
}
