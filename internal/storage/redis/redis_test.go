package redis

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/aanand-mishra/online-campus/internal/storage"
	"github.com/aanand-mishra/online-campus/internal/storage/storagetest"
)

// testDB keeps test data away from the default database.
const testDB = 15

// Runs against a real server when TEST_REDIS_ADDR is set (host:port).
// Database 15 is flushed before every subtest.
func TestConformance(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	storagetest.Run(t, func(t *testing.T) storage.Storage {
		client := redis.NewClient(&redis.Options{Addr: addr, DB: testDB})
		if err := client.FlushDB(context.Background()).Err(); err != nil {
			_ = client.Close()
			t.Fatalf("FlushDB: %v", err)
		}
		s := NewWithClient(client)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestDecodeStudent(t *testing.T) {
	if got := decodeStudent("x", map[string]string{}); got != nil {
		t.Fatalf("decodeStudent(empty) = %+v, want nil", got)
	}

	got := decodeStudent("x", map[string]string{
		"first_name":  "John",
		"last_name":   "Doe",
		"row_version": "\x01\x02",
	})
	if got == nil || got.ID != "x" || got.FirstName != "John" || got.LastName != "Doe" {
		t.Fatalf("decodeStudent = %+v", got)
	}
	if got.RowVersion.String() != "0102" {
		t.Fatalf("row version = %s, want 0102", got.RowVersion)
	}
}
