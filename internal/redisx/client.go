package redisx

import (
	"context"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Deduper menandai event_id yang sudah diproses supaya redelivery jadi no-op.
// Redis di sini cuma fast-path; handler tetap harus idempotent by state.
type Deduper struct {
	RDB     *redis.Client
	Service string
}

// Seen returns true kalau event ini sudah pernah diproses. First sight
// langsung di-set, supaya duplicate yang datang beruntun juga ketangkap.
func (d *Deduper) Seen(ctx context.Context, eventID string) bool {
	if d == nil || d.RDB == nil || eventID == "" {
		return false
	}
	key := fmt.Sprintf(KeyDedup, d.Service, eventID)
	ok, err := d.RDB.SetNX(ctx, key, "1", TTLDedup).Result()
	if err != nil {
		// Redis down -> jangan blokir; state check yang jadi penjaga terakhir.
		return false
	}
	return !ok
}
