package payment

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRegistry_OpenThenConsumeOnce(t *testing.T) {
	rdb := newTestRedis(t)
	reg := NewRegistry(rdb, 5*time.Minute)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	c, err := reg.Open(ctx, testChallenge(), now)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if c.ID == "" {
		t.Fatal("opened challenge must carry an id")
	}
	if c.ExpiresAt != now.Add(5*time.Minute).Unix() {
		t.Errorf("ExpiresAt: got %d", c.ExpiresAt)
	}
	if c.Price != "0.01" {
		t.Errorf("Open must keep configured values, got %+v", c)
	}

	live, _ := reg.Live(ctx, c.ID)
	if !live {
		t.Fatal("opened challenge must be live")
	}
	ok, err := reg.Consume(ctx, c.ID)
	if err != nil || !ok {
		t.Fatalf("first Consume: ok=%v err=%v", ok, err)
	}
	ok, err = reg.Consume(ctx, c.ID)
	if err != nil {
		t.Fatalf("second Consume: %v", err)
	}
	if ok {
		t.Fatal("a challenge id must be consumable once")
	}
}

func TestRegistry_ExpiredChallenge(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	reg := NewRegistry(rdb, time.Minute)
	ctx := context.Background()

	c, err := reg.Open(ctx, testChallenge(), time.Now())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	ok, err := reg.Consume(ctx, c.ID)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if ok {
		t.Fatal("expired challenge must not be consumable")
	}
}

func TestRegistry_UnknownAndEmptyIDs(t *testing.T) {
	reg := NewRegistry(newTestRedis(t), time.Minute)
	ctx := context.Background()
	for _, id := range []string{"", "never-issued"} {
		if ok, err := reg.Consume(ctx, id); ok || err != nil {
			t.Errorf("%q: ok=%v err=%v", id, ok, err)
		}
		if live, err := reg.Live(ctx, id); live || err != nil {
			t.Errorf("%q live: %v err=%v", id, live, err)
		}
	}
}

func TestRegistry_IDsAreUnique(t *testing.T) {
	reg := NewRegistry(newTestRedis(t), time.Minute)
	ctx := context.Background()
	a, _ := reg.Open(ctx, testChallenge(), time.Now())
	b, _ := reg.Open(ctx, testChallenge(), time.Now())
	if a.ID == b.ID {
		t.Fatal("challenge ids must differ")
	}
}
