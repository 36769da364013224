package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeClient keeps lists in memory
type fakeClient struct {
	mu         sync.Mutex
	lists      map[string][]string
	published  map[string][]string
	publishErr error
	pushErr    error
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{lists: make(map[string][]string), published: make(map[string][]string)}
}

func (f *fakeClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return redis.NewIntResult(0, f.publishErr)
	}
	f.published[channel] = append(f.published[channel], toString(message))
	return redis.NewIntResult(1, nil)
}

func (f *fakeClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.lists[key] = append([]string{toString(v)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeClient) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	if int(stop)+1 < len(l) {
		f.lists[key] = l[start : stop+1]
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := f.lists[key]
	end := int(stop) + 1
	if end > len(l) {
		end = len(l)
	}
	return redis.NewStringSliceResult(append([]string(nil), l[start:end]...), nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case string:
		return s
	}
	return fmt.Sprint(v)
}

func TestStoreAndRecent(t *testing.T) {
	client := newFakeClient()
	h := NewRedisHistoryWithClient(client, Options{DeviceID: "venus", Channel: "marstek:venus:state", Length: 3})

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		doc := map[string]any{"battery_soc": float64(50 + i)}
		if err := h.Store(context.Background(), base.Add(time.Duration(i)*time.Second), doc); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	if got := len(client.published["marstek:venus:state"]); got != 5 {
		t.Errorf("Expected 5 published messages, got %d", got)
	}
	if got := len(client.lists[h.ListKey()]); got != 3 {
		t.Errorf("Expected list capped at 3, got %d", got)
	}

	entries, err := h.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].State["battery_soc"] != 54.0 {
		t.Errorf("Expected newest entry first, got %v", entries[0].State["battery_soc"])
	}
	if entries[0].Device != "venus" || !entries[0].Timestamp.Equal(base.Add(4*time.Second)) {
		t.Errorf("Expected device and timestamp, got %+v", entries[0])
	}
}

func TestStorePublishError(t *testing.T) {
	client := newFakeClient()
	client.publishErr = errors.New("connection refused")
	h := NewRedisHistoryWithClient(client, Options{DeviceID: "venus", Channel: "c"})

	if err := h.Store(context.Background(), time.Now(), map[string]any{}); err == nil {
		t.Error("Expected publish error")
	}
	if len(client.lists[h.ListKey()]) != 0 {
		t.Error("Expected nothing stored after publish failure")
	}
}

func TestStoreListErrorIsNotFatal(t *testing.T) {
	client := newFakeClient()
	client.pushErr = errors.New("OOM")
	h := NewRedisHistoryWithClient(client, Options{DeviceID: "venus", Channel: "c"})

	if err := h.Store(context.Background(), time.Now(), map[string]any{}); err != nil {
		t.Errorf("Expected list failure to be tolerated, got %v", err)
	}
}

func TestRecentSkipsMalformed(t *testing.T) {
	client := newFakeClient()
	h := NewRedisHistoryWithClient(client, Options{DeviceID: "venus", Channel: "c"})
	client.lists[h.ListKey()] = []string{"not json", `{"device":"venus","state":{}}`}

	entries, err := h.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected 1 valid entry, got %d", len(entries))
	}
	if got, _ := h.Recent(context.Background(), 0); got != nil {
		t.Errorf("Expected nil for n=0, got %v", got)
	}
}

func TestDefaultLength(t *testing.T) {
	h := NewRedisHistoryWithClient(newFakeClient(), Options{DeviceID: "venus"})
	if h.length != 1000 {
		t.Errorf("Expected default length 1000, got %d", h.length)
	}
	if h.ListKey() != "marstek:venus:history" {
		t.Errorf("Expected list key marstek:venus:history, got %s", h.ListKey())
	}
}
