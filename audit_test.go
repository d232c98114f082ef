package authcore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditDisabledNoDispatcher(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: false, BufferSize: 8}, sink)
	if d != nil {
		t.Fatal("disabled audit config produced a dispatcher")
	}
}

func TestAuditSinkReceivesEventWithFields(t *testing.T) {
	sink := NewChannelSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)

	d.Emit(context.Background(), AuditEvent{
		Timestamp:   time.Now(),
		EventType:   auditEventAuthSuccess,
		UserID:      "u-1",
		IP:          "203.0.113.1",
		Fingerprint: "fp-digest",
		Success:     true,
	})
	d.Close()

	select {
	case event := <-sink.Events():
		if event.EventType != auditEventAuthSuccess {
			t.Errorf("event type = %q", event.EventType)
		}
		if event.UserID != "u-1" || event.IP != "203.0.113.1" {
			t.Errorf("event identity fields = %+v", event)
		}
		if !event.Success {
			t.Error("event success flag lost")
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestAuditBufferFullDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 16; i++ {
			d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked with DropIfFull set")
	}
	if d.Dropped() == 0 {
		t.Error("expected dropped events under backpressure")
	}

	close(sink.gate)
	d.Close()
}

func TestAuditBufferFullBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: false}, sink)

	// Fill the worker and the buffer.
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})

	blocked := make(chan struct{})
	go func() {
		d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("emit returned while buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.gate)
	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("emit never unblocked after sink drained")
	}
	d.Close()

	if d.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0 in blocking mode", d.Dropped())
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLogout, UserID: "u-1", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventAuthFailure, Error: "token_invalid"})

	scanner := bufio.NewScanner(&buf)
	lines := 0
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("wrote %d lines, want 2", lines)
	}
}

func TestAuditDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	sink := &countingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink)

	d.Close()
	d.Close()
	d.Emit(context.Background(), AuditEvent{EventType: auditEventLogout})
}

func TestAuditNoTokenMaterialInEvents(t *testing.T) {
	p := newFakeProvider(t)

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := testConfig(p)
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64

	sink := NewChannelSink(64)
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(newFakeUsers()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}

	ctx := WithClientIP(context.Background(), "203.0.113.1")
	urlResult, err := engine.AuthURL(ctx)
	if err != nil {
		t.Fatalf("auth url: %v", err)
	}
	result, err := engine.Authenticate(ctx, "auth-code", urlResult.State, "device-1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := engine.Refresh(ctx, result.RefreshToken, "device-1"); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	engine.Close()

	secrets := []string{result.AccessToken, result.RefreshToken, "device-1"}
	for len(sink.Events()) > 0 {
		event := <-sink.Events()
		raw, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("marshal event: %v", err)
		}
		for _, secret := range secrets {
			if strings.Contains(string(raw), secret) {
				t.Fatalf("event %q leaks %q", event.EventType, secret)
			}
		}
	}
}
