package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGroup_PanicIsolated(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	g := New(0, zap.New(core))

	var ran atomic.Bool
	g.Go(context.Background(), "bad", func(context.Context) error { panic("boom") })
	g.Go(context.Background(), "good", func(context.Context) error { ran.Store(true); return nil })
	g.Wait()

	if !ran.Load() {
		t.Error("sibling task did not run")
	}
	if n := logs.FilterMessage("task panicked").Len(); n != 1 {
		t.Errorf("panic log entries = %d, want 1", n)
	}
}

func TestGroup_ErrorLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	g := New(0, zap.New(core))

	g.Go(context.Background(), "fails", func(context.Context) error { return errors.New("nope") })
	g.Wait()

	entries := logs.FilterMessage("task failed").All()
	if len(entries) != 1 {
		t.Fatalf("error log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["task"]; got != "fails" {
		t.Errorf("task field = %v, want fails", got)
	}
}

func TestGroup_GoBoundedLimits(t *testing.T) {
	g := New(2, nil)

	var cur, peak atomic.Int32
	release := make(chan struct{})
	for i := 0; i < 8; i++ {
		g.GoBounded(context.Background(), "work", func(context.Context) error {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			cur.Add(-1)
			return nil
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	g.Wait()

	if p := peak.Load(); p != 2 {
		t.Errorf("peak concurrency = %d, want 2", p)
	}
}

func TestGroup_GoBoundedDoesNotBlockCaller(t *testing.T) {
	g := New(1, nil)
	block := make(chan struct{})
	g.GoBounded(context.Background(), "hold", func(context.Context) error { <-block; return nil })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			g.GoBounded(context.Background(), "queued", func(context.Context) error { return nil })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("GoBounded blocked the caller")
	}
	close(block)
	g.Wait()
}

func TestGroup_GoBoundedSkipsOnCancel(t *testing.T) {
	g := New(1, nil)
	block := make(chan struct{})
	held := make(chan struct{})
	g.GoBounded(context.Background(), "hold", func(context.Context) error {
		close(held)
		<-block
		return nil
	})
	<-held

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	g.GoBounded(ctx, "skipped", func(context.Context) error { ran.Store(true); return nil })
	cancel()
	time.Sleep(10 * time.Millisecond)
	close(block)
	g.Wait()

	if ran.Load() {
		t.Error("task ran after its context was cancelled while waiting for a slot")
	}
}
