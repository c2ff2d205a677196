package loginflow

import (
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(15*time.Minute, testCooldown, nil)
	defer mgr.Stop()

	if mgr == nil {
		t.Fatal("NewManager returned nil")
	}

	if mgr.Count() != 0 {
		t.Errorf("expected 0 flows, got %d", mgr.Count())
	}
}

func TestCreateFlow(t *testing.T) {
	mgr := NewManager(15*time.Minute, testCooldown, nil)
	defer mgr.Stop()

	flow, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if len(flow.ID) != 64 {
		t.Errorf("flow ID length = %d, want 64", len(flow.ID))
	}

	if !flow.Snapshot().AllowSendOTP {
		t.Error("new flow should allow sending")
	}

	if mgr.Count() != 1 {
		t.Errorf("expected 1 flow, got %d", mgr.Count())
	}
}

func TestGetFlow(t *testing.T) {
	mgr := NewManager(15*time.Minute, testCooldown, nil)
	defer mgr.Stop()

	created, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	retrieved, err := mgr.Get(created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if retrieved != created {
		t.Error("Get returned a different flow")
	}

	if _, err := mgr.Get("nonexistent"); err == nil {
		t.Error("Get should fail for non-existent flow")
	}
}

func TestFlowExpiry(t *testing.T) {
	clock := newManualClock()
	mgr := NewManager(time.Minute, testCooldown, clock)
	defer mgr.Stop()

	flow, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	clock.Advance(59 * time.Second)
	if _, err := mgr.Get(flow.ID); err != nil {
		t.Errorf("Get should succeed before the TTL: %v", err)
	}

	// Get refreshed the idle timer.
	clock.Advance(59 * time.Second)
	if _, err := mgr.Get(flow.ID); err != nil {
		t.Errorf("Get should succeed after being touched: %v", err)
	}

	clock.Advance(61 * time.Second)
	if _, err := mgr.Get(flow.ID); err == nil {
		t.Error("Get should fail for an idle flow")
	}
}

func TestDeleteFlowCancelsTimer(t *testing.T) {
	clock := newManualClock()
	mgr := NewManager(15*time.Minute, testCooldown, clock)
	defer mgr.Stop()

	flow, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := flow.BeginSend("jane@example.com"); err != nil {
		t.Fatalf("BeginSend failed: %v", err)
	}
	flow.FinishSend(nil)

	if clock.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", clock.Pending())
	}

	mgr.Delete(flow.ID)

	if clock.Pending() != 0 {
		t.Errorf("expected timer to be cancelled, %d pending", clock.Pending())
	}
	if mgr.Count() != 0 {
		t.Errorf("expected 0 flows, got %d", mgr.Count())
	}

	// Deleting twice is harmless.
	mgr.Delete(flow.ID)
}

func TestCleanup(t *testing.T) {
	clock := newManualClock()
	mgr := NewManager(time.Minute, testCooldown, clock)
	defer mgr.Stop()

	for i := 0; i < 5; i++ {
		if _, err := mgr.Create(); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	busy, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := busy.BeginSend("jane@example.com"); err != nil {
		t.Fatalf("BeginSend failed: %v", err)
	}

	if mgr.Count() != 6 {
		t.Errorf("expected 6 flows, got %d", mgr.Count())
	}

	clock.Advance(2 * time.Minute)
	mgr.cleanup()

	if mgr.Count() != 1 {
		t.Errorf("expected only the busy flow after cleanup, got %d", mgr.Count())
	}
}

func TestStopCancelsTimers(t *testing.T) {
	clock := newManualClock()
	mgr := NewManager(15*time.Minute, testCooldown, clock)

	flow, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := flow.BeginSend("jane@example.com"); err != nil {
		t.Fatalf("BeginSend failed: %v", err)
	}
	flow.FinishSend(nil)

	mgr.Stop()
	mgr.Stop()

	if clock.Pending() != 0 {
		t.Errorf("expected no pending timers after Stop, got %d", clock.Pending())
	}
}

func TestConcurrentAccess(t *testing.T) {
	mgr := NewManager(15*time.Minute, testCooldown, nil)
	defer mgr.Stop()

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			flow, err := mgr.Create()
			if err != nil {
				t.Errorf("Create failed: %v", err)
			} else if _, err := mgr.Get(flow.ID); err != nil {
				t.Errorf("Get failed: %v", err)
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	if mgr.Count() != 10 {
		t.Errorf("expected 10 flows, got %d", mgr.Count())
	}
}

func TestGenerateFlowID(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id, err := generateFlowID()
		if err != nil {
			t.Fatalf("generateFlowID failed: %v", err)
		}

		if len(id) != 64 {
			t.Errorf("flow ID length = %d, want 64", len(id))
		}

		if seen[id] {
			t.Errorf("duplicate flow ID generated: %s", id)
		}

		seen[id] = true
	}
}
