package realtime_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/finitixhub/finitix_be/internal/realtime"
)

type frame struct {
	Type  string               `json:"type"`
	Event realtime.ChangeEvent `json:"event"`
}

func startHub(t *testing.T) (*realtime.Hub, context.CancelFunc) {
	t.Helper()
	hub := realtime.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub, cancel
}

func recv(t *testing.T, c *realtime.Client) frame {
	t.Helper()
	select {
	case b, ok := <-c.Send:
		if !ok {
			t.Fatal("client channel closed")
		}
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
	return frame{}
}

func expectNothing(t *testing.T, c *realtime.Client) {
	t.Helper()
	select {
	case b := <-c.Send:
		t.Fatalf("unexpected frame: %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_DeliversToTableSubscribers(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	hub, _ := startHub(t)

	alice := realtime.NewClient(uuid.New(), nil)
	bob := realtime.NewClient(uuid.New(), nil)
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	hub.Subscribe(alice, "job_postings")
	hub.Subscribe(bob, "gigs")

	ev, err := realtime.NewEvent("job_postings", realtime.ChangeInsert, "j1", map[string]string{"title": "Go dev"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	hub.Dispatch(ev)

	got := recv(t, alice)
	if got.Type != "change" || got.Event.Table != "job_postings" || got.Event.ID != "j1" || got.Event.Type != realtime.ChangeInsert {
		t.Fatalf("unexpected frame %+v", got)
	}
	var rec map[string]string
	if err := json.Unmarshal(got.Event.Record, &rec); err != nil || rec["title"] != "Go dev" {
		t.Fatalf("record = %s (%v)", got.Event.Record, err)
	}
	expectNothing(t, bob)
}

func TestHub_AudienceRestrictsDelivery(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	hub, _ := startHub(t)

	owner := realtime.NewClient(uuid.New(), nil)
	other := realtime.NewClient(uuid.New(), nil)
	for _, c := range []*realtime.Client{owner, other} {
		hub.RegisterClient(c)
		hub.Subscribe(c, "job_applications")
	}

	ev, _ := realtime.NewEvent("job_applications", realtime.ChangeUpdate, "a1", nil, owner.UserID)
	hub.Dispatch(ev)

	if got := recv(t, owner); got.Event.ID != "a1" {
		t.Fatalf("owner got %+v", got)
	}
	expectNothing(t, other)
}

func TestHub_UnsubscribeAndUnregister(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	hub, _ := startHub(t)

	c := realtime.NewClient(uuid.New(), nil)
	hub.RegisterClient(c)
	hub.Subscribe(c, "gigs", "projects")
	hub.Unsubscribe(c, "gigs")

	ev, _ := realtime.NewEvent("gigs", realtime.ChangeDelete, "7", nil)
	hub.Dispatch(ev)
	expectNothing(t, c)

	hub.UnregisterClient(c)
	select {
	case _, ok := <-c.Send:
		if ok {
			t.Fatal("expected closed channel after unregister")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed after unregister")
	}
	if n := hub.ClientCount(); n != 0 {
		t.Fatalf("ClientCount = %d, want 0", n)
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
	hub, cancel := startHub(t)

	c := realtime.NewClient(uuid.New(), nil)
	hub.RegisterClient(c)
	cancel()

	select {
	case _, ok := <-c.Send:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("client not closed when hub stopped")
	}

	if hub.RegisterClient(realtime.NewClient(uuid.New(), nil)) {
		t.Fatal("RegisterClient should fail after stop")
	}
	if hub.Dispatch(realtime.ChangeEvent{Table: "gigs"}) {
		t.Fatal("Dispatch should fail after stop")
	}
}
