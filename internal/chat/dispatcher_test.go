package chat

import (
	"context"
	"encoding/json"
	"testing"
)

func TestBroadcastReachesAllMembers(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	sender := newFakeSender()
	d := NewDispatcher(st, sender, testLogger())

	for _, id := range []string{"a", "b", "c"} {
		if err := st.AddConnection(ctx, "general", id); err != nil {
			t.Fatalf("add connection: %v", err)
		}
	}

	msg := Message{RoomID: "general", Timestamp: 1000, Nickname: "x", Text: "hi", Type: TypeMessage}
	report, err := d.Broadcast(ctx, msg)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if report.Delivered() != 3 || report.Pruned() != 0 {
		t.Fatalf("expected 3 delivered 0 pruned, got %d/%d", report.Delivered(), report.Pruned())
	}
	for _, id := range []string{"a", "b", "c"} {
		if sender.sentTo(id) != 1 {
			t.Fatalf("expected exactly one send to %s, got %d", id, sender.sentTo(id))
		}
	}

	// The broadcast frame is the serialized message itself.
	var got Message
	if err := json.Unmarshal(sender.sent["a"][0], &got); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if got != msg {
		t.Fatalf("unexpected frame payload: %+v", got)
	}
}

func TestBroadcastFailedMemberIsPrunedOthersStillReceive(t *testing.T) {
	ctx := context.Background()
	st := newFakeStore()
	sender := newFakeSender("b")
	d := NewDispatcher(st, sender, testLogger())

	for _, id := range []string{"a", "b", "c"} {
		if err := st.AddConnection(ctx, "general", id); err != nil {
			t.Fatalf("add connection: %v", err)
		}
	}

	report, err := d.Broadcast(ctx, Message{RoomID: "general", Timestamp: 1, Nickname: "x", Text: "hi", Type: TypeMessage})
	if err != nil {
		t.Fatalf("broadcast should succeed despite one dead peer: %v", err)
	}

	if report.Delivered() != 2 || report.Pruned() != 1 {
		t.Fatalf("expected 2 delivered 1 pruned, got %d/%d", report.Delivered(), report.Pruned())
	}
	if sender.sentTo("a") != 1 || sender.sentTo("c") != 1 {
		t.Fatal("live peers must still receive the message")
	}

	members, err := st.ListMembers(ctx, "general")
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected dead peer pruned from registry, members: %v", members)
	}
	for _, id := range members {
		if id == "b" {
			t.Fatal("failed member b still in registry")
		}
	}
}

func TestBroadcastEmptyRoom(t *testing.T) {
	d := NewDispatcher(newFakeStore(), newFakeSender(), testLogger())

	report, err := d.Broadcast(context.Background(), Message{RoomID: "empty", Timestamp: 1, Type: TypeMessage})
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(report.Deliveries) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(report.Deliveries))
	}
}
