package chat

import (
	"reflect"
	"testing"
)

func TestRoster_Join(t *testing.T) {
	r := NewRoster()
	a, b, c := &handle{}, &handle{}, &handle{}

	if res := r.Join("alice", a); res != Accepted {
		t.Fatalf("first join: expected accepted, got %s", res)
	}
	if res := r.Join("alice", b); res != RejectedDuplicate {
		t.Errorf("duplicate join: expected %s, got %s", RejectedDuplicate, res)
	}
	if r.Len() != 1 {
		t.Errorf("expected roster size 1 after duplicate, got %d", r.Len())
	}
	if res := r.Join("bob", b); res != Accepted {
		t.Fatalf("second join: expected accepted, got %s", res)
	}
	if res := r.Join("carol", c); res != RejectedCapacity {
		t.Errorf("third join: expected %s, got %s", RejectedCapacity, res)
	}
	// duplicates are reported before capacity
	if res := r.Join("bob", c); res != RejectedDuplicate {
		t.Errorf("duplicate at capacity: expected %s, got %s", RejectedDuplicate, res)
	}
	if r.Len() != MaxUsers {
		t.Errorf("expected roster size %d, got %d", MaxUsers, r.Len())
	}
	if got := r.Usernames(); !reflect.DeepEqual(got, []string{"alice", "bob"}) {
		t.Errorf("unexpected order %v", got)
	}
	if got := r.Handles(); len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("unexpected handles %v", got)
	}
}

func TestRoster_Leave(t *testing.T) {
	r := NewRoster()
	a, b := &handle{}, &handle{}
	r.Join("alice", a)
	r.Join("bob", b)

	r.Leave("nobody")
	if r.Len() != 2 {
		t.Errorf("leaving an absent user should be a no-op, size %d", r.Len())
	}
	r.Leave("alice")
	if r.Contains("alice") || r.Len() != 1 {
		t.Errorf("alice should be gone: %v", r.Usernames())
	}
	if res := r.Join("carol", a); res != Accepted {
		t.Errorf("slot should be free again, got %s", res)
	}
	if got := r.Usernames(); !reflect.DeepEqual(got, []string{"bob", "carol"}) {
		t.Errorf("unexpected order %v", got)
	}
}

func TestRoster_LeaveHandle(t *testing.T) {
	r := NewRoster()
	a, b := &handle{}, &handle{}
	r.Join("alice", a)
	if r.LeaveHandle("alice", b) {
		t.Error("a different handle must not remove alice")
	}
	if !r.LeaveHandle("alice", a) {
		t.Error("expected alice to be removed")
	}
	if r.LeaveHandle("alice", a) {
		t.Error("second removal should report false")
	}
}

func TestRoster_ContainsFold(t *testing.T) {
	r := NewRoster()
	r.Join("Bob", &handle{})
	if !r.ContainsFold("bob") || !r.ContainsFold("BOB") {
		t.Error("expected case-insensitive match")
	}
	if r.Contains("bob") {
		t.Error("keys are case-sensitive")
	}
	if res := r.Join("bob", &handle{}); res != Accepted {
		t.Errorf("differently cased name is a distinct key, got %s", res)
	}
	if r.ContainsFold("alice") {
		t.Error("unexpected match")
	}
}

func TestRoster_BlankUsername(t *testing.T) {
	r := NewRoster()
	for _, name := range []string{"", "  ", "\t"} {
		if res := r.Join(name, &handle{}); res != RejectedInvalidName {
			t.Errorf("%q: expected %s, got %s", name, RejectedInvalidName, res)
		}
	}
	if r.Len() != 0 {
		t.Errorf("blank names must not be registered, got %v", r.Usernames())
	}
}
