package rtmp

import (
	"reflect"
	"testing"
)

func TestGroupRegistry_AcquireRelease(t *testing.T) {
	registry := NewGroupRegistry(testLogger(t))

	first := registry.Acquire("live/a")
	second := registry.Acquire("live/a")
	if first != second {
		t.Fatalf("expected the same group for the same key")
	}
	if registry.Len() != 1 {
		t.Errorf("expected 1 group, but got %v", registry.Len())
	}

	sub := &fakeRtmpSubscriber{fakeMember: fakeMember{"sub"}}
	first.AddRtmpSub(sub)

	registry.Release("live/a")
	if registry.Get("live/a") != first {
		t.Errorf("expected the group to outlive the first release")
	}
	registry.Release("live/a")
	if registry.Get("live/a") != nil {
		t.Errorf("expected the group to be removed after the last release")
	}
	if !first.IsEmpty() {
		t.Errorf("expected the removed group to be disposed")
	}

	// releasing an unknown key does nothing
	registry.Release("live/a")
	if registry.Len() != 0 {
		t.Errorf("expected no group, but got %v", registry.Len())
	}

	if registry.Acquire("live/a") == first {
		t.Errorf("expected a new group once the old one was removed")
	}
}

func TestGroupRegistry_Keys(t *testing.T) {
	registry := NewGroupRegistry(nil)
	for _, key := range []string{"live/c", "app/b", "live/a", "live/c"} {
		registry.Acquire(key)
	}
	expected := []string{"app/b", "live/a", "live/c"}
	if keys := registry.Keys(); !reflect.DeepEqual(keys, expected) {
		t.Errorf("expected keys to be %v, but got %v", expected, keys)
	}
}
