// File: internal/concurrency/registry_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "testing"

func TestRegistryRejectsSecondOwner(t *testing.T) {
	const tid = 1 << 20 // synthetic tid, far from any real one
	owner := &struct{}{}
	if !RegisterLoop(tid, owner) {
		t.Fatalf("first registration refused")
	}
	defer UnregisterLoop(tid)

	if RegisterLoop(tid, &struct{}{}) {
		t.Fatalf("second registration for the same thread accepted")
	}
	if got := LoopOf(tid); got != owner {
		t.Fatalf("LoopOf returned %v, want the first owner", got)
	}
}

func TestRegistryUnregisterFreesSlot(t *testing.T) {
	const tid = 1<<20 + 1
	if !RegisterLoop(tid, &struct{}{}) {
		t.Fatalf("registration refused")
	}
	UnregisterLoop(tid)
	if got := LoopOf(tid); got != nil {
		t.Fatalf("slot still occupied after unregister: %v", got)
	}
	if !RegisterLoop(tid, &struct{}{}) {
		t.Fatalf("freed slot refused re-registration")
	}
	UnregisterLoop(tid)
}
