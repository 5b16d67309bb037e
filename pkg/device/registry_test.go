package device

import (
	"errors"
	"sync"
	"testing"
)

func TestRegistryAddAndGet(t *testing.T) {
	r := NewRegistry(10)

	if err := r.Add(1, "Temperature Sensor", 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	d, err := r.Get(1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if d.Name != "Temperature Sensor" {
		t.Errorf("expected name Temperature Sensor, got %s", d.Name)
	}
	if d.UnitAddress != 1 {
		t.Errorf("expected unit address 1, got %d", d.UnitAddress)
	}
	if !d.Enabled {
		t.Error("new devices must start enabled")
	}
	if d.Polls != 0 {
		t.Errorf("expected zero polls, got %d", d.Polls)
	}
}

func TestRegistryDuplicateAddDoesNotMutate(t *testing.T) {
	r := NewRegistry(10)

	if err := r.Add(1, "A", 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	before := r.List()

	err := r.Add(1, "B", 2)
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	after := r.List()
	if len(after) != len(before) {
		t.Fatalf("duplicate add changed registry size: %d -> %d", len(before), len(after))
	}
	if after[0] != before[0] {
		t.Errorf("duplicate add changed entry: %+v -> %+v", before[0], after[0])
	}
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry(2)

	if err := r.Add(1, "A", 1); err != nil {
		t.Fatalf("Add(1) failed: %v", err)
	}
	if err := r.Add(2, "B", 2); err != nil {
		t.Fatalf("Add(2) failed: %v", err)
	}
	if err := r.Add(3, "C", 3); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(list))
	}
	if list[0].Name != "A" || list[1].Name != "B" {
		t.Errorf("expected [A B] in order, got [%s %s]", list[0].Name, list[1].Name)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(10)
	for i := 1; i <= 3; i++ {
		if err := r.Add(i, "dev", uint8(i)); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}

	if err := r.Remove(2); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := r.Remove(2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 devices after remove, got %d", len(list))
	}
	if list[0].ID != 1 || list[1].ID != 3 {
		t.Errorf("expected ids [1 3] in order, got [%d %d]", list[0].ID, list[1].ID)
	}
}

func TestRegistryAddRemoveBalance(t *testing.T) {
	r := NewRegistry(50)

	adds := 0
	for i := 1; i <= 20; i++ {
		if err := r.Add(i, "dev", uint8(i)); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
		adds++
	}
	removes := 0
	for i := 1; i <= 20; i += 2 {
		if err := r.Remove(i); err != nil {
			t.Fatalf("Remove(%d) failed: %v", i, err)
		}
		removes++
	}

	list := r.List()
	if len(list) != adds-removes {
		t.Fatalf("expected %d devices, got %d", adds-removes, len(list))
	}
	seen := make(map[int]bool)
	for _, d := range list {
		if seen[d.ID] {
			t.Fatalf("duplicate id %d in list", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestRegistryEnableDisable(t *testing.T) {
	r := NewRegistry(10)
	if err := r.Add(1, "A", 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := r.Disable(1); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	d, _ := r.Get(1)
	if d.Enabled {
		t.Error("expected device disabled")
	}

	// Idempotent: disabling again succeeds.
	if err := r.Disable(1); err != nil {
		t.Errorf("second Disable failed: %v", err)
	}

	if err := r.Enable(1); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	d, _ = r.Get(1)
	if !d.Enabled {
		t.Error("expected device enabled")
	}

	if err := r.Enable(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
	if err := r.Disable(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("enable/disable on unknown id changed size to %d", r.Len())
	}
}

func TestRegistryListEnabled(t *testing.T) {
	r := NewRegistry(10)
	if err := r.Add(1, "A", 11); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Add(2, "B", 22); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Add(3, "C", 33); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Disable(2); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	targets := r.ListEnabled()
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0] != (Target{DeviceID: 1, UnitAddress: 11}) {
		t.Errorf("unexpected first target: %+v", targets[0])
	}
	if targets[1] != (Target{DeviceID: 3, UnitAddress: 33}) {
		t.Errorf("unexpected second target: %+v", targets[1])
	}
}

func TestRegistryProcess(t *testing.T) {
	r := NewRegistry(10)
	if err := r.Add(1, "A", 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Add(2, "B", 2); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := r.Disable(2); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	if n := r.Process(); n != 1 {
		t.Errorf("expected 1 device ticked, got %d", n)
	}
	if n := r.Process(); n != 1 {
		t.Errorf("expected 1 device ticked, got %d", n)
	}

	a, _ := r.Get(1)
	if a.Polls != 2 {
		t.Errorf("expected 2 polls on enabled device, got %d", a.Polls)
	}
	b, _ := r.Get(2)
	if b.Polls != 0 {
		t.Errorf("expected 0 polls on disabled device, got %d", b.Polls)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry(10)
	if err := r.Add(1, "A", 1); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	d, _ := r.Get(1)
	d.Name = "mutated"
	d.Enabled = false

	fresh, _ := r.Get(1)
	if fresh.Name != "A" || !fresh.Enabled {
		t.Error("mutating a returned Device leaked into the registry")
	}
}

func TestRegistryDefaultCapacity(t *testing.T) {
	r := NewRegistry(0)
	if r.Capacity() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, r.Capacity())
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry(DefaultCapacity)
	for i := 1; i <= 50; i++ {
		if err := r.Add(i, "dev", uint8(i%247+1)); err != nil {
			t.Fatalf("Add(%d) failed: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	start := make(chan struct{})

	// Readers iterate snapshots while writers flip flags and tick polls.
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for i := 0; i < 100; i++ {
				for _, d := range r.List() {
					_ = d.ID
				}
				_ = r.ListEnabled()
				_, _ = r.Get(25)
			}
		}()
	}
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			<-start
			for i := 0; i < 100; i++ {
				id := (g*37+i)%50 + 1
				if i%2 == 0 {
					_ = r.Disable(id)
				} else {
					_ = r.Enable(id)
				}
				r.Process()
			}
		}(g)
	}

	close(start)
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("expected 50 devices after concurrent access, got %d", r.Len())
	}
}
