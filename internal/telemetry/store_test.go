package telemetry

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fleet-monitor/telemetry/internal/domain"
)

// scriptedRand returns queued values in order, then zero.
type scriptedRand struct {
	ints   []int
	floats []float64
}

func (r *scriptedRand) IntN(n int) int {
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

func (r *scriptedRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func ptr[T any](v T) *T { return &v }

func TestUpsertDefaults(t *testing.T) {
	s := NewStore(WithRand(&scriptedRand{
		ints:   []int{42, 150, 20},
		floats: []float64{0.75, 0.25},
	}))

	got, created := s.Upsert("v1", Attributes{})
	if !created {
		t.Fatal("expected create")
	}

	want := domain.VehicleTelemetry{
		ID:            "v1",
		Status:        domain.StatusAvailable,
		BatteryLevel:  42,
		Range:         250,
		BatteryHealth: 90,
		Latitude:      domain.ReferenceLatitude + 0.05,
		Longitude:     domain.ReferenceLongitude - 0.05,
	}
	opt := cmp.Comparer(func(a, b float64) bool {
		d := a - b
		return d < 1e-9 && d > -1e-9
	})
	if diff := cmp.Diff(want, got, opt); diff != "" {
		t.Fatalf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestUpsertSuppliedAttributesSkipDraws(t *testing.T) {
	r := &scriptedRand{ints: []int{7}}
	s := NewStore(WithRand(r))

	got, _ := s.Upsert("v1", Attributes{
		Status:        ptr(domain.StatusOnTrip),
		Range:         ptr(2),
		BatteryHealth: ptr(95.0),
		Latitude:      ptr(1.0),
		Longitude:     ptr(2.0),
	})

	if got.BatteryLevel != 7 {
		t.Errorf("battery = %v, want first draw 7", got.BatteryLevel)
	}
	if got.Status != domain.StatusOnTrip || got.Range != 2 || got.BatteryHealth != 95 {
		t.Errorf("supplied attributes not kept: %+v", got)
	}
	if got.Latitude != 1 || got.Longitude != 2 {
		t.Errorf("position = %v,%v, want 1,2", got.Latitude, got.Longitude)
	}
}

func TestUpsertDoesNotClobberExisting(t *testing.T) {
	s := NewStore(WithSeed(1))
	s.Upsert("v1", Attributes{BatteryLevel: ptr(50.0), Status: ptr(domain.StatusOnTrip)})

	s.Update("v1", func(v *domain.VehicleTelemetry) { v.BatteryLevel = 12.5 })

	got, created := s.Upsert("v1", Attributes{BatteryLevel: ptr(99.0), Status: ptr(domain.StatusCharging)})
	if created {
		t.Fatal("second upsert must not create")
	}
	if got.BatteryLevel != 12.5 || got.Status != domain.StatusOnTrip {
		t.Fatalf("simulated state clobbered: %+v", got)
	}
}

func TestRemoveThenGet(t *testing.T) {
	s := NewStore(WithSeed(1))
	s.Upsert("v1", Attributes{})

	if !s.Remove("v1") {
		t.Fatal("remove of present id reported absent")
	}
	if _, ok := s.Get("v1"); ok {
		t.Fatal("get after remove found vehicle")
	}
	if s.SetStatus("v1", domain.StatusCharging) {
		t.Fatal("set status on removed id reported success")
	}
	if s.Remove("v1") {
		t.Fatal("second remove reported present")
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d, want 0", s.Len())
	}
}

func TestRemovedEntryIgnoresStaleUpdate(t *testing.T) {
	s := NewStore(WithSeed(1))
	s.Upsert("v1", Attributes{})
	stale, _ := s.load("v1")
	s.Remove("v1")

	stale.mu.Lock()
	dead := stale.dead
	stale.mu.Unlock()
	if !dead {
		t.Fatal("removed entry not marked dead")
	}

	_, created := s.Upsert("v1", Attributes{BatteryLevel: ptr(10.0)})
	if !created {
		t.Fatal("re-upsert after remove should create a fresh entry")
	}
}

func TestListAndIDs(t *testing.T) {
	s := NewStore(WithSeed(1))
	for _, id := range []string{"a", "b", "c"} {
		s.Upsert(id, Attributes{})
	}

	if got := len(s.List()); got != 3 {
		t.Fatalf("list len = %d, want 3", got)
	}
	seen := map[string]bool{}
	for _, id := range s.IDs() {
		seen[id] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Errorf("IDs missing %s", id)
		}
	}
}

func TestConcurrentSetStatusAndUpdate(t *testing.T) {
	s := NewStore(WithSeed(1))
	s.Upsert("v1", Attributes{BatteryLevel: ptr(50.0), Range: ptr(200)})

	const n = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.Update("v1", func(v *domain.VehicleTelemetry) { v.Range++ })
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.SetStatus("v1", domain.StatusOnTrip)
		}
	}()
	wg.Wait()

	got, _ := s.Get("v1")
	if got.Range != 200+n {
		t.Fatalf("range = %d, want %d (lost update)", got.Range, 200+n)
	}
	if got.Status != domain.StatusOnTrip {
		t.Fatalf("status = %s, want on-trip", got.Status)
	}
}

func TestConcurrentUpsertCreatesOnce(t *testing.T) {
	s := NewStore(WithSeed(3))

	var created sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for i := 0; i < 32; i++ {
		created.Add(1)
		go func() {
			defer created.Done()
			if _, ok := s.Upsert("v1", Attributes{}); ok {
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}
	created.Wait()

	if count != 1 {
		t.Fatalf("created %d times, want 1", count)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}
