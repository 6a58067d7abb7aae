package telemetry

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"fleet-monitor/telemetry/internal/domain"
)

// Rand is the source of the randomized defaults given to new vehicles.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

type entry struct {
	mu   sync.Mutex
	v    domain.VehicleTelemetry
	dead bool
}

func (e *entry) snapshot() (domain.VehicleTelemetry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.v, !e.dead
}

// Store holds the simulated state of every registered vehicle.
//
// Each vehicle has its own lock, so operations on one id are atomic with
// respect to each other while different ids never contend. The map itself
// is a sync.Map: lookups and iteration do not block inserts or deletes.
type Store struct {
	vehicles sync.Map // id -> *entry
	count    atomic.Int64

	randMu sync.Mutex
	rand   Rand
}

type Option func(*Store)

// WithRand injects the default-value source. Tests pass a seeded or
// scripted source to get exact defaults.
func WithRand(r Rand) Option {
	return func(s *Store) {
		s.rand = r
	}
}

// WithSeed seeds the default-value source. Zero keeps the time-based seed.
func WithSeed(seed uint64) Option {
	return func(s *Store) {
		if seed != 0 {
			s.rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
		}
	}
}

func NewStore(opts ...Option) *Store {
	now := uint64(time.Now().UnixNano())
	s := &Store{
		rand: rand.New(rand.NewPCG(now, now>>1)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert creates the vehicle from attrs plus randomized defaults if it is not
// tracked yet. An existing vehicle is left untouched so a late registry
// event carrying stale base data cannot clobber simulated state. It returns
// the current snapshot and whether this call created it.
func (s *Store) Upsert(id string, attrs Attributes) (domain.VehicleTelemetry, bool) {
	for {
		if e, ok := s.load(id); ok {
			if v, alive := e.snapshot(); alive {
				return v, false
			}
			// Lost a race with Remove; the id is free again.
			continue
		}

		fresh := &entry{v: s.newVehicle(id, attrs)}
		actual, loaded := s.vehicles.LoadOrStore(id, fresh)
		if !loaded {
			s.count.Add(1)
			v, _ := fresh.snapshot()
			return v, true
		}
		if v, alive := actual.(*entry).snapshot(); alive {
			return v, false
		}
	}
}

// Remove deletes the vehicle. It reports whether the id was present.
func (s *Store) Remove(id string) bool {
	raw, ok := s.vehicles.LoadAndDelete(id)
	if !ok {
		return false
	}
	e := raw.(*entry)
	e.mu.Lock()
	e.dead = true
	e.mu.Unlock()
	s.count.Add(-1)
	return true
}

func (s *Store) Get(id string) (domain.VehicleTelemetry, bool) {
	e, ok := s.load(id)
	if !ok {
		return domain.VehicleTelemetry{}, false
	}
	return e.snapshot()
}

// List returns a copy of every snapshot. Order is unspecified.
func (s *Store) List() []domain.VehicleTelemetry {
	out := make([]domain.VehicleTelemetry, 0, s.Len())
	s.vehicles.Range(func(_, raw any) bool {
		if v, alive := raw.(*entry).snapshot(); alive {
			out = append(out, v)
		}
		return true
	})
	return out
}

func (s *Store) IDs() []string {
	ids := make([]string, 0, s.Len())
	s.vehicles.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

func (s *Store) Len() int {
	return int(s.count.Load())
}

// SetStatus replaces the status. Unknown ids are a no-op.
func (s *Store) SetStatus(id string, status domain.Status) bool {
	_, ok := s.Update(id, func(v *domain.VehicleTelemetry) {
		v.Status = status
	})
	return ok
}

// Update runs fn on the vehicle under its lock and returns the resulting
// snapshot. fn must not block or call back into the store.
func (s *Store) Update(id string, fn func(v *domain.VehicleTelemetry)) (domain.VehicleTelemetry, bool) {
	e, ok := s.load(id)
	if !ok {
		return domain.VehicleTelemetry{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return domain.VehicleTelemetry{}, false
	}
	fn(&e.v)
	return e.v, true
}

func (s *Store) load(id string) (*entry, bool) {
	raw, ok := s.vehicles.Load(id)
	if !ok {
		return nil, false
	}
	return raw.(*entry), true
}

func (s *Store) newVehicle(id string, attrs Attributes) domain.VehicleTelemetry {
	s.randMu.Lock()
	defer s.randMu.Unlock()

	v := domain.VehicleTelemetry{
		ID:     id,
		Status: domain.StatusAvailable,
	}
	if attrs.Status != nil {
		v.Status = *attrs.Status
	}

	if attrs.BatteryLevel != nil {
		v.BatteryLevel = *attrs.BatteryLevel
	} else {
		v.BatteryLevel = float64(s.rand.IntN(100))
	}

	if attrs.Range != nil {
		v.Range = *attrs.Range
	} else {
		v.Range = 100 + s.rand.IntN(200)
	}

	if attrs.BatteryHealth != nil {
		v.BatteryHealth = *attrs.BatteryHealth
	} else {
		v.BatteryHealth = float64(70 + s.rand.IntN(30))
	}

	if attrs.Latitude != nil {
		v.Latitude = *attrs.Latitude
	} else {
		v.Latitude = domain.ReferenceLatitude + jitter(s.rand)
	}

	if attrs.Longitude != nil {
		v.Longitude = *attrs.Longitude
	} else {
		v.Longitude = domain.ReferenceLongitude + jitter(s.rand)
	}

	return v
}

func jitter(r Rand) float64 {
	return r.Float64()*2*domain.PositionJitter - domain.PositionJitter
}
