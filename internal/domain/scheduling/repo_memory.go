package scheduling

import (
	"context"
	"sort"
	"sync"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[string]*Appointment
}

// NewMemoryRepo returns an AppointmentRepository held in process memory.
func NewMemoryRepo() AppointmentRepository {
	return &memoryRepo{items: make(map[string]*Appointment)}
}

func (r *memoryRepo) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[a.ID] = a.Clone()
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (r *memoryRepo) Update(_ context.Context, a *Appointment, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[a.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionMismatch
	}
	r.items[a.ID] = a.Clone()
	return nil
}

func (r *memoryRepo) ListByDoctor(_ context.Context, doctorID string, limit, offset int) ([]*Appointment, int, error) {
	return r.page(func(a *Appointment) bool { return a.DoctorID == doctorID }, limit, offset)
}

func (r *memoryRepo) List(_ context.Context, limit, offset int) ([]*Appointment, int, error) {
	return r.page(func(*Appointment) bool { return true }, limit, offset)
}

// page returns matches ordered by date and start time.
func (r *memoryRepo) page(match func(*Appointment) bool, limit, offset int) ([]*Appointment, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*Appointment
	for _, a := range r.items {
		if match(a) {
			all = append(all, a.Clone())
		}
	}
	sort.Slice(all, func(i, j int) bool {
		ki := all[i].AppointmentDate + " " + all[i].StartTime
		kj := all[j].AppointmentDate + " " + all[j].StartTime
		if ki == kj {
			return all[i].ID < all[j].ID
		}
		return ki < kj
	})
	total := len(all)
	if offset >= total {
		return []*Appointment{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
