package billing

import (
	"context"
	"sort"
	"sync"
)

type memoryRepo struct {
	mu            sync.RWMutex
	items         map[string]*Invoice
	byAppointment map[string]string
}

// NewMemoryRepo returns an InvoiceRepository held in process memory.
func NewMemoryRepo() InvoiceRepository {
	return &memoryRepo{
		items:         make(map[string]*Invoice),
		byAppointment: make(map[string]string),
	}
}

func (r *memoryRepo) Create(_ context.Context, inv *Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.AppointmentID != "" {
		if _, ok := r.byAppointment[inv.AppointmentID]; ok {
			return ErrDuplicateAppointment
		}
		r.byAppointment[inv.AppointmentID] = inv.ID
	}
	r.items[inv.ID] = inv.Clone()
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*Invoice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return inv.Clone(), nil
}

func (r *memoryRepo) Update(_ context.Context, inv *Invoice, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[inv.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionMismatch
	}
	r.items[inv.ID] = inv.Clone()
	return nil
}

func (r *memoryRepo) List(_ context.Context, limit, offset int) ([]*Invoice, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*Invoice, 0, len(r.items))
	for _, inv := range r.items {
		all = append(all, inv.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	total := len(all)
	if offset >= total {
		return []*Invoice{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}
