package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// MemoryDirectory serves directory data held in process, optionally seeded from JSON.
type MemoryDirectory struct {
	mu        sync.RWMutex
	doctors   map[string]Doctor
	services  []Service
	blockouts []Blockout
}

// Seed is the JSON shape accepted by LoadSeedFile.
type Seed struct {
	Doctors   []Doctor   `json:"doctors"`
	Services  []Service  `json:"services"`
	Blockouts []Blockout `json:"blockouts"`
}

// NewMemoryDirectory builds a directory from the given seed.
func NewMemoryDirectory(seed Seed) *MemoryDirectory {
	d := &MemoryDirectory{doctors: make(map[string]Doctor, len(seed.Doctors))}
	for _, doc := range seed.Doctors {
		d.doctors[doc.ID] = doc
	}
	d.services = append(d.services, seed.Services...)
	d.blockouts = append(d.blockouts, seed.Blockouts...)
	return d
}

// ReadSeed decodes a JSON seed file. Blockouts without a status are active.
func ReadSeed(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("directory: read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("directory: decode seed: %w", err)
	}
	for i, b := range seed.Blockouts {
		if b.Status == "" {
			seed.Blockouts[i].Status = BlockoutActive
		}
	}
	return seed, nil
}

// LoadSeedFile reads a JSON seed file and returns a populated directory.
func LoadSeedFile(path string) (*MemoryDirectory, error) {
	seed, err := ReadSeed(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryDirectory(seed), nil
}

// PutBlockout adds or replaces a blockout.
func (d *MemoryDirectory) PutBlockout(b Blockout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.blockouts {
		if d.blockouts[i].ID == b.ID && b.ID != "" {
			d.blockouts[i] = b
			return
		}
	}
	d.blockouts = append(d.blockouts, b)
}

func (d *MemoryDirectory) ListActiveDoctors(ctx context.Context) ([]Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Doctor
	for _, doc := range d.doctors {
		if doc.Active {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *MemoryDirectory) ListServicesForDoctor(ctx context.Context, doctorID string) ([]Service, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Service
	for _, svc := range d.services {
		if svc.OfferedBy(doctorID) {
			out = append(out, svc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *MemoryDirectory) GetDoctor(ctx context.Context, doctorID string) (*Doctor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.doctors[doctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &doc, nil
}

func (d *MemoryDirectory) ListActiveBlockouts(ctx context.Context, doctorID string) ([]Blockout, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Blockout
	for _, b := range d.blockouts {
		if b.DoctorID == doctorID && b.Status == BlockoutActive {
			out = append(out, b)
		}
	}
	return out, nil
}

var _ Directory = (*MemoryDirectory)(nil)
