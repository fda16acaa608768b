package shooter

import (
	"sync"
	"sync/atomic"
)

// Domain is a mutual-exclusion domain over a group of actuators. At most one
// operation holds it at a time.
//
// The in-progress flag is the visible signal read by the polling loop; the
// slot is the lock held by the operation. The flag is raised before the
// slot is taken and lowered only after the slot is given back. Raising the
// flag and running an unowned write (WhileFree) are serialized by mu.
type Domain struct {
	name  string
	mu    sync.Mutex
	slot  chan struct{}
	flag  atomic.Bool
	owner atomic.Uint64
}

func newDomain(name string) *Domain {
	return &Domain{name: name, slot: make(chan struct{}, 1)}
}

// Name returns the domain name.
func (d *Domain) Name() string { return d.name }

// InProgress reports whether an operation holds or is entering the domain.
func (d *Domain) InProgress() bool { return d.flag.Load() }

// Owner returns the id of the holding operation, or 0.
func (d *Domain) Owner() uint64 { return d.owner.Load() }

// TryEnter claims the domain for operation id without waiting.
func (d *Domain) TryEnter(id uint64) (*Lease, bool) {
	d.mu.Lock()
	ok := d.flag.CompareAndSwap(false, true)
	d.mu.Unlock()
	if !ok {
		return nil, false
	}
	// The flag is lowered only after the slot is drained, so the slot is
	// free here.
	d.slot <- struct{}{}
	d.owner.Store(id)
	return &Lease{d: d, id: id}, true
}

// WhileFree runs fn only if no operation holds the domain. No operation can
// enter until fn returns. It reports whether fn ran.
func (d *Domain) WhileFree(fn func() error) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.flag.Load() {
		return false, nil
	}
	return true, fn()
}

// Lease is a held domain.
type Lease struct {
	d    *Domain
	id   uint64
	once sync.Once
}

// Domain returns the leased domain.
func (l *Lease) Domain() *Domain { return l.d }

// Release gives the domain back. It is safe to call more than once.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.d.owner.CompareAndSwap(l.id, 0)
		<-l.d.slot
		l.d.flag.Store(false)
	})
}
