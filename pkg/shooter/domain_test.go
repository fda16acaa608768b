package shooter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDomainTryEnter(t *testing.T) {
	d := newDomain("arm")

	lease, ok := d.TryEnter(1)
	if !ok {
		t.Fatal("TryEnter(1) on a free domain failed")
	}
	if !d.InProgress() || d.Owner() != 1 {
		t.Errorf("InProgress, Owner = %v, %d, want true, 1", d.InProgress(), d.Owner())
	}
	if _, ok := d.TryEnter(2); ok {
		t.Error("TryEnter(2) succeeded on a held domain")
	}
	if d.Owner() != 1 {
		t.Errorf("Owner() = %d after a refused entry, want 1", d.Owner())
	}

	lease.Release()
	lease.Release()
	if d.InProgress() || d.Owner() != 0 {
		t.Errorf("after release InProgress, Owner = %v, %d, want false, 0", d.InProgress(), d.Owner())
	}

	again, ok := d.TryEnter(3)
	if !ok {
		t.Fatal("TryEnter(3) after release failed")
	}
	// A stale lease must not free the domain held by someone else.
	lease.Release()
	if !d.InProgress() || d.Owner() != 3 {
		t.Errorf("stale release changed the domain: InProgress, Owner = %v, %d", d.InProgress(), d.Owner())
	}
	again.Release()

	var nilLease *Lease
	nilLease.Release()
}

func TestDomainMutualExclusion(t *testing.T) {
	d := newDomain("release")
	var (
		inside  atomic.Int32
		entered atomic.Int32
		wg      sync.WaitGroup
	)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				lease, ok := d.TryEnter(uint64(g*1000 + i + 1))
				if !ok {
					continue
				}
				entered.Add(1)
				if n := inside.Add(1); n != 1 {
					t.Errorf("%d operations inside the domain", n)
				}
				if !d.InProgress() {
					t.Error("flag lowered while the domain is held")
				}
				inside.Add(-1)
				lease.Release()
			}
		}(g)
	}
	wg.Wait()
	if entered.Load() == 0 {
		t.Error("no operation ever entered the domain")
	}
	if d.InProgress() {
		t.Error("domain still in progress after every lease was released")
	}
}

func TestDomainWhileFree(t *testing.T) {
	d := newDomain("arm")

	ran, err := d.WhileFree(func() error { return nil })
	if !ran || err != nil {
		t.Errorf("WhileFree() on a free domain = %v, %v, want true, nil", ran, err)
	}

	lease, _ := d.TryEnter(1)
	called := false
	ran, _ = d.WhileFree(func() error { called = true; return nil })
	if ran || called {
		t.Error("WhileFree() ran on a held domain")
	}
	lease.Release()

	// An operation entering while an unowned write is in flight waits for
	// it, so the write cannot land inside the operation.
	writing := make(chan struct{})
	finish := make(chan struct{})
	done := make(chan bool)
	go func() {
		ran, _ := d.WhileFree(func() error {
			close(writing)
			<-finish
			return nil
		})
		done <- ran
	}()
	<-writing
	entered := make(chan *Lease)
	go func() {
		l, _ := d.TryEnter(2)
		entered <- l
	}()
	select {
	case <-entered:
		t.Fatal("TryEnter() returned while an unowned write was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(finish)
	if !<-done {
		t.Error("in-flight WhileFree() reported not run")
	}
	l := <-entered
	if l == nil {
		t.Fatal("TryEnter() failed after the write finished")
	}
	l.Release()
}
