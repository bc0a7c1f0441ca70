package beat

import (
	"sync"
	"testing"
)

func TestRegistry_OrderAndHandles(t *testing.T) {
	var r Registry
	var order []int

	h1 := r.Add(func(Event) { order = append(order, 1) })
	h2 := r.Add(func(Event) { order = append(order, 2) })
	h3 := r.Add(func(Event) { order = append(order, 3) })

	if h1 == 0 || h2 == 0 || h3 == 0 {
		t.Fatal("Add returned the zero handle")
	}
	if h1 == h2 || h2 == h3 || h1 == h3 {
		t.Fatalf("handles not unique: %d %d %d", h1, h2, h3)
	}

	r.Dispatch(Event{})
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("dispatch order = %v, want [1 2 3]", order)
	}

	order = nil
	r.Remove(h2)
	r.Dispatch(Event{})
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Errorf("dispatch order after remove = %v, want [1 3]", order)
	}
}

func TestRegistry_NilListener(t *testing.T) {
	var r Registry
	if h := r.Add(nil); h != 0 {
		t.Errorf("Add(nil) = %d, want 0", h)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	r.Dispatch(Event{})
}

func TestRegistry_RemoveUnknownIsNoOp(t *testing.T) {
	var r Registry
	r.Add(func(Event) {})
	r.Remove(0)
	r.Remove(12345)
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestRegistry_SameFuncTwiceCalledTwice(t *testing.T) {
	var r Registry
	calls := 0
	fn := func(Event) { calls++ }
	r.Add(fn)
	r.Add(fn)

	r.Dispatch(Event{})
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one per registration)", calls)
	}
}

func TestRegistry_RemoveDuringDispatchTakesEffectNextTime(t *testing.T) {
	var r Registry
	calls := map[string]int{}

	var h2 Handle
	r.Add(func(Event) {
		calls["remover"]++
		r.Remove(h2)
	})
	h2 = r.Add(func(Event) { calls["removed"]++ })

	r.Dispatch(Event{})
	if calls["removed"] != 1 {
		t.Errorf("removed listener called %d times in the current dispatch, want 1", calls["removed"])
	}

	r.Dispatch(Event{})
	if calls["removed"] != 1 {
		t.Errorf("removed listener called again on the next dispatch")
	}
	if calls["remover"] != 2 {
		t.Errorf("remover called %d times, want 2", calls["remover"])
	}
}

func TestRegistry_EachListenerOncePerDispatch(t *testing.T) {
	var r Registry
	calls := 0
	r.Add(func(Event) {
		calls++
		// Adding while dispatching must not extend this dispatch
		r.Add(func(Event) {})
	})

	r.Dispatch(Event{})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_ConcurrentAddRemoveDispatch(t *testing.T) {
	var r Registry
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				h := r.Add(func(Event) {})
				r.Remove(h)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 500; j++ {
			r.Dispatch(Event{Count: uint64(j)})
		}
	}()

	wg.Wait()
	if r.Len() != 0 {
		t.Errorf("Len() = %d after balanced add/remove, want 0", r.Len())
	}
}
