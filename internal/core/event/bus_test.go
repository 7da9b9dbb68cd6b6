package event

import "testing"

type ping struct{ N int }
type pong struct{ S string }

func TestEventsArriveNextTick(t *testing.T) {
	b := NewBus()
	var got []int
	Subscribe(b, func(p ping) { got = append(got, p.N) })

	Emit(b, ping{1})
	Emit(b, ping{2})
	if b.DispatchAll() != 0 || len(got) != 0 {
		t.Fatal("events delivered in the tick they were emitted")
	}
	if b.Pending() != 2 {
		t.Fatalf("Pending() = %d", b.Pending())
	}

	b.SwapBuffers()
	if n := b.DispatchAll(); n != 2 {
		t.Fatalf("DispatchAll = %d", n)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("got %v", got)
	}

	b.SwapBuffers()
	b.DispatchAll()
	if len(got) != 2 {
		t.Fatalf("events redelivered: %v", got)
	}
}

func TestHandlersAreTyped(t *testing.T) {
	b := NewBus()
	pings, pongs := 0, 0
	Subscribe(b, func(ping) { pings++ })
	Subscribe(b, func(pong) { pongs++ })
	Subscribe(b, func(pong) { pongs++ })

	Emit(b, pong{"a"})
	Emit(b, ping{1})
	b.SwapBuffers()
	b.DispatchAll()
	if pings != 1 || pongs != 2 {
		t.Fatalf("pings=%d pongs=%d", pings, pongs)
	}
}
