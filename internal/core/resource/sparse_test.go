package resource

import (
	"errors"
	"math/rand"
	"testing"
)

func TestSparseAllocate(t *testing.T) {
	al := NewSparseArrayAllocatorWithCapacity[int](10)
	for i := 0; i < 10; i++ {
		idx := al.Allocate(i)
		if v, ok := al.Get(idx); !ok || v != i {
			t.Fatalf("Get(%d) = %d, %v; want %d, true", idx, v, ok, i)
		}
	}
	if al.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", al.Len())
	}
}

func TestSparseFree(t *testing.T) {
	al := NewSparseArrayAllocator[int]()
	for i := 0; i < 10; i++ {
		al.Allocate(i)
	}
	if _, err := al.Free(9); err != nil {
		t.Fatalf("Free(9): %v", err)
	}
	next := al.Allocate(0)
	if next != 9 {
		t.Fatalf("expected freed slot 9 to be reused, got %d", next)
	}
	if v, err := al.Free(9); err != nil || v != 0 {
		t.Fatalf("Free(9) = %d, %v; want 0, nil", v, err)
	}
	if _, err := al.Free(9); !errors.Is(err, ErrAlreadyFreed) {
		t.Fatalf("double free: got %v, want ErrAlreadyFreed", err)
	}
	if _, ok := al.Get(9); ok {
		t.Fatal("freed slot should be empty")
	}
}

func TestSparseFreeListIsFIFO(t *testing.T) {
	al := NewSparseArrayAllocator[string]()
	for i := 0; i < 5; i++ {
		al.Allocate("x")
	}
	for _, i := range []int{3, 1, 4} {
		if _, err := al.Free(i); err != nil {
			t.Fatal(err)
		}
	}
	for _, want := range []int{3, 1, 4, 5} {
		if got := al.Allocate("y"); got != want {
			t.Fatalf("Allocate() = %d, want %d", got, want)
		}
	}
}

func TestSparseOutOfRange(t *testing.T) {
	al := NewSparseArrayAllocator[float32]()
	al.Allocate(1)
	for _, i := range []int{-1, 1, 1000} {
		if _, ok := al.Get(i); ok {
			t.Errorf("Get(%d) should miss", i)
		}
		if _, ok := al.GetPtr(i); ok {
			t.Errorf("GetPtr(%d) should miss", i)
		}
		if _, err := al.Free(i); !errors.Is(err, ErrAlreadyFreed) {
			t.Errorf("Free(%d) = %v, want ErrAlreadyFreed", i, err)
		}
	}
	if al.Len() != 1 {
		t.Fatalf("failed frees changed Len to %d", al.Len())
	}
}

func TestSparseGetPtr(t *testing.T) {
	al := NewSparseArrayAllocatorWithCapacity[float32](100)
	idx := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		idx = append(idx, al.Allocate(rand.Float32()))
	}
	for _, i := range idx {
		p, ok := al.GetPtr(i)
		if !ok {
			t.Fatalf("GetPtr(%d) missed", i)
		}
		*p = 10
		if v, _ := al.Get(i); v != 10 {
			t.Fatalf("write through pointer lost for slot %d: %v", i, v)
		}
	}
}

func TestSparseLenMatchesAllocMinusFree(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	al := NewSparseArrayAllocator[int]()
	var live []int
	allocs, frees := 0, 0
	for step := 0; step < 5000; step++ {
		switch {
		case len(live) == 0 || r.Intn(3) > 0:
			live = append(live, al.Allocate(step))
			allocs++
		default:
			k := r.Intn(len(live))
			if _, err := al.Free(live[k]); err != nil {
				t.Fatalf("step %d: Free(%d): %v", step, live[k], err)
			}
			live = append(live[:k], live[k+1:]...)
			frees++
		}
		// Random bad frees must never succeed or disturb the count.
		if _, err := al.Free(al.Cap() + r.Intn(10)); err == nil {
			t.Fatalf("step %d: out-of-range free succeeded", step)
		}
		if al.Len() != allocs-frees {
			t.Fatalf("step %d: Len() = %d, want %d", step, al.Len(), allocs-frees)
		}
	}
}

func TestSparseEach(t *testing.T) {
	al := NewSparseArrayAllocator[int]()
	for i := 0; i < 10; i++ {
		al.Allocate(i)
	}
	for i := 0; i < 10; i += 2 {
		al.Free(i)
	}
	sum := 0
	al.Each(func(_ int, v *int) { sum += *v })
	if sum != 1+3+5+7+9 {
		t.Fatalf("Each visited wrong slots, sum=%d", sum)
	}
}
