package table

import (
	"reflect"
	"testing"
)

func TestTableSetGetDelete(t *testing.T) {
	tbl := New()
	r := Route{Port: 6201, Weight: 1, NextHop: 6201, UpdateFlag: 0, LastRefreshed: 1.5}

	if _, ok := tbl.Get(2); ok {
		t.Fatalf("expected empty table to have no entry for 2")
	}

	tbl.Set(2, r)
	got, ok := tbl.Get(2)
	if !ok {
		t.Fatalf("expected entry for 2 after Set")
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("Get() = %+v, want %+v", got, r)
	}

	tbl.Delete(2)
	if _, ok := tbl.Get(2); ok {
		t.Errorf("expected entry for 2 to be gone after Delete")
	}
}

func TestTableCloneIsIndependent(t *testing.T) {
	tbl := New()
	tbl.Set(1, Route{Port: 6110, Weight: 1, NextHop: 6110})

	clone := tbl.Clone()
	clone.Set(1, Route{Port: 6110, Weight: 5, NextHop: 6110})

	orig, _ := tbl.Get(1)
	if orig.Weight != 1 {
		t.Errorf("mutating clone affected original: weight = %d, want 1", orig.Weight)
	}
}

func TestTableIdsSortedAscending(t *testing.T) {
	tbl := New()
	for _, id := range []RouterID{5, 1, 3} {
		tbl.Set(id, Route{})
	}
	want := []RouterID{1, 3, 5}
	if got := tbl.Ids(); !reflect.DeepEqual(got, want) {
		t.Errorf("Ids() = %v, want %v", got, want)
	}
}

func TestTableRenderIsStable(t *testing.T) {
	tbl := New()
	tbl.Set(2, Route{Port: 6201, Weight: 3, NextHop: 6201, UpdateFlag: 0, LastRefreshed: 1})
	tbl.Set(1, Route{Port: 6110, Weight: 1, NextHop: 6110, UpdateFlag: 0, LastRefreshed: 1})

	first := tbl.Render()
	second := tbl.Render()
	if first != second {
		t.Errorf("Render() not stable across calls: %q vs %q", first, second)
	}
	if first == "" {
		t.Errorf("Render() returned empty string for non-empty table")
	}
}
