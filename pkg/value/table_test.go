package value

import "testing"

func newInterned(chars string) *ObjString {
	return &ObjString{Chars: chars, Hash: HashString(chars)}
}

func TestTableSetReportsNewVsExistingKey(t *testing.T) {
	tbl := NewTable()
	key := newInterned("answer")

	if isNew := tbl.Set(key, NumberValue(42)); !isNew {
		t.Fatalf("first Set of a key should report isNewKey=true")
	}
	if isNew := tbl.Set(key, NumberValue(43)); isNew {
		t.Fatalf("overwriting an existing key should report isNewKey=false")
	}

	got, ok := tbl.Get(key)
	if !ok || got.AsNumber() != 43 {
		t.Fatalf("Get after overwrite: got (%v, %v), want (43, true)", got, ok)
	}
}

func TestTableDeleteThenGetMisses(t *testing.T) {
	tbl := NewTable()
	key := newInterned("gone")
	tbl.Set(key, BoolValue(true))

	if !tbl.Delete(key) {
		t.Fatalf("Delete on a present key should report true")
	}
	if _, ok := tbl.Get(key); ok {
		t.Fatalf("Get after Delete should miss")
	}
	if tbl.Delete(key) {
		t.Fatalf("Delete on an already-deleted key should report false")
	}
}

// TestTableSurvivesGrowthWithTombstones exercises set/delete/set across a
// capacity growth, the property.md §8 invariant #2 scenario: every key
// inserted and not subsequently deleted still resolves to its last value.
func TestTableSurvivesGrowthWithTombstones(t *testing.T) {
	tbl := NewTable()
	keys := make([]*ObjString, 0, 40)
	for i := 0; i < 40; i++ {
		k := newInterned(string(rune('a' + i%26)) + string(rune('0'+i%10)))
		keys = append(keys, k)
		tbl.Set(k, NumberValue(float64(i)))
		if i%3 == 0 {
			tbl.Delete(k)
		}
	}

	for i, k := range keys {
		v, ok := tbl.Get(k)
		if i%3 == 0 {
			if ok {
				t.Errorf("key %d should have been deleted, found %v", i, v)
			}
			continue
		}
		if !ok || v.AsNumber() != float64(i) {
			t.Errorf("key %d: got (%v, %v), want (%d, true)", i, v, ok, i)
		}
	}
}

func TestFindStringReturnsInternedInstance(t *testing.T) {
	tbl := NewTable()
	s := newInterned("shared")
	tbl.Set(s, BoolValue(true))

	found := tbl.FindString("shared", HashString("shared"))
	if found != s {
		t.Fatalf("FindString did not return the interned instance")
	}

	if tbl.FindString("missing", HashString("missing")) != nil {
		t.Fatalf("FindString should return nil for an un-interned string")
	}
}

func TestEqualOfInternedStringsIsIdentity(t *testing.T) {
	a := ObjValue(newInterned("same"))
	b := ObjValue(newInterned("same"))
	if Equal(a, b) {
		t.Fatalf("two distinct ObjString instances must not compare equal without interning")
	}

	shared := newInterned("same")
	a = ObjValue(shared)
	b = ObjValue(shared)
	if !Equal(a, b) {
		t.Fatalf("identical interned instances must compare equal")
	}
}

func TestIsFalsey(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{NilValue(), true},
		{BoolValue(false), true},
		{BoolValue(true), false},
		{NumberValue(0), false},
		{ObjValue(newInterned("")), false},
	}
	for _, c := range cases {
		if got := IsFalsey(c.v); got != c.want {
			t.Errorf("IsFalsey(%v) = %v, want %v", c.v.String(), got, c.want)
		}
	}
}
