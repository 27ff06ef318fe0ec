package ecs

import (
	"encoding/json"
	"testing"
)

func TestStorageEntitySetConsistency(t *testing.T) {
	s := NewStorage[int]()
	for i := EntityID(1); i <= 20; i++ {
		s.Set(i, int(i))
	}
	for i := EntityID(1); i <= 20; i += 3 {
		s.Remove(i)
	}
	s.Set(5, 500)

	ids := s.Entities()
	inList := make(map[EntityID]bool, len(ids))
	for _, id := range ids {
		inList[id] = true
	}
	for i := EntityID(0); i <= 25; i++ {
		if s.Has(i) != inList[i] {
			t.Errorf("Has(%d)=%v but listed=%v", i, s.Has(i), inList[i])
		}
	}
	if s.Len() != len(ids) {
		t.Errorf("Len %d != %d entities", s.Len(), len(ids))
	}
	if v, _ := s.Get(5); v != 500 {
		t.Errorf("Expected overwrite 500, got %d", v)
	}
}

func TestStorageCopiesAreIndependent(t *testing.T) {
	s := NewStorage[string]()
	s.Set(1, "a")
	s.Set(2, "b")

	ids := s.Entities()
	vals := s.Values()
	ids[0] = 99
	vals[0] = "z"

	if !s.Has(1) || s.Has(99) {
		t.Error("mutating Entities copy changed storage")
	}
	if v, _ := s.Get(1); v != "a" {
		t.Errorf("mutating Values copy changed storage: %q", v)
	}
	s.Clear()
	if s.Len() != 0 || s.Has(1) {
		t.Error("Clear left values")
	}
}

func TestDynamicMarshal(t *testing.T) {
	d := Dynamic{Kind: "score", Fields: map[string]any{"points": 3}}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"points":3}` {
		t.Errorf("unexpected json %s", b)
	}
	if d.ComponentType() != "score" {
		t.Errorf("Expected score, got %s", d.ComponentType())
	}
	empty, _ := json.Marshal(Dynamic{Kind: "x"})
	if string(empty) != "{}" {
		t.Errorf("Expected {}, got %s", empty)
	}
	scalar, _ := json.Marshal(Dynamic{Kind: "hp", Value: 7.5})
	if string(scalar) != "7.5" {
		t.Errorf("Expected 7.5, got %s", scalar)
	}
}
