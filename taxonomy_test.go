package voc2yolo

import "testing"

func TestVOCClasses(t *testing.T) {
	if VOCClasses.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", VOCClasses.Len())
	}

	tests := []struct {
		name string
		id   int
	}{
		{"aeroplane", 0},
		{"cat", 7},
		{"person", 14},
		{"tvmonitor", 19},
	}
	for _, tt := range tests {
		id, ok := VOCClasses.Lookup(tt.name)
		if !ok || id != tt.id {
			t.Errorf("Lookup(%q) = %d, %v, want %d, true", tt.name, id, ok, tt.id)
		}
		if name, ok := VOCClasses.Name(tt.id); !ok || name != tt.name {
			t.Errorf("Name(%d) = %q, %v, want %q, true", tt.id, name, ok, tt.name)
		}
	}
}

func TestTaxonomyLookupMissing(t *testing.T) {
	for _, name := range []string{"", "Person", "airplane", "tv"} {
		if id, ok := VOCClasses.Lookup(name); ok {
			t.Errorf("Lookup(%q) = %d, true, want not found", name, id)
		}
	}
	if _, ok := VOCClasses.Name(-1); ok {
		t.Error("Name(-1) should not be found")
	}
	if _, ok := VOCClasses.Name(20); ok {
		t.Error("Name(20) should not be found")
	}
}

func TestNewTaxonomyInvalid(t *testing.T) {
	if _, err := NewTaxonomy("a", "b", "a"); err == nil {
		t.Error("expected error for duplicate names")
	}
	if _, err := NewTaxonomy("a", ""); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestTaxonomyNamesIsCopy(t *testing.T) {
	names := VOCClasses.Names()
	names[0] = "changed"
	if name, _ := VOCClasses.Name(0); name != "aeroplane" {
		t.Errorf("taxonomy was modified through Names(): %q", name)
	}
}
