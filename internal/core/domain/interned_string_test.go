package domain_test

import (
	"encoding/json"
	"slices"
	"testing"

	"go.trai.ch/cellar/internal/core/domain"
)

func TestInternedString(t *testing.T) {
	is1 := domain.NewInternedString("freetype")
	is2 := domain.NewInternedString("freetype")

	if is1.Value() != is2.Value() {
		t.Errorf("Expected handles to be equal for identical strings, got %v and %v", is1.Value(), is2.Value())
	}
	if is1.String() != "freetype" {
		t.Errorf("Expected String() to return %q, got %q", "freetype", is1.String())
	}

	var zero domain.InternedString
	if !zero.IsZero() || zero.String() != "" {
		t.Errorf("Expected zero value to be empty, got %q", zero.String())
	}
}

func TestInternedString_Compare(t *testing.T) {
	names := domain.NewInternedStrings([]string{"wine", "freetype", "jpeg", "freetype"})
	slices.SortFunc(names, domain.InternedString.Compare)

	got := make([]string, 0, len(names))
	for _, n := range names {
		got = append(got, n.String())
	}
	want := []string{"freetype", "freetype", "jpeg", "wine"}
	if !slices.Equal(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestInternedStringJSON(t *testing.T) {
	type record struct {
		Package domain.InternedString `json:"package"`
	}

	original := record{Package: domain.NewInternedString("libgphoto2")}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Failed to marshal struct: %v", err)
	}
	if string(data) != `{"package":"libgphoto2"}` {
		t.Errorf("Unexpected JSON %s", data)
	}

	var decoded record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal struct: %v", err)
	}
	if decoded.Package != original.Package {
		t.Errorf("Expected %q, got %q", original.Package, decoded.Package)
	}
}
