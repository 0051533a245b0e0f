package roster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	input := "\ufeffName, RollNo, Department, Year, Division\n" +
		"Alice Novak, 101, CS, TE, A\n" +
		"# withdrawn\n" +
		"Jiří Dvořák, 102, CS, TE, B\n" +
		"Bob, 103\n" +
		",104,CS,TE,A\n"

	r, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}

	alice, ok := r.Lookup("alice novak")
	if !ok || alice.RollNo != "101" {
		t.Errorf("Lookup(alice novak) = %+v, %v", alice, ok)
	}
	if alice.Class == nil || alice.Class.Division != "A" {
		t.Errorf("expected class tag for Alice, got %+v", alice.Class)
	}

	jiri, ok := r.Lookup("JIRI  DVORAK")
	if !ok || jiri.RollNo != "102" {
		t.Errorf("diacritic-insensitive lookup failed: %+v, %v", jiri, ok)
	}

	bob, ok := r.Lookup("Bob")
	if !ok || bob.Class != nil {
		t.Errorf("expected Bob without class, got %+v, %v", bob, ok)
	}

	if _, ok := r.Lookup("Mallory"); ok {
		t.Error("unexpected match for unknown name")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"missing roll column", "Name,Department\nAlice,CS\n"},
		{"missing name column", "RollNo\n1\n"},
		{"bad quoting", "Name,RollNo\n\"Alice,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(strings.NewReader(tt.input)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.csv")
	if err := os.WriteFile(path, []byte("Name,RollNo\nAlice,1\nBob,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV() error: %v", err)
	}
	ids := r.Identities()
	if len(ids) != 2 || ids[0].Name != "Alice" || ids[1].RollNo != "2" {
		t.Errorf("unexpected identities %+v", ids)
	}

	if _, err := LoadCSV(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Jiří Novák", "jiri novak"},
		{"Anna-Marie  Smith", "anna marie smith"},
		{"john_doe", "john doe"},
		{"  Zoë ", "zoe"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.input); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRemoveDiacritics(t *testing.T) {
	if got := RemoveDiacritics("Žluťoučký kůň"); got != "Zlutoucky kun" {
		t.Errorf("RemoveDiacritics() = %q", got)
	}
}
