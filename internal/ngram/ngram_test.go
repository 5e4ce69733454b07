package ngram

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleCounts() map[string]int64 {
	return map[string]int64{
		"THE": 600,
		"AND": 300,
		"ING": 99,
		"QZX": 1,
	}
}

// --- Build ---

func TestBuild_LogProbabilities(t *testing.T) {
	// table[g] = log10(count/N) where N is the sum of all counts
	m, err := Build(3, sampleCounts())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := math.Log10(600.0 / 1000.0)
	if got := m.Lookup("THE"); got != want {
		t.Errorf("Lookup(THE) = %v, want %v", got, want)
	}
	if m.Total() != 1000 {
		t.Errorf("Total = %d, want 1000", m.Total())
	}
	if m.Len() != 4 {
		t.Errorf("Len = %d, want 4", m.Len())
	}
}

func TestBuild_Floor(t *testing.T) {
	// Floor = log10(0.1/N)
	m, err := Build(3, sampleCounts())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := math.Log10(0.1 / 1000.0)
	if m.Floor() != want {
		t.Errorf("Floor = %v, want %v", m.Floor(), want)
	}
}

func TestBuild_FloorBelowEveryEntry(t *testing.T) {
	// Floor is finite and strictly smaller than every table value
	m, err := Build(3, sampleCounts())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if math.IsInf(m.Floor(), 0) || math.IsNaN(m.Floor()) {
		t.Fatalf("Floor not finite: %v", m.Floor())
	}
	for gram, v := range m.table {
		if v > 0 {
			t.Errorf("%s: log-prob %v > 0", gram, v)
		}
		if !(m.Floor() < v) {
			t.Errorf("%s: floor %v not below %v", gram, m.Floor(), v)
		}
	}
}

func TestBuild_UppercasesKeys(t *testing.T) {
	// Keys are upper-cased on build
	m, err := Build(4, map[string]int64{"tion": 5, "EION": 5})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Lookup("TION") == m.Floor() {
		t.Error("expected TION to be present after upper-casing")
	}
}

func TestBuild_MergesCaseVariants(t *testing.T) {
	// "the" and "THE" name the same trigram, so their counts are summed as ReadCounts does
	m, err := Build(3, map[string]int64{"the": 5, "THE": 5})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
	if got := m.Lookup("THE"); got != 0 {
		t.Errorf("Lookup(THE) = %v, want 0 (log10 of 10/10)", got)
	}
	if m.Total() != 10 {
		t.Errorf("Total() = %d, want 10", m.Total())
	}
}

func TestBuild_ZeroCountEntryUsesFloor(t *testing.T) {
	// A zero count never yields -Inf; the n-gram falls back to Floor
	m, err := Build(3, map[string]int64{"THE": 10, "XYZ": 0})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := m.Lookup("XYZ"); got != m.Floor() {
		t.Errorf("Lookup(XYZ) = %v, want floor %v", got, m.Floor())
	}
}

func TestBuild_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		order  int
		counts map[string]int64
	}{
		{"order too small", 2, map[string]int64{"TH": 1}},
		{"order too large", 6, map[string]int64{"THEIRS": 1}},
		{"length mismatch", 3, map[string]int64{"THE": 1, "THEN": 1}},
		{"negative count", 3, map[string]int64{"THE": -1}},
		{"zero total", 3, map[string]int64{"THE": 0}},
		{"empty", 4, map[string]int64{}},
	}

	for _, tc := range testCases {
		_, err := Build(tc.order, tc.counts)
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("%s: expected ErrMalformedInput, got %v", tc.name, err)
		}
	}
}

// --- Lookup ---

func TestLookup_UnknownReturnsFloor(t *testing.T) {
	// Lookup is total: unknown n-grams return exactly Floor
	m, err := Build(3, sampleCounts())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for _, g := range []string{"ZZZ", "ABC", "the"} {
		if got := m.Lookup(g); got != m.Floor() {
			t.Errorf("Lookup(%q) = %v, want floor %v", g, got, m.Floor())
		}
	}
}

// --- ReadCounts / LoadFile ---

func TestReadCounts_ParsesLines(t *testing.T) {
	// Returns the counts keyed by upper-cased n-gram and the inferred order
	src := "EION 4683602\ntion 10\n\nATIO 7\n"
	counts, order, err := ReadCounts(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ReadCounts: %v", err)
	}
	if order != 4 {
		t.Errorf("order = %d, want 4", order)
	}
	if counts["EION"] != 4683602 || counts["TION"] != 10 || counts["ATIO"] != 7 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestReadCounts_SumsDuplicates(t *testing.T) {
	// Sums counts of duplicate n-grams
	counts, _, err := ReadCounts(strings.NewReader("THE 2\nthe 3\n"))
	if err != nil {
		t.Fatalf("ReadCounts: %v", err)
	}
	if counts["THE"] != 5 {
		t.Errorf("THE = %d, want 5", counts["THE"])
	}
}

func TestReadCounts_Malformed(t *testing.T) {
	testCases := []struct {
		src      string
		wantLine string
	}{
		{"THE 1\nAND\n", "line 2"},
		{"THE one\n", "line 1"},
		{"THE 1\nTHEN 2\n", "line 2"},
		{"THE 1 2\n", "line 1"},
		{"\n\n", "no entries"},
	}

	for _, tc := range testCases {
		_, _, err := ReadCounts(strings.NewReader(tc.src))
		if !errors.Is(err, ErrMalformedInput) {
			t.Errorf("%q: expected ErrMalformedInput, got %v", tc.src, err)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantLine) {
			t.Errorf("%q: error %q does not mention %q", tc.src, err, tc.wantLine)
		}
	}
}

func TestLoadFile_BuildsModel(t *testing.T) {
	// LoadFile reads a frequency file and builds its Model
	path := filepath.Join(t.TempDir(), "english_trigrams.txt")
	if err := os.WriteFile(path, []byte("THE 3\nAND 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m.Order() != 3 {
		t.Errorf("Order = %d, want 3", m.Order())
	}
	if got, want := m.Lookup("THE"), math.Log10(0.75); got != want {
		t.Errorf("Lookup(THE) = %v, want %v", got, want)
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	// A missing file is an open error, not ErrMalformedInput
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.txt"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrMalformedInput) {
		t.Errorf("missing file should not be ErrMalformedInput: %v", err)
	}
}
