package suggest_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/votpatch/internal/suggest"
)

var knownVoices = []string{
	"MaleCommoner",
	"MaleNord",
	"FemaleNord",
	"VOT_MaleCommoner01",
	"VOT_MaleCommoner02",
	"FemaleElfHaughty",
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"VOT_MaleCommoner01", []string{"vot", "male", "commoner"}},
		{"MaleCommoner", []string{"male", "commoner"}},
		{"femaleelfhaughty", []string{"femaleelfhaughty"}},
		{"__", nil},
		{"", nil},
	}
	for _, tt := range tests {
		if got := suggest.Tokenize(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSuggest_TypoRanksCorrectIDFirst(t *testing.T) {
	t.Parallel()

	m := suggest.New()
	got := m.Suggest("VOT_MaleComoner01", knownVoices)
	if len(got) == 0 {
		t.Fatal("expected suggestions for a one-letter typo")
	}
	if got[0].ID != "VOT_MaleCommoner01" {
		t.Errorf("best suggestion = %q, want VOT_MaleCommoner01 (all: %v)", got[0].ID, got)
	}
	if !got[0].Phonetic {
		t.Error("typo should match phonetically")
	}
}

func TestSuggest_ExcludesExactMatch(t *testing.T) {
	t.Parallel()

	m := suggest.New()
	for _, s := range m.Suggest("malenord", knownVoices) {
		if s.ID == "MaleNord" {
			t.Errorf("exact case-insensitive match %q should be excluded", s.ID)
		}
	}
}

func TestSuggest_EmptyInputs(t *testing.T) {
	t.Parallel()

	m := suggest.New()
	if got := m.Suggest("MaleNord", nil); got != nil {
		t.Errorf("Suggest with no known IDs = %v, want nil", got)
	}
	if got := m.Suggest("  ", knownVoices); got != nil {
		t.Errorf("Suggest with blank id = %v, want nil", got)
	}
}

func TestSuggest_Unrelated(t *testing.T) {
	t.Parallel()

	m := suggest.New()
	if got := m.IDs("Qxzzy", knownVoices); got != nil {
		t.Errorf("IDs(unrelated) = %v, want nil", got)
	}
}

func TestSuggest_Limit(t *testing.T) {
	t.Parallel()

	m := suggest.New(suggest.WithLimit(1), suggest.WithPhoneticThreshold(0), suggest.WithFuzzyThreshold(0))
	if got := m.IDs("VOT_MaleCommoner03", knownVoices); len(got) != 1 {
		t.Errorf("IDs with limit 1 returned %d ids: %v", len(got), got)
	}
}

func TestSuggest_PhoneticRanksAheadOfFuzzy(t *testing.T) {
	t.Parallel()

	m := suggest.New(suggest.WithPhoneticThreshold(0), suggest.WithFuzzyThreshold(0), suggest.WithLimit(10))
	got := m.Suggest("MaleKommoner", knownVoices)
	seenFuzzy := false
	for _, s := range got {
		if !s.Phonetic {
			seenFuzzy = true
			continue
		}
		if seenFuzzy {
			t.Fatalf("phonetic suggestion %q ranked after a fuzzy one: %v", s.ID, got)
		}
	}
}

func TestSuggest_DeduplicatesKnownIDs(t *testing.T) {
	t.Parallel()

	m := suggest.New(suggest.WithLimit(10))
	got := m.IDs("MaleComoner", []string{"MaleCommoner", "malecommoner", "MALECOMMONER"})
	if len(got) != 1 {
		t.Errorf("IDs = %v, want a single entry", got)
	}
}
