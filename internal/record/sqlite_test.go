package record_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrWong99/votpatch/internal/record"
)

func openTestSQLite(t *testing.T) *record.SQLiteSource {
	t.Helper()
	s, err := record.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDump() *record.Dump {
	return &record.Dump{
		VoiceTypes: []record.VoiceType{
			{Key: "0001F0F7:Skyrim.esm", EditorID: "MaleCommoner"},
			{Key: "00000800:Vot.esp", EditorID: "VOT_MaleCommoner01"},
		},
		NPCs: []record.NPC{
			{Key: "00013B97:Skyrim.esm", EditorID: "Belethor", Voice: "0001F0F7:Skyrim.esm"},
			{Key: "00013BB9:Skyrim.esm", EditorID: "Hulda", Name: "Hulda"},
		},
	}
}

func TestSQLite_ImportAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestSQLite(t)
	if err := s.Import(ctx, sampleDump()); err != nil {
		t.Fatalf("Import: %v", err)
	}

	v, err := s.LookupVoice(ctx, "malecommoner")
	if err != nil {
		t.Fatalf("LookupVoice: %v", err)
	}
	if v.Key != "0001F0F7:Skyrim.esm" || v.EditorID != "MaleCommoner" {
		t.Errorf("LookupVoice = %+v", v)
	}
	if _, err := s.LookupVoice(ctx, "FemaleNord"); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("LookupVoice(missing): expected ErrNotFound, got %v", err)
	}
	if _, err := s.VoiceByKey(ctx, "0001f0f7:skyrim.esm"); err != nil {
		t.Errorf("VoiceByKey should compare keys case-insensitively: %v", err)
	}

	voices, err := s.ListVoices(ctx)
	if err != nil || len(voices) != 2 {
		t.Errorf("ListVoices = %v, %v", voices, err)
	}
}

func TestSQLite_EachNPCAllowsNestedQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestSQLite(t)
	if err := s.Import(ctx, sampleDump()); err != nil {
		t.Fatalf("Import: %v", err)
	}

	var seen []string
	err := s.EachNPC(ctx, func(n record.NPC) error {
		seen = append(seen, n.EditorID)
		if n.Voice.IsNull() {
			return nil
		}
		_, err := s.VoiceByKey(ctx, n.Voice)
		return err
	})
	if err != nil {
		t.Fatalf("EachNPC: %v", err)
	}
	if len(seen) != 2 || seen[0] != "Belethor" || seen[1] != "Hulda" {
		t.Errorf("EachNPC order = %v", seen)
	}
}

func TestSQLite_ImportDuplicateRollsBack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestSQLite(t)
	d := sampleDump()
	d.NPCs = append(d.NPCs, record.NPC{Key: "00013b97:skyrim.esm"})

	if err := s.Import(ctx, d); !errors.Is(err, record.ErrDuplicateKey) {
		t.Fatalf("Import: expected ErrDuplicateKey, got %v", err)
	}
	voices, err := s.ListVoices(ctx)
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 0 {
		t.Errorf("failed import left %d voices behind", len(voices))
	}
}

func TestSQLite_WritePatchUpserts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openTestSQLite(t)
	npc := record.NPC{Key: "00013B97:Skyrim.esm"}

	p := record.NewPatch("")
	p.SetVoice(npc, record.VoiceType{Key: "00000800:Vot.esp"})
	if err := s.WritePatch(ctx, p); err != nil {
		t.Fatalf("WritePatch: %v", err)
	}

	p2 := record.NewPatch("")
	p2.SetVoice(npc, record.VoiceType{Key: "00000801:Vot.esp"})
	if err := s.WritePatch(ctx, p2); err != nil {
		t.Fatalf("WritePatch again: %v", err)
	}

	got, err := s.PatchVoices(ctx, record.DefaultPatchName)
	if err != nil {
		t.Fatalf("PatchVoices: %v", err)
	}
	if len(got) != 1 || got["00013B97:Skyrim.esm"] != "00000801:Vot.esp" {
		t.Errorf("PatchVoices = %v", got)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := record.OpenSQLite(context.Background(), " "); err == nil {
		t.Error("expected error for empty path")
	}
}
