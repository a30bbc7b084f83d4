package record

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Dump is the top-level structure of a YAML record dump, as exported from a
// load order by an external tool.
//
// Example:
//
//	plugin: Skyrim.esm
//	voice_types:
//	  - key: 0001F0F7:Skyrim.esm
//	    editor_id: MaleCommoner
//	npcs:
//	  - key: 00013BB9:Skyrim.esm
//	    editor_id: Hulda
//	    voice: 00013AE2:Skyrim.esm
type Dump struct {
	// Plugin names the plugin or load order the dump was taken from.
	Plugin string `yaml:"plugin"`

	VoiceTypes []VoiceType `yaml:"voice_types"`
	NPCs       []NPC       `yaml:"npcs"`
}

// LoadDumpFile reads and parses a YAML record dump from disk.
func LoadDumpFile(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("record: open dump %q: %w", path, err)
	}
	defer f.Close()

	d, err := LoadDumpFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("record: parse dump %q: %w", path, err)
	}
	return d, nil
}

// LoadDumpFromReader parses a YAML record dump from r and validates it.
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadDumpFromReader(r io.Reader) (*Dump, error) {
	var d Dump
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("record: decode dump yaml: %w", err)
	}
	if err := ValidateDump(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadDumps parses every file in paths concurrently and returns the dumps in
// argument order.
func LoadDumps(ctx context.Context, paths ...string) ([]*Dump, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("record: no dump files given")
	}

	dumps := make([]*Dump, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := LoadDumpFile(p)
			if err != nil {
				return err
			}
			dumps[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return dumps, nil
}

// LoadDumpFiles parses every file in paths with [LoadDumps] and imports them
// into a new [MemSource] in argument order. Records are not merged: a form key
// that appears in more than one file is an error wrapping [ErrDuplicateKey].
func LoadDumpFiles(ctx context.Context, paths ...string) (*MemSource, error) {
	dumps, err := LoadDumps(ctx, paths...)
	if err != nil {
		return nil, err
	}

	src := NewMemSource()
	for i, d := range dumps {
		if _, err := src.BulkImport(d); err != nil {
			return nil, fmt.Errorf("record: import %q: %w", paths[i], err)
		}
	}
	return src, nil
}

// PatchFile is the YAML document written by [FileWriter].
type PatchFile struct {
	// Plugin is the name of the patch plugin.
	Plugin string `yaml:"plugin"`

	// Overrides lists every overridden NPC with its new voice.
	Overrides []NPC `yaml:"overrides"`
}

// FileWriter is a [PatchWriter] that writes the patch as a YAML document.
type FileWriter struct {
	// Path is the output file. It is created or truncated.
	Path string
}

var _ PatchWriter = (*FileWriter)(nil)

// WritePatch implements [PatchWriter.WritePatch].
func (w *FileWriter) WritePatch(ctx context.Context, p *Patch) error {
	f, err := os.Create(w.Path)
	if err != nil {
		return fmt.Errorf("record: create patch file %q: %w", w.Path, err)
	}
	if err := EncodePatch(f, p); err != nil {
		f.Close()
		return fmt.Errorf("record: write patch file %q: %w", w.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("record: close patch file %q: %w", w.Path, err)
	}
	return nil
}

// EncodePatch writes p to wr as a YAML [PatchFile].
func EncodePatch(wr io.Writer, p *Patch) error {
	enc := yaml.NewEncoder(wr)
	enc.SetIndent(2)
	if err := enc.Encode(PatchFile{Plugin: p.Name(), Overrides: p.Overrides()}); err != nil {
		return fmt.Errorf("record: encode patch: %w", err)
	}
	return enc.Close()
}
