package persona

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPersonaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yml")
	content := "name: Pixel\ncontext: |\n  Pixel is a pixel-art loving streamer.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Name != "Pixel" {
		t.Fatalf("Name = %q", p.Name)
	}
	if p.Directive == "" {
		t.Fatal("empty directive")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("missing file loaded")
	}
}

func TestInsertName(t *testing.T) {
	p := &Persona{Name: "Pixel"}
	got := p.InsertName("{NAME} waves. {NAME} smiles.")
	if got != "Pixel waves. Pixel smiles." {
		t.Fatalf("InsertName = %q", got)
	}
}
