package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePersona(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write persona: %v", err)
	}
	return path
}

func TestLoadDefaultsID(t *testing.T) {
	path := writePersona(t, `{"name": "Raven", "bio": ["Keeper of the marsh roads."]}`)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.ID != "raven" {
		t.Errorf("id = %q, want lowercased name", p.ID)
	}
}

func TestLoadRequiresName(t *testing.T) {
	path := writePersona(t, `{"bio": ["nameless"]}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestFactsAndStyle(t *testing.T) {
	p := &Persona{
		Name:       "Raven",
		Bio:        []string{"Born in the fen."},
		Adjectives: []string{"wry", "patient"},
		Style:      Style{All: []string{"Speak plainly."}, Chat: []string{"Short sentences."}},
	}

	facts := p.Facts()
	for _, want := range []string{"You are Raven.", "Born in the fen.", "wry, patient"} {
		if !strings.Contains(facts, want) {
			t.Errorf("Facts() missing %q:\n%s", want, facts)
		}
	}

	style := p.StyleGuide()
	if !strings.Contains(style, "Speak plainly.") || !strings.Contains(style, "Short sentences.") {
		t.Errorf("StyleGuide() = %q", style)
	}

	empty := &Persona{Name: "Mute"}
	if got := empty.StyleGuide(); got != "" {
		t.Errorf("StyleGuide() on empty style = %q, want empty", got)
	}
}
