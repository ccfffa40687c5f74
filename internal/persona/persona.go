package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Persona defines the agent's identity: who it is, what it knows about
// itself, and how it speaks. Loaded once at startup from a JSON document.
type Persona struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Bio          []string `json:"bio"`
	Lore         []string `json:"lore"`
	Adjectives   []string `json:"adjectives"`
	Style        Style    `json:"style"`
	SystemPrompt string   `json:"system_prompt"`
}

// Style holds register guidance for generated responses.
type Style struct {
	All  []string `json:"all"`
	Chat []string `json:"chat"`
}

// Load reads a persona document from a JSON file.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona %s: %w", path, err)
	}
	var p Persona
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("persona %s: name is required", path)
	}
	if p.ID == "" {
		p.ID = strings.ToLower(p.Name)
	}
	return &p, nil
}

// Facts renders the persona's identity lines for context injection.
func (p *Persona) Facts() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.", p.Name)
	for _, line := range p.Bio {
		b.WriteString("\n" + line)
	}
	if len(p.Adjectives) > 0 {
		b.WriteString("\nIn a word: " + strings.Join(p.Adjectives, ", ") + ".")
	}
	return b.String()
}

// StyleGuide renders the style directions, or "" when none are set.
func (p *Persona) StyleGuide() string {
	lines := append([]string{}, p.Style.All...)
	lines = append(lines, p.Style.Chat...)
	if len(lines) == 0 {
		return ""
	}
	return "Style: " + strings.Join(lines, " ")
}
