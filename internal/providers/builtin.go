// Package providers holds the built-in context providers assembled at
// startup and handed to the composer as an immutable list.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nidhogg/ravenmoor/internal/composer"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/persona"
)

// Clock contributes the current time, so the agent can speak of hours
// and seasons without hallucinating them.
type Clock struct {
	Now func() time.Time
}

func (c *Clock) Name() string  { return "clock" }
func (c *Clock) Priority() int { return 1 }

func (c *Clock) Get(_ context.Context, _ *composer.Request) (string, error) {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return "The current time is " + now().Format("Monday, January 2 2006, 15:04") + ".", nil
}

// Facts contributes the persona's identity lines.
type Facts struct {
	Persona *persona.Persona
}

func (f *Facts) Name() string  { return "persona-facts" }
func (f *Facts) Priority() int { return 10 }

func (f *Facts) Get(_ context.Context, _ *composer.Request) (string, error) {
	if f.Persona == nil {
		return "", nil
	}
	out := f.Persona.Facts()
	if style := f.Persona.StyleGuide(); style != "" {
		out += "\n" + style
	}
	return out, nil
}

// Lore contributes a slice of the persona's backstory. Lore records live
// in a room keyed by the agent id, where startup seeding put them.
type Lore struct {
	Store   memory.Store
	AgentID string
	Limit   int
}

func (l *Lore) Name() string  { return "persona-lore" }
func (l *Lore) Priority() int { return 8 }

func (l *Lore) Get(ctx context.Context, _ *composer.Request) (string, error) {
	limit := l.Limit
	if limit <= 0 {
		limit = 3
	}
	recs, err := l.Store.List(ctx, memory.TableLore, l.AgentID, limit, true)
	if err != nil {
		return "", fmt.Errorf("lore lookup: %w", err)
	}
	if len(recs) == 0 {
		return "", nil
	}
	var lines []string
	for _, rec := range recs {
		lines = append(lines, "- "+rec.Content.Text)
	}
	return "Fragments of your past:\n" + strings.Join(lines, "\n"), nil
}

// Profile contributes what is known about the current user, drawn from the
// profile table.
type Profile struct {
	Store memory.Store
	Limit int
}

func (p *Profile) Name() string  { return "user-profile" }
func (p *Profile) Priority() int { return 5 }

func (p *Profile) Get(ctx context.Context, req *composer.Request) (string, error) {
	if req.UserID == "" {
		return "", nil
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 5
	}
	recs, err := p.Store.List(ctx, memory.TableProfile, req.RoomID, limit, true)
	if err != nil {
		return "", fmt.Errorf("profile lookup: %w", err)
	}

	var lines []string
	for _, rec := range recs {
		if rec.UserID == req.UserID {
			lines = append(lines, "- "+rec.Content.Text)
		}
	}
	if len(lines) == 0 {
		return "", nil
	}
	return "Known about " + req.UserID + ":\n" + strings.Join(lines, "\n"), nil
}
