package composer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/retrieval"
	"go.uber.org/zap"
)

// Provider contributes one piece of situational context during assembly.
// Implementations must be independent of each other; the composer runs them
// concurrently and isolates their failures.
type Provider interface {
	Name() string
	// Priority orders survival under the size budget; lower priorities are
	// dropped first.
	Priority() int
	// Get returns the contribution, or the empty string for none.
	Get(ctx context.Context, req *Request) (string, error)
}

// Request carries the inbound message and its scope to providers.
type Request struct {
	AgentID string
	RoomID  string
	UserID  string
	Message string
}

// Config tunes bundle assembly.
type Config struct {
	// CharBudget caps the assembled bundle size. Default 8000.
	CharBudget int `json:"char_budget"`
	// WindowSize is the recent-conversation record count. Default 20.
	WindowSize int `json:"window_size"`
	// Deadline bounds the whole provider fan-out. Default 3s.
	Deadline time.Duration `json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{CharBudget: 8000, WindowSize: 20, Deadline: 3 * time.Second}
}

// Contribution is one provider's accepted output.
type Contribution struct {
	Name     string
	Priority int
	Text     string
}

// Bundle is the assembled, bounded context handed to generation.
type Bundle struct {
	Conversation  []*memory.Record
	Knowledge     []retrieval.Fragment
	Contributions []Contribution
	Text          string
}

// Composer assembles context bundles. The provider list is fixed at
// construction; registration is a startup-time assembly step.
type Composer struct {
	store     memory.Store
	engine    *retrieval.Engine
	providers []Provider
	config    Config
	logger    *zap.Logger
}

// New creates a Composer over an immutable provider list.
func New(store memory.Store, engine *retrieval.Engine, providers []Provider, cfg Config, logger *zap.Logger) *Composer {
	if cfg.CharBudget <= 0 {
		cfg.CharBudget = DefaultConfig().CharBudget
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultConfig().Deadline
	}
	return &Composer{
		store:     store,
		engine:    engine,
		providers: providers,
		config:    cfg,
		logger:    logger,
	}
}

// Compose fetches the conversation window, retrieves knowledge and runs all
// providers concurrently, then assembles the bounded bundle. Only the
// conversation fetch may fail the composition: without the memory store
// there is nothing to respond from. Every other fault degrades to an
// absent contribution.
func (c *Composer) Compose(ctx context.Context, req *Request, sess *retrieval.Session) (*Bundle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Deadline)
	defer cancel()

	type convoResult struct {
		records []*memory.Record
		err     error
	}
	// Buffered so stragglers that outlive the deadline can still send their
	// result and exit instead of leaking.
	convoCh := make(chan convoResult, 1)
	fragsCh := make(chan []retrieval.Fragment, 1)
	contribCh := make(chan Contribution, len(c.providers))

	go func() {
		records, err := c.store.List(ctx, memory.TableConversation, req.RoomID, c.config.WindowSize, false)
		convoCh <- convoResult{records, err}
	}()

	go func() {
		frags, err := c.engine.Query(ctx, req.RoomID, req.Message, sess)
		if err != nil {
			c.logger.Warn("knowledge retrieval failed, composing without it", zap.Error(err))
			frags = nil
		}
		fragsCh <- frags
	}()

	for _, p := range c.providers {
		go func(p Provider) {
			contribCh <- c.runProvider(ctx, p, req)
		}(p)
	}

	// The join itself is bounded, not just the context handed to providers.
	// A provider that never checks its context forfeits its contribution at
	// the deadline rather than stalling the whole bundle.
	var (
		convo     []*memory.Record
		convoErr  error
		convoSeen bool
		frags     []retrieval.Fragment
		contribs  []Contribution
	)
	pending := 2 + len(c.providers)
collect:
	for pending > 0 {
		select {
		case r := <-convoCh:
			convo, convoErr, convoSeen = r.records, r.err, true
			pending--
		case f := <-fragsCh:
			frags = f
			pending--
		case contrib := <-contribCh:
			if contrib.Text != "" {
				contribs = append(contribs, contrib)
			}
			pending--
		case <-ctx.Done():
			c.logger.Warn("composition deadline reached, dropping stragglers",
				zap.Int("pending", pending))
			break collect
		}
	}
	if !convoSeen {
		// The result may already be queued when the deadline fires.
		select {
		case r := <-convoCh:
			convo, convoErr = r.records, r.err
		default:
			convoErr = ctx.Err()
		}
	}

	if convoErr != nil {
		return nil, fmt.Errorf("conversation window: %w", convoErr)
	}

	bundle := &Bundle{Conversation: convo, Knowledge: frags, Contributions: contribs}
	c.assemble(bundle)
	return bundle, nil
}

// runProvider executes one provider with panic and error isolation. A
// provider fault, timeout included, is logged and contributes nothing.
func (c *Composer) runProvider(ctx context.Context, p Provider, req *Request) (contrib Contribution) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("provider panicked",
				zap.String("provider", p.Name()),
				zap.Any("panic", r))
			contrib = Contribution{}
		}
	}()

	text, err := p.Get(ctx, req)
	if err != nil {
		c.logger.Warn("provider failed",
			zap.String("provider", p.Name()),
			zap.Error(err))
		return Contribution{}
	}
	return Contribution{Name: p.Name(), Priority: p.Priority(), Text: strings.TrimSpace(text)}
}

// assemble renders the bundle under the character budget. Recent
// conversation is kept first, then knowledge by rank, then provider
// contributions with the lowest priority dropped first.
func (c *Composer) assemble(b *Bundle) {
	budget := c.config.CharBudget

	var convoLines []string
	for i := len(b.Conversation) - 1; i >= 0; i-- { // chronological display
		rec := b.Conversation[i]
		speaker := rec.UserID
		if speaker == "" {
			speaker = rec.AgentID
		}
		convoLines = append(convoLines, speaker+": "+rec.Content.Text)
	}
	// Trim from the oldest end until the window fits.
	convoText := strings.Join(convoLines, "\n")
	for len(convoLines) > 1 && len(convoText) > budget {
		convoLines = convoLines[1:]
		convoText = strings.Join(convoLines, "\n")
	}

	var sections []string
	if convoText != "" {
		sections = append(sections, "## Recent Conversation\n\n"+convoText)
		budget -= len(convoText)
	}

	kept := b.Knowledge[:0]
	for _, f := range b.Knowledge {
		if len(f.Record.Content.Text) > budget {
			break // ranked order: everything after is lower-scored
		}
		kept = append(kept, f)
		budget -= len(f.Record.Content.Text)
	}
	b.Knowledge = kept
	if text := retrieval.FormatContext(b.Knowledge); text != "" {
		sections = append(sections, text)
	}

	sort.SliceStable(b.Contributions, func(i, j int) bool {
		return b.Contributions[i].Priority > b.Contributions[j].Priority
	})
	var provLines []string
	for _, contrib := range b.Contributions {
		if len(contrib.Text) > budget {
			continue // lower-priority entries may still fit
		}
		provLines = append(provLines, contrib.Text)
		budget -= len(contrib.Text)
	}
	if len(provLines) > 0 {
		sections = append(sections, "## Additional Context\n\n"+strings.Join(provLines, "\n\n"))
	}

	b.Text = strings.Join(sections, "\n\n")
}
