package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type failingProvider struct {
	dim int
}

func (f *failingProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("upstream down")
}

func (f *failingProvider) Dimension() int { return f.dim }

func TestGatewayZeroVectorOnFailure(t *testing.T) {
	g := NewGateway(&failingProvider{dim: 8}, zap.NewNop())

	vec := g.EmbedText(context.Background(), "some text")
	if len(vec) != 8 {
		t.Fatalf("got dimension %d, want 8", len(vec))
	}
	for i, x := range vec {
		if x != 0 {
			t.Fatalf("component %d = %v, want zero vector", i, x)
		}
	}
}

func TestGatewayEmptyText(t *testing.T) {
	g := NewGateway(NewHashProvider(16), zap.NewNop())

	vec := g.EmbedText(context.Background(), "")
	if len(vec) != 16 {
		t.Fatalf("got dimension %d, want 16", len(vec))
	}
	for _, x := range vec {
		if x != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestGatewayPassthrough(t *testing.T) {
	g := NewGateway(NewHashProvider(32), zap.NewNop())

	vec := g.EmbedText(context.Background(), "midnight bell tolls")
	if len(vec) != 32 {
		t.Fatalf("got dimension %d, want 32", len(vec))
	}
	var nonzero bool
	for _, x := range vec {
		if x != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		t.Fatal("expected a non-zero embedding for real text")
	}
}
