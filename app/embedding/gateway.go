package embedding

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/lysyi3m/linksift/app/database"
)

const (
	DefaultMaxInput   = 8000
	DefaultDimensions = 1024
	DefaultBatchSize  = 64
)

// ErrInputTooLong is matched by every InputTooLongError. It wraps
// database.ErrValidation so callers can treat it as bad input.
var ErrInputTooLong = fmt.Errorf("%w: input exceeds max embedding length", database.ErrValidation)

type InputTooLongError struct {
	Length int
	Max    int
}

func (e *InputTooLongError) Error() string {
	return fmt.Sprintf("input exceeds max embedding length (%d/%d)", e.Length, e.Max)
}

func (e *InputTooLongError) Unwrap() error {
	return ErrInputTooLong
}

// Provider turns texts into vectors, one per text in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	MaxInput   int
	Dimensions int
	BatchSize  int
}

// Gateway validates inputs and outputs around a Provider.
type Gateway struct {
	provider   Provider
	maxInput   int
	dimensions int
	batchSize  int
}

func NewGateway(provider Provider, opts Options) *Gateway {
	if opts.MaxInput <= 0 {
		opts.MaxInput = DefaultMaxInput
	}
	if opts.Dimensions <= 0 {
		opts.Dimensions = DefaultDimensions
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	return &Gateway{
		provider:   provider,
		maxInput:   opts.MaxInput,
		dimensions: opts.Dimensions,
		batchSize:  opts.BatchSize,
	}
}

// MaxInput is the longest text, in runes, the gateway accepts.
func (g *Gateway) MaxInput() int {
	return g.maxInput
}

func (g *Gateway) Dimensions() int {
	return g.dimensions
}

func (g *Gateway) Generate(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.GenerateMany(ctx, text)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateMany embeds texts in input order. Every text is checked against
// the input limit before the provider is called.
func (g *Gateway) GenerateMany(ctx context.Context, texts ...string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	for _, t := range texts {
		if n := utf8.RuneCountInString(t); n > g.maxInput {
			return nil, &InputTooLongError{Length: n, Max: g.maxInput}
		}
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		batch := texts[start:end]

		got, err := g.provider.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end-1, err)
		}
		if len(got) != len(batch) {
			return nil, fmt.Errorf("provider returned %d vectors for %d inputs", len(got), len(batch))
		}
		for i, v := range got {
			if len(v) != g.dimensions {
				return nil, fmt.Errorf("vector %d has dimension %d, want %d", start+i, len(v), g.dimensions)
			}
		}

		vectors = append(vectors, got...)
	}

	return vectors, nil
}
