// Package embedding converts text into fixed-length vectors.
//
// A Provider may be backed by a remote model (see NewGemini) and may fail.
// PseudoEmbed is the deterministic fallback used when it does.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

/*
ErrProvider matches every ProviderError via errors.Is.
*/
var ErrProvider = errors.New("embedding provider failed")

/*
Provider turns a text into a vector.
*/
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

/*
ProviderFunc adapts a plain function to Provider.
*/
type ProviderFunc func(ctx context.Context, text string) ([]float64, error)

/*
Embed calls f.
*/
func (f ProviderFunc) Embed(ctx context.Context, text string) ([]float64, error) {
	return f(ctx, text)
}

/*
ProviderError reports that a backend could not produce a usable vector.
*/
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("embedding: %v", e.Err)
	}
	return fmt.Sprintf("embedding: %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

/*
Is reports whether target is ErrProvider.
*/
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

/*
NewProviderError wraps err unless it already is a ProviderError.
*/
func NewProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Err: err}
}
