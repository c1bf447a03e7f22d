package embedding

import (
	"context"
	"math"
	"unicode/utf16"
)

/*
PseudoEmbed derives a unit vector of length dim from the character codes of
text. Code unit i adds code/255 to component i mod dim. Empty text yields the
zero vector.
*/
func PseudoEmbed(text string, dim int) []float64 {
	if dim <= 0 {
		return nil
	}
	v := make([]float64, dim)
	for i, code := range utf16.Encode([]rune(text)) {
		v[i%dim] += float64(code) / 255
	}

	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] /= norm
	}
	return v
}

/*
Pseudo is a Provider that never fails.
*/
type Pseudo struct {
	dim int
}

/*
NewPseudo returns a Pseudo provider producing vectors of length dim.
*/
func NewPseudo(dim int) *Pseudo {
	return &Pseudo{dim: dim}
}

/*
Embed returns PseudoEmbed(text, dim).
*/
func (p *Pseudo) Embed(_ context.Context, text string) ([]float64, error) {
	return PseudoEmbed(text, p.dim), nil
}

/*
Dim returns the vector length.
*/
func (p *Pseudo) Dim() int { return p.dim }
