// Package blender combines named model portfolios into a single set of
// normalized target weights (spec §4.1).
package blender

import (
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/arutneva1/IB-Trade/internal/domain"
	"github.com/arutneva1/IB-Trade/internal/errs"
)

// Blend combines portfolios (model name -> symbol -> fraction) using mix's
// per-model weights. For each (model, symbol) it contributes
// mix[model] * portfolios[model][symbol] to an accumulator, then normalizes
// so the accumulated total sums to 1. Result is sorted by symbol ascending.
func Blend(portfolios map[string]map[string]float64, mix domain.ModelMix) (domain.BlendResult, error) {
	contributions := make(map[string]float64)

	for _, m := range []struct {
		name   string
		weight float64
	}{
		{"SMURF", mix.SMURF},
		{"BADASS", mix.BADASS},
		{"GLTR", mix.GLTR},
	} {
		for symbol, frac := range portfolios[m.name] {
			contributions[symbol] += frac * m.weight
		}
	}

	symbols := make([]string, 0, len(contributions))
	for s := range contributions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	raw := make([]float64, len(symbols))
	for i, s := range symbols {
		raw[i] = contributions[s]
	}
	net := floats.Sum(raw)
	if net == 0 {
		return domain.BlendResult{}, errs.NewRuntimeError("empty portfolio")
	}

	weights := make([]domain.WeightEntry, 0, len(symbols))
	var gross float64
	for i, s := range symbols {
		fraction := raw[i] / net
		weights = append(weights, domain.WeightEntry{Symbol: s, Fraction: fraction})
		if s != domain.CashSymbol {
			gross += fraction
		}
	}

	return domain.BlendResult{
		Weights: weights,
		Gross:   gross,
		Net:     gross + cashFraction(weights),
	}, nil
}

func cashFraction(weights []domain.WeightEntry) float64 {
	for _, w := range weights {
		if w.Symbol == domain.CashSymbol {
			return w.Fraction
		}
	}
	return 0
}
