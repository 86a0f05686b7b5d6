package loot

import (
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	ProviderConstant = "minecraft:constant"
	ProviderUniform  = "minecraft:uniform"
	ProviderBinomial = "minecraft:binomial"
)

// NumberProvider is a parameterised random-value generator.
// Implementations: Constant, Uniform, Binomial, Opaque.
type NumberProvider interface {
	Sample(rng *rand.Rand) float64
	Min() float64
	Max() float64
	isNumberProvider()
}

// Constant always yields Value.
type Constant struct {
	Value float64
}

func (c Constant) Sample(*rand.Rand) float64 { return c.Value }
func (c Constant) Min() float64              { return c.Value }
func (c Constant) Max() float64              { return c.Value }
func (Constant) isNumberProvider()           {}

// Uniform yields a float drawn uniformly from [Low, High].
type Uniform struct {
	Low  float64
	High float64
}

func (u Uniform) Sample(rng *rand.Rand) float64 {
	lo, hi := u.Min(), u.Max()
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

func (u Uniform) Min() float64 {
	if u.High < u.Low {
		return u.High
	}
	return u.Low
}

func (u Uniform) Max() float64 {
	if u.High < u.Low {
		return u.Low
	}
	return u.High
}

func (Uniform) isNumberProvider() {}

// Binomial yields the number of successes over N trials with probability P.
type Binomial struct {
	N int
	P float64
}

func (b Binomial) Sample(rng *rand.Rand) float64 {
	hits := 0
	for i := 0; i < b.N; i++ {
		if rng.Float64() < b.P {
			hits++
		}
	}
	return float64(hits)
}

func (b Binomial) Min() float64 { return 0 }

func (b Binomial) Max() float64 {
	if b.N < 0 {
		return 0
	}
	return float64(b.N)
}

func (Binomial) isNumberProvider() {}

// Opaque keeps a provider kind that is not natively understood, including its "type" key.
// A non-numeric scalar or a literal null is held as-is in Raw with Scalar set.
type Opaque struct {
	Params Params
	Raw    any
	Scalar bool
}

func (Opaque) Sample(*rand.Rand) float64 { return 0 }
func (Opaque) Min() float64              { return 0 }
func (Opaque) Max() float64              { return 0 }
func (Opaque) isNumberProvider()         {}

// Type reports the discriminator of the opaque bag, if any.
func (o Opaque) Type() string {
	t, _ := o.Params.String("type")
	return t
}

// Mean is the point estimate used by analysis: Constant → value, Uniform → midpoint,
// Binomial → n·p. The second result is false for Opaque providers.
func Mean(p NumberProvider) (float64, bool) {
	switch v := p.(type) {
	case Constant:
		return v.Value, true
	case Uniform:
		return (v.Min() + v.Max()) / 2, true
	case Binomial:
		return float64(v.N) * v.P, true
	default:
		return 0, false
	}
}

// ProviderFromValue decodes a JSON-shaped value (bare number or object) into a provider.
// Anything that is not recognised is kept as Opaque; a nil value yields nil.
func ProviderFromValue(v any) NumberProvider {
	switch t := v.(type) {
	case nil:
		return nil
	case json.Number, float64, int:
		f, _ := numberValue(t)
		return Constant{Value: f}
	case Params:
		return providerFromParams(t)
	default:
		return Opaque{Raw: v, Scalar: true}
	}
}

func providerFromParams(p Params) NumberProvider {
	typ, hasType := p.String("type")
	if hasType {
		typ = canonicalType(typ)
	}
	onlyKeys := func(keys ...string) bool {
		allowed := map[string]bool{"type": true}
		for _, k := range keys {
			allowed[k] = true
		}
		for _, kv := range p {
			if !allowed[kv.Key] {
				return false
			}
		}
		return true
	}
	switch {
	case typ == ProviderConstant && onlyKeys("value"):
		if f, ok := p.Float("value"); ok {
			return Constant{Value: f}
		}
	case (typ == ProviderUniform || !hasType) && onlyKeys("min", "max"):
		lo, okLo := p.Float("min")
		hi, okHi := p.Float("max")
		if okLo && okHi {
			return Uniform{Low: lo, High: hi}
		}
	case typ == ProviderBinomial && onlyKeys("n", "p"):
		n, okN := p.Float("n")
		prob, okP := p.Float("p")
		if okN && okP && n == float64(int(n)) {
			return Binomial{N: int(n), P: prob}
		}
	}
	return Opaque{Params: p}
}

// ProviderValue is the inverse of ProviderFromValue. Constants become bare numbers.
func ProviderValue(p NumberProvider) any {
	switch v := p.(type) {
	case Constant:
		return Number(v.Value)
	case Uniform:
		return Params{
			{Key: "type", Value: ProviderUniform},
			{Key: "min", Value: Number(v.Low)},
			{Key: "max", Value: Number(v.High)},
		}
	case Binomial:
		return Params{
			{Key: "type", Value: ProviderBinomial},
			{Key: "n", Value: Number(float64(v.N))},
			{Key: "p", Value: Number(v.P)},
		}
	case Opaque:
		if v.Scalar {
			return v.Raw
		}
		return v.Params
	default:
		return nil
	}
}

// Number renders f as a JSON number; integer-valued floats carry no decimal point.
func Number(f float64) json.Number {
	return json.Number(FormatNumber(f))
}

// FormatNumber renders f in its shortest form ("1", "0.5").
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RangeString renders a provider as "n" for a point value or "min-max" for a range.
func RangeString(p NumberProvider) string {
	if p == nil {
		return "1"
	}
	if _, ok := p.(Opaque); ok {
		return "?"
	}
	lo, hi := p.Min(), p.Max()
	if lo == hi {
		return FormatNumber(lo)
	}
	return FormatNumber(lo) + "-" + FormatNumber(hi)
}

func canonicalType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" || strings.Contains(t, ":") {
		return t
	}
	return DefaultNamespace + ":" + t
}
