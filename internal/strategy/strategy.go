// Package strategy defines the Strategy interface for trading strategies,
// the parameter specs that drive their validation, and a Registry for
// building them by name.
package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"stockbt/internal/domain"
)

var (
	// ErrUnknownStrategy is returned when a name matches no registered factory.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidParam is wrapped by every parameter validation failure.
	ErrInvalidParam = errors.New("invalid strategy parameter")
)

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Init precomputes indicators over the full bar series. Values at index
	// i may only depend on bars[0..i].
	Init(ctx context.Context, bars []domain.Bar) error

	// OnBar returns the signal for the close of bar i.
	OnBar(ctx context.Context, i int) (domain.SignalType, error)

	// Indicators returns the series to plot alongside prices.
	Indicators() []Series
}

// Panel says where a Series is drawn.
type Panel string

const (
	PanelPrice      Panel = "price"
	PanelOscillator Panel = "oscillator"
)

// Series is one named indicator line aligned with the bars.
type Series struct {
	Name   string    `json:"name"`
	Panel  Panel     `json:"panel"`
	Values []float64 `json:"values"`
	// Levels are horizontal reference lines for oscillators (e.g. 70 and 30).
	Levels []float64 `json:"levels,omitempty"`
}

type seriesJSON struct {
	Name   string     `json:"name"`
	Panel  Panel      `json:"panel"`
	Values []*float64 `json:"values"`
	Levels []float64  `json:"levels,omitempty"`
}

// MarshalJSON encodes warm-up NaN values as null.
func (s Series) MarshalJSON() ([]byte, error) {
	w := seriesJSON{Name: s.Name, Panel: s.Panel, Levels: s.Levels, Values: make([]*float64, len(s.Values))}
	for i, v := range s.Values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			w.Values[i] = &s.Values[i]
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes null values as NaN.
func (s *Series) UnmarshalJSON(b []byte) error {
	var w seriesJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Series{Name: w.Name, Panel: w.Panel, Levels: w.Levels, Values: make([]float64, len(w.Values))}
	for i, v := range w.Values {
		if v == nil {
			s.Values[i] = math.NaN()
		} else {
			s.Values[i] = *v
		}
	}
	return nil
}

// Params are strategy parameters keyed by ParamSpec.Name.
type Params map[string]float64

// Int returns the named parameter truncated to an int.
func (p Params) Int(name string) int { return int(p[name]) }

// Clone returns a copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParamSpec describes one tunable parameter.
type ParamSpec struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step"`
	Integer bool    `json:"integer"`
}

func (s ParamSpec) check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a number", ErrInvalidParam, s.Name)
	}
	if s.Integer && v != math.Trunc(v) {
		return fmt.Errorf("%w: %s (%v) must be a whole number", ErrInvalidParam, s.Name, v)
	}
	if v < s.Min || v > s.Max {
		return fmt.Errorf("%w: %s (%v) must be between %v and %v", ErrInvalidParam, s.Name, v, s.Min, s.Max)
	}
	return nil
}

// Factory builds a Strategy from validated Params.
type Factory struct {
	Name        string
	Label       string
	Description string
	// Aliases are alternative names accepted by Registry lookups.
	Aliases []string
	Params  []ParamSpec
	// Check validates rules spanning several parameters. Optional.
	Check func(Params) error
	New   func(Params) Strategy
}

// Info is the public description of a registered strategy.
type Info struct {
	Name        string      `json:"name"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
}

// Registry holds a named collection of strategy factories for lookup and
// enumeration.
type Registry struct {
	factories map[string]Factory
	aliases   map[string]string
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		aliases:   make(map[string]string),
	}
}

// Register adds a factory to the registry, keyed by its Name. Its label and
// aliases resolve to the same factory.
func (r *Registry) Register(f Factory) {
	r.factories[f.Name] = f
	r.aliases[key(f.Name)] = f.Name
	if f.Label != "" {
		r.aliases[key(f.Label)] = f.Name
	}
	for _, a := range f.Aliases {
		r.aliases[key(a)] = f.Name
	}
}

func key(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Get retrieves a factory by name, label or alias. The second return value
// indicates whether it was found.
func (r *Registry) Get(name string) (Factory, bool) {
	canonical, ok := r.aliases[key(name)]
	if !ok {
		return Factory{}, false
	}
	f, ok := r.factories[canonical]
	return f, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos describes every registered strategy, sorted by name.
func (r *Registry) Infos() []Info {
	names := r.List()
	out := make([]Info, 0, len(names))
	for _, n := range names {
		f := r.factories[n]
		out = append(out, Info{Name: f.Name, Label: f.Label, Description: f.Description, Params: f.Params})
	}
	return out
}

// Specs returns the parameter specs of the named strategy.
func (r *Registry) Specs(name string) ([]ParamSpec, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return f.Params, nil
}

// Resolve validates params for the named strategy and fills in defaults for
// the ones left out. It returns the canonical name and the complete params.
func (r *Registry) Resolve(name string, params Params) (string, Params, error) {
	f, ok := r.Get(name)
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}

	known := make(map[string]bool, len(f.Params))
	for _, s := range f.Params {
		known[s.Name] = true
	}
	for k := range params {
		if !known[k] {
			return "", nil, fmt.Errorf("%w: %s does not take %q", ErrInvalidParam, f.Name, k)
		}
	}

	full := make(Params, len(f.Params))
	for _, s := range f.Params {
		v, ok := params[s.Name]
		if !ok {
			v = s.Default
		}
		if err := s.check(v); err != nil {
			return "", nil, err
		}
		full[s.Name] = v
	}
	if f.Check != nil {
		if err := f.Check(full); err != nil {
			return "", nil, err
		}
	}
	return f.Name, full, nil
}

// New builds the named strategy from params, validating them first.
func (r *Registry) New(name string, params Params) (Strategy, Params, error) {
	canonical, full, err := r.Resolve(name, params)
	if err != nil {
		return nil, nil, err
	}
	return r.factories[canonical].New(full), full, nil
}

// Less returns a Check that requires params[a] < params[b].
func Less(a, b string) func(Params) error {
	return func(p Params) error {
		if p[a] >= p[b] {
			return fmt.Errorf("%w: %s (%v) must be less than %s (%v)", ErrInvalidParam, a, p[a], b, p[b])
		}
		return nil
	}
}
