package strategy

import (
	"context"
	"errors"
	"testing"

	"stockbt/internal/domain"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name    string
	signals []domain.SignalType
}

func (s *stubStrategy) Name() string                                 { return s.name }
func (s *stubStrategy) Init(_ context.Context, _ []domain.Bar) error { return nil }
func (s *stubStrategy) Indicators() []Series                         { return nil }
func (s *stubStrategy) OnBar(_ context.Context, i int) (domain.SignalType, error) {
	if i < len(s.signals) {
		return s.signals[i], nil
	}
	return domain.SignalTypeHold, nil
}

func stubFactory(name string) Factory {
	return Factory{
		Name:    name,
		Label:   name + " label",
		Aliases: []string{name + "-alias"},
		Params: []ParamSpec{
			{Name: "fast", Min: 1, Max: 10, Default: 2, Step: 1, Integer: true},
			{Name: "slow", Min: 2, Max: 20, Default: 5, Step: 1, Integer: true},
			{Name: "k", Min: 1, Max: 3, Default: 2, Step: 0.1},
		},
		Check: Less("fast", "slow"),
		New:   func(Params) Strategy { return &stubStrategy{name: name} },
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(stubFactory("test-strategy"))

	for _, name := range []string{"test-strategy", "TEST-STRATEGY", " test-strategy label ", "test-strategy-alias"} {
		got, ok := r.Get(name)
		if !ok {
			t.Errorf("Get(%q) returned false for registered strategy", name)
			continue
		}
		if got.Name != "test-strategy" {
			t.Errorf("Get(%q).Name = %q, want %q", name, got.Name, "test-strategy")
		}
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
	if _, _, err := r.New("nonexistent", nil); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("New(nonexistent) error = %v, want ErrUnknownStrategy", err)
	}
	if _, err := r.Specs("nonexistent"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("Specs(nonexistent) error = %v, want ErrUnknownStrategy", err)
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(stubFactory("beta"))
	r.Register(stubFactory("alpha"))

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
	infos := r.Infos()
	if len(infos) != 2 || infos[0].Name != "alpha" || len(infos[0].Params) != 3 {
		t.Errorf("Infos() = %+v, want alpha first with 3 params", infos)
	}
}

func TestRegistryNewFillsDefaults(t *testing.T) {
	r := NewRegistry()
	r.Register(stubFactory("s"))

	s, params, err := r.New("s", Params{"fast": 3})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if s.Name() != "s" {
		t.Errorf("Name() = %q, want %q", s.Name(), "s")
	}
	if params["fast"] != 3 || params["slow"] != 5 || params["k"] != 2 {
		t.Errorf("params = %v, want fast=3 slow=5 k=2", params)
	}
}

func TestRegistryNewRejectsBadParams(t *testing.T) {
	r := NewRegistry()
	r.Register(stubFactory("s"))

	cases := []struct {
		name   string
		params Params
	}{
		{"below min", Params{"fast": 0}},
		{"above max", Params{"slow": 21}},
		{"fractional integer", Params{"fast": 2.5}},
		{"unknown key", Params{"window": 3}},
		{"cross-field", Params{"fast": 6, "slow": 6}},
	}
	for _, tc := range cases {
		if _, _, err := r.New("s", tc.params); !errors.Is(err, ErrInvalidParam) {
			t.Errorf("%s: New() error = %v, want ErrInvalidParam", tc.name, err)
		}
	}
}

func TestParamsHelpers(t *testing.T) {
	p := Params{"n": 14}
	if p.Int("n") != 14 {
		t.Errorf("Int(n) = %d, want 14", p.Int("n"))
	}
	c := p.Clone()
	c["n"] = 1
	if p["n"] != 14 {
		t.Error("Clone() shares storage with the original")
	}
}
