package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
	ErrActivationInvalid  = errors.New("activation needs a name and a function")
)

type ActivationFunc func(x float64) float64

// Activations maps node activation names to functions. Decode resolves names
// against the package default set.
type Activations struct {
	mu  sync.RWMutex
	fns map[string]ActivationFunc
}

var defaultActivations = NewActivations()

// NewActivations returns a set holding the built-in functions.
func NewActivations() *Activations {
	a := &Activations{fns: make(map[string]ActivationFunc)}
	for name, fn := range builtins() {
		a.fns[name] = fn
	}
	return a
}

func builtins() map[string]ActivationFunc {
	return map[string]ActivationFunc{
		"identity": func(x float64) float64 { return x },
		"sigmoid":  Sigmoid,
		"tanh":     math.Tanh,
		"relu":     func(x float64) float64 { return math.Max(0, x) },
		"gauss": func(x float64) float64 {
			x = Sat(x, 3.4, -3.4)
			return math.Exp(-x * x)
		},
		"sin":     math.Sin,
		"abs":     math.Abs,
		"clamped": func(x float64) float64 { return Sat(x, 1, -1) },
	}
}

// Sigmoid is the logistic function 1/(1+e^-x).
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func (a *Activations) Register(name string, fn ActivationFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("%w: %q", ErrActivationInvalid, name)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.fns[name]; ok {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	a.fns[name] = fn
	return nil
}

func (a *Activations) Lookup(name string) (ActivationFunc, error) {
	a.mu.RLock()
	fn, ok := a.fns[name]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return fn, nil
}

// Names lists registered activations in sorted order.
func (a *Activations) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.fns))
	for name := range a.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterActivation adds fn to the default set used by Decode.
func RegisterActivation(name string, fn ActivationFunc) error {
	return defaultActivations.Register(name, fn)
}

func MustRegisterActivation(name string, fn ActivationFunc) {
	if err := RegisterActivation(name, fn); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (ActivationFunc, error) {
	return defaultActivations.Lookup(name)
}

func ListActivations() []string {
	return defaultActivations.Names()
}

// Sat clamps value to [min, max].
func Sat(value, max, min float64) float64 {
	return math.Min(max, math.Max(min, value))
}
