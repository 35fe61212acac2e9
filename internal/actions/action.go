// Package actions holds the invocable actions a task's method executions
// dispatch to, the catalog that mirrors them in the store and the
// dispatcher that runs them.
package actions

import (
	"context"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/spf13/cast"
)

// Action is a named operation with an ordered parameter list.
type Action interface {
	Name() string
	Parameters() []models.Parameter
	Invoke(ctx context.Context, args Args) error
}

// Func is the body of an action defined with Define.
type Func func(ctx context.Context, args Args) error

type funcAction struct {
	name   string
	params []models.Parameter
	fn     Func
}

// Define builds an Action from a name, its parameters and a body.
func Define(name string, params []models.Parameter, fn Func) Action {
	return &funcAction{name: name, params: params, fn: fn}
}

func (a *funcAction) Name() string { return a.name }

func (a *funcAction) Parameters() []models.Parameter {
	out := make([]models.Parameter, len(a.params))
	copy(out, a.params)
	return out
}

func (a *funcAction) Invoke(ctx context.Context, args Args) error {
	return a.fn(ctx, args)
}

// Args are the argument values of one invocation, in caller order.
type Args []any

func (a Args) at(i int) (any, error) {
	if i < 0 || i >= len(a) {
		return nil, fmt.Errorf("argument %d out of range (%d given)", i, len(a))
	}
	return a[i], nil
}

// String coerces argument i to a string.
func (a Args) String(i int) (string, error) {
	v, err := a.at(i)
	if err != nil {
		return "", err
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("argument %d: %w", i, err)
	}
	return s, nil
}

// Strings coerces every argument to a string.
func (a Args) Strings() ([]string, error) {
	out := make([]string, len(a))
	for i := range a {
		s, err := a.String(i)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
