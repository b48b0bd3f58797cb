// Package logic computes field visibility, enablement, value overrides and banner
// messages from a form's conditional actions.
package logic

import (
	"fmt"
	"strconv"
	"strings"

	"formkit/internal/model"
)

// FieldState is the visibility and enablement of one field
type FieldState struct {
	Visible  bool `json:"visible"`
	Disabled bool `json:"disabled"`
}

// Result is the outcome of one evaluation pass
type Result struct {
	Visibility     map[string]FieldState `json:"visibility"`
	ValueOverrides map[string]any        `json:"valueOverrides,omitempty"`
	Messages       []string              `json:"messages,omitempty"`
}

// State returns the state of a field; untargeted fields are visible and enabled
func (r Result) State(id string) FieldState {
	if st, ok := r.Visibility[id]; ok {
		return st
	}
	return FieldState{Visible: true}
}

// Active reports whether a field is visible and enabled
func (r Result) Active(id string) bool {
	st := r.State(id)
	return st.Visible && !st.Disabled
}

// Evaluate applies actions in declaration order against data.
// show/hide decide the visibility axis and enable/disable the enablement axis; the last
// action on each axis wins and the axes never affect each other.
func Evaluate(actions []model.Action, data map[string]any) Result {
	res := Result{
		Visibility:     make(map[string]FieldState),
		ValueOverrides: make(map[string]any),
	}

	for _, a := range actions {
		holds := Holds(a.Condition, data)
		switch a.Type {
		case model.ActionShow, model.ActionHide:
			st := res.State(a.Target)
			st.Visible = holds
			if a.Type == model.ActionHide {
				st.Visible = !holds
			}
			res.Visibility[a.Target] = st
		case model.ActionEnable, model.ActionDisable:
			st := res.State(a.Target)
			st.Disabled = !holds
			if a.Type == model.ActionDisable {
				st.Disabled = holds
			}
			res.Visibility[a.Target] = st
		case model.ActionSetValue:
			if holds && !model.Equal(data[a.Target], a.Value) {
				res.ValueOverrides[a.Target] = a.Value
			}
		case model.ActionShowMessage:
			if holds {
				res.Messages = append(res.Messages, messageText(a.Value))
			}
		}
	}
	return res
}

// MaxPasses bounds how often set_value overrides are re-applied
const MaxPasses = 8

// Settle evaluates actions and hands every set_value override to apply, which writes it
// into data and reports whether it did. Evaluation repeats until nothing changes; false is
// returned when the rules still changed values after MaxPasses.
func Settle(actions []model.Action, data map[string]any, apply func(id string, v any) bool) (Result, bool) {
	for pass := 0; pass < MaxPasses; pass++ {
		res := Evaluate(actions, data)
		changed := false
		for id, v := range res.ValueOverrides {
			if apply(id, v) {
				changed = true
			}
		}
		if !changed {
			return res, true
		}
	}
	return Evaluate(actions, data), false
}

func messageText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Holds evaluates a condition; the zero condition always holds
func Holds(c model.Condition, data map[string]any) bool {
	if c.IsZero() {
		return true
	}
	if len(c.All) > 0 || len(c.Any) > 0 {
		for _, sub := range c.All {
			if !Holds(sub, data) {
				return false
			}
		}
		if len(c.Any) == 0 {
			return true
		}
		for _, sub := range c.Any {
			if Holds(sub, data) {
				return true
			}
		}
		return false
	}
	return compare(c.Operator, data[c.Field], c.Value)
}

func compare(op model.Operator, actual, expected any) bool {
	switch op {
	case model.OpEquals, "":
		return looseEqual(actual, expected)
	case model.OpNotEquals:
		return !looseEqual(actual, expected)
	case model.OpContains:
		return contains(actual, expected)
	case model.OpNotContains:
		return !contains(actual, expected)
	case model.OpGreaterThan:
		return numeric(actual, expected, func(a, b float64) bool { return a > b })
	case model.OpLessThan:
		return numeric(actual, expected, func(a, b float64) bool { return a < b })
	case model.OpGreaterOrEqual:
		return numeric(actual, expected, func(a, b float64) bool { return a >= b })
	case model.OpLessOrEqual:
		return numeric(actual, expected, func(a, b float64) bool { return a <= b })
	case model.OpIsEmpty:
		return model.IsEmpty(actual)
	case model.OpIsNotEmpty:
		return !model.IsEmpty(actual)
	case model.OpIn:
		return in(actual, expected)
	}
	return false
}

// looseEqual treats numeric strings and numbers as comparable
func looseEqual(a, b any) bool {
	if model.Equal(a, b) {
		return true
	}
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		return af == bf
	}
	if _, ok := model.ToSlice(a); ok {
		return false
	}
	if a == nil || b == nil {
		return model.IsEmpty(a) && model.IsEmpty(b)
	}
	return model.Stringify(a) == model.Stringify(b)
}

func contains(actual, expected any) bool {
	if items, ok := model.ToSlice(actual); ok {
		for _, it := range items {
			if looseEqual(it, expected) {
				return true
			}
		}
		return false
	}
	s, ok := actual.(string)
	if !ok || expected == nil {
		return false
	}
	return strings.Contains(s, model.Stringify(expected))
}

// in holds when the value, or any of its elements, is a member of the expected list
func in(actual, expected any) bool {
	list, ok := model.ToSlice(expected)
	if !ok {
		if s, isStr := expected.(string); isStr {
			for _, p := range strings.Split(s, ",") {
				list = append(list, strings.TrimSpace(p))
			}
		} else {
			return false
		}
	}
	if items, ok := model.ToSlice(actual); ok {
		for _, it := range items {
			if in(it, list) {
				return true
			}
		}
		return false
	}
	for _, candidate := range list {
		if looseEqual(actual, candidate) {
			return true
		}
	}
	return false
}

func numeric(a, b any, cmp func(x, y float64) bool) bool {
	x, ok := number(a)
	if !ok {
		return false
	}
	y, ok := number(b)
	if !ok {
		return false
	}
	return cmp(x, y)
}

func number(v any) (float64, bool) {
	if f, ok := model.ToFloat(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}
