package logic

import (
	"testing"

	"formkit/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cond(field string, op model.Operator, value any) model.Condition {
	return model.Condition{Field: field, Operator: op, Value: value}
}

func TestEvaluate_ShowHideLastWins(t *testing.T) {
	actions := []model.Action{
		{Target: "details", Type: model.ActionShow, Condition: cond("more", model.OpEquals, "yes")},
		{Target: "details", Type: model.ActionHide, Condition: cond("age", model.OpLessThan, 18)},
	}

	res := Evaluate(actions, map[string]any{"more": "yes", "age": 30})
	assert.True(t, res.State("details").Visible)

	res = Evaluate(actions, map[string]any{"more": "yes", "age": 12})
	assert.False(t, res.State("details").Visible)
}

func TestEvaluate_AxesAreIndependent(t *testing.T) {
	data := map[string]any{"locked": true, "mode": "basic"}
	hideThenDisable := []model.Action{
		{Target: "f", Type: model.ActionHide, Condition: cond("mode", model.OpEquals, "basic")},
		{Target: "f", Type: model.ActionDisable, Condition: cond("locked", model.OpEquals, true)},
	}
	disableThenHide := []model.Action{hideThenDisable[1], hideThenDisable[0]}

	for _, actions := range [][]model.Action{hideThenDisable, disableThenHide} {
		st := Evaluate(actions, data).State("f")
		assert.False(t, st.Visible)
		assert.True(t, st.Disabled)
	}

	// a later hide must not reset disabled
	actions := append(disableThenHide, model.Action{Target: "f", Type: model.ActionShow})
	st := Evaluate(actions, data).State("f")
	assert.True(t, st.Visible)
	assert.True(t, st.Disabled)
}

func TestEvaluate_EnableDisable(t *testing.T) {
	actions := []model.Action{{Target: "f", Type: model.ActionEnable, Condition: cond("ok", model.OpIsNotEmpty, nil)}}
	assert.True(t, Evaluate(actions, map[string]any{"ok": ""}).State("f").Disabled)
	assert.False(t, Evaluate(actions, map[string]any{"ok": "y"}).State("f").Disabled)
	assert.True(t, Evaluate(actions, map[string]any{"ok": "y"}).Active("f"))
}

func TestEvaluate_SetValueOnlyWhenDifferent(t *testing.T) {
	actions := []model.Action{{Target: "country", Type: model.ActionSetValue, Value: "NL", Condition: cond("city", model.OpEquals, "Amsterdam")}}

	res := Evaluate(actions, map[string]any{"city": "Amsterdam", "country": ""})
	assert.Equal(t, map[string]any{"country": "NL"}, res.ValueOverrides)

	res = Evaluate(actions, map[string]any{"city": "Amsterdam", "country": "NL"})
	assert.Empty(t, res.ValueOverrides)

	res = Evaluate(actions, map[string]any{"city": "Paris", "country": ""})
	assert.Empty(t, res.ValueOverrides)
}

func TestEvaluate_MessagesAccumulateInOrder(t *testing.T) {
	actions := []model.Action{
		{Type: model.ActionShowMessage, Value: "first"},
		{Type: model.ActionShowMessage, Value: "skipped", Condition: cond("x", model.OpIsNotEmpty, nil)},
		{Type: model.ActionShowMessage, Value: "first"},
	}
	res := Evaluate(actions, map[string]any{})
	assert.Equal(t, []string{"first", "first"}, res.Messages)
}

func TestState_UntargetedDefaults(t *testing.T) {
	res := Evaluate(nil, nil)
	assert.Equal(t, FieldState{Visible: true}, res.State("anything"))
}

func TestHolds_Operators(t *testing.T) {
	data := map[string]any{
		"name":   "Ada Lovelace",
		"age":    "36",
		"score":  7.5,
		"topics": []any{"go", "rust"},
		"empty":  "",
		"none":   []any{},
	}
	cases := []struct {
		name string
		c    model.Condition
		want bool
	}{
		{"equals", cond("name", model.OpEquals, "Ada Lovelace"), true},
		{"equals numeric string", cond("age", model.OpEquals, 36), true},
		{"not equals", cond("name", model.OpNotEquals, "Bob"), true},
		{"contains substring", cond("name", model.OpContains, "Love"), true},
		{"contains element", cond("topics", model.OpContains, "go"), true},
		{"not contains", cond("topics", model.OpNotContains, "java"), true},
		{"greater than", cond("score", model.OpGreaterThan, 7), true},
		{"less than string number", cond("age", model.OpLessThan, "40"), true},
		{"greater or equal", cond("score", model.OpGreaterOrEqual, 7.5), true},
		{"less or equal", cond("score", model.OpLessOrEqual, 7), false},
		{"non numeric compare", cond("name", model.OpGreaterThan, 1), false},
		{"is empty string", cond("empty", model.OpIsEmpty, nil), true},
		{"is empty array", cond("none", model.OpIsEmpty, nil), true},
		{"missing is empty", cond("missing", model.OpIsEmpty, nil), true},
		{"is not empty", cond("topics", model.OpIsNotEmpty, nil), true},
		{"in list", cond("age", model.OpIn, []any{"18", "36"}), true},
		{"in csv", cond("age", model.OpIn, "18, 36"), true},
		{"array in list", cond("topics", model.OpIn, []any{"rust"}), true},
		{"not in list", cond("name", model.OpIn, []any{"Bob"}), false},
		{"unknown operator", cond("name", "matches", "x"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Holds(tc.c, data))
		})
	}
}

func TestHolds_Groups(t *testing.T) {
	data := map[string]any{"a": "1", "b": "2"}
	all := model.Condition{All: []model.Condition{cond("a", model.OpEquals, "1"), cond("b", model.OpEquals, "2")}}
	require.True(t, Holds(all, data))

	all.All = append(all.All, cond("b", model.OpEquals, "3"))
	assert.False(t, Holds(all, data))

	anyOf := model.Condition{Any: []model.Condition{cond("a", model.OpEquals, "x"), cond("b", model.OpEquals, "2")}}
	assert.True(t, Holds(anyOf, data))

	nested := model.Condition{
		All: []model.Condition{cond("a", model.OpEquals, "1")},
		Any: []model.Condition{cond("b", model.OpEquals, "x")},
	}
	assert.False(t, Holds(nested, data))

	assert.True(t, Holds(model.Condition{}, nil))
}

func TestSettle_ChainsOverrides(t *testing.T) {
	actions := []model.Action{
		{Target: "b", Type: model.ActionSetValue, Value: "two", Condition: model.Condition{Field: "a", Operator: model.OpEquals, Value: "one"}},
		{Target: "c", Type: model.ActionSetValue, Value: "three", Condition: model.Condition{Field: "b", Operator: model.OpEquals, Value: "two"}},
	}
	data := map[string]any{"a": "one", "b": "", "c": ""}
	apply := func(id string, v any) bool {
		data[id] = v
		return true
	}

	res, settled := Settle(actions, data, apply)
	assert.True(t, settled)
	assert.Empty(t, res.ValueOverrides)
	assert.Equal(t, "three", data["c"])
}

func TestSettle_GivesUpOnFlipFlop(t *testing.T) {
	actions := []model.Action{
		{Target: "x", Type: model.ActionSetValue, Value: "on", Condition: model.Condition{Field: "x", Operator: model.OpEquals, Value: "off"}},
		{Target: "x", Type: model.ActionSetValue, Value: "off", Condition: model.Condition{Field: "x", Operator: model.OpEquals, Value: "on"}},
	}
	data := map[string]any{"x": "off"}
	passes := 0
	_, settled := Settle(actions, data, func(id string, v any) bool {
		passes++
		data[id] = v
		return true
	})
	assert.False(t, settled)
	assert.Equal(t, MaxPasses, passes)
}
