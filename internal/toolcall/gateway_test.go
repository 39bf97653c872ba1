package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"nutriplan/internal/llm"
	"nutriplan/internal/nutrition"
	"nutriplan/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalculator struct {
	gotInputs   []nutrition.IngredientInput
	gotServings int
	calls       int
}

func (f *fakeCalculator) Calculate(_ context.Context, in []nutrition.IngredientInput, servings int) (nutrition.Result, error) {
	f.calls++
	f.gotInputs = in
	f.gotServings = servings
	return nutrition.Result{
		Info:       nutrition.Info{Calories: 600, CaloriesPerServing: 300, Protein: 40, ProteinPerServing: 20},
		Unresolved: []string{"saffron"},
	}, nil
}

func TestGateway_DispatchExecutes(t *testing.T) {
	calc := &fakeCalculator{}
	g := NewGateway(calc)

	out, err := g.Dispatch(context.Background(), llm.ToolCall{
		ID:        "call_1",
		Name:      "calculateNutrition",
		Arguments: `{"ingredients":[{"name":"rice","quantity":150,"unit":"g"},{"ingredientId":"ing-1","name":"chicken","quantity":200,"unit":"g"}],"servings":2}`,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, calc.calls)
	assert.Equal(t, 2, calc.gotServings)
	require.Len(t, calc.gotInputs, 2)
	assert.Equal(t, "ing-1", calc.gotInputs[1].IngredientID)
	assert.InDelta(t, 150.0, calc.gotInputs[0].Quantity, 1e-9)

	assert.Equal(t, "database_lookup", out.CalculationMethod)
	assert.GreaterOrEqual(t, out.ExecutionTimeMs, int64(0))
	assert.InDelta(t, 300.0, out.CaloriesPerServing, 1e-9)

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	var flat map[string]any
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Contains(t, flat, "calories")
	assert.Contains(t, flat, "caloriesPerServing")
	assert.Equal(t, "database_lookup", flat["calculationMethod"])
}

func TestGateway_UnknownFunction(t *testing.T) {
	calc := &fakeCalculator{}
	g := NewGateway(calc)
	_, err := g.Dispatch(context.Background(), llm.ToolCall{Name: "estimateNutrition", Arguments: `{}`})
	assert.ErrorIs(t, err, ErrUnknownFunction)
	assert.Zero(t, calc.calls)
}

func TestGateway_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantField string
		wantMsg   string
	}{
		{"missing arguments", ``, "arguments", "missing"},
		{"malformed json", `{"ingredients":`, "arguments", "malformed"},
		{"missing ingredients", `{"servings":1}`, "ingredients", "is required"},
		{"empty ingredients", `{"ingredients":[],"servings":1}`, "ingredients", "at least one"},
		{"blank name", `{"ingredients":[{"name":"  ","quantity":1,"unit":"g"}],"servings":1}`, "ingredients[0].name", "blank"},
		{"missing quantity", `{"ingredients":[{"name":"rice","unit":"g"}],"servings":1}`, "ingredients[0].quantity", "is required"},
		{"zero quantity", `{"ingredients":[{"name":"rice","quantity":0,"unit":"g"}],"servings":1}`, "ingredients[0].quantity", "positive"},
		{"blank unit", `{"ingredients":[{"name":"rice","quantity":1,"unit":""}],"servings":1}`, "ingredients[0].unit", "is required"},
		{"second ingredient", `{"ingredients":[{"name":"rice","quantity":1,"unit":"g"},{"name":"oil","quantity":-2,"unit":"ml"}],"servings":1}`, "ingredients[1].quantity", "positive"},
		{"missing servings", `{"ingredients":[{"name":"rice","quantity":1,"unit":"g"}]}`, "servings", "is required"},
		{"zero servings", `{"ingredients":[{"name":"rice","quantity":1,"unit":"g"}],"servings":0}`, "servings", "positive"},
		{"fractional servings", `{"ingredients":[{"name":"rice","quantity":1,"unit":"g"}],"servings":1.5}`, "servings", "int"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := &fakeCalculator{}
			g := NewGateway(calc)
			_, err := g.Dispatch(context.Background(), llm.ToolCall{Name: "calculateNutrition", Arguments: tt.args})
			require.Error(t, err)

			var verr *shared.ValidationError
			require.True(t, errors.As(err, &verr), "got %T: %v", err, err)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Contains(t, verr.Message, tt.wantMsg)
			assert.Zero(t, calc.calls)
		})
	}
}

func TestVerify(t *testing.T) {
	out := Output{Info: nutrition.Info{Calories: 500}}
	assert.True(t, Verify(nutrition.Info{Calories: 504.9}, out))
	assert.False(t, Verify(nutrition.Info{Calories: 520}, out))
}

func TestArgumentsFrom_RoundTripsThroughValidation(t *testing.T) {
	g := NewGateway(&fakeCalculator{})
	args := ArgumentsFrom([]nutrition.IngredientInput{{Name: "rice", Quantity: 100, Unit: "g"}}, 2)
	require.NoError(t, g.Validate(args))

	bad := ArgumentsFrom([]nutrition.IngredientInput{{Name: "rice", Quantity: 0, Unit: "g"}}, 2)
	err := g.Validate(bad)
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "ingredients[0].quantity", verr.Field)
}
