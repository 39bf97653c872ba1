// Package toolcall exposes the deterministic nutrition calculation to the
// generation model as a callable function and executes the calls it makes.
package toolcall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"reflect"
	"strings"
	"time"

	"nutriplan/internal/llm"
	"nutriplan/internal/nutrition"
	"nutriplan/internal/shared"

	"github.com/go-playground/validator/v10"
)

// FunctionName identifies a function the model may call.
type FunctionName string

const CalculateNutrition FunctionName = "calculateNutrition"

// CalculationMethod tags every gateway output.
const CalculationMethod = "database_lookup"

// Tolerance is the relative difference allowed between a recipe's embedded
// nutrition and the gateway output.
const Tolerance = 0.01

// ErrUnknownFunction is returned for tool calls naming anything other than CalculateNutrition.
var ErrUnknownFunction = errors.New("unexpected function name")

var allowedUnits = []string{"g", "ml", "mg", "cup", "tbsp", "tsp", "piece", "slice", "whole"}

// Calculator is the deterministic nutrition backend.
type Calculator interface {
	Calculate(ctx context.Context, ingredients []nutrition.IngredientInput, servings int) (nutrition.Result, error)
}

// IngredientArg is one ingredient in a calculateNutrition call.
type IngredientArg struct {
	IngredientID string   `json:"ingredientId,omitempty"`
	Name         string   `json:"name" validate:"required,notblank"`
	Quantity     *float64 `json:"quantity" validate:"required,gt=0"`
	Unit         string   `json:"unit" validate:"required,notblank"`
}

// Arguments are the decoded calculateNutrition parameters.
type Arguments struct {
	Ingredients []IngredientArg `json:"ingredients" validate:"required,min=1,dive"`
	Servings    *int            `json:"servings" validate:"required,gt=0"`
}

// Output is returned to the model as the tool result.
type Output struct {
	nutrition.Info
	Servings              int      `json:"servings"`
	CalculationMethod     string   `json:"calculationMethod"`
	ExecutionTimeMs       int64    `json:"executionTimeMs"`
	UnresolvedIngredients []string `json:"unresolvedIngredients,omitempty"`
}

// Gateway validates and executes function calls.
type Gateway struct {
	calc     Calculator
	validate *validator.Validate
}

func NewGateway(calc Calculator) *Gateway {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &Gateway{calc: calc, validate: v}
}

// Tool publishes the calculateNutrition contract.
func (g *Gateway) Tool() llm.Tool {
	return llm.Tool{
		Name: string(CalculateNutrition),
		Description: "Calculate accurate nutrition for recipe ingredients using the verified ingredient database. " +
			"This is the only source of nutrition values. Do not estimate nutrition yourself.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ingredients": map[string]any{
					"type":        "array",
					"description": "List of recipe ingredients with exact quantities",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name":     map[string]any{"type": "string", "description": "Ingredient name, e.g. 'chicken breast'"},
							"quantity": map[string]any{"type": "number", "description": "Quantity as a decimal number"},
							"unit":     map[string]any{"type": "string", "enum": allowedUnits, "description": "Unit of measurement"},
						},
						"required": []string{"name", "quantity", "unit"},
					},
				},
				"servings": map[string]any{"type": "integer", "description": "Number of servings, must be > 0"},
			},
			"required": []string{"ingredients", "servings"},
		},
	}
}

// Dispatch runs a tool call requested by the model.
func (g *Gateway) Dispatch(ctx context.Context, call llm.ToolCall) (Output, error) {
	switch FunctionName(call.Name) {
	case CalculateNutrition:
		args, err := g.ParseArguments(call.Arguments)
		if err != nil {
			return Output{}, err
		}
		return g.Execute(ctx, args)
	default:
		return Output{}, fmt.Errorf("%w: %q", ErrUnknownFunction, call.Name)
	}
}

// ParseArguments decodes raw JSON arguments and validates every field.
// The first violation is returned as a *shared.ValidationError.
func (g *Gateway) ParseArguments(raw string) (Arguments, error) {
	var args Arguments
	if strings.TrimSpace(raw) == "" {
		return args, &shared.ValidationError{Field: "arguments", Message: "function call missing arguments"}
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return args, &shared.ValidationError{Field: typeErr.Field, Message: "must be a " + typeErr.Type.String()}
		}
		return args, &shared.ValidationError{Field: "arguments", Message: "malformed JSON: " + err.Error()}
	}
	if err := g.validate.Struct(args); err != nil {
		return args, toValidationError(err)
	}
	return args, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &shared.ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required":
		msg = "is required"
	case "notblank":
		msg = "must not be blank"
	case "gt":
		msg = "must be positive"
	case "min":
		msg = "must contain at least one ingredient"
	default:
		msg = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return &shared.ValidationError{Field: field, Message: msg}
}

// Execute delegates validated arguments to the calculator.
func (g *Gateway) Execute(ctx context.Context, args Arguments) (Output, error) {
	start := time.Now()
	inputs := make([]nutrition.IngredientInput, 0, len(args.Ingredients))
	for _, a := range args.Ingredients {
		inputs = append(inputs, nutrition.IngredientInput{
			IngredientID: a.IngredientID,
			Name:         a.Name,
			Quantity:     *a.Quantity,
			Unit:         a.Unit,
		})
	}

	log.Printf("[FC] Executing %s: %d ingredients, %d servings", CalculateNutrition, len(inputs), *args.Servings)
	res, err := g.calc.Calculate(ctx, inputs, *args.Servings)
	if err != nil {
		return Output{}, err
	}

	out := Output{
		Info:                  res.Info,
		Servings:              *args.Servings,
		CalculationMethod:     CalculationMethod,
		ExecutionTimeMs:       time.Since(start).Milliseconds(),
		UnresolvedIngredients: res.Unresolved,
	}
	log.Printf("[FC] Output: %.0f kcal total, %.0f kcal/serving (P %.1fg C %.1fg F %.1fg)",
		out.Calories, out.CaloriesPerServing, out.ProteinPerServing, out.CarbohydratesPerServing, out.FatPerServing)
	return out, nil
}

// Verify reports whether reported calories are within Tolerance of the gateway
// output. A mismatch is logged, never fatal.
func Verify(reported nutrition.Info, out Output) bool {
	if math.Abs(reported.Calories-out.Calories) > out.Calories*Tolerance {
		log.Printf("[FC] Warning: recipe calories %.1f do not match function output %.1f", reported.Calories, out.Calories)
		return false
	}
	return true
}

// ArgumentsFrom builds call arguments from a recipe's own ingredient list.
func ArgumentsFrom(ingredients []nutrition.IngredientInput, servings int) Arguments {
	args := Arguments{Servings: &servings}
	for _, in := range ingredients {
		q := in.Quantity
		args.Ingredients = append(args.Ingredients, IngredientArg{
			IngredientID: in.IngredientID,
			Name:         in.Name,
			Quantity:     &q,
			Unit:         in.Unit,
		})
	}
	return args
}

// Validate checks arguments built in-process with the same rules as model calls.
func (g *Gateway) Validate(args Arguments) error {
	if err := g.validate.Struct(args); err != nil {
		return toValidationError(err)
	}
	return nil
}
