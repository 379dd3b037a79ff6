package cmd

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/knetic/govaluate"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var setCmd = &cobra.Command{
	Use:   "set <value>",
	Short: "Set the brightness",
	Long: `Set the brightness to an absolute level ("55", "55%"), relative to the
current level ("+10", "-5%") or to an expression of the current level
("brightness * 0.5", "min(brightness + 20, 100)").`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		target, err := resolveTarget(args[0], s.Backend.Brightness)
		if err != nil {
			return err
		}

		if err := s.Backend.SetBrightness(target); err != nil {
			return fmt.Errorf("failed to set brightness: %w", err)
		}
		log.Debug().Int("level", target).Str("backend", s.Backend.DescriptiveString()).Msg("brightness set")
		return nil
	},
}

var exprFunctions = map[string]govaluate.ExpressionFunction{
	"min": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("min takes 2 arguments")
		}
		return math.Min(toFloat64(args[0]), toFloat64(args[1])), nil
	},
	"max": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("max takes 2 arguments")
		}
		return math.Max(toFloat64(args[0]), toFloat64(args[1])), nil
	},
	"round": func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("round takes 1 argument")
		}
		return math.Round(toFloat64(args[0])), nil
	},
}

// resolveTarget turns the set argument into an absolute level. current is
// only called for relative values and expressions.
func resolveTarget(value string, current func() (int, error)) (int, error) {
	value = strings.TrimSuffix(strings.TrimSpace(value), "%")
	if value == "" {
		return 0, fmt.Errorf("empty brightness value")
	}

	if value[0] == '+' || value[0] == '-' {
		if delta, err := strconv.Atoi(value); err == nil {
			level, err := current()
			if err != nil {
				return 0, fmt.Errorf("failed to get brightness: %w", err)
			}
			return level + delta, nil
		}
	}

	if level, err := strconv.Atoi(value); err == nil {
		return level, nil
	}

	expression, err := govaluate.NewEvaluableExpressionWithFunctions(value, exprFunctions)
	if err != nil {
		return 0, fmt.Errorf("invalid brightness expression %q: %w", value, err)
	}

	params := map[string]any{}
	if slices.Contains(expression.Vars(), "brightness") {
		level, err := current()
		if err != nil {
			return 0, fmt.Errorf("failed to get brightness: %w", err)
		}
		params["brightness"] = float64(level)
	}

	result, err := expression.Evaluate(params)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate %q: %w", value, err)
	}
	f, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("expression %q does not evaluate to a number", value)
	}
	return int(math.Round(f)), nil
}

func toFloat64(arg any) float64 {
	switch v := arg.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
