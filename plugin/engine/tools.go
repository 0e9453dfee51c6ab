package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/tools"
)

// DefaultTools returns the built-in tool registry, dispatched by name.
func DefaultTools() map[string]tools.Tool {
	return map[string]tools.Tool{
		"getWeather": &getWeatherTool{
			httpc: &http.Client{Timeout: 10 * time.Second},
		},
		"calculator": &calculatorTool{},
	}
}

const openMeteoURL = "https://api.open-meteo.com/v1/forecast?latitude=%f&longitude=%f&current=temperature_2m&hourly=temperature_2m&daily=sunrise,sunset&timezone=auto"

type getWeatherTool struct {
	httpc *http.Client
}

func (t *getWeatherTool) Name() string { return "getWeather" }
func (t *getWeatherTool) Description() string {
	return "Get the current weather at a location. Input is a JSON object with numeric `latitude` and `longitude`."
}

func (t *getWeatherTool) Call(ctx context.Context, input string) (string, error) {
	var args struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", errors.Wrap(err, "parse getWeather input")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf(openMeteoURL, args.Latitude, args.Longitude), nil)
	if err != nil {
		return "", err
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetch weather")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("fetch weather: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read weather response")
	}
	return string(body), nil
}

type calculatorTool struct{}

func (t *calculatorTool) Name() string { return "calculator" }
func (t *calculatorTool) Description() string {
	return "Perform a mathematical operation. Input is a JSON object with `operation` (add, subtract, multiply, divide), `number1`, and `number2`."
}

func (t *calculatorTool) Call(_ context.Context, input string) (string, error) {
	var args struct {
		Operation string  `json:"operation"`
		Number1   float64 `json:"number1"`
		Number2   float64 `json:"number2"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", errors.Wrap(err, "parse calculator input")
	}

	var result float64
	switch args.Operation {
	case "add":
		result = args.Number1 + args.Number2
	case "subtract":
		result = args.Number1 - args.Number2
	case "multiply":
		result = args.Number1 * args.Number2
	case "divide":
		if args.Number2 == 0 {
			return "", errors.New("division by zero")
		}
		result = args.Number1 / args.Number2
	default:
		return "", errors.Errorf("unknown operation %q", args.Operation)
	}
	return formatNumber(result), nil
}

func formatNumber(f float64) string {
	return fmt.Sprintf("%g", f)
}
