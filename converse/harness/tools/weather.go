package tools

import (
	"context"
	"encoding/json"
	"fmt"

	harness "github.com/ZanzyTHEbar/converse-harness/converse/harness"
	ports "github.com/ZanzyTHEbar/converse-harness/converse/harness/ports"
)

// WeatherInput is the model-facing argument shape for getWeather.
type WeatherInput struct {
	Latitude  float64 `json:"latitude" jsonschema_description:"Latitude of the location in decimal degrees."`
	Longitude float64 `json:"longitude" jsonschema_description:"Longitude of the location in decimal degrees."`
}

// WeatherReport is the result payload handed back to the model.
type WeatherReport struct {
	Location    string `json:"location"`
	Temperature string `json:"temperature"`
	Condition   string `json:"condition"`
}

// WeatherLookup resolves coordinates to a report. Implementations may call
// out to a real service; the default serves a small static table.
type WeatherLookup func(ctx context.Context, latitude, longitude float64) (WeatherReport, error)

// WeatherTool reports current conditions for a coordinate pair.
type WeatherTool struct {
	lookup WeatherLookup
}

// NewWeatherTool creates the tool. A nil lookup falls back to the built-in
// static table.
func NewWeatherTool(lookup WeatherLookup) *WeatherTool {
	if lookup == nil {
		lookup = StaticWeatherLookup
	}
	return &WeatherTool{lookup: lookup}
}

// Spec describes the tool to the model.
func (t *WeatherTool) Spec() ports.ToolSpec {
	return ports.ToolSpec{
		Name:        "getWeather",
		Description: "Get the current weather for a location given its latitude and longitude.",
		InputSchema: harness.GenerateSchema[WeatherInput](),
	}
}

// Invoke resolves the coordinates through the configured lookup.
func (t *WeatherTool) Invoke(ctx context.Context, args json.RawMessage) (any, error) {
	var in WeatherInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("invalid weather arguments: %w", err)
	}

	report, err := t.lookup(ctx, in.Latitude, in.Longitude)
	if err != nil {
		return nil, fmt.Errorf("weather lookup failed: %w", err)
	}

	return report, nil
}

// Cacheable marks weather reports as safe to serve from the result cache.
func (t *WeatherTool) Cacheable() bool { return true }

// StaticWeatherLookup serves a canned table keyed by coordinates rounded to
// one decimal place. Useful for demos and tests; unknown coordinates fail.
func StaticWeatherLookup(ctx context.Context, latitude, longitude float64) (WeatherReport, error) {
	key := fmt.Sprintf("%.1f,%.1f", latitude, longitude)
	if report, ok := staticWeatherTable[key]; ok {
		return report, nil
	}
	return WeatherReport{}, fmt.Errorf("no weather data for coordinates (%.4f, %.4f)", latitude, longitude)
}

var staticWeatherTable = map[string]WeatherReport{
	"45.5,-122.6": {Location: "Portland", Temperature: "60F", Condition: "cloudy"},
	"47.6,-122.3": {Location: "Seattle", Temperature: "55F", Condition: "rainy"},
	"37.8,-122.4": {Location: "San Francisco", Temperature: "65F", Condition: "foggy"},
}

// Ensure WeatherTool implements the tool ports.
var (
	_ ports.Tool      = (*WeatherTool)(nil)
	_ ports.Cacheable = (*WeatherTool)(nil)
)
