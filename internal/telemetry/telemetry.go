// Package telemetry produces the synthetic temperature and humidity
// samples the sensor node publishes, and renders and parses their wire
// text.
//
// The payload format is fixed-precision text:
//
//	Temperature: 23.45°C, Humidity: 55.10%
//
// No range or NaN validation is applied when rendering; the simulator is
// the only producer and always stays inside its configured ranges.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-sensor/internal/rng"
)

// ErrInvalidPayload is returned when a payload is not in sample format.
var ErrInvalidPayload = errors.New("telemetry: invalid payload")

const (
	temperaturePrefix = "Temperature: "
	separator         = "°C, Humidity: "
	humiditySuffix    = "%"

	// resolution is the sample step (0.01 of a unit).
	resolution = 100
)

// MaxPayloadSize bounds AppendPayload output for readings whose magnitude
// stays below 1e9.
const MaxPayloadSize = 64

// Sample is one temperature and humidity reading.
type Sample struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
}

// Generator produces samples on demand.
type Generator interface {
	Sample() Sample
}

// Range is a half-open value range [Min, Max).
type Range struct {
	Min float64
	Max float64
}

// Default simulation ranges.
var (
	DefaultTemperatureRange = Range{Min: 20, Max: 35}
	DefaultHumidityRange    = Range{Min: 30, Max: 100}
)

// Simulator maps random draws into fixed ranges at 0.01 resolution.
type Simulator struct {
	src         rng.Source
	temperature Range
	humidity    Range
}

// NewSimulator creates a simulator. Zero-width ranges fall back to the
// defaults.
func NewSimulator(src rng.Source, temperature, humidity Range) *Simulator {
	if temperature.Max <= temperature.Min {
		temperature = DefaultTemperatureRange
	}
	if humidity.Max <= humidity.Min {
		humidity = DefaultHumidityRange
	}
	return &Simulator{src: src, temperature: temperature, humidity: humidity}
}

// Sample implements Generator.
func (s *Simulator) Sample() Sample {
	return Sample{
		Temperature: s.draw(s.temperature),
		Humidity:    s.draw(s.humidity),
	}
}

func (s *Simulator) draw(r Range) float64 {
	steps := uint32(math.Round((r.Max - r.Min) * resolution))
	if steps == 0 {
		return r.Min
	}
	return r.Min + float64(s.src.Uint32()%steps)/resolution
}

// AppendPayload appends the text form of s to dst and returns the
// extended slice.
func AppendPayload(dst []byte, s Sample) []byte {
	dst = append(dst, temperaturePrefix...)
	dst = strconv.AppendFloat(dst, s.Temperature, 'f', 2, 64)
	dst = append(dst, separator...)
	dst = strconv.AppendFloat(dst, s.Humidity, 'f', 2, 64)
	return append(dst, humiditySuffix...)
}

// String returns the payload text of s.
func (s Sample) String() string {
	return string(AppendPayload(nil, s))
}

// ParsePayload is the inverse of AppendPayload.
func ParsePayload(payload []byte) (Sample, error) {
	text := string(payload)

	rest, ok := strings.CutPrefix(text, temperaturePrefix)
	if !ok {
		return Sample{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidPayload, strings.TrimSpace(temperaturePrefix))
	}
	tempText, humText, ok := strings.Cut(rest, separator)
	if !ok {
		return Sample{}, fmt.Errorf("%w: missing humidity field", ErrInvalidPayload)
	}
	humText, ok = strings.CutSuffix(humText, humiditySuffix)
	if !ok {
		return Sample{}, fmt.Errorf("%w: missing %q suffix", ErrInvalidPayload, humiditySuffix)
	}

	temperature, err := strconv.ParseFloat(tempText, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: temperature %q: %w", ErrInvalidPayload, tempText, err)
	}
	humidity, err := strconv.ParseFloat(humText, 64)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: humidity %q: %w", ErrInvalidPayload, humText, err)
	}
	return Sample{Temperature: temperature, Humidity: humidity}, nil
}
