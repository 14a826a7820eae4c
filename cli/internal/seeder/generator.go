// Package seeder sends batches of randomized prediction requests to a relay
// and reports how they were classified.
package seeder

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/features"
)

// Generator produces plausible measurement forms. It is not safe for
// concurrent use.
type Generator struct {
	faker   *gofakeit.Faker
	regions []features.Region
	now     func() time.Time
	spread  time.Duration
}

// NewGenerator creates a Generator. A zero seed picks a time-based one.
func NewGenerator(seed int64, regions []features.Region, spread time.Duration) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if len(regions) == 0 {
		regions = features.Regions
	}
	return &Generator{
		faker:   gofakeit.New(seed),
		regions: regions,
		now:     func() time.Time { return time.Now().UTC() },
		spread:  spread,
	}
}

// Form returns a random form that passes features.Form.Validate.
func (g *Generator) Form() features.Form {
	f := g.faker
	now := g.now()

	date := now
	if g.spread > 0 {
		date = f.DateRange(now.Add(-g.spread), now)
	}
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	clay := round(f.Float64Range(5, 60), 1)
	sand := round(f.Float64Range(5, 95-clay), 1)

	return features.Form{
		Date:   date,
		Region: g.regions[f.Number(0, len(g.regions)-1)],
		Season: features.Seasons[f.Number(0, len(features.Seasons)-1)],

		HumidityPct:    round(f.Float64Range(10, 100), 1),
		RainfallMM:     round(f.Float64Range(0, 80), 1),
		TemperatureC:   round(f.Float64Range(-5, 45), 1),
		WindSpeed:      round(f.Float64Range(0, 25), 1),
		SolarRadiation: round(f.Float64Range(2, 32), 1),

		ClayPct:         clay,
		SandPct:         sand,
		OrganicCarbon:   round(f.Float64Range(0.1, 6), 2),
		SoilMoisturePct: round(f.Float64Range(2, 60), 1),

		EVI:  round(f.Float64Range(0, 0.9), 3),
		NDVI: round(f.Float64Range(-0.1, 0.95), 3),
		NDWI: round(f.Float64Range(-0.5, 0.6), 3),
		SAVI: round(f.Float64Range(0, 0.9), 3),
	}
}

// Payload returns a request body built from a random form.
func (g *Generator) Payload() ([]byte, error) {
	m, err := features.Build(g.Form())
	if err != nil {
		return nil, fmt.Errorf("generated form is invalid: %w", err)
	}
	return json.Marshal(m)
}

// Malformed returns a body the relay must reject as invalid JSON.
func (g *Generator) Malformed() []byte {
	bodies := []string{
		`{"NDVI": 0.5,`,
		`not json at all`,
		`{"Humidity": }`,
		`[1, 2`,
	}
	return []byte(bodies[g.faker.Number(0, len(bodies)-1)])
}

// Chance reports true with probability p.
func (g *Generator) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	return g.faker.Float64() < p
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
