// Package features turns crop health form input into the feature map the
// scorer expects.
package features

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Column names, in the order the model was trained on.
const (
	ColHumidity       = "Humidity_%"
	ColRainfall       = "Rainfall_m"
	ColTemperature    = "Temperature_C"
	ColWindSpeed      = "WindSpeed_m/s"
	ColSolarRadiation = "SolarRadiation"
	ColClay           = "Clay"
	ColOrganicCarbon  = "OrganicCarbon"
	ColSand           = "Sand"
	ColSilt           = "Silt"
	ColSoilMoisture   = "SoilMoisture"
	ColEVI            = "EVI"
	ColNDVI           = "NDVI"
	ColNDWI           = "NDWI"
	ColSAVI           = "SAVI"
	ColWeekNumber     = "week_number"
	ColMonth          = "month"
	ColDayOfYear      = "day_of_year"
)

// Columns is the full feature set.
var Columns = []string{
	ColHumidity, ColRainfall, ColTemperature, ColWindSpeed, ColSolarRadiation,
	ColClay, ColOrganicCarbon, ColSand, ColSilt, ColSoilMoisture,
	ColEVI, ColNDVI, ColNDWI, ColSAVI,
	ColWeekNumber, ColMonth, ColDayOfYear,
	"region_East_Africa", "region_North_Africa", "region_South_Africa", "region_West_Africa",
	"season_Autumn", "season_Spring", "season_Summer", "season_Winter",
}

type Region string

const (
	EastAfrica  Region = "East_Africa"
	NorthAfrica Region = "North_Africa"
	SouthAfrica Region = "South_Africa"
	WestAfrica  Region = "West_Africa"
)

var Regions = []Region{EastAfrica, NorthAfrica, SouthAfrica, WestAfrica}

type Season string

const (
	Autumn Season = "Autumn"
	Spring Season = "Spring"
	Summer Season = "Summer"
	Winter Season = "Winter"
)

var Seasons = []Season{Autumn, Spring, Summer, Winter}

// ParseRegion accepts "South_Africa", "south-africa" or "South Africa".
func ParseRegion(s string) (Region, error) {
	norm := normalize(s)
	for _, r := range Regions {
		if strings.EqualFold(string(r), norm) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown region %q (want one of %s)", s, joinRegions())
}

// ParseSeason accepts any casing of the four season names.
func ParseSeason(s string) (Season, error) {
	norm := normalize(s)
	for _, season := range Seasons {
		if strings.EqualFold(string(season), norm) {
			return season, nil
		}
	}
	return "", fmt.Errorf("unknown season %q (want one of Autumn, Spring, Summer, Winter)", s)
}

func normalize(s string) string {
	return strings.NewReplacer("-", "_", " ", "_").Replace(strings.TrimSpace(s))
}

func joinRegions() string {
	names := make([]string, len(Regions))
	for i, r := range Regions {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// Form is what a user fills in. Percentages are 0-100 as typed.
type Form struct {
	Date   time.Time
	Region Region
	Season Season

	HumidityPct    float64
	RainfallMM     float64
	TemperatureC   float64
	WindSpeed      float64
	SolarRadiation float64

	ClayPct         float64
	SandPct         float64
	OrganicCarbon   float64
	SoilMoisturePct float64

	EVI  float64
	NDVI float64
	NDWI float64
	SAVI float64
}

// DefaultForm returns the sample values the web form starts with.
func DefaultForm(date time.Time) Form {
	return Form{
		Date:            date,
		Region:          SouthAfrica,
		Season:          Spring,
		HumidityPct:     65.5,
		RainfallMM:      5.2,
		TemperatureC:    22.3,
		WindSpeed:       3.1,
		SolarRadiation:  18.5,
		ClayPct:         30.2,
		SandPct:         45.8,
		OrganicCarbon:   1.5,
		SoilMoisturePct: 28,
		EVI:             0.45,
		NDVI:            0.68,
		NDWI:            0.12,
		SAVI:            0.55,
	}
}

type bound struct {
	name     string
	value    float64
	min, max float64
}

// Validate applies the same limits as the web form.
func (f Form) Validate() error {
	var errs []error

	if f.Date.IsZero() {
		errs = append(errs, errors.New("date is required"))
	}
	if _, err := ParseRegion(string(f.Region)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseSeason(string(f.Season)); err != nil {
		errs = append(errs, err)
	}

	bounds := []bound{
		{ColHumidity, f.HumidityPct, 0, 100},
		{ColRainfall, f.RainfallMM, 0, 1000},
		{ColTemperature, f.TemperatureC, -20, 60},
		{ColWindSpeed, f.WindSpeed, 0, 200},
		{ColSolarRadiation, f.SolarRadiation, 0, 1e8},
		{ColClay, f.ClayPct, 0, 100},
		{ColSand, f.SandPct, 0, 100},
		{ColOrganicCarbon, f.OrganicCarbon, 0, 20},
		{ColSoilMoisture, f.SoilMoisturePct, 0, 100},
		{ColEVI, f.EVI, -1, 1},
		{ColNDVI, f.NDVI, -1, 1},
		{ColNDWI, f.NDWI, -1, 1},
		{ColSAVI, f.SAVI, -1, 1},
	}
	for _, b := range bounds {
		if math.IsNaN(b.value) || b.value < b.min || b.value > b.max {
			errs = append(errs, fmt.Errorf("%s must be between %g and %g, got %g", b.name, b.min, b.max, b.value))
		}
	}

	return errors.Join(errs...)
}

// Build validates f and derives the full feature map.
func Build(f Form) (map[string]float64, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	region, _ := ParseRegion(string(f.Region))
	season, _ := ParseSeason(string(f.Season))

	m := map[string]float64{
		ColHumidity:       f.HumidityPct,
		ColRainfall:       f.RainfallMM,
		ColTemperature:    f.TemperatureC,
		ColWindSpeed:      f.WindSpeed,
		ColSolarRadiation: f.SolarRadiation,
		ColClay:           f.ClayPct,
		ColOrganicCarbon:  f.OrganicCarbon,
		ColSand:           f.SandPct,
		ColSilt:           Silt(f.ClayPct, f.SandPct),
		ColSoilMoisture:   f.SoilMoisturePct / 100,
		ColEVI:            f.EVI,
		ColNDVI:           f.NDVI,
		ColNDWI:           f.NDWI,
		ColSAVI:           f.SAVI,
		ColWeekNumber:     float64(WeekNumber(f.Date)),
		ColMonth:          float64(f.Date.Month()),
		ColDayOfYear:      float64(f.Date.YearDay()),
	}
	for _, r := range Regions {
		m["region_"+string(r)] = oneHot(r == region)
	}
	for _, s := range Seasons {
		m["season_"+string(s)] = oneHot(s == season)
	}
	return m, nil
}

// Silt is whatever clay and sand leave of the soil, never negative.
func Silt(clay, sand float64) float64 {
	return math.Max(0, 100-clay-sand)
}

// WeekNumber counts weeks that start on Sunday, with week 1 holding January 1st.
func WeekNumber(t time.Time) int {
	jan1 := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	past := t.YearDay() - 1
	return int(math.Ceil(float64(past+int(jan1.Weekday())+1) / 7))
}

func oneHot(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
