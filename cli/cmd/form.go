package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/features"
)

const dateLayout = "2006-01-02"

type formFlag struct {
	name  string
	usage string
	field func(*features.Form) *float64
}

var formFlags = []formFlag{
	{"humidity", "relative humidity, percent", func(f *features.Form) *float64 { return &f.HumidityPct }},
	{"rainfall", "rainfall, mm", func(f *features.Form) *float64 { return &f.RainfallMM }},
	{"temperature", "temperature, °C", func(f *features.Form) *float64 { return &f.TemperatureC }},
	{"wind-speed", "wind speed, m/s", func(f *features.Form) *float64 { return &f.WindSpeed }},
	{"solar-radiation", "solar radiation, MJ/m²", func(f *features.Form) *float64 { return &f.SolarRadiation }},
	{"clay", "clay content, percent", func(f *features.Form) *float64 { return &f.ClayPct }},
	{"sand", "sand content, percent", func(f *features.Form) *float64 { return &f.SandPct }},
	{"organic-carbon", "organic carbon, percent", func(f *features.Form) *float64 { return &f.OrganicCarbon }},
	{"soil-moisture", "soil moisture, percent", func(f *features.Form) *float64 { return &f.SoilMoisturePct }},
	{"evi", "enhanced vegetation index", func(f *features.Form) *float64 { return &f.EVI }},
	{"ndvi", "normalized difference vegetation index", func(f *features.Form) *float64 { return &f.NDVI }},
	{"ndwi", "normalized difference water index", func(f *features.Form) *float64 { return &f.NDWI }},
	{"savi", "soil-adjusted vegetation index", func(f *features.Form) *float64 { return &f.SAVI }},
}

// addFormFlags registers --date, --region, --season and one flag per
// measurement, defaulting to the sample form.
func addFormFlags(fs *pflag.FlagSet) {
	def := features.DefaultForm(time.Time{})
	fs.String("date", "", "observation date, YYYY-MM-DD (default: today)")
	fs.String("region", string(def.Region), "region: East_Africa, North_Africa, South_Africa, West_Africa")
	fs.String("season", string(def.Season), "season: Autumn, Spring, Summer, Winter")
	for _, ff := range formFlags {
		fs.Float64(ff.name, *ff.field(&def), ff.usage)
	}
}

func formFromFlags(fs *pflag.FlagSet, now time.Time) (features.Form, error) {
	form := features.DefaultForm(now.UTC().Truncate(24 * time.Hour))

	if s, _ := fs.GetString("date"); s != "" {
		d, err := time.Parse(dateLayout, s)
		if err != nil {
			return form, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", s)
		}
		form.Date = d
	}

	regionFlag, _ := fs.GetString("region")
	region, err := features.ParseRegion(regionFlag)
	if err != nil {
		return form, err
	}
	form.Region = region

	seasonFlag, _ := fs.GetString("season")
	season, err := features.ParseSeason(seasonFlag)
	if err != nil {
		return form, err
	}
	form.Season = season

	for _, ff := range formFlags {
		v, err := fs.GetFloat64(ff.name)
		if err != nil {
			return form, err
		}
		*ff.field(&form) = v
	}
	return form, nil
}

// readRequestFile reads a JSON or YAML object from path ("-" is stdin).
// YAML is chosen by a .yaml/.yml extension; otherwise JSON is tried first.
func readRequestFile(path string, stdin io.Reader) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	out := map[string]any{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		} else if ext == ".json" {
			return nil, fmt.Errorf("failed to parse %s as JSON: %w", path, err)
		}
	}

	out = map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse %s as YAML: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// applySets merges key=value pairs into body. Numeric and boolean values are
// sent as JSON numbers and booleans, anything else as a string.
func applySets(body map[string]any, sets []string) error {
	for _, kv := range sets {
		key, value, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		body[key] = parseValue(strings.TrimSpace(value))
	}
	return nil
}

func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func featureMapToBody(m map[string]float64) map[string]any {
	body := make(map[string]any, len(m))
	for k, v := range m {
		body[k] = v
	}
	return body
}
