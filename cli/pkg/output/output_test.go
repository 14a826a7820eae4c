package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func captureStdout(f func()) string {
	var buf bytes.Buffer
	old, oldNoColor := Stdout, color.NoColor
	Stdout, color.NoColor = &buf, true
	defer func() { Stdout, color.NoColor = old, oldNoColor }()

	f()
	return buf.String()
}

func captureStderr(f func()) string {
	var buf bytes.Buffer
	old, oldNoColor := Stderr, color.NoColor
	Stderr, color.NoColor = &buf, true
	defer func() { Stderr, color.NoColor = old, oldNoColor }()

	f()
	return buf.String()
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name    string
		stderr  bool
		print   func()
		want    string
		symbol  string
		without []string
	}{
		{name: "success", print: func() { Success("Created %d items in %s", 5, "history") }, want: "Created 5 items in history", symbol: "✓"},
		{name: "error", stderr: true, print: func() { Error("Failed to reach %s on port %d", "relay", 4000) }, want: "Failed to reach relay on port 4000", symbol: "✗"},
		{name: "info", print: func() { Info("Sending %d of %d requests", 5, 10) }, want: "Sending 5 of 10 requests", without: []string{"✓", "✗"}},
		{name: "warn", print: func() { Warn("Failure rate is %d%%", 95) }, want: "Failure rate is 95%", symbol: "⚠"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out string
			if tt.stderr {
				out = captureStderr(tt.print)
			} else {
				out = captureStdout(tt.print)
			}

			assert.Contains(t, out, tt.want)
			if tt.symbol != "" {
				assert.Contains(t, out, tt.symbol)
			}
			for _, s := range tt.without {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestOutcome(t *testing.T) {
	color.NoColor = true
	assert.Equal(t, "success", Outcome("success"))
	assert.Equal(t, "no_output", Outcome("no_output"))
}

func TestJSON_Indented(t *testing.T) {
	data := map[string]any{
		"prediction": map[string]any{
			"label":    "Healthy",
			"class_id": 0,
		},
	}

	out := captureStdout(func() {
		require.NoError(t, JSON(data))
	})

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Contains(t, out, "  \"prediction\":")
	assert.Contains(t, out, "    \"class_id\":")
}

func TestYAML(t *testing.T) {
	type record struct {
		Outcome string `yaml:"outcome"`
		Status  int    `yaml:"status_code"`
	}

	out := captureStdout(func() {
		require.NoError(t, YAML(record{Outcome: "parse_error", Status: 500}))
	})

	assert.Contains(t, out, "outcome: parse_error")
	assert.Contains(t, out, "status_code: 500")
}

func TestYAML_RawMessage(t *testing.T) {
	out := captureStdout(func() {
		require.NoError(t, YAML(json.RawMessage(`{"prediction":"Healthy","probabilities":[0.9,0.1]}`)))
	})

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "Healthy", parsed["prediction"])
	assert.Len(t, parsed["probabilities"], 2)
}

func TestYAML_InvalidRawMessage(t *testing.T) {
	captureStdout(func() {
		assert.Error(t, YAML(json.RawMessage(`{not json`)))
	})
}

func TestPrint(t *testing.T) {
	data := map[string]int{"total": 3}

	tests := []struct {
		format    string
		wantTable bool
		want      string
		wantErr   bool
	}{
		{format: "json", want: `"total": 3`},
		{format: "YAML", want: "total: 3"},
		{format: "table", wantTable: true, want: "TABLE"},
		{format: "", wantTable: true, want: "TABLE"},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			rendered := false
			var err error
			out := captureStdout(func() {
				err = Print(tt.format, data, func() {
					rendered = true
					Info("TABLE")
				})
			})

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTable, rendered)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestPrint_NilTableFallsBackToJSON(t *testing.T) {
	out := captureStdout(func() {
		require.NoError(t, Print("table", map[string]string{"status": "healthy"}, nil))
	})
	assert.Contains(t, out, `"status": "healthy"`)
}

func TestNewTable(t *testing.T) {
	headers := []string{"ID", "Outcome", "Status"}
	table := NewTable(headers)

	assert.Equal(t, headers, table.headers)
	assert.Empty(t, table.rows)

	table.AddRow([]string{"a", "success", "200"})
	assert.Len(t, table.rows, 1)
}

func TestTable_Render_Empty(t *testing.T) {
	table := NewTable([]string{"Name", "Status"})

	out := captureStdout(table.Render)

	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Status")
	assert.Contains(t, out, "----")
}

func TestTable_Render_ColumnAlignment(t *testing.T) {
	table := NewTable([]string{"Short", "VeryLongHeader"})
	table.AddRow([]string{"A", "B"})
	table.AddRow([]string{"LongValue", "C"})

	out := captureStdout(table.Render)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)

	assert.True(t, strings.HasPrefix(lines[0], "Short      VeryLongHeader"))
	assert.True(t, strings.HasPrefix(lines[1], "---------  --------------"))
	assert.True(t, strings.HasPrefix(lines[2], "A          B"))
	assert.True(t, strings.HasPrefix(lines[3], "LongValue  C"))
}

func TestTable_Render_ColoredCellsAlign(t *testing.T) {
	color.NoColor = false
	defer func() { color.NoColor = true }()

	table := NewTable([]string{"Outcome", "Status"})
	table.AddRow([]string{Outcome("success"), "200"})

	var buf bytes.Buffer
	old := Stdout
	Stdout = &buf
	table.Render()
	Stdout = old

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "\x1b[")
	assert.Contains(t, lines[2], "\x1b[0m  200")
}

func TestTable_Render_ExtraCellsIgnored(t *testing.T) {
	table := NewTable([]string{"Name"})
	table.AddRow([]string{"relay", "extra"})

	out := captureStdout(table.Render)

	assert.Contains(t, out, "relay")
	assert.NotContains(t, out, "extra")
}

func TestVisibleLen(t *testing.T) {
	assert.Equal(t, 5, visibleLen("hello"))
	assert.Equal(t, 5, visibleLen("\x1b[31;1mhello\x1b[0m"))
	assert.Equal(t, 0, visibleLen(""))
}
