package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"10", "10.00"},
		{"10.5", "10.50"},
		{"10.555", "10.56"},
		{"10.554", "10.55"},
		{"0.005", "0.01"},
		{"9.999", "10.00"},
		{"99.995", "100.00"},
		{"0", "0.00"},
		{"1234.1", "1234.10"},
		{".5", "0.50"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeAmount(json.Number(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAmount_Invalid(t *testing.T) {
	for _, input := range []string{"", "-10", "ten", "10.5.5"} {
		t.Run(input, func(t *testing.T) {
			_, err := NormalizeAmount(json.Number(input))
			assert.Error(t, err)
		})
	}
}

func TestBrowserContextDefaults(t *testing.T) {
	var browser *BrowserContext
	got := browser.WithDefaults()

	assert.Equal(t, "en-US", got.Language)
	assert.Equal(t, 1366, got.ScreenWidth)
	assert.Equal(t, 768, got.ScreenHeight)
	assert.Equal(t, 24, got.ColorDepth)
	require.NotNil(t, got.TimezoneOffset)
	assert.Equal(t, -180, *got.TimezoneOffset)
	assert.Equal(t, "Mozilla/5.0", got.UserAgent)
	assert.False(t, got.JavaEnabled)
}

func TestBrowserContextKeepsSuppliedValues(t *testing.T) {
	tz := 60
	browser := &BrowserContext{
		Language:       "de-DE",
		TimezoneOffset: &tz,
		ScreenWidth:    1920,
		ScreenHeight:   1080,
		ColorDepth:     32,
		JavaEnabled:    true,
		IPAddress:      "198.51.100.7",
	}
	got := browser.WithDefaults()

	assert.Equal(t, "de-DE", got.Language)
	assert.Equal(t, 60, *got.TimezoneOffset)
	assert.Equal(t, 1920, got.ScreenWidth)
	assert.Equal(t, 1080, got.ScreenHeight)
	assert.Equal(t, 32, got.ColorDepth)
	assert.True(t, got.JavaEnabled)
	assert.Equal(t, "198.51.100.7", got.IPAddress)
}

func TestOutcomeFromStatus(t *testing.T) {
	assert.Equal(t, OutcomeSuccessful, OutcomeFromStatus("Y"))
	assert.Equal(t, OutcomeFailed, OutcomeFromStatus("N"))
	assert.Equal(t, OutcomeFailed, OutcomeFromStatus("R"))
	assert.Equal(t, OutcomeUnavailable, OutcomeFromStatus("U"))
	assert.Equal(t, OutcomeNotRequired, OutcomeFromStatus(""))
}

// "10.555" must survive decoding as text; a float64 round-trip would already
// have lost the half-up rounding.
func TestNormalizeAmount_FromDecodedJSON(t *testing.T) {
	var body struct {
		Amount json.Number `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":10.555}`), &body))

	got, err := NormalizeAmount(body.Amount)
	require.NoError(t, err)
	assert.Equal(t, "10.56", got)
}
