package geolocation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEcho(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Location
	}{
		{
			name: "ip-api",
			body: `{"status":"success","country":"Netherlands","countryCode":"NL","city":"Amsterdam","query":"203.0.113.7"}`,
			want: Location{IP: "203.0.113.7", Country: "Netherlands", CountryCode: "NL", City: "Amsterdam"},
		},
		{
			name: "ipinfo",
			body: `{"ip":"198.51.100.2","city":"Berlin","country":"de"}`,
			want: Location{IP: "198.51.100.2", Country: "de", CountryCode: "DE", City: "Berlin"},
		},
		{
			name: "httpbin chain",
			body: `{"origin":"192.0.2.10, 10.0.0.1"}`,
			want: Location{IP: "192.0.2.10"},
		},
		{
			name: "plain",
			body: "192.0.2.44\n",
			want: Location{IP: "192.0.2.44"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEcho([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEchoErrors(t *testing.T) {
	_, err := ParseEcho([]byte(`<html>blocked</html>`))
	require.Error(t, err)

	_, err = ParseEcho([]byte(`{"country":"NL"}`))
	require.ErrorIs(t, err, ErrNoIP)

	_, err = ParseEcho([]byte(`{"status":"fail","message":"private range"}`))
	require.Error(t, err)
}

func TestOpenMaxMindMissingFile(t *testing.T) {
	_, err := OpenMaxMind(filepath.Join(t.TempDir(), "missing.mmdb"))
	require.Error(t, err)
}
