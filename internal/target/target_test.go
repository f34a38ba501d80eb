package target

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func TestParseLinesHostPort(t *testing.T) {
	input := "example.com:443\n\n  10.0.0.1:22  \nexample.com\n[::1]:8080\nhost:0\nhost:abc\n"

	targets := ParseLines(input, ShapeHostPort, 0)
	require.Len(t, targets, 6)

	assert.True(t, targets[0].Valid())
	assert.Equal(t, "example.com", targets[0].Host)
	assert.Equal(t, 443, targets[0].Port)

	assert.Equal(t, "10.0.0.1", targets[1].Host)
	assert.Equal(t, 22, targets[1].Port)

	assert.False(t, targets[2].Valid(), "bare host has no port")
	require.ErrorIs(t, targets[2].Err, ErrInvalidFormat)

	assert.Equal(t, "::1", targets[3].Host)
	assert.Equal(t, "[::1]:8080", targets[3].Address())

	assert.False(t, targets[4].Valid())
	assert.False(t, targets[5].Valid())

	for i, tg := range targets {
		assert.Equal(t, i, tg.Index)
	}
}

func TestParseLinesProxy(t *testing.T) {
	tests := []struct {
		line   string
		valid  bool
		scheme string
		user   string
	}{
		{"1.2.3.4:8080", true, "http", ""},
		{"1.2.3.4:8080:bob:secret", true, "http", "bob"},
		{"socks5://1.2.3.4:1080", true, "socks5", ""},
		{"https://proxy.example.com:3128", true, "https", ""},
		{"1.2.3.4:8080:bob", false, "", ""},
		{"1.2.3.4", false, "", ""},
		{"1.2.3.4:8080:a:b:c", false, "", ""},
		{"ftp://1.2.3.4:21", false, "", ""},
		{"1.2.3.4:99999", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			tg := ParseLine(tt.line, ShapeProxy, 0)
			if !tt.valid {
				assert.ErrorIs(t, tg.Err, ErrInvalidFormat)
				return
			}
			require.NoError(t, tg.Err)
			assert.Equal(t, tt.scheme, tg.Scheme)
			if tt.user != "" {
				require.NotNil(t, tg.Credentials)
				assert.Equal(t, tt.user, tg.Credentials.User)
				assert.Equal(t, "secret", tg.Credentials.Pass)
			}
		})
	}
}

func TestParseLinesDomainAndURL(t *testing.T) {
	domains := ParseLines("Example.COM\nsub.example.co.uk.\nnot a domain\nlocalhost\n", ShapeDomain, 43)
	require.Len(t, domains, 4)
	assert.Equal(t, "example.com", domains[0].Host)
	assert.Equal(t, 43, domains[0].Port)
	assert.Equal(t, "sub.example.co.uk", domains[1].Host)
	assert.False(t, domains[2].Valid())
	assert.False(t, domains[3].Valid(), "single label is not a registrable domain")

	urls := ParseLines("example.com\nhttp://example.com:8080/path\nftp://example.com\n", ShapeURL, 0)
	require.Len(t, urls, 3)
	assert.Equal(t, "https://example.com", urls[0].URL)
	assert.Equal(t, 443, urls[0].Port)
	assert.Equal(t, 8080, urls[1].Port)
	assert.Equal(t, "http", urls[1].Scheme)
	assert.False(t, urls[2].Valid())
}

func TestParseLinesHost(t *testing.T) {
	hosts := ParseLines("example.com\n127.0.0.1:8443\n::1\nbad host\n", ShapeHost, 443)
	require.Len(t, hosts, 4)
	assert.Equal(t, 443, hosts[0].Port)
	assert.Equal(t, 8443, hosts[1].Port)
	assert.Equal(t, "::1", hosts[2].Host)
	assert.False(t, hosts[3].Valid())
}

func TestParseLinesOneTargetPerLine(t *testing.T) {
	lines := []string{"a.com:1", "garbage", "b.com:2", ":::", "c.com:x", "d.com:65535"}
	targets := ParseLines(strings.Join(lines, "\r\n"), ShapeHostPort, 0)
	require.Len(t, targets, len(lines))

	invalid := 0
	for i, tg := range targets {
		assert.Equal(t, lines[i], tg.Raw)
		if !tg.Valid() {
			invalid++
		}
	}
	assert.Equal(t, 3, invalid)
}

func TestParsePortRange(t *testing.T) {
	start, end, err := ParsePortRange("1-1024")
	require.NoError(t, err)
	assert.Equal(t, 1, start)
	assert.Equal(t, 1024, end)

	start, end, err = ParsePortRange("80")
	require.NoError(t, err)
	assert.Equal(t, 80, start)
	assert.Equal(t, 80, end)

	for _, bad := range []string{"", "100-1", "0-10", "1-70000", "a-b", "1-"} {
		_, _, err := ParsePortRange(bad)
		assert.ErrorIs(t, err, ErrInvalidPortRange, bad)
	}
}

func TestParsePortList(t *testing.T) {
	ports, err := ParsePortList("443, 22,80-82,22")
	require.NoError(t, err)
	assert.Equal(t, []int{22, 80, 81, 82, 443}, ports)

	_, err = ParsePortList("22,x")
	require.ErrorIs(t, err, ErrInvalidPortRange)

	_, err = ParsePortList(" , ")
	require.ErrorIs(t, err, ErrInvalidPortRange)
}

func TestExpandHostPorts(t *testing.T) {
	hosts := ParseLines("a.example.com\nbad host\nb.example.com", ShapeHost, 0)
	out := ExpandHostPorts(hosts, []int{22, 80})

	require.Len(t, out, 5)
	assert.Equal(t, "a.example.com:22", out[0].Address())
	assert.Equal(t, "a.example.com:80", out[1].Address())
	assert.False(t, out[2].Valid())
	assert.Equal(t, "b.example.com:80", out[4].Address())
	for i, tg := range out {
		assert.Equal(t, i, tg.Index)
	}
}

func TestReadInput(t *testing.T) {
	plain, err := ReadInput(strings.NewReader("a.com\nb.com\n"))
	require.NoError(t, err)
	assert.Equal(t, "a.com\nb.com\n", plain)

	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	utf16, err := enc.String("a.com\r\nb.com")
	require.NoError(t, err)

	decoded, err := ReadInput(strings.NewReader(utf16))
	require.NoError(t, err)
	targets := ParseLines(decoded, ShapeDomain, 43)
	require.Len(t, targets, 2)
	assert.Equal(t, "a.com", targets[0].Host)
	assert.Equal(t, "b.com", targets[1].Host)
}
