package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/shii9/reconkit/internal/batch"
	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/target"
)

func sampleState(t *testing.T) batch.State {
	t.Helper()
	tr := batch.NewTracker(zerolog.Nop())
	ts := target.ParseLines("127.0.0.1:22\n127.0.0.1:81\nbogus\n", target.ShapeHostPort, 0)
	gen, _ := tr.Start(probe.KindTCP, ts)

	tr.Record(gen, 0, probe.Success(probe.KindTCP, ts[0], probe.StatusOpen, 3*time.Millisecond,
		probe.PortInfo{Port: 22, State: "open", Service: "ssh"}))
	tr.Record(gen, 1, probe.Failure(probe.KindTCP, ts[1], probe.StatusClosed, time.Millisecond, nil))
	tr.Record(gen, 2, probe.Invalid(probe.KindTCP, ts[2]))
	tr.Finish(gen)
	return tr.Snapshot()
}

func TestWriteText(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(t), FormatText))

	out := buf.String()
	assert.Contains(t, out, "127.0.0.1:22")
	assert.Contains(t, out, "open ssh")
	assert.Contains(t, out, "Invalid Format")
	assert.Contains(t, out, "3/3 completed, 1 succeeded, 2 failed")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(t), FormatJSON))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	results := decoded["results"].([]any)
	require.Len(t, results, 3)
	first := results[0].(map[string]any)
	assert.Equal(t, "Open", first["status"])
	assert.Equal(t, "ssh", first["metadata"].(map[string]any)["service"])
	assert.Nil(t, results[2].(map[string]any)["latency_ms"])
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(t), FormatYAML))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "tcp", decoded["kind"])
	counters := decoded["counters"].(map[string]any)
	assert.Equal(t, 3, counters["completed"])
}

func TestWriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	require.NoError(t, WriteToFile(sampleState(t), FormatText, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\x1b[")

	require.Error(t, Write(&bytes.Buffer{}, sampleState(t), "xml"))
}
