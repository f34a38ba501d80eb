package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/shii9/reconkit/internal/batch"
	"github.com/shii9/reconkit/internal/probe"
)

// Formats accepted by Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	okColor      = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed)
	invalidColor = color.New(color.FgMagenta)
)

// Write renders a batch snapshot to w.
func Write(w io.Writer, state batch.State, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(state); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, state)
	default:
		return fmt.Errorf("invalid format: %s", format)
	}
}

// WriteToFile renders a snapshot into filename. Text output is never coloured.
func WriteToFile(state batch.State, format, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if format == FormatText || format == "" {
		prev := color.NoColor
		color.NoColor = true
		defer func() { color.NoColor = prev }()
	}
	if err := Write(f, state, format); err != nil {
		return err
	}
	return f.Close()
}

func writeText(w io.Writer, state batch.State) error {
	c := state.Counters
	if _, err := fmt.Fprintf(w, "=== reconkit %s batch %s ===\n", state.Kind, state.ID); err != nil {
		return err
	}
	for _, r := range state.Results {
		if err := Line(w, r); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "--- %d/%d completed, %d succeeded, %d failed\n", c.Completed, c.Total, c.Succeeded, c.Failed)
	return err
}

// Line prints one result as a single human-readable line.
func Line(w io.Writer, r probe.Result) error {
	latency := "-"
	if r.LatencyMs != nil {
		latency = fmt.Sprintf("%dms", *r.LatencyMs)
	}
	status := statusColor(r.Status).Sprintf("%-9s", r.Status)
	_, err := fmt.Fprintf(w, "[%d] %-40s %s %7s  %s\n", r.Target.Index, r.Target.String(), status, latency, Detail(r))
	return err
}

// Detail is the kind-specific summary of a result.
func Detail(r probe.Result) string {
	switch md := r.Metadata.(type) {
	case probe.PortInfo:
		if md.Service != "" {
			return md.State + " " + md.Service
		}
		return md.State
	case probe.CertInfo:
		return fmt.Sprintf("grade %s, %d days left, %s %s", md.Grade, md.DaysRemaining, md.Protocol, md.Issuer)
	case probe.WhoisInfo:
		if !r.Status.Succeeded() {
			return r.Error
		}
		return fmt.Sprintf("registrar=%q expires=%s ns=%s", md.Registrar, md.Expiry, strings.Join(md.NameServers, ","))
	case probe.ProxyInfo:
		return strings.TrimSpace(fmt.Sprintf("%s %s %s %s", md.Anonymity, md.IP, md.Country, md.City))
	case probe.HeaderReport:
		return fmt.Sprintf("score %d, %d issues", md.Score, len(md.Issues))
	case probe.DNSInfo:
		return strings.Join(md.Addresses, ", ")
	case probe.ProfileInfo:
		return md.Title
	default:
		return r.Error
	}
}

func statusColor(s probe.Status) *color.Color {
	switch s {
	case probe.StatusOpen, probe.StatusActive:
		return okColor
	case probe.StatusTimeout, probe.StatusQueued, probe.StatusScanning:
		return warnColor
	case probe.StatusInvalid:
		return invalidColor
	default:
		return failColor
	}
}
