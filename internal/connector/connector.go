// Package connector pulls raw charging-station data from the supported
// providers and normalizes it into the common station schema.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/deepatlas/charging-cli/internal/model"
)

// Connector is implemented once per data source. Pull fetches the raw
// provider records; Process normalizes them into stations. The two steps
// are separate so raw batches can be persisted and reprocessed offline.
type Connector interface {
	Source() model.DataSource
	Pull(ctx context.Context) ([]json.RawMessage, error)
	Process(raw []json.RawMessage) ([]model.Station, error)
}

// parseCoordinate accepts the number-or-string coordinate values the
// providers emit. String values get comma decimals fixed and stray
// characters stripped before parsing.
func parseCoordinate(v any) (float64, error) {
	switch c := v.(type) {
	case float64:
		return c, nil
	case int:
		return float64(c), nil
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsDigit(r) || r == '.' {
				return r
			}
			return -1
		}, strings.ReplaceAll(c, ",", "."))
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "connector: parse coordinate %q", c)
		}
		return f, nil
	default:
		return 0, eris.Errorf("connector: unsupported coordinate type %T", v)
	}
}

// cleanPostcode keeps the digits of a raw postcode and accepts the result
// only when it is exactly five digits long.
func cleanPostcode(raw string) *string {
	var sb strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	digits := sb.String()
	if len(digits) != 5 {
		return nil
	}
	return &digits
}

// cleanPlaceName validates town and state names: at least two characters
// and no digits, otherwise nil.
func cleanPlaceName(raw string) *string {
	if len([]rune(raw)) < 2 {
		return nil
	}
	for _, r := range raw {
		if unicode.IsDigit(r) {
			return nil
		}
	}
	cleaned := nfc(raw)
	return &cleaned
}

// nfc applies Unicode NFC normalization; the providers disagree about
// composed vs decomposed umlauts, which would break string comparison in
// the merge.
func nfc(s string) string {
	return norm.NFC.String(s)
}

func nfcPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cleaned := nfc(*s)
	return &cleaned
}

func strPtr(s string) *string { return &s }

func joinSemicolon(parts []string) string {
	return strings.Join(parts, ";")
}

// readAll drains and closes a response body.
func readAll(rc io.ReadCloser) (string, error) {
	defer rc.Close() //nolint:errcheck
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// compactJSON renders a raw provider record for the station's raw_data
// field, stripping insignificant whitespace.
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
