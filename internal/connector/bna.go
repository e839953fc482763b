package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/config"
	"github.com/deepatlas/charging-cli/internal/fetcher"
	"github.com/deepatlas/charging-cli/internal/model"
)

// Column headers of the Ladesaeulenkarte register sheet.
const (
	bnaColOperator     = "Betreiber"
	bnaColStreet       = "Adresse"
	bnaColPostcodeTown = "Postleitzahl Ort"
	bnaColState        = "Bundesland"
	bnaColLongitude    = "Längengrad [DG]"
	bnaColLatitude     = "Breitengrad [DG]"
	bnaColTotalKw      = "Anschlussleistung [kW]"
	bnaColCapacity     = "Anzahl Ladepunkte"
)

// BNAConnector scrapes the Bundesnetzagentur charging-station register.
// The registry page links to an XLSX download whose location changes with
// every data release, so the link is discovered from the page each pull.
type BNAConnector struct {
	cfg     config.BNAConfig
	fetcher fetcher.Fetcher
	tempDir string
}

func NewBNA(cfg config.BNAConfig, f fetcher.Fetcher) *BNAConnector {
	return &BNAConnector{cfg: cfg, fetcher: f, tempDir: os.TempDir()}
}

func (c *BNAConnector) Source() model.DataSource { return model.SourceBNA }

// Pull scrapes the registry page for the XLSX link, then streams the
// register sheet into one raw record per row, keyed by column header.
// The downloaded workbook stays cached in tempDir next to an ETag
// sidecar, so an unchanged register is parsed from the cached copy
// instead of being downloaded again.
func (c *BNAConnector) Pull(ctx context.Context) ([]json.RawMessage, error) {
	body, err := c.fetcher.Download(ctx, c.cfg.PageURL)
	if err != nil {
		return nil, eris.Wrap(err, "bna: download registry page")
	}
	page, err := readAll(body)
	if err != nil {
		return nil, eris.Wrap(err, "bna: read registry page")
	}

	href, err := findXLSXLink(page)
	if err != nil {
		return nil, err
	}
	xlsxURL, err := resolveLink(c.cfg.PageURL, href)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(c.tempDir, "bna_ladesaeulen.xlsx")
	if err := c.refreshSheet(ctx, xlsxURL, path); err != nil {
		return nil, err
	}

	rows, errs := fetcher.StreamXLSX(ctx, path, fetcher.XLSXOptions{})
	raw, recErr := recordsFromRows(rows)
	if err := <-errs; err != nil {
		return nil, eris.Wrap(err, "bna: parse register sheet")
	}
	if recErr != nil {
		return nil, recErr
	}

	zap.L().Info("pulled raw records", zap.String("source", "BNA"), zap.Int("count", len(raw)))
	return raw, nil
}

// refreshSheet downloads the register workbook to path unless the server
// reports it unchanged since the cached copy. The ETag of the last
// successful download sits in a sidecar file next to the workbook.
func (c *BNAConnector) refreshSheet(ctx context.Context, xlsxURL, path string) error {
	etagPath := path + ".etag"

	body, etag, changed, err := c.fetcher.DownloadIfChanged(ctx, xlsxURL, cachedETag(path, etagPath))
	if err != nil {
		return eris.Wrap(err, "bna: download register sheet")
	}
	if !changed {
		zap.L().Info("register sheet unchanged, reusing cached copy", zap.String("path", path))
		return nil
	}
	defer body.Close() //nolint:errcheck

	file, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "bna: create sheet cache")
	}
	if _, err := io.Copy(file, body); err != nil {
		file.Close() //nolint:errcheck
		return eris.Wrap(err, "bna: write sheet cache")
	}
	if err := file.Close(); err != nil {
		return eris.Wrap(err, "bna: write sheet cache")
	}

	if etag == "" {
		os.Remove(etagPath) //nolint:errcheck
	} else if err := os.WriteFile(etagPath, []byte(etag), 0o644); err != nil {
		// Worst case the next pull downloads the sheet again.
		zap.L().Warn("bna: could not store sheet etag", zap.Error(err))
	}
	return nil
}

// cachedETag returns the stored ETag, or "" when the sidecar or the
// cached workbook itself is missing. An ETag without a workbook behind
// it would make the server skip a download we cannot serve locally.
func cachedETag(path, etagPath string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	data, err := os.ReadFile(etagPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// recordsFromRows consumes streamed sheet rows and converts each data
// row into a JSON object keyed by column header. Everything above the
// header row (first cell "Betreiber"; the sheet has a preamble of
// variable length) is dropped. The channel is always drained so the
// producer can finish.
func recordsFromRows(rows <-chan []string) ([]json.RawMessage, error) {
	var header []string
	var records []json.RawMessage
	var failure error

	for row := range rows {
		if failure != nil {
			continue
		}
		if len(row) > 0 && strings.TrimSpace(row[0]) == bnaColOperator {
			if header != nil {
				failure = eris.New("bna: multiple header rows in register sheet")
				continue
			}
			header = dedupeHeader(row)
			continue
		}
		if header == nil {
			continue
		}

		record := make(map[string]string, len(header))
		for col, name := range header {
			if col < len(row) {
				record[name] = row[col]
			} else {
				record[name] = ""
			}
		}
		data, err := json.Marshal(record)
		if err != nil {
			failure = eris.Wrap(err, "bna: marshal row")
			continue
		}
		records = append(records, data)
	}

	if failure != nil {
		return nil, failure
	}
	if header == nil {
		return nil, eris.New("bna: could not find start of data in register sheet")
	}
	return records, nil
}

// dedupeHeader disambiguates repeated column names ("Steckertypen" appears
// once per charging point) by suffixing an index.
func dedupeHeader(cells []string) []string {
	seen := make(map[string]int, len(cells))
	out := make([]string, len(cells))
	for i, cell := range cells {
		name := strings.TrimSpace(cell)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s %d", name, n)
		}
		out[i] = name
	}
	return out
}

// Process normalizes raw register rows. Rows that cannot be normalized
// are logged and skipped.
func (c *BNAConnector) Process(raw []json.RawMessage) ([]model.Station, error) {
	stations := make([]model.Station, 0, len(raw))
	for _, rec := range raw {
		station, err := c.processOne(rec)
		if err != nil {
			zap.L().Error("skipping station", zap.String("source", "BNA"), zap.Error(err))
			continue
		}
		stations = append(stations, *station)
	}
	return stations, nil
}

func (c *BNAConnector) processOne(rec json.RawMessage) (*model.Station, error) {
	var row map[string]string
	if err := json.Unmarshal(rec, &row); err != nil {
		return nil, eris.Wrap(err, "bna: unmarshal row")
	}

	lat, err := parseCoordinate(row[bnaColLatitude])
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate(row[bnaColLongitude])
	if err != nil {
		return nil, err
	}

	var operator *string
	if op := strings.TrimSpace(row[bnaColOperator]); op != "" {
		operator = strPtr(nfc(op))
	}

	// The register has no stable station key; the raw coordinate strings
	// are the most stable identity a row offers.
	station := model.Station{
		ID:          model.HashID(row[bnaColLongitude], row[bnaColLatitude]),
		DataSource:  model.SourceBNA,
		Address:     c.address(row),
		Charging:    c.charging(row),
		Operator:    operator,
		Coordinates: model.PointWKT(lon, lat),
		RawData:     compactJSON(rec),
	}
	return &station, nil
}

// address splits the combined "Postleitzahl Ort" column: digits belong to
// the postcode, everything else to the town.
func (c *BNAConnector) address(row map[string]string) model.Address {
	addr := model.Address{Country: strPtr("DE")}
	if street := strings.TrimSpace(row[bnaColStreet]); street != "" {
		addr.Street = strPtr(nfc(street))
	}
	if state := strings.TrimSpace(row[bnaColState]); state != "" {
		addr.State = strPtr(nfc(state))
	}

	var postcode, town strings.Builder
	for _, r := range row[bnaColPostcodeTown] {
		switch {
		case r == ' ' || r == '\t':
		case r >= '0' && r <= '9':
			postcode.WriteRune(r)
		default:
			town.WriteRune(r)
		}
	}
	if postcode.Len() == 5 {
		addr.Postcode = strPtr(postcode.String())
	} else {
		zap.L().Warn("bna: unusable postcode", zap.String("postcode_town", row[bnaColPostcodeTown]))
	}
	addr.Town = cleanPlaceName(town.String())
	return addr
}

func (c *BNAConnector) charging(row map[string]string) model.Charging {
	var ch model.Charging
	if capacity := strings.TrimSpace(row[bnaColCapacity]); capacity != "" {
		if n, err := strconv.Atoi(capacity); err == nil {
			ch.Capacity = &n
		}
	}
	if totalKw, ok := parseGermanFloat(row[bnaColTotalKw]); ok {
		ch.TotalKw = &totalKw
	}

	for col, value := range row {
		switch {
		case strings.Contains(col, "P") && strings.Contains(col, "[kW]"):
			if kw, ok := parseGermanFloat(value); ok {
				ch.KwList = append(ch.KwList, kw)
			}
		case strings.Contains(col, "Steckertypen") && strings.TrimSpace(value) != "":
			for _, socket := range strings.Split(value, ",") {
				if socket = strings.TrimSpace(socket); socket != "" {
					ch.SocketTypeList = append(ch.SocketTypeList, nfc(socket))
				}
			}
		}
	}
	if ch.Capacity != nil && len(ch.KwList) != *ch.Capacity {
		zap.L().Warn("bna: kw list length differs from capacity",
			zap.Int("kw_entries", len(ch.KwList)), zap.Int("capacity", *ch.Capacity))
	}
	ch.DCSupport = model.HasDCSocket(ch.SocketTypeList)
	ch.MaxKw = model.MaxKw(ch.KwList)
	return ch
}

// parseGermanFloat parses numbers that may use a comma as the decimal
// separator.
func parseGermanFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// findXLSXLink scans the registry page for the download anchor carrying
// the FTxlsx publication class. Exactly one such link must exist.
func findXLSXLink(page string) (string, error) {
	var href string
	found := 0
	for idx := 0; ; {
		start := strings.Index(page[idx:], "<a ")
		if start < 0 {
			break
		}
		idx += start
		end := strings.Index(page[idx:], ">")
		if end < 0 {
			break
		}
		tag := page[idx : idx+end]
		idx += end

		if strings.Contains(tag, "downloadLink") && strings.Contains(tag, "FTxlsx") {
			found++
			if h, ok := extractHref(tag); ok {
				href = h
			}
		}
	}
	if found != 1 {
		return "", eris.Errorf("bna: expected exactly one register download link, found %d", found)
	}
	if href == "" {
		return "", eris.New("bna: register download link has no href")
	}
	return href, nil
}

func extractHref(tag string) (string, bool) {
	pos := strings.Index(tag, `href="`)
	if pos < 0 {
		return "", false
	}
	rest := tag[pos+len(`href="`):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// resolveLink resolves a possibly relative href against the registry page
// URL.
func resolveLink(pageURL, href string) (string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", eris.Wrapf(err, "bna: parse page url %s", pageURL)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", eris.Wrapf(err, "bna: parse link %s", href)
	}
	return base.ResolveReference(ref).String(), nil
}
