package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// DelineationURL is the Census Bureau's CBSA delineation file: one row
// per county, grouped under its core based statistical area.
const DelineationURL = "https://www2.census.gov/programs-surveys/metro-micro/geographies/reference-files/2023/delineation-files/list1_2023.xlsx"

const (
	colCBSACode = "CBSA Code"
	colTitle    = "CBSA Title"
	colCategory = "Metropolitan/Micropolitan Statistical Area"

	metropolitan = "Metropolitan Statistical Area"
)

// Metro is one metropolitan statistical area from the delineation file.
type Metro struct {
	Code  string
	Title string
}

// ParseDelineation extracts the metropolitan areas from a CBSA
// delineation workbook. The file carries title rows above the header
// and footnotes below the data, and repeats each CBSA once per member
// county; the parser locates the header by name, keeps only
// metropolitan rows, and deduplicates by CBSA code in file order.
func ParseDelineation(path string) ([]Metro, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cbsa: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("cbsa: %s has no sheets", path)
	}
	sheet := f.Sheets[0]

	headerAt := -1
	var cols map[string]int
	for i, row := range sheet.Rows {
		cells := rowStrings(row)
		if len(cells) > 0 && strings.TrimSpace(cells[0]) == colCBSACode {
			headerAt = i
			cols = indexColumns(cells)
			break
		}
	}
	if headerAt < 0 {
		return nil, eris.Errorf("cbsa: header row %q not found in %s", colCBSACode, path)
	}
	for _, required := range []string{colCBSACode, colTitle, colCategory} {
		if _, ok := cols[required]; !ok {
			return nil, eris.Errorf("cbsa: column %q missing in %s", required, path)
		}
	}

	var metros []Metro
	seen := make(map[string]struct{})
	for _, row := range sheet.Rows[headerAt+1:] {
		cells := rowStrings(row)
		code := cellAt(cells, cols[colCBSACode])
		title := cellAt(cells, cols[colTitle])
		if code == "" || title == "" {
			continue // footnote or padding row
		}
		if cellAt(cells, cols[colCategory]) != metropolitan {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		metros = append(metros, Metro{Code: code, Title: title})
	}

	if len(metros) == 0 {
		return nil, eris.Errorf("cbsa: no metropolitan rows in %s", path)
	}
	return metros, nil
}

// FetchMetros downloads the delineation file and returns the metro
// titles in file order, ready for rotation seeding.
func FetchMetros(ctx context.Context, f Fetcher, rawURL string) ([]string, error) {
	if rawURL == "" {
		rawURL = DelineationURL
	}

	tmp, err := os.MkdirTemp("", "cbsa-*")
	if err != nil {
		return nil, eris.Wrap(err, "cbsa: temp dir")
	}
	defer os.RemoveAll(tmp) //nolint:errcheck

	path := filepath.Join(tmp, "delineation.xlsx")
	n, err := f.DownloadToFile(ctx, rawURL, path)
	if err != nil {
		return nil, eris.Wrapf(err, "cbsa: download %s", rawURL)
	}
	zap.L().Info("cbsa: delineation file downloaded",
		zap.String("url", rawURL),
		zap.Int64("bytes", n),
	)

	metros, err := ParseDelineation(path)
	if err != nil {
		return nil, err
	}

	titles := make([]string, len(metros))
	for i, m := range metros {
		titles[i] = m.Title
	}
	return titles, nil
}

func rowStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	return cols
}

func cellAt(cells []string, i int) string {
	if i < 0 || i >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[i])
}
