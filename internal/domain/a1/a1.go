// Package a1 builds and parses A1-notation range strings.
package a1

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"google.golang.org/api/sheets/v4"
)

// FullColumns is the column span requested when a whole sheet is read or
// written.
const FullColumns = "A:ZZ"

// ErrInvalidRange is returned for fragments that are not valid A1 notation.
var ErrInvalidRange = errors.New("invalid A1 range")

// FullSheetRange returns the whole-sheet range for name, e.g. "Sheet1!A:ZZ".
func FullSheetRange(name string) string {
	return Qualify(name, FullColumns)
}

// Qualify joins a sheet name and a range fragment: "Sheet1" + "B2:C3".
func Qualify(name, fragment string) string {
	return name + "!" + fragment
}

// QuotedQualify is Qualify with the sheet name single-quoted, the form used
// inside formulas: 'Sheet 1'!A1:A5.
func QuotedQualify(name, fragment string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'!" + fragment
}

// Split separates a qualified range into its sheet name and fragment. Quoted
// sheet names are unquoted. A range without a sheet part yields an empty name.
func Split(qualified string) (sheet, fragment string) {
	idx := strings.LastIndex(qualified, "!")
	if idx < 0 {
		return "", qualified
	}
	sheet, fragment = qualified[:idx], qualified[idx+1:]
	if len(sheet) >= 2 && strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") {
		sheet = strings.ReplaceAll(sheet[1:len(sheet)-1], "''", "'")
	}
	return sheet, fragment
}

// endpoint is one side of a fragment. Zero col/row means "unbounded".
type endpoint struct {
	col, row int
}

func parseEndpoint(s string) (endpoint, error) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "$", ""))
	if s == "" {
		return endpoint{}, fmt.Errorf("%w: empty reference", ErrInvalidRange)
	}

	split := strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	switch {
	case split < 0: // column only: "C"
		col, err := excelize.ColumnNameToNumber(s)
		if err != nil {
			return endpoint{}, fmt.Errorf("%w: %q: %w", ErrInvalidRange, s, err)
		}
		return endpoint{col: col}, nil
	case split == 0: // row only: "12"
		row, err := strconv.Atoi(s)
		if err != nil || row < 1 {
			return endpoint{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		return endpoint{row: row}, nil
	default: // cell: "B7"
		col, row, err := excelize.CellNameToCoordinates(s)
		if err != nil {
			return endpoint{}, fmt.Errorf("%w: %q: %w", ErrInvalidRange, s, err)
		}
		return endpoint{col: col, row: row}, nil
	}
}

// ToGridRange converts a range fragment (no sheet part) into a zero-based,
// end-exclusive GridRange on sheetID. Unbounded sides are left unset.
func ToGridRange(sheetID int64, fragment string) (*sheets.GridRange, error) {
	parts := strings.Split(fragment, ":")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, fragment)
	}

	start, err := parseEndpoint(parts[0])
	if err != nil {
		return nil, err
	}
	end := start
	if len(parts) == 2 {
		if end, err = parseEndpoint(parts[1]); err != nil {
			return nil, err
		}
	}

	// "A:3" style mixes are not meaningful.
	if (start.col == 0) != (end.col == 0) && (start.row == 0) != (end.row == 0) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, fragment)
	}

	g := SheetGridRange(sheetID)
	if start.col > 0 {
		g.StartColumnIndex = int64(start.col - 1)
		g.ForceSendFields = append(g.ForceSendFields, "StartColumnIndex")
	}
	if end.col > 0 {
		g.EndColumnIndex = int64(end.col)
	}
	if start.row > 0 {
		g.StartRowIndex = int64(start.row - 1)
		g.ForceSendFields = append(g.ForceSendFields, "StartRowIndex")
	}
	if end.row > 0 {
		g.EndRowIndex = int64(end.row)
	}
	if (g.EndColumnIndex > 0 && g.EndColumnIndex <= g.StartColumnIndex) ||
		(g.EndRowIndex > 0 && g.EndRowIndex <= g.StartRowIndex) {
		return nil, fmt.Errorf("%w: %q ends before it starts", ErrInvalidRange, fragment)
	}
	return g, nil
}

// SheetGridRange covers the whole of sheetID. SheetId is always sent because
// the first sheet of a spreadsheet has id 0.
func SheetGridRange(sheetID int64) *sheets.GridRange {
	return &sheets.GridRange{
		SheetId:         sheetID,
		ForceSendFields: []string{"SheetId"},
	}
}
