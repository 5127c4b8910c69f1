// Package types contains common types shared by the HTTP and service layers.
package types

import (
	"bytes"
	"encoding/json"
	"errors"

	"google.golang.org/api/sheets/v4"
)

// ErrNotGrid is returned when a payload is not an array of arrays.
var ErrNotGrid = errors.New("payload should be an array of arrays")

// Grid is an ordered list of rows, each an ordered list of cell values.
type Grid [][]any

// DecodeGrid parses raw as a Grid. Anything other than a JSON array whose
// elements are all arrays is rejected with ErrNotGrid.
func DecodeGrid(raw []byte) (Grid, error) {
	var top []json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil || top == nil {
		return nil, ErrNotGrid
	}

	grid := make(Grid, 0, len(top))
	for _, rawRow := range top {
		trimmed := bytes.TrimSpace(rawRow)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return nil, ErrNotGrid
		}
		var row []any
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, ErrNotGrid
		}
		if row == nil {
			row = []any{}
		}
		grid = append(grid, row)
	}
	return grid, nil
}

// SheetProperties is the subset of sheet properties callers may change.
// Only fields that are set are sent upstream.
type SheetProperties struct {
	Title          string                 `json:"title,omitempty"`
	TabColor       *sheets.Color          `json:"tabColor,omitempty"`
	GridProperties *sheets.GridProperties `json:"gridProperties,omitempty"`
}

// Fields lists the upstream field mask for the properties that are set,
// in a stable order.
func (p SheetProperties) Fields() []string {
	var fields []string
	if p.Title != "" {
		fields = append(fields, "title")
	}
	if p.TabColor != nil {
		fields = append(fields, "tabColor")
	}
	if p.GridProperties != nil {
		fields = append(fields, "gridProperties")
	}
	return fields
}

// Permissions describes who may edit a sheet.
type Permissions struct {
	Users              []string `json:"users,omitempty"`
	Groups             []string `json:"groups,omitempty"`
	DomainUsersCanEdit bool     `json:"domainUsersCanEdit,omitempty"`
	WarningOnly        bool     `json:"warningOnly,omitempty"`
	Description        string   `json:"description,omitempty"`
}

// DeleteResult acknowledges a spreadsheet deletion.
type DeleteResult struct {
	SpreadsheetID string `json:"spreadsheetId"`
	Deleted       bool   `json:"deleted"`
}
