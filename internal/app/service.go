// Package service implements the spreadsheet operations exposed by the HTTP
// API on top of the upstream Sheets client.
//
// Conventions:
//   - Input problems are reported with ErrInvalidPayload before any upstream call.
//   - Sheet titles are resolved to ids with one metadata lookup; a missing title
//     yields ErrSheetNotFound and no mutating call.
//   - Upstream errors are logged and returned unmodified.
package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"google.golang.org/api/sheets/v4"

	"github.com/okian/sheetbridge/internal/adapters/gsheets"
	"github.com/okian/sheetbridge/internal/domain/a1"
	"github.com/okian/sheetbridge/internal/domain/query"
	"github.com/okian/sheetbridge/internal/domain/types"
	"github.com/okian/sheetbridge/pkg/logger"
)

const (
	defaultSheetTitle = "Sheet1"
	valueInputRaw     = "RAW"

	// protectionFields is the update mask for a whole-sheet protection.
	// Editors is always listed so warning-only protection clears them.
	protectionFields = "description,warningOnly,editors"
)

// Service implements the API dependencies for the spreadsheet proxy.
type Service struct {
	client gsheets.Client

	defaultSheetTitle string
	logger            logger.Logger
}

// New constructs a Service over client.
func New(client gsheets.Client, opts ...Option) *Service {
	s := &Service{
		client:            client,
		defaultSheetTitle: defaultSheetTitle,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// CreateWorksheet creates a spreadsheet titled title. An empty title is
// passed through and upstream names the file "Untitled spreadsheet". With
// header values the spreadsheet gets a first sheet whose first row holds them.
func (s *Service) CreateWorksheet(ctx context.Context, title string, headerValues []string) (*sheets.Spreadsheet, error) {
	req := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
	}
	if len(headerValues) > 0 {
		req.Sheets = []*sheets.Sheet{{
			Properties: &sheets.SheetProperties{Title: s.defaultSheetTitle},
			Data: []*sheets.GridData{{
				RowData: []*sheets.RowData{headerRow(headerValues)},
			}},
		}}
	}

	out, err := s.client.CreateSpreadsheet(ctx, req)
	if err != nil {
		return nil, s.fail(ctx, "create worksheet", err, logger.String("title", title))
	}
	return out, nil
}

// DeleteWorksheet deletes the spreadsheet spreadsheetID.
func (s *Service) DeleteWorksheet(ctx context.Context, spreadsheetID string) (*types.DeleteResult, error) {
	if err := requireID(spreadsheetID); err != nil {
		return nil, err
	}
	if err := s.client.DeleteSpreadsheet(ctx, spreadsheetID); err != nil {
		return nil, s.fail(ctx, "delete worksheet", err, logger.String("spreadsheet_id", spreadsheetID))
	}
	return &types.DeleteResult{SpreadsheetID: spreadsheetID, Deleted: true}, nil
}

// FetchSheetData reads the full column span of sheetName. A sheet without
// data yields an empty grid.
func (s *Service) FetchSheetData(ctx context.Context, spreadsheetID, sheetName string) (types.Grid, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}

	vr, err := s.client.GetValues(ctx, spreadsheetID, a1.FullSheetRange(sheetName))
	if err != nil {
		return nil, s.fail(ctx, "fetch sheet data", err,
			logger.String("spreadsheet_id", spreadsheetID), logger.String("sheet", sheetName))
	}

	grid := types.Grid{}
	if vr != nil {
		grid = append(grid, vr.Values...)
	}
	return grid, nil
}

// CreateSheet adds a sheet named sheetName. With header values the sheet id
// is picked locally so the sheet and its first row go out in one batch
// update, which upstream applies atomically.
func (s *Service) CreateSheet(ctx context.Context, spreadsheetID, sheetName string, headerValues []string) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}

	if len(headerValues) == 0 {
		resp, err := s.client.BatchUpdate(ctx, spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{Title: sheetName},
				},
			}},
		})
		if err != nil {
			return nil, s.fail(ctx, "create sheet", err,
				logger.String("spreadsheet_id", spreadsheetID), logger.String("sheet", sheetName))
		}
		return resp, nil
	}

	ids, err := s.sheetIDs(ctx, "create sheet", spreadsheetID)
	if err != nil {
		return nil, err
	}
	sheetID := freeSheetID(ids)

	resp, err := s.client.BatchUpdate(ctx, spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						SheetId:         sheetID,
						Title:           sheetName,
						ForceSendFields: []string{"SheetId"},
					},
				},
			},
			{
				UpdateCells: &sheets.UpdateCellsRequest{
					Rows:   []*sheets.RowData{headerRow(headerValues)},
					Fields: "*",
					Start: &sheets.GridCoordinate{
						SheetId:         sheetID,
						ForceSendFields: []string{"SheetId", "RowIndex", "ColumnIndex"},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, s.fail(ctx, "create sheet", err,
			logger.String("spreadsheet_id", spreadsheetID), logger.String("sheet", sheetName))
	}
	return resp, nil
}

// UpdateSheetData overwrites the full column span of sheetName with grid.
func (s *Service) UpdateSheetData(ctx context.Context, spreadsheetID, sheetName string, grid types.Grid) (*sheets.BatchUpdateValuesResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}
	return s.writeValues(ctx, "update sheet data", spreadsheetID, a1.FullSheetRange(sheetName), grid)
}

// InsertSheetData writes grid from the top of sheetName.
func (s *Service) InsertSheetData(ctx context.Context, spreadsheetID, sheetName string, grid types.Grid) (*sheets.BatchUpdateValuesResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}
	return s.writeValues(ctx, "insert sheet data", spreadsheetID, a1.FullSheetRange(sheetName), grid)
}

// UpdateSheetEntry writes grid to rng on sheetName.
func (s *Service) UpdateSheetEntry(ctx context.Context, spreadsheetID, sheetName, rng string, grid types.Grid) (*sheets.BatchUpdateValuesResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rng) == "" {
		return nil, fmt.Errorf("%w: range is required", ErrInvalidPayload)
	}
	return s.writeValues(ctx, "update sheet entry", spreadsheetID, a1.Qualify(sheetName, rng), grid)
}

// DeleteSheetEntry clears rng on sheetName.
func (s *Service) DeleteSheetEntry(ctx context.Context, spreadsheetID, sheetName, rng string) (*sheets.BatchClearValuesResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rng) == "" {
		return nil, fmt.Errorf("%w: range is required", ErrInvalidPayload)
	}

	target := a1.Qualify(sheetName, rng)
	resp, err := s.client.BatchClearValues(ctx, spreadsheetID, &sheets.BatchClearValuesRequest{
		Ranges: []string{target},
	})
	if err != nil {
		return nil, s.fail(ctx, "delete sheet entry", err,
			logger.String("spreadsheet_id", spreadsheetID), logger.String("range", target))
	}
	return resp, nil
}

// DeleteSheet removes sheetName from the spreadsheet.
func (s *Service) DeleteSheet(ctx context.Context, spreadsheetID, sheetName string) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}

	sheetID, err := s.lookupSheetID(ctx, "delete sheet", spreadsheetID, sheetName)
	if err != nil {
		return nil, err
	}

	return s.batchUpdate(ctx, "delete sheet", spreadsheetID, &sheets.Request{
		DeleteSheet: &sheets.DeleteSheetRequest{
			SheetId:         sheetID,
			ForceSendFields: []string{"SheetId"},
		},
	})
}

// UpdateSheetProperties changes the properties of sheetName that are set in
// props. At least one must be set.
func (s *Service) UpdateSheetProperties(ctx context.Context, spreadsheetID, sheetName string, props types.SheetProperties) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}
	fields := props.Fields()
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no properties to update", ErrInvalidPayload)
	}

	sheetID, err := s.lookupSheetID(ctx, "update sheet properties", spreadsheetID, sheetName)
	if err != nil {
		return nil, err
	}

	return s.batchUpdate(ctx, "update sheet properties", spreadsheetID, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         sheetID,
				Title:           props.Title,
				TabColor:        props.TabColor,
				GridProperties:  props.GridProperties,
				ForceSendFields: []string{"SheetId"},
			},
			Fields: strings.Join(fields, ","),
		},
	})
}

// SetSheetPermissions protects the whole of sheetName. An existing
// whole-sheet protection is updated in place and any duplicates are removed,
// so repeated calls leave exactly one. Editors are ignored for warning-only
// protection, which upstream does not allow them on.
func (s *Service) SetSheetPermissions(ctx context.Context, spreadsheetID, sheetName string, perms types.Permissions) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	const op = "set sheet permissions"
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}

	all, err := s.client.SheetProtections(ctx, spreadsheetID)
	if err != nil {
		return nil, s.fail(ctx, op, err, logger.String("spreadsheet_id", spreadsheetID))
	}
	var sheet *sheets.Sheet
	for _, sh := range all {
		if sh.Properties.Title == sheetName {
			sheet = sh
			break
		}
	}
	if sheet == nil {
		return nil, notFound(spreadsheetID, sheetName)
	}
	sheetID := sheet.Properties.SheetId

	protected := &sheets.ProtectedRange{
		Description: perms.Description,
		WarningOnly: perms.WarningOnly,
	}
	if !perms.WarningOnly {
		protected.Editors = &sheets.Editors{
			Users:              perms.Users,
			Groups:             perms.Groups,
			DomainUsersCanEdit: perms.DomainUsersCanEdit,
		}
	}

	existing := wholeSheetProtections(sheet)
	if len(existing) == 0 {
		protected.Range = a1.SheetGridRange(sheetID)
		return s.batchUpdate(ctx, op, spreadsheetID, &sheets.Request{
			AddProtectedRange: &sheets.AddProtectedRangeRequest{ProtectedRange: protected},
		})
	}

	protected.ProtectedRangeId = existing[0].ProtectedRangeId
	protected.ForceSendFields = []string{"ProtectedRangeId", "Description", "WarningOnly"}
	requests := []*sheets.Request{{
		UpdateProtectedRange: &sheets.UpdateProtectedRangeRequest{
			ProtectedRange: protected,
			Fields:         protectionFields,
		},
	}}
	for _, dup := range existing[1:] {
		requests = append(requests, &sheets.Request{
			DeleteProtectedRange: &sheets.DeleteProtectedRangeRequest{
				ProtectedRangeId: dup.ProtectedRangeId,
				ForceSendFields:  []string{"ProtectedRangeId"},
			},
		})
	}
	return s.batchUpdate(ctx, op, spreadsheetID, requests...)
}

// ApplyFormatting applies format to every cell of rng on sheetName. An empty
// range formats the whole sheet.
func (s *Service) ApplyFormatting(ctx context.Context, spreadsheetID, sheetName, rng string, format *sheets.CellFormat) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if err := requireSheet(spreadsheetID, sheetName); err != nil {
		return nil, err
	}
	if format == nil {
		return nil, fmt.Errorf("%w: format is required", ErrInvalidPayload)
	}

	rangeSheet, fragment := a1.Split(rng)
	if rangeSheet != "" && rangeSheet != sheetName {
		return nil, fmt.Errorf("%w: range %q is not on sheet %q", ErrInvalidPayload, rng, sheetName)
	}
	// Validate the fragment before the lookup so a bad range costs no upstream call.
	if fragment != "" {
		if _, err := a1.ToGridRange(0, fragment); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	sheetID, err := s.lookupSheetID(ctx, "apply formatting", spreadsheetID, sheetName)
	if err != nil {
		return nil, err
	}

	grid := a1.SheetGridRange(sheetID)
	if fragment != "" {
		if grid, err = a1.ToGridRange(sheetID, fragment); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	}

	return s.batchUpdate(ctx, "apply formatting", spreadsheetID, &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range:  grid,
			Cell:   &sheets.CellData{UserEnteredFormat: format},
			Fields: "userEnteredFormat",
		},
	})
}

// PerformSheetOperation runs a cross-sheet operation. Only join is supported:
// each query becomes a strict data-validation rule on its target range whose
// allowed values come from a QUERY over the source ranges.
func (s *Service) PerformSheetOperation(ctx context.Context, spreadsheetID, operation string, queries []query.Parsed) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if operation != query.OperationJoin {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, operation)
	}
	if err := requireID(spreadsheetID); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%w: sheetQueries must not be empty", ErrInvalidPayload)
	}

	type target struct {
		sheet, fragment string
	}
	targets := make([]target, 0, len(queries))
	for i, q := range queries {
		sheet, fragment := a1.Split(q.TargetRange)
		if sheet == "" || fragment == "" {
			return nil, fmt.Errorf("%w: query %d: target range %q must name a sheet", ErrInvalidPayload, i, q.TargetRange)
		}
		if _, err := a1.ToGridRange(0, fragment); err != nil {
			return nil, fmt.Errorf("%w: query %d: %w", ErrInvalidPayload, i, err)
		}
		targets = append(targets, target{sheet: sheet, fragment: fragment})
	}

	ids, err := s.sheetIDs(ctx, "perform sheet operation", spreadsheetID)
	if err != nil {
		return nil, err
	}

	requests := make([]*sheets.Request, 0, len(queries))
	for i, q := range queries {
		t := targets[i]
		sheetID, ok := ids[t.sheet]
		if !ok {
			return nil, notFound(spreadsheetID, t.sheet)
		}
		grid, err := a1.ToGridRange(sheetID, t.fragment)
		if err != nil {
			return nil, fmt.Errorf("%w: query %d: %w", ErrInvalidPayload, i, err)
		}

		formula := q.JoinFormula()
		requests = append(requests, &sheets.Request{
			SetDataValidation: &sheets.SetDataValidationRequest{
				Range: grid,
				Rule: &sheets.DataValidationRule{
					Condition: &sheets.BooleanCondition{
						Type:   "ONE_OF_RANGE",
						Values: []*sheets.ConditionValue{{UserEnteredValue: formula}},
					},
					Strict:       true,
					ShowCustomUi: true,
				},
			},
		})
	}

	return s.batchUpdate(ctx, "perform sheet operation", spreadsheetID, requests...)
}

func (s *Service) writeValues(ctx context.Context, op, spreadsheetID, rng string, grid types.Grid) (*sheets.BatchUpdateValuesResponse, error) {
	resp, err := s.client.BatchUpdateValues(ctx, spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: valueInputRaw,
		Data:             []*sheets.ValueRange{{Range: rng, Values: grid}},
	})
	if err != nil {
		return nil, s.fail(ctx, op, err,
			logger.String("spreadsheet_id", spreadsheetID), logger.String("range", rng))
	}
	return resp, nil
}

func (s *Service) batchUpdate(ctx context.Context, op, spreadsheetID string, requests ...*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	resp, err := s.client.BatchUpdate(ctx, spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests})
	if err != nil {
		return nil, s.fail(ctx, op, err, logger.String("spreadsheet_id", spreadsheetID))
	}
	return resp, nil
}

// lookupSheetID resolves a sheet title to its numeric id.
func (s *Service) lookupSheetID(ctx context.Context, op, spreadsheetID, sheetName string) (int64, error) {
	ids, err := s.sheetIDs(ctx, op, spreadsheetID)
	if err != nil {
		return 0, err
	}
	id, ok := ids[sheetName]
	if !ok {
		return 0, notFound(spreadsheetID, sheetName)
	}
	return id, nil
}

// sheetIDs maps every sheet title in the spreadsheet to its id. Titles are
// unique within a spreadsheet.
func (s *Service) sheetIDs(ctx context.Context, op, spreadsheetID string) (map[string]int64, error) {
	props, err := s.client.SheetProperties(ctx, spreadsheetID)
	if err != nil {
		return nil, s.fail(ctx, op, err, logger.String("spreadsheet_id", spreadsheetID))
	}
	ids := make(map[string]int64, len(props))
	for _, p := range props {
		ids[p.Title] = p.SheetId
	}
	return ids, nil
}

// fail logs an upstream failure and hands err back untouched.
func (s *Service) fail(ctx context.Context, op string, err error, fields ...logger.Field) error {
	fields = append([]logger.Field{logger.String("operation", op)}, fields...)
	fields = append(fields, logger.Error(err))
	s.logger.Error(ctx, op+" failed", fields...)
	return err
}

func notFound(spreadsheetID, sheetName string) error {
	return fmt.Errorf("%w: sheet %s not found in spreadsheet %s", ErrSheetNotFound, sheetName, spreadsheetID)
}

func requireID(spreadsheetID string) error {
	if strings.TrimSpace(spreadsheetID) == "" {
		return fmt.Errorf("%w: spreadsheetId is required", ErrInvalidPayload)
	}
	return nil
}

func requireSheet(spreadsheetID, sheetName string) error {
	if err := requireID(spreadsheetID); err != nil {
		return err
	}
	if strings.TrimSpace(sheetName) == "" {
		return fmt.Errorf("%w: sheetName is required", ErrInvalidPayload)
	}
	return nil
}

func headerRow(values []string) *sheets.RowData {
	cells := make([]*sheets.CellData, 0, len(values))
	for _, v := range values {
		cells = append(cells, &sheets.CellData{
			UserEnteredValue: &sheets.ExtendedValue{StringValue: &v},
		})
	}
	return &sheets.RowData{Values: cells}
}

// freeSheetID picks an id no sheet in ids uses. Sheet ids are non-negative
// int32 values.
func freeSheetID(ids map[string]int64) int64 {
	used := make(map[int64]struct{}, len(ids))
	var highest int64
	for _, id := range ids {
		used[id] = struct{}{}
		highest = max(highest, id)
	}
	if highest < math.MaxInt32 {
		return highest + 1
	}
	for id := int64(1); ; id++ {
		if _, ok := used[id]; !ok {
			return id
		}
	}
}

// wholeSheetProtections returns the protected ranges of sheet that cover the
// entire sheet rather than a range or a named range.
func wholeSheetProtections(sheet *sheets.Sheet) []*sheets.ProtectedRange {
	var out []*sheets.ProtectedRange
	for _, pr := range sheet.ProtectedRanges {
		if pr == nil || pr.NamedRangeId != "" || pr.Range == nil {
			continue
		}
		r := pr.Range
		if r.SheetId != sheet.Properties.SheetId {
			continue
		}
		if r.StartRowIndex != 0 || r.EndRowIndex != 0 || r.StartColumnIndex != 0 || r.EndColumnIndex != 0 {
			continue
		}
		out = append(out, pr)
	}
	return out
}
