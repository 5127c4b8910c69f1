package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"slices"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"

	service "github.com/okian/sheetbridge/internal/app"
	"github.com/okian/sheetbridge/internal/domain/query"
	"github.com/okian/sheetbridge/internal/domain/types"
	"github.com/okian/sheetbridge/pkg/logger"
)

// fakeClient records every upstream call and answers from canned state.
type fakeClient struct {
	mu sync.Mutex

	calls      []string
	created    *sheets.Spreadsheet
	deleted    []string
	getRanges  []string
	valueReqs  []*sheets.BatchUpdateValuesRequest
	clearReqs  []*sheets.BatchClearValuesRequest
	batchReqs  []*sheets.BatchUpdateSpreadsheetRequest
	props      []*sheets.SheetProperties
	protected  map[int64][]*sheets.ProtectedRange
	nextRange  int64
	values     [][]any
	addSheetID int64
	err        error
	batchErr   error
}

func (f *fakeClient) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeClient) CreateSpreadsheet(_ context.Context, s *sheets.Spreadsheet) (*sheets.Spreadsheet, error) {
	if err := f.record("create"); err != nil {
		return nil, err
	}
	f.created = s
	return &sheets.Spreadsheet{SpreadsheetId: "new-id", Properties: s.Properties}, nil
}

func (f *fakeClient) DeleteSpreadsheet(_ context.Context, id string) error {
	if err := f.record("delete"); err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeClient) GetValues(_ context.Context, _, rng string) (*sheets.ValueRange, error) {
	if err := f.record("get"); err != nil {
		return nil, err
	}
	f.getRanges = append(f.getRanges, rng)
	return &sheets.ValueRange{Range: rng, Values: f.values}, nil
}

func (f *fakeClient) BatchUpdateValues(_ context.Context, id string, req *sheets.BatchUpdateValuesRequest) (*sheets.BatchUpdateValuesResponse, error) {
	if err := f.record("values.batchUpdate"); err != nil {
		return nil, err
	}
	f.valueReqs = append(f.valueReqs, req)
	return &sheets.BatchUpdateValuesResponse{SpreadsheetId: id}, nil
}

func (f *fakeClient) BatchClearValues(_ context.Context, id string, req *sheets.BatchClearValuesRequest) (*sheets.BatchClearValuesResponse, error) {
	if err := f.record("values.batchClear"); err != nil {
		return nil, err
	}
	f.clearReqs = append(f.clearReqs, req)
	return &sheets.BatchClearValuesResponse{SpreadsheetId: id, ClearedRanges: req.Ranges}, nil
}

func (f *fakeClient) SheetProperties(_ context.Context, _ string) ([]*sheets.SheetProperties, error) {
	if err := f.record("get.properties"); err != nil {
		return nil, err
	}
	return f.props, nil
}

func (f *fakeClient) SheetProtections(_ context.Context, _ string) ([]*sheets.Sheet, error) {
	if err := f.record("get.protections"); err != nil {
		return nil, err
	}
	out := make([]*sheets.Sheet, 0, len(f.props))
	for _, p := range f.props {
		out = append(out, &sheets.Sheet{Properties: p, ProtectedRanges: f.protected[p.SheetId]})
	}
	return out, nil
}

// BatchUpdate applies the requests it understands to the canned state. Like
// upstream, a failing batch applies none of them.
func (f *fakeClient) BatchUpdate(_ context.Context, id string, req *sheets.BatchUpdateSpreadsheetRequest) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	if err := f.record("batchUpdate"); err != nil {
		return nil, err
	}
	f.batchReqs = append(f.batchReqs, req)
	if f.batchErr != nil {
		return nil, f.batchErr
	}

	resp := &sheets.BatchUpdateSpreadsheetResponse{SpreadsheetId: id}
	for _, r := range req.Requests {
		reply := &sheets.Response{}
		switch {
		case r.AddSheet != nil:
			sheetID := f.addSheetID
			if slices.Contains(r.AddSheet.Properties.ForceSendFields, "SheetId") {
				sheetID = r.AddSheet.Properties.SheetId
			}
			props := &sheets.SheetProperties{SheetId: sheetID, Title: r.AddSheet.Properties.Title}
			f.props = append(f.props, props)
			reply.AddSheet = &sheets.AddSheetResponse{Properties: props}
		case r.AddProtectedRange != nil:
			pr := *r.AddProtectedRange.ProtectedRange
			f.nextRange++
			pr.ProtectedRangeId = f.nextRange
			f.protect(pr.Range.SheetId, &pr)
			reply.AddProtectedRange = &sheets.AddProtectedRangeResponse{ProtectedRange: &pr}
		case r.UpdateProtectedRange != nil:
			in := r.UpdateProtectedRange.ProtectedRange
			for _, prs := range f.protected {
				for _, pr := range prs {
					if pr.ProtectedRangeId == in.ProtectedRangeId {
						pr.Description, pr.WarningOnly, pr.Editors = in.Description, in.WarningOnly, in.Editors
					}
				}
			}
		case r.DeleteProtectedRange != nil:
			for sheetID, prs := range f.protected {
				f.protected[sheetID] = slices.DeleteFunc(prs, func(pr *sheets.ProtectedRange) bool {
					return pr.ProtectedRangeId == r.DeleteProtectedRange.ProtectedRangeId
				})
			}
		}
		resp.Replies = append(resp.Replies, reply)
	}
	return resp, nil
}

func (f *fakeClient) protect(sheetID int64, pr *sheets.ProtectedRange) {
	if f.protected == nil {
		f.protected = map[int64][]*sheets.ProtectedRange{}
	}
	f.protected[sheetID] = append(f.protected[sheetID], pr)
}

func (f *fakeClient) mutatingCalls() int {
	n := 0
	for _, c := range f.calls {
		switch c {
		case "get", "get.properties", "get.protections":
		default:
			n++
		}
	}
	return n
}

func newFake() *fakeClient {
	return &fakeClient{
		props: []*sheets.SheetProperties{
			{SheetId: 0, Title: "Sheet1"},
			{SheetId: 42, Title: "Data"},
			{SheetId: 99, Title: "Sheet3"},
		},
		addSheetID: 7,
	}
}

func newService(f *fakeClient) *service.Service {
	return service.New(f, service.WithLogger(logger.Nop()))
}

func asJSON(v any) string {
	b, err := json.Marshal(v)
	So(err, ShouldBeNil)
	return string(b)
}

func TestService_CreateWorksheet(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFake()
		svc := newService(f)
		ctx := context.Background()

		Convey("When creating a worksheet with header values", func() {
			out, err := svc.CreateWorksheet(ctx, "Budget", []string{"Name", "Amount"})

			Convey("Then the first sheet should carry the header row", func() {
				So(err, ShouldBeNil)
				So(out.SpreadsheetId, ShouldEqual, "new-id")
				So(f.created.Properties.Title, ShouldEqual, "Budget")
				So(f.created.Sheets, ShouldHaveLength, 1)
				So(f.created.Sheets[0].Properties.Title, ShouldEqual, "Sheet1")

				cells := f.created.Sheets[0].Data[0].RowData[0].Values
				So(cells, ShouldHaveLength, 2)
				So(*cells[0].UserEnteredValue.StringValue, ShouldEqual, "Name")
				So(*cells[1].UserEnteredValue.StringValue, ShouldEqual, "Amount")
			})
		})

		Convey("When creating a worksheet without header values", func() {
			_, err := svc.CreateWorksheet(ctx, "Empty", nil)

			Convey("Then no sheets should be sent", func() {
				So(err, ShouldBeNil)
				So(f.created.Sheets, ShouldBeEmpty)
			})
		})

		Convey("When the title is empty", func() {
			_, err := svc.CreateWorksheet(ctx, "", nil)

			Convey("Then it should be left for upstream to name", func() {
				So(err, ShouldBeNil)
				So(f.calls, ShouldResemble, []string{"create"})
				So(f.created.Properties.Title, ShouldBeEmpty)
				So(asJSON(f.created), ShouldNotContainSubstring, `"title"`)
			})
		})
	})
}

func TestService_DeleteWorksheet(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFake()
		svc := newService(f)

		Convey("When deleting a worksheet", func() {
			out, err := svc.DeleteWorksheet(context.Background(), "sp-1")

			Convey("Then the file should be deleted and acknowledged", func() {
				So(err, ShouldBeNil)
				So(f.deleted, ShouldResemble, []string{"sp-1"})
				So(out, ShouldResemble, &types.DeleteResult{SpreadsheetID: "sp-1", Deleted: true})
			})
		})
	})
}

func TestService_FetchSheetData(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFake()
		svc := newService(f)
		ctx := context.Background()

		Convey("When fetching a sheet with data", func() {
			f.values = [][]any{{"a", "b"}, {"1"}}
			grid, err := svc.FetchSheetData(ctx, "sp-1", "Data")

			Convey("Then the full column span should be requested", func() {
				So(err, ShouldBeNil)
				So(f.getRanges, ShouldResemble, []string{"Data!A:ZZ"})
				So(grid, ShouldHaveLength, 2)
				So(grid[1], ShouldResemble, []any{"1"})
			})
		})

		Convey("When fetching an empty sheet", func() {
			grid, err := svc.FetchSheetData(ctx, "sp-1", "Data")

			Convey("Then an empty, non-nil grid should be returned", func() {
				So(err, ShouldBeNil)
				So(grid, ShouldNotBeNil)
				So(grid, ShouldBeEmpty)
			})
		})
	})
}

func TestService_CreateSheet(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFake()
		svc := newService(f)
		ctx := context.Background()

		Convey("When adding a sheet with header values", func() {
			resp, err := svc.CreateSheet(ctx, "sp-1", "New", []string{"h1", "h2"})

			Convey("Then the sheet and its headers should go out in one batch under a free id", func() {
				So(err, ShouldBeNil)
				So(f.calls, ShouldResemble, []string{"get.properties", "batchUpdate"})
				So(f.batchReqs, ShouldHaveLength, 1)
				reqs := f.batchReqs[0].Requests
				So(reqs, ShouldHaveLength, 2)

				add := reqs[0].AddSheet.Properties
				So(add.Title, ShouldEqual, "New")
				So(add.SheetId, ShouldEqual, 100)

				update := reqs[1].UpdateCells
				So(update.Start.SheetId, ShouldEqual, 100)
				So(update.Fields, ShouldEqual, "*")
				So(*update.Rows[0].Values[1].UserEnteredValue.StringValue, ShouldEqual, "h2")
				So(resp.Replies, ShouldHaveLength, 2)
				So(resp.Replies[0].AddSheet.Properties.SheetId, ShouldEqual, 100)
			})
		})

		Convey("When the spreadsheet has no sheets yet", func() {
			f.props = nil
			_, err := svc.CreateSheet(ctx, "sp-1", "New", []string{"h1"})

			Convey("Then id 1 should be sent explicitly on both requests", func() {
				So(err, ShouldBeNil)
				So(asJSON(f.batchReqs[0].Requests[0]), ShouldContainSubstring, `"sheetId":1`)
				So(asJSON(f.batchReqs[0].Requests[1]), ShouldContainSubstring, `"sheetId":1`)
				So(asJSON(f.batchReqs[0].Requests[1]), ShouldContainSubstring, `"rowIndex":0`)
			})
		})

		Convey("When the highest id is taken at the int32 ceiling", func() {
			f.props = append(f.props, &sheets.SheetProperties{SheetId: math.MaxInt32, Title: "Last"})
			_, err := svc.CreateSheet(ctx, "sp-1", "New", []string{"h1"})

			Convey("Then the lowest unused positive id should be chosen", func() {
				So(err, ShouldBeNil)
				So(f.batchReqs[0].Requests[0].AddSheet.Properties.SheetId, ShouldEqual, 1)
			})
		})

		Convey("When writing the batch fails upstream", func() {
			f.batchErr = &googleapi.Error{Code: http.StatusBadRequest, Message: "Invalid requests[1].updateCells"}
			before := len(f.props)
			_, err := svc.CreateSheet(ctx, "sp-1", "New", []string{"h1"})

			Convey("Then no header-less sheet should be left behind", func() {
				So(err, ShouldEqual, f.batchErr)
				So(f.batchReqs, ShouldHaveLength, 1)
				So(f.batchReqs[0].Requests[0].AddSheet, ShouldNotBeNil)
				So(f.batchReqs[0].Requests[1].UpdateCells, ShouldNotBeNil)
				So(f.props, ShouldHaveLength, before)
			})
		})

		Convey("When adding a sheet without header values", func() {
			_, err := svc.CreateSheet(ctx, "sp-1", "New", nil)

			Convey("Then only the addSheet request should be sent", func() {
				So(err, ShouldBeNil)
				So(f.calls, ShouldResemble, []string{"batchUpdate"})
				So(f.batchReqs[0].Requests, ShouldHaveLength, 1)
				So(f.batchReqs[0].Requests[0].AddSheet.Properties.ForceSendFields, ShouldBeEmpty)
			})
		})
	})
}

func TestService_WriteAndClear(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFake()
		svc := newService(f)
		ctx := context.Background()
		grid := types.Grid{{"a", 1.0}, {"b", 2.0}}

		Convey("When updating sheet data", func() {
			_, err := svc.UpdateSheetData(ctx, "sp-1", "Data", grid)

			Convey("Then the whole column span should be written raw", func() {
				So(err, ShouldBeNil)
				So(f.valueReqs[0].ValueInputOption, ShouldEqual, "RAW")
				So(f.valueReqs[0].Data[0].Range, ShouldEqual, "Data!A:ZZ")
				So(f.valueReqs[0].Data[0].Values, ShouldHaveLength, 2)
			})
		})

		Convey("When inserting sheet data", func() {
			_, err := svc.InsertSheetData(ctx, "sp-1", "Data", grid)

			Convey("Then the whole column span should be written", func() {
				So(err, ShouldBeNil)
				So(f.valueReqs[0].Data[0].Range, ShouldEqual, "Data!A:ZZ")
			})
		})

		Convey("When updating one entry", func() {
			_, err := svc.UpdateSheetEntry(ctx, "sp-1", "Data", "B2:C3", grid)

			Convey("Then the qualified range should be written", func() {
				So(err, ShouldBeNil)
				So(f.valueReqs[0].Data[0].Range, ShouldEqual, "Data!B2:C3")
			})
		})

		Convey("When clearing one entry", func() {
			resp, err := svc.DeleteSheetEntry(ctx, "sp-1", "Data", "B2:C3")

			Convey("Then the qualified range should be cleared", func() {
				So(err, ShouldBeNil)
				So(f.clearReqs[0].Ranges, ShouldResemble, []string{"Data!B2:C3"})
				So(resp.ClearedRanges, ShouldResemble, []string{"Data!B2:C3"})
			})
		})

		Convey("When the range is missing", func() {
			_, err := svc.DeleteSheetEntry(ctx, "sp-1", "Data", "")
			So(errors.Is(err, service.ErrInvalidPayload), ShouldBeTrue)
			So(f.calls, ShouldBeEmpty)
		})
	})
}

func TestService_LookupThenAct(t *testing.T) {
	Convey("Given a spreadsheet without the requested sheet", t, func() {
		f := newFake()
		svc := newService(f)
		ctx := context.Background()

		checkNotFoundAfter := func(lookup string, err error) {
			So(errors.Is(err, service.ErrSheetNotFound), ShouldBeTrue)
			code, ok := service.StatusCode(err)
			So(ok, ShouldBeTrue)
			So(code, ShouldEqual, http.StatusNotFound)
			So(f.mutatingCalls(), ShouldEqual, 0)
			So(f.calls, ShouldResemble, []string{lookup})
		}
		checkNotFound := func(err error) { checkNotFoundAfter("get.properties", err) }

		Convey("When deleting it", func() {
			_, err := svc.DeleteSheet(ctx, "sp-1", "Missing")
			checkNotFound(err)
		})

		Convey("When updating its properties", func() {
			_, err := svc.UpdateSheetProperties(ctx, "sp-1", "Missing", types.SheetProperties{Title: "x"})
			checkNotFound(err)
		})

		Convey("When setting its permissions", func() {
			_, err := svc.SetSheetPermissions(ctx, "sp-1", "Missing", types.Permissions{Users: []string{"a@b.c"}})
			checkNotFoundAfter("get.protections", err)
		})

		Convey("When formatting it", func() {
			_, err := svc.ApplyFormatting(ctx, "sp-1", "Missing", "A1", &sheets.CellFormat{})
			checkNotFound(err)
		})
	})

	Convey("Given a spreadsheet with the requested sheet", t, func() {
		f := newFake()
		svc := newService(f)
		ctx := context.Background()

		Convey("When deleting the first sheet", func() {
			_, err := svc.DeleteSheet(ctx, "sp-1", "Sheet1")

			Convey("Then its id of 0 should be sent explicitly", func() {
				So(err, ShouldBeNil)
				So(f.batchReqs, ShouldHaveLength, 1)
				So(asJSON(f.batchReqs[0].Requests[0]), ShouldEqual, `{"deleteSheet":{"sheetId":0}}`)
			})
		})

		Convey("When updating some properties", func() {
			_, err := svc.UpdateSheetProperties(ctx, "sp-1", "Data", types.SheetProperties{
				Title:    "Renamed",
				TabColor: &sheets.Color{Red: 1},
			})

			Convey("Then the field mask should list only the provided keys", func() {
				So(err, ShouldBeNil)
				req := f.batchReqs[0].Requests[0].UpdateSheetProperties
				So(req.Fields, ShouldEqual, "title,tabColor")
				So(req.Properties.SheetId, ShouldEqual, 42)
				So(req.Properties.Title, ShouldEqual, "Renamed")
			})
		})

		Convey("When updating no properties", func() {
			_, err := svc.UpdateSheetProperties(ctx, "sp-1", "Data", types.SheetProperties{})

			Convey("Then it should be rejected before any upstream call", func() {
				So(errors.Is(err, service.ErrInvalidPayload), ShouldBeTrue)
				So(f.calls, ShouldBeEmpty)
			})
		})

		Convey("When setting editor permissions", func() {
			_, err := svc.SetSheetPermissions(ctx, "sp-1", "Data", types.Permissions{
				Users:       []string{"a@example.com"},
				Groups:      []string{"team@example.com"},
				Description: "locked",
			})

			Convey("Then the whole sheet should be protected with those editors", func() {
				So(err, ShouldBeNil)
				pr := f.batchReqs[0].Requests[0].AddProtectedRange.ProtectedRange
				So(pr.Range.SheetId, ShouldEqual, 42)
				So(pr.Range.StartRowIndex, ShouldEqual, 0)
				So(pr.Range.EndRowIndex, ShouldEqual, 0)
				So(pr.Editors.Users, ShouldResemble, []string{"a@example.com"})
				So(pr.Editors.Groups, ShouldResemble, []string{"team@example.com"})
				So(pr.Description, ShouldEqual, "locked")
			})
		})

		Convey("When setting warning-only protection", func() {
			_, err := svc.SetSheetPermissions(ctx, "sp-1", "Data", types.Permissions{
				Users:       []string{"a@example.com"},
				WarningOnly: true,
			})

			Convey("Then no editors should be sent", func() {
				So(err, ShouldBeNil)
				pr := f.batchReqs[0].Requests[0].AddProtectedRange.ProtectedRange
				So(pr.WarningOnly, ShouldBeTrue)
				So(pr.Editors, ShouldBeNil)
			})
		})

		Convey("When setting permissions twice", func() {
			_, err := svc.SetSheetPermissions(ctx, "sp-1", "Data", types.Permissions{
				Users:       []string{"a@example.com"},
				Description: "first",
			})
			So(err, ShouldBeNil)
			_, err = svc.SetSheetPermissions(ctx, "sp-1", "Data", types.Permissions{
				WarningOnly: true,
				Description: "second",
			})

			Convey("Then one protection should remain, carrying the second settings", func() {
				So(err, ShouldBeNil)
				So(f.protected[42], ShouldHaveLength, 1)
				So(f.protected[42][0].Description, ShouldEqual, "second")
				So(f.protected[42][0].WarningOnly, ShouldBeTrue)
				So(f.protected[42][0].Editors, ShouldBeNil)

				So(f.batchReqs, ShouldHaveLength, 2)
				So(f.batchReqs[1].Requests, ShouldHaveLength, 1)
				upd := f.batchReqs[1].Requests[0].UpdateProtectedRange
				So(upd, ShouldNotBeNil)
				So(upd.Fields, ShouldEqual, "description,warningOnly,editors")
				So(upd.ProtectedRange.ProtectedRangeId, ShouldEqual, f.protected[42][0].ProtectedRangeId)
				So(upd.ProtectedRange.Range, ShouldBeNil)
			})
		})

		Convey("When the sheet already carries duplicate whole-sheet protections", func() {
			f.protect(42, &sheets.ProtectedRange{ProtectedRangeId: 0, Range: &sheets.GridRange{SheetId: 42}})
			f.protect(42, &sheets.ProtectedRange{ProtectedRangeId: 11, Range: &sheets.GridRange{SheetId: 42}})
			f.protect(42, &sheets.ProtectedRange{ProtectedRangeId: 12, Range: &sheets.GridRange{SheetId: 42, EndRowIndex: 3}})
			f.protect(42, &sheets.ProtectedRange{ProtectedRangeId: 13, NamedRangeId: "nr", Range: &sheets.GridRange{SheetId: 42}})

			_, err := svc.SetSheetPermissions(ctx, "sp-1", "Data", types.Permissions{Users: []string{"a@example.com"}})

			Convey("Then the first should be updated and the other whole-sheet ones deleted", func() {
				So(err, ShouldBeNil)
				reqs := f.batchReqs[0].Requests
				So(reqs, ShouldHaveLength, 2)
				So(asJSON(reqs[0]), ShouldContainSubstring, `"protectedRangeId":0`)
				So(reqs[1].DeleteProtectedRange.ProtectedRangeId, ShouldEqual, 11)

				var left []int64
				for _, pr := range f.protected[42] {
					left = append(left, pr.ProtectedRangeId)
				}
				So(left, ShouldResemble, []int64{0, 12, 13})
			})
		})

		Convey("When formatting a range", func() {
			format := &sheets.CellFormat{TextFormat: &sheets.TextFormat{Bold: true}}
			_, err := svc.ApplyFormatting(ctx, "sp-1", "Data", "A1:B2", format)

			Convey("Then a repeatCell over the resolved grid range should be sent", func() {
				So(err, ShouldBeNil)
				rc := f.batchReqs[0].Requests[0].RepeatCell
				So(rc.Fields, ShouldEqual, "userEnteredFormat")
				So(rc.Cell.UserEnteredFormat, ShouldEqual, format)
				So(rc.Range.SheetId, ShouldEqual, 42)
				So(rc.Range.StartRowIndex, ShouldEqual, 0)
				So(rc.Range.EndRowIndex, ShouldEqual, 2)
				So(rc.Range.StartColumnIndex, ShouldEqual, 0)
				So(rc.Range.EndColumnIndex, ShouldEqual, 2)
			})
		})

		Convey("When formatting a range qualified with the same sheet", func() {
			_, err := svc.ApplyFormatting(ctx, "sp-1", "Data", "Data!C3", &sheets.CellFormat{})
			So(err, ShouldBeNil)
			So(f.batchReqs[0].Requests[0].RepeatCell.Range.StartColumnIndex, ShouldEqual, 2)
		})

		Convey("When formatting a range on another sheet", func() {
			_, err := svc.ApplyFormatting(ctx, "sp-1", "Data", "Sheet1!A1", &sheets.CellFormat{})
			So(errors.Is(err, service.ErrInvalidPayload), ShouldBeTrue)
			So(f.calls, ShouldBeEmpty)
		})

		Convey("When formatting with an invalid range", func() {
			_, err := svc.ApplyFormatting(ctx, "sp-1", "Data", "B2:A1", &sheets.CellFormat{})
			So(errors.Is(err, service.ErrInvalidPayload), ShouldBeTrue)
			So(f.calls, ShouldBeEmpty)
		})

		Convey("When formatting without a format", func() {
			_, err := svc.ApplyFormatting(ctx, "sp-1", "Data", "A1", nil)
			So(errors.Is(err, service.ErrInvalidPayload), ShouldBeTrue)
		})
	})
}

func TestService_PerformSheetOperation(t *testing.T) {
	Convey("Given a service", t, func() {
		f := newFake()
		svc := newService(f)
		ctx := context.Background()

		parsed := []query.Parsed{query.Parse(query.SheetQuery{
			TargetRange: "Sheet3!A1",
			SourceSheets: []query.SourceSheet{
				{SheetName: "Sheet1", Range: "A1:A5"},
				{SheetName: "Data", Range: "B1:B5"},
			},
		})}

		Convey("When the operation is not join", func() {
			_, err := svc.PerformSheetOperation(ctx, "sp-1", "merge", parsed)

			Convey("Then it should fail without any upstream request", func() {
				So(errors.Is(err, service.ErrUnsupportedOperation), ShouldBeTrue)
				code, _ := service.StatusCode(err)
				So(code, ShouldEqual, http.StatusBadRequest)
				So(f.calls, ShouldBeEmpty)
			})
		})

		Convey("When joining", func() {
			_, err := svc.PerformSheetOperation(ctx, "sp-1", "join", parsed)

			Convey("Then a strict validation rule should be set on the target", func() {
				So(err, ShouldBeNil)
				So(f.batchReqs, ShouldHaveLength, 1)

				dv := f.batchReqs[0].Requests[0].SetDataValidation
				So(dv.Range.SheetId, ShouldEqual, 99)
				So(dv.Range.StartRowIndex, ShouldEqual, 0)
				So(dv.Range.EndRowIndex, ShouldEqual, 1)
				So(dv.Rule.Strict, ShouldBeTrue)
				So(dv.Rule.ShowCustomUi, ShouldBeTrue)
				So(dv.Rule.Condition.Type, ShouldEqual, "ONE_OF_RANGE")
				So(dv.Rule.Condition.Values[0].UserEnteredValue, ShouldEqual,
					`=QUERY({'Sheet1'!A1:A5,'Data'!B1:B5}, "select * where Col1 = Col2")`)
			})
		})

		Convey("When the target sheet does not exist", func() {
			missing := []query.Parsed{{TargetRange: "Nope!A1", SourceRanges: []string{"'Sheet1'!A1:A5"}}}
			_, err := svc.PerformSheetOperation(ctx, "sp-1", "join", missing)

			Convey("Then it should be not found with no mutating call", func() {
				So(errors.Is(err, service.ErrSheetNotFound), ShouldBeTrue)
				So(f.mutatingCalls(), ShouldEqual, 0)
			})
		})

		Convey("When the target range names no sheet", func() {
			bare := []query.Parsed{{TargetRange: "A1", SourceRanges: []string{"'Sheet1'!A1:A5"}}}
			_, err := svc.PerformSheetOperation(ctx, "sp-1", "join", bare)
			So(errors.Is(err, service.ErrInvalidPayload), ShouldBeTrue)
			So(f.calls, ShouldBeEmpty)
		})

		Convey("When there are no queries", func() {
			_, err := svc.PerformSheetOperation(ctx, "sp-1", "join", nil)
			So(errors.Is(err, service.ErrInvalidPayload), ShouldBeTrue)
			So(f.calls, ShouldBeEmpty)
		})
	})
}

func TestService_UpstreamErrors(t *testing.T) {
	Convey("Given an upstream that rejects every call", t, func() {
		upstream := &googleapi.Error{Code: http.StatusForbidden, Message: "The caller does not have permission"}
		f := newFake()
		f.err = upstream
		svc := newService(f)
		ctx := context.Background()

		Convey("When any operation runs", func() {
			_, err1 := svc.FetchSheetData(ctx, "sp-1", "Data")
			_, err2 := svc.DeleteSheet(ctx, "sp-1", "Data")
			_, err3 := svc.DeleteWorksheet(ctx, "sp-1")

			Convey("Then the upstream error should come back unmodified", func() {
				So(err1, ShouldEqual, upstream)
				So(err2, ShouldEqual, upstream)
				So(err3, ShouldEqual, upstream)
				_, ok := service.StatusCode(err1)
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestStatusCode(t *testing.T) {
	Convey("Given local error kinds", t, func() {
		code, ok := service.StatusCode(service.ErrInvalidPayload)
		So(ok, ShouldBeTrue)
		So(code, ShouldEqual, http.StatusBadRequest)

		code, ok = service.StatusCode(service.ErrSheetNotFound)
		So(ok, ShouldBeTrue)
		So(code, ShouldEqual, http.StatusNotFound)

		_, ok = service.StatusCode(errors.New("boom"))
		So(ok, ShouldBeFalse)
	})
}
