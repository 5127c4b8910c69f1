// Package gsheets is the upstream adapter over the Google Sheets v4 and
// Drive v3 APIs. Every call is timed and counted per operation. Errors are
// returned as the client libraries produced them.
package gsheets

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/okian/sheetbridge/pkg/logger"
	"github.com/okian/sheetbridge/pkg/metrics"
)

// Upstream operation names, used as metric labels and log fields.
const (
	OpCreateSpreadsheet = "spreadsheets.create"
	OpDeleteSpreadsheet = "drive.files.delete"
	OpGetValues         = "values.get"
	OpBatchUpdateValues = "values.batchUpdate"
	OpBatchClearValues  = "values.batchClear"
	OpGetSheets         = "spreadsheets.get"
	OpBatchUpdate       = "spreadsheets.batchUpdate"
)

// Field masks for metadata lookups. Title matching needs only properties;
// protection upserts also need the existing protected ranges.
const (
	sheetPropertiesMask = "sheets.properties"
	sheetProtectionMask = "sheets(properties,protectedRanges)"
)

// Client is the set of upstream calls the service layer relies on.
type Client interface {
	CreateSpreadsheet(ctx context.Context, spreadsheet *sheets.Spreadsheet) (*sheets.Spreadsheet, error)
	DeleteSpreadsheet(ctx context.Context, spreadsheetID string) error
	GetValues(ctx context.Context, spreadsheetID, rng string) (*sheets.ValueRange, error)
	BatchUpdateValues(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateValuesRequest) (*sheets.BatchUpdateValuesResponse, error)
	BatchClearValues(ctx context.Context, spreadsheetID string, req *sheets.BatchClearValuesRequest) (*sheets.BatchClearValuesResponse, error)
	SheetProperties(ctx context.Context, spreadsheetID string) ([]*sheets.SheetProperties, error)
	SheetProtections(ctx context.Context, spreadsheetID string) ([]*sheets.Sheet, error)
	BatchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateSpreadsheetRequest) (*sheets.BatchUpdateSpreadsheetResponse, error)
}

// GoogleClient implements Client with the official client libraries.
type GoogleClient struct {
	sheets *sheets.Service
	drive  *drive.Service

	sheetsEndpoint string
	driveEndpoint  string
	timeout        time.Duration
	logger         logger.Logger
}

var _ Client = (*GoogleClient)(nil)

// New builds a GoogleClient. httpClient is expected to authenticate its
// requests, typically one returned by auth.Manager.Client.
func New(ctx context.Context, httpClient *http.Client, opts ...Option) (*GoogleClient, error) {
	if httpClient == nil {
		return nil, ErrNoHTTPClient
	}

	c := &GoogleClient{}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}

	sheetsOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.sheetsEndpoint != "" {
		sheetsOpts = append(sheetsOpts, option.WithEndpoint(c.sheetsEndpoint))
	}
	sheetsSvc, err := sheets.NewService(ctx, sheetsOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: sheets: %w", ErrInitService, err)
	}

	driveOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.driveEndpoint != "" {
		driveOpts = append(driveOpts, option.WithEndpoint(c.driveEndpoint))
	}
	driveSvc, err := drive.NewService(ctx, driveOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: drive: %w", ErrInitService, err)
	}

	c.sheets = sheetsSvc
	c.drive = driveSvc
	return c, nil
}

// CreateSpreadsheet calls spreadsheets.create.
func (c *GoogleClient) CreateSpreadsheet(ctx context.Context, spreadsheet *sheets.Spreadsheet) (*sheets.Spreadsheet, error) {
	var out *sheets.Spreadsheet
	err := c.do(ctx, OpCreateSpreadsheet, func(ctx context.Context) (err error) {
		out, err = c.sheets.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
		return err
	})
	return out, err
}

// DeleteSpreadsheet removes the spreadsheet file through Drive. Sheets itself
// has no way to delete a whole spreadsheet.
func (c *GoogleClient) DeleteSpreadsheet(ctx context.Context, spreadsheetID string) error {
	return c.do(ctx, OpDeleteSpreadsheet, func(ctx context.Context) error {
		return c.drive.Files.Delete(spreadsheetID).SupportsAllDrives(true).Context(ctx).Do()
	})
}

// GetValues calls values.get on rng.
func (c *GoogleClient) GetValues(ctx context.Context, spreadsheetID, rng string) (*sheets.ValueRange, error) {
	var out *sheets.ValueRange
	err := c.do(ctx, OpGetValues, func(ctx context.Context) (err error) {
		out, err = c.sheets.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
		return err
	})
	return out, err
}

// BatchUpdateValues calls values.batchUpdate.
func (c *GoogleClient) BatchUpdateValues(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateValuesRequest) (*sheets.BatchUpdateValuesResponse, error) {
	var out *sheets.BatchUpdateValuesResponse
	err := c.do(ctx, OpBatchUpdateValues, func(ctx context.Context) (err error) {
		out, err = c.sheets.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
		return err
	})
	return out, err
}

// BatchClearValues calls values.batchClear.
func (c *GoogleClient) BatchClearValues(ctx context.Context, spreadsheetID string, req *sheets.BatchClearValuesRequest) (*sheets.BatchClearValuesResponse, error) {
	var out *sheets.BatchClearValuesResponse
	err := c.do(ctx, OpBatchClearValues, func(ctx context.Context) (err error) {
		out, err = c.sheets.Spreadsheets.Values.BatchClear(spreadsheetID, req).Context(ctx).Do()
		return err
	})
	return out, err
}

// SheetProperties fetches the properties of every sheet in the spreadsheet.
func (c *GoogleClient) SheetProperties(ctx context.Context, spreadsheetID string) ([]*sheets.SheetProperties, error) {
	var resp *sheets.Spreadsheet
	err := c.do(ctx, OpGetSheets, func(ctx context.Context) (err error) {
		resp, err = c.sheets.Spreadsheets.Get(spreadsheetID).Fields(sheetPropertiesMask).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	props := make([]*sheets.SheetProperties, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s != nil && s.Properties != nil {
			props = append(props, s.Properties)
		}
	}
	return props, nil
}

// SheetProtections fetches every sheet with its properties and protected
// ranges.
func (c *GoogleClient) SheetProtections(ctx context.Context, spreadsheetID string) ([]*sheets.Sheet, error) {
	var resp *sheets.Spreadsheet
	err := c.do(ctx, OpGetSheets, func(ctx context.Context) (err error) {
		resp, err = c.sheets.Spreadsheets.Get(spreadsheetID).Fields(sheetProtectionMask).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]*sheets.Sheet, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s != nil && s.Properties != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// BatchUpdate calls spreadsheets.batchUpdate.
func (c *GoogleClient) BatchUpdate(ctx context.Context, spreadsheetID string, req *sheets.BatchUpdateSpreadsheetRequest) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	var out *sheets.BatchUpdateSpreadsheetResponse
	err := c.do(ctx, OpBatchUpdate, func(ctx context.Context) (err error) {
		out, err = c.sheets.Spreadsheets.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
		return err
	})
	return out, err
}

// do runs one upstream call under the configured timeout and records it.
func (c *GoogleClient) do(ctx context.Context, op string, call func(context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	err := call(ctx)
	elapsed := time.Since(start)
	metrics.RecordUpstreamCall(op, float64(elapsed.Milliseconds()))

	if err != nil {
		status := "error"
		if code, ok := UpstreamStatus(err); ok {
			status = strconv.Itoa(code)
		}
		metrics.RecordUpstreamError(op, status)
		c.logger.Debug(ctx, "upstream call failed",
			logger.String("operation", op),
			logger.String("status", status),
			logger.Duration("elapsed", elapsed),
			logger.Error(err),
		)
	}
	return err
}
