// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/sheets/v4"

	"github.com/okian/sheetbridge/internal/adapters/gsheets"
	service "github.com/okian/sheetbridge/internal/app"
	"github.com/okian/sheetbridge/internal/auth"
	"github.com/okian/sheetbridge/internal/domain/query"
	"github.com/okian/sheetbridge/internal/domain/types"
	"github.com/okian/sheetbridge/pkg/logger"
)

// APIPrefix is the path prefix of every spreadsheet route.
const APIPrefix = "/api"

// maxBodyBytes bounds request bodies read by handlers.
const maxBodyBytes = 10 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateWorksheet(ctx context.Context, title string, headerValues []string) (*sheets.Spreadsheet, error)
	DeleteWorksheet(ctx context.Context, spreadsheetID string) (*types.DeleteResult, error)

	FetchSheetData(ctx context.Context, spreadsheetID, sheetName string) (types.Grid, error)
	CreateSheet(ctx context.Context, spreadsheetID, sheetName string, headerValues []string) (*sheets.BatchUpdateSpreadsheetResponse, error)
	UpdateSheetData(ctx context.Context, spreadsheetID, sheetName string, grid types.Grid) (*sheets.BatchUpdateValuesResponse, error)
	InsertSheetData(ctx context.Context, spreadsheetID, sheetName string, grid types.Grid) (*sheets.BatchUpdateValuesResponse, error)
	UpdateSheetEntry(ctx context.Context, spreadsheetID, sheetName, rng string, grid types.Grid) (*sheets.BatchUpdateValuesResponse, error)
	DeleteSheetEntry(ctx context.Context, spreadsheetID, sheetName, rng string) (*sheets.BatchClearValuesResponse, error)

	DeleteSheet(ctx context.Context, spreadsheetID, sheetName string) (*sheets.BatchUpdateSpreadsheetResponse, error)
	UpdateSheetProperties(ctx context.Context, spreadsheetID, sheetName string, props types.SheetProperties) (*sheets.BatchUpdateSpreadsheetResponse, error)
	SetSheetPermissions(ctx context.Context, spreadsheetID, sheetName string, perms types.Permissions) (*sheets.BatchUpdateSpreadsheetResponse, error)
	ApplyFormatting(ctx context.Context, spreadsheetID, sheetName, rng string, format *sheets.CellFormat) (*sheets.BatchUpdateSpreadsheetResponse, error)

	PerformSheetOperation(ctx context.Context, spreadsheetID, operation string, queries []query.Parsed) (*sheets.BatchUpdateSpreadsheetResponse, error)
}

// CredentialReporter exposes the upstream credential state for /healthz.
type CredentialReporter interface {
	Status() auth.Status
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler     *HealthHandler
	worksheetsHandler *WorksheetsHandler
	sheetsHandler     *SheetsHandler
	valuesHandler     *ValuesHandler
	operationsHandler *OperationsHandler
	logger            logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, creds CredentialReporter, log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		healthHandler:     NewHealthHandler(creds),
		worksheetsHandler: NewWorksheetsHandler(deps, log),
		sheetsHandler:     NewSheetsHandler(deps, log),
		valuesHandler:     NewValuesHandler(deps, log),
		operationsHandler: NewOperationsHandler(deps, log),
		logger:            log,
	}
}

// Register attaches all HTTP routes to r.
//
// gorilla/mux tries routes in registration order, so literal segments
// (operations, properties, formatting, permissions) are registered before the
// parameterised routes of the same shape.
func (s *Server) Register(_ context.Context, r *mux.Router) {
	r.Use(RequestIDMiddleware, AccessLogMiddleware(s.logger))

	r.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	r.Handle("/metrics", MetricsHandler()).Methods(http.MethodGet)

	a := r.PathPrefix(APIPrefix).Subrouter()

	a.HandleFunc("/worksheets", MetricsMiddleware(s.worksheetsHandler.HandleCreateWorksheet, "create_worksheet")).Methods(http.MethodPost)
	a.HandleFunc("/worksheets/{spreadsheetId}", MetricsMiddleware(s.worksheetsHandler.HandleDeleteWorksheet, "delete_worksheet")).Methods(http.MethodDelete)

	a.HandleFunc("/sheets/{spreadsheetId}/operations", MetricsMiddleware(s.operationsHandler.HandlePerformSheetOperation, "perform_sheet_operation")).Methods(http.MethodPost)
	a.HandleFunc("/sheets/{spreadsheetId}", MetricsMiddleware(s.sheetsHandler.HandleCreateSheet, "create_sheet")).Methods(http.MethodPost)

	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}/properties", MetricsMiddleware(s.sheetsHandler.HandleUpdateSheetProperties, "update_sheet_properties")).Methods(http.MethodPut)
	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}/formatting", MetricsMiddleware(s.sheetsHandler.HandleApplyFormatting, "apply_formatting")).Methods(http.MethodPost)
	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}/permissions", MetricsMiddleware(s.sheetsHandler.HandleSetSheetPermissions, "set_sheet_permissions")).Methods(http.MethodPost)

	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}", MetricsMiddleware(s.valuesHandler.HandleFetchSheetData, "fetch_sheet_data")).Methods(http.MethodGet)
	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}", MetricsMiddleware(ValidateGrid(s.valuesHandler.HandleUpdateSheetData), "update_sheet_data")).Methods(http.MethodPut)
	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}", MetricsMiddleware(s.sheetsHandler.HandleDeleteSheet, "delete_sheet")).Methods(http.MethodDelete)
	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}", MetricsMiddleware(ValidateGrid(s.valuesHandler.HandleInsertSheetData), "insert_sheet_data")).Methods(http.MethodPost)

	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}/{range}", MetricsMiddleware(ValidateGrid(s.valuesHandler.HandleUpdateSheetEntry), "update_sheet_entry")).Methods(http.MethodPut)
	a.HandleFunc("/sheets/{spreadsheetId}/{sheetName}/{range}", MetricsMiddleware(s.valuesHandler.HandleDeleteSheetEntry, "delete_sheet_entry")).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", NewKind("api.route", ErrNotFound))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind("api.route", ErrBadRequest))
	})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError is the terminal error stage. Local kinds keep their
// status, upstream replies pass through with the upstream status and message,
// and everything else is a 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logger.Logger, op string, err error) {
	if code, ok := service.StatusCode(err); ok {
		kind := ErrBadRequest
		name := "bad_request"
		if code == http.StatusNotFound {
			kind, name = ErrNotFound, "not_found"
		}
		writeError(w, code, name, WrapKind(op, kind, err))
		return
	}

	if code, ok := gsheets.UpstreamStatus(err); ok {
		var gerr *googleapi.Error
		msg := err.Error()
		if errors.As(err, &gerr) && gerr.Message != "" {
			msg = gerr.Message
		}
		writeError(w, code, "upstream_error", WrapKind(op, ErrUpstream, errors.New(msg)))
		return
	}

	switch {
	case errors.Is(err, auth.ErrRefreshFailed), errors.Is(err, auth.ErrNoRefreshToken):
		log.Error(ctx, "upstream credential unavailable", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusBadGateway, "credential_unavailable", WrapKind(op, ErrCredentials, err))
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "upstream_timeout", WrapKind(op, ErrTimeout, err))
	default:
		log.Error(ctx, "request failed", logger.String("op", op), logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
	}
}

// decodeJSON reads a JSON object body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}
