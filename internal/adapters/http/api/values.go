package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/sheetbridge/pkg/logger"
)

// ValuesHandler handles requests that read or write cell values.
type ValuesHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewValuesHandler creates a new values handler.
func NewValuesHandler(deps Dependencies, log logger.Logger) *ValuesHandler {
	return &ValuesHandler{deps: deps, logger: log}
}

// HandleFetchSheetData handles GET /api/sheets/{spreadsheetId}/{sheetName}.
func (h *ValuesHandler) HandleFetchSheetData(w http.ResponseWriter, r *http.Request) {
	const op = "api.fetch_sheet_data"
	vars := mux.Vars(r)

	grid, err := h.deps.FetchSheetData(r.Context(), vars["spreadsheetId"], vars["sheetName"])
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// HandleUpdateSheetData handles PUT /api/sheets/{spreadsheetId}/{sheetName}.
// It expects to run behind ValidateGrid.
func (h *ValuesHandler) HandleUpdateSheetData(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_sheet_data"
	vars := mux.Vars(r)

	grid, ok := gridFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	out, err := h.deps.UpdateSheetData(r.Context(), vars["spreadsheetId"], vars["sheetName"], grid)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleInsertSheetData handles POST /api/sheets/{spreadsheetId}/{sheetName}.
// It expects to run behind ValidateGrid.
func (h *ValuesHandler) HandleInsertSheetData(w http.ResponseWriter, r *http.Request) {
	const op = "api.insert_sheet_data"
	vars := mux.Vars(r)

	grid, ok := gridFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	out, err := h.deps.InsertSheetData(r.Context(), vars["spreadsheetId"], vars["sheetName"], grid)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUpdateSheetEntry handles
// PUT /api/sheets/{spreadsheetId}/{sheetName}/{range}.
// It expects to run behind ValidateGrid.
func (h *ValuesHandler) HandleUpdateSheetEntry(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_sheet_entry"
	vars := mux.Vars(r)

	grid, ok := gridFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	out, err := h.deps.UpdateSheetEntry(r.Context(), vars["spreadsheetId"], vars["sheetName"], vars["range"], grid)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDeleteSheetEntry handles
// DELETE /api/sheets/{spreadsheetId}/{sheetName}/{range}.
func (h *ValuesHandler) HandleDeleteSheetEntry(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_sheet_entry"
	vars := mux.Vars(r)

	out, err := h.deps.DeleteSheetEntry(r.Context(), vars["spreadsheetId"], vars["sheetName"], vars["range"])
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
