package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"google.golang.org/api/sheets/v4"

	"github.com/okian/sheetbridge/internal/domain/types"
	"github.com/okian/sheetbridge/pkg/logger"
)

// SheetsHandler handles requests that add, remove or reshape a sheet.
type SheetsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewSheetsHandler creates a new sheets handler.
func NewSheetsHandler(deps Dependencies, log logger.Logger) *SheetsHandler {
	return &SheetsHandler{deps: deps, logger: log}
}

type createSheetRequest struct {
	SheetName    string   `json:"sheetName"`
	HeaderValues []string `json:"headerValues,omitempty"`
}

type formattingRequest struct {
	Range  string             `json:"range"`
	Format *sheets.CellFormat `json:"format"`
}

type permissionsRequest struct {
	Permissions *types.Permissions `json:"permissions"`
}

// HandleCreateSheet handles POST /api/sheets/{spreadsheetId}.
func (h *SheetsHandler) HandleCreateSheet(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_sheet"

	var req createSheetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.CreateSheet(r.Context(), mux.Vars(r)["spreadsheetId"], req.SheetName, req.HeaderValues)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDeleteSheet handles DELETE /api/sheets/{spreadsheetId}/{sheetName}.
func (h *SheetsHandler) HandleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_sheet"
	vars := mux.Vars(r)

	out, err := h.deps.DeleteSheet(r.Context(), vars["spreadsheetId"], vars["sheetName"])
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUpdateSheetProperties handles
// PUT /api/sheets/{spreadsheetId}/{sheetName}/properties.
func (h *SheetsHandler) HandleUpdateSheetProperties(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_sheet_properties"
	vars := mux.Vars(r)

	var props types.SheetProperties
	if err := decodeJSON(r, &props); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.UpdateSheetProperties(r.Context(), vars["spreadsheetId"], vars["sheetName"], props)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleApplyFormatting handles
// POST /api/sheets/{spreadsheetId}/{sheetName}/formatting.
func (h *SheetsHandler) HandleApplyFormatting(w http.ResponseWriter, r *http.Request) {
	const op = "api.apply_formatting"
	vars := mux.Vars(r)

	var req formattingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.ApplyFormatting(r.Context(), vars["spreadsheetId"], vars["sheetName"], req.Range, req.Format)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSetSheetPermissions handles
// POST /api/sheets/{spreadsheetId}/{sheetName}/permissions.
func (h *SheetsHandler) HandleSetSheetPermissions(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_sheet_permissions"
	vars := mux.Vars(r)

	var req permissionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Permissions == nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	out, err := h.deps.SetSheetPermissions(r.Context(), vars["spreadsheetId"], vars["sheetName"], *req.Permissions)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
