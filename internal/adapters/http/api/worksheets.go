package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/sheetbridge/pkg/logger"
)

// WorksheetsHandler handles whole-spreadsheet requests.
type WorksheetsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewWorksheetsHandler creates a new worksheets handler.
func NewWorksheetsHandler(deps Dependencies, log logger.Logger) *WorksheetsHandler {
	return &WorksheetsHandler{deps: deps, logger: log}
}

type createWorksheetRequest struct {
	Title        string   `json:"title"`
	HeaderValues []string `json:"headerValues,omitempty"`
}

// HandleCreateWorksheet handles POST /api/worksheets.
func (h *WorksheetsHandler) HandleCreateWorksheet(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_worksheet"

	var req createWorksheetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.CreateWorksheet(r.Context(), req.Title, req.HeaderValues)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleDeleteWorksheet handles DELETE /api/worksheets/{spreadsheetId}.
func (h *WorksheetsHandler) HandleDeleteWorksheet(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_worksheet"

	out, err := h.deps.DeleteWorksheet(r.Context(), mux.Vars(r)["spreadsheetId"])
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
