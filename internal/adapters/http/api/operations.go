package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/okian/sheetbridge/internal/domain/query"
	"github.com/okian/sheetbridge/pkg/logger"
)

// OperationsHandler handles cross-sheet operations.
type OperationsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewOperationsHandler creates a new operations handler.
func NewOperationsHandler(deps Dependencies, log logger.Logger) *OperationsHandler {
	return &OperationsHandler{deps: deps, logger: log}
}

type operationRequest struct {
	Operation    string             `json:"operation"`
	SheetQueries []query.SheetQuery `json:"sheetQueries"`
}

// HandlePerformSheetOperation handles
// POST /api/sheets/{spreadsheetId}/operations.
func (h *OperationsHandler) HandlePerformSheetOperation(w http.ResponseWriter, r *http.Request) {
	const op = "api.perform_sheet_operation"

	var req operationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	parsed, err := query.ParseAll(req.SheetQueries)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	out, err := h.deps.PerformSheetOperation(r.Context(), mux.Vars(r)["spreadsheetId"], req.Operation, parsed)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
