package api

import (
	"context"
	"net/http"

	"github.com/okian/sheetbridge/internal/domain/types"
)

type gridKey struct{}

// ValidateGrid rejects any body that is not a JSON array of arrays with 400
// before next runs. The decoded grid is handed to next via the request
// context.
func ValidateGrid(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.validate_grid"

		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		grid, err := types.DecodeGrid(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), gridKey{}, grid)))
	}
}

// gridFrom returns the grid stored by ValidateGrid.
func gridFrom(r *http.Request) (types.Grid, bool) {
	grid, ok := r.Context().Value(gridKey{}).(types.Grid)
	return grid, ok
}
