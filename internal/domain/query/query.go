// Package query turns caller supplied cross-sheet query descriptors into
// fully qualified ranges and the formulas built from them.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/sheetbridge/internal/domain/a1"
)

// OperationJoin is the only supported cross-sheet operation.
const OperationJoin = "join"

// joinCondition filters the stacked source ranges down to matching rows.
const joinCondition = "select * where Col1 = Col2"

var (
	ErrEmptyTarget      = errors.New("sheet query target range is empty")
	ErrEmptySources     = errors.New("sheet query has no source sheets")
	ErrIncompleteSource = errors.New("sheet query source needs a sheetName and a range")
)

// SourceSheet names one input range of a sheet query.
type SourceSheet struct {
	SheetName string `json:"sheetName"`
	Range     string `json:"range"`
}

// SheetQuery is the caller facing shape of a cross-sheet query.
type SheetQuery struct {
	TargetRange  string        `json:"targetRange"`
	SourceSheets []SourceSheet `json:"sourceSheets"`
}

// Parsed is a SheetQuery with its sources flattened into qualified ranges.
type Parsed struct {
	TargetRange  string   `json:"targetRange"`
	SourceRanges []string `json:"sourceRanges"`
}

// Parse flattens q. Each source becomes '<sheetName>'!<range>, in order.
func Parse(q SheetQuery) Parsed {
	ranges := make([]string, 0, len(q.SourceSheets))
	for _, s := range q.SourceSheets {
		ranges = append(ranges, a1.QuotedQualify(s.SheetName, s.Range))
	}
	return Parsed{TargetRange: q.TargetRange, SourceRanges: ranges}
}

// ParseAll parses every query and rejects ones that cannot form a formula.
func ParseAll(queries []SheetQuery) ([]Parsed, error) {
	out := make([]Parsed, 0, len(queries))
	for i, q := range queries {
		if strings.TrimSpace(q.TargetRange) == "" {
			return nil, fmt.Errorf("query %d: %w", i, ErrEmptyTarget)
		}
		if len(q.SourceSheets) == 0 {
			return nil, fmt.Errorf("query %d: %w", i, ErrEmptySources)
		}
		for j, src := range q.SourceSheets {
			if strings.TrimSpace(src.SheetName) == "" || strings.TrimSpace(src.Range) == "" {
				return nil, fmt.Errorf("query %d: source %d: %w", i, j, ErrIncompleteSource)
			}
		}
		out = append(out, Parse(q))
	}
	return out, nil
}

// JoinFormula builds the QUERY expression used as the join validation source.
func (p Parsed) JoinFormula() string {
	return joinFormula(p.SourceRanges, joinCondition)
}

func joinFormula(ranges []string, condition string) string {
	return "=QUERY({" + strings.Join(ranges, ",") + "}, " + formulaString(condition) + ")"
}

// formulaString renders s as a spreadsheet string literal. The only escape
// a formula string knows is a doubled quote.
func formulaString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
