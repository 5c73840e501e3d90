// Package report renders the kanban board and the lead pipeline as an XLSX
// workbook.
package report

import (
	"context"
	"fmt"
	"io"

	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/xuri/excelize/v2"
)

// Sheet names.
const (
	BoardSheet = "Inmuebles"
	LeadsSheet = "Leads"
)

// ContentType is the media type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const timeLayout = "2006-01-02 15:04"

var (
	boardHeaders = []string{"Dirección", "Ciudad", "Fase", "Progreso (%)", "Fase completa", "Actualizado"}
	leadHeaders  = []string{"Nombre", "Email", "Teléfono", "Fase", "Inmueble", "Interesado", "Cualificado", "Alta"}
)

// BoardSource provides the board view.
type BoardSource interface {
	Board(ctx context.Context) (*service.Board, error)
}

// LeadSource lists leads.
type LeadSource interface {
	List(ctx context.Context, filter types.LeadFilter) ([]types.Lead, error)
}

// Generator builds workbooks from live data.
type Generator struct {
	board BoardSource
	leads LeadSource
}

// NewGenerator creates a Generator.
func NewGenerator(board BoardSource, leads LeadSource) *Generator {
	return &Generator{board: board, leads: leads}
}

// Write renders the current board and open leads to w.
func (g *Generator) Write(ctx context.Context, w io.Writer) error {
	board, err := g.board.Board(ctx)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}
	leads, err := g.leads.List(ctx, types.LeadFilter{})
	if err != nil {
		return fmt.Errorf("load leads: %w", err)
	}

	f, err := Workbook(board, OpenLeads(leads))
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// OpenLeads drops leads that have left the funnel, accepted or discarded.
func OpenLeads(leads []types.Lead) []types.Lead {
	out := make([]types.Lead, 0, len(leads))
	for _, l := range leads {
		if l.Phase == types.LeadAccepted || l.Phase == types.LeadDiscarded {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Workbook builds the workbook: one row per property in kanban order, then
// one row per lead.
func Workbook(board *service.Board, leads []types.Lead) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(BoardSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet %s: %w", BoardSheet, err)
	}
	f.SetActiveSheet(index)
	if _, err := f.NewSheet(LeadsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet %s: %w", LeadsSheet, err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	var boardRows [][]any
	for _, col := range board.Columns {
		for _, c := range col.Cards {
			boardRows = append(boardRows, []any{
				c.Address, c.City, col.Title, c.Percent, yesNo(c.Complete), c.UpdatedAt.UTC().Format(timeLayout),
			})
		}
	}
	if err := writeSheet(f, BoardSheet, boardHeaders, boardRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	leadRows := make([][]any, 0, len(leads))
	for _, l := range leads {
		leadRows = append(leadRows, []any{
			l.FullName, l.Email, l.Phone, string(l.Phase), l.PropertyID,
			yesNo(l.Interested), yesNo(l.Qualified), l.CreatedAt.UTC().Format(timeLayout),
		})
	}
	if err := writeSheet(f, LeadsSheet, leadHeaders, leadRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return fmt.Errorf("size %s columns: %w", sheet, err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}
