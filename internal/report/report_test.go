package report

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/rentops/internal/service"
	"github.com/hyperengineering/rentops/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubBoard struct {
	board *service.Board
	err   error
}

func (s stubBoard) Board(context.Context) (*service.Board, error) { return s.board, s.err }

type stubLeads []types.Lead

func (s stubLeads) List(context.Context, types.LeadFilter) ([]types.Lead, error) { return s, nil }

func sampleBoard() *service.Board {
	updated := time.Date(2026, 9, 30, 17, 45, 0, 0, time.UTC)
	return &service.Board{
		Total: 2,
		Columns: []service.BoardColumn{
			{Phase: types.PhaseProphero, Title: "Revisión Prophero", Cards: []service.BoardCard{
				{ID: "p1", Address: "Calle Mayor 1", City: "Madrid", Percent: 25, UpdatedAt: updated},
			}},
			{Phase: types.PhaseReadyToRent, Title: "Listo para Alquilar", Cards: []service.BoardCard{}},
			{Phase: types.PhasePublished, Title: "Publicado", Cards: []service.BoardCard{
				{ID: "p2", Address: "Av. del Puerto 8", City: "Valencia", Percent: 100, Complete: true, UpdatedAt: updated},
			}},
		},
	}
}

func TestGenerator_Write(t *testing.T) {
	created := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	leads := stubLeads{
		{FullName: "Marta Gómez", Email: "marta@example.com", Phase: types.LeadContacted, PropertyID: "p2", Interested: true, CreatedAt: created},
		{FullName: "Descartado", Phase: types.LeadDiscarded, CreatedAt: created},
		{FullName: "Aceptado", Phase: types.LeadAccepted, CreatedAt: created},
	}

	var buf bytes.Buffer
	require.NoError(t, NewGenerator(stubBoard{board: sampleBoard()}, leads).Write(context.Background(), &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{BoardSheet, LeadsSheet}, f.GetSheetList())

	rows, err := f.GetRows(BoardSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, boardHeaders, rows[0])
	assert.Equal(t, []string{"Calle Mayor 1", "Madrid", "Revisión Prophero", "25", "no", "2026-09-30 17:45"}, rows[1])
	assert.Equal(t, []string{"Av. del Puerto 8", "Valencia", "Publicado", "100", "sí", "2026-09-30 17:45"}, rows[2])

	leadRows, err := f.GetRows(LeadsSheet)
	require.NoError(t, err)
	require.Len(t, leadRows, 2, "header plus the one open lead")
	assert.Equal(t, "Marta Gómez", leadRows[1][0])
	assert.Equal(t, "contacted", leadRows[1][3])
	assert.Equal(t, "p2", leadRows[1][4])
}

func TestGenerator_WriteBoardError(t *testing.T) {
	boom := errors.New("boom")
	err := NewGenerator(stubBoard{err: boom}, stubLeads{}).Write(context.Background(), &bytes.Buffer{})
	assert.ErrorIs(t, err, boom)
}

func TestWorkbook_EmptyBoard(t *testing.T) {
	f, err := Workbook(&service.Board{}, nil)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(BoardSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
