package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/xuri/excelize/v2"
)

// ExportMovements renders the filtered stock ledger as an xlsx
// workbook, oldest entry first.
func (s *InventoryService) ExportMovements(ctx context.Context, filters map[string]string) (*bytes.Buffer, error) {
	movements, err := s.movementRepo.FindAllForExport(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to load movements: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Mouvements"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Date", "Material", "Code", "Direction", "Quantity", "Actor", "Reference"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for row, m := range movements {
		materialName, materialCode := "", ""
		if m.Material != nil {
			materialName = m.Material.Name
			materialCode = m.Material.Code
		}
		direction := "Entrée"
		if m.Direction == entity.MovementOut {
			direction = "Sortie"
		}
		values := []interface{}{
			m.CreatedAt.Format("2006-01-02 15:04"),
			materialName,
			materialCode,
			direction,
			m.Quantity,
			m.ActorID,
			m.Reference,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}
	return buf, nil
}
