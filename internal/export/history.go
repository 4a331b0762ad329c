package export

import (
	"fmt"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

const (
	sessionsSheet = "Sessions"
	imagesSheet   = "Images"
)

var sessionHeaders = []string{"Session", "Started", "Duration (s)", "Port", "Chip", "Baud", "Outcome", "Exit code", "Error", "Tool"}

var imageHeaders = []string{"Session", "Slot", "Offset", "File", "Size (bytes)", "SHA-256"}

// ExportHistoryXLSX writes the flash history to an Excel workbook with one
// row per session and a second sheet listing every flashed image.
func ExportHistoryXLSX(path string, sessions []model.FlashSession) error {
	if len(sessions) == 0 {
		return fmt.Errorf("no sessions to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sessionsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(imagesSheet); err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	failed, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "#C62828"},
	})
	if err != nil {
		return err
	}

	if err := writeRow(f, sessionsSheet, 1, stringsToCells(sessionHeaders)); err != nil {
		return err
	}
	if err := writeRow(f, imagesSheet, 1, stringsToCells(imageHeaders)); err != nil {
		return err
	}
	if err := f.SetCellStyle(sessionsSheet, "A1", lastCell(len(sessionHeaders), 1), header); err != nil {
		return err
	}
	if err := f.SetCellStyle(imagesSheet, "A1", lastCell(len(imageHeaders), 1), header); err != nil {
		return err
	}

	imgRow := 2
	for i, s := range sessions {
		row := i + 2
		cells := []interface{}{
			s.ID,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.Duration().Seconds(),
			s.Port,
			s.Chip,
			s.Baud,
			string(s.Outcome),
			s.ExitCode,
			s.Error,
			s.Tool,
		}
		if err := writeRow(f, sessionsSheet, row, cells); err != nil {
			return err
		}
		if !s.Succeeded() && s.Outcome != model.OutcomeRunning {
			cell, _ := excelize.CoordinatesToCellName(1, row)
			if err := f.SetCellStyle(sessionsSheet, cell, lastCell(len(sessionHeaders), row), failed); err != nil {
				return err
			}
		}

		for _, img := range s.Images {
			cells := []interface{}{s.ShortID(), img.Slot, img.Offset, filepath.Base(img.Path), img.Size, img.SHA256}
			if err := writeRow(f, imagesSheet, imgRow, cells); err != nil {
				return err
			}
			imgRow++
		}
	}

	widths := map[string]float64{"A": 38, "B": 20, "C": 12, "D": 14, "E": 10, "F": 10, "G": 11, "H": 10, "I": 40, "J": 30}
	for col, w := range widths {
		if err := f.SetColWidth(sessionsSheet, col, col, w); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(imagesSheet, "A", "C", 12); err != nil {
		return err
	}
	if err := f.SetColWidth(imagesSheet, "D", "D", 32); err != nil {
		return err
	}
	if err := f.SetColWidth(imagesSheet, "F", "F", 70); err != nil {
		return err
	}

	return f.SaveAs(path)
}

// ReadHistoryXLSX reads the session ids back from a workbook written by
// ExportHistoryXLSX.
func ReadHistoryXLSX(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sessionsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions sheet: %w", err)
	}
	var ids []string
	for i, r := range rows {
		if i == 0 || len(r) == 0 {
			continue
		}
		ids = append(ids, r[0])
	}
	return ids, nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) error {
	for col, v := range cells {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func stringsToCells(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func lastCell(cols, row int) string {
	cell, _ := excelize.CoordinatesToCellName(cols, row)
	return cell
}
