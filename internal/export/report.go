// Package export writes flash session records to shareable formats: a
// one-page PDF report per session and an Excel workbook of the history.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

// Page layout constants (A4 portrait in mm).
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	marginLeft   = 15.0
	marginRight  = 15.0
	marginTop    = 15.0
	marginBottom = 15.0
	contentWidth = pageWidth - marginLeft - marginRight
	qrSize       = 35.0
	rowHeight    = 6.0
)

// outcomeColor is the banner colour used for each outcome.
var outcomeColor = map[model.Outcome][3]int{
	model.OutcomeSuccess:   {76, 175, 80},
	model.OutcomeFailed:    {244, 67, 54},
	model.OutcomeError:     {244, 67, 54},
	model.OutcomeCancelled: {255, 152, 0},
	model.OutcomeRunning:   {33, 150, 243},
}

// SessionCode holds the data encoded into the report's QR code. It is
// enough to match a flashed board with its history entry and images.
type SessionCode struct {
	ID      string            `json:"id"`
	Time    string            `json:"time"`
	Port    string            `json:"port"`
	Chip    string            `json:"chip"`
	Outcome model.Outcome     `json:"outcome"`
	Images  map[string]string `json:"sha256"`
}

// NewSessionCode builds the QR payload for a session. Hashes are keyed by
// flash offset.
func NewSessionCode(s model.FlashSession) SessionCode {
	code := SessionCode{
		ID:      s.ID,
		Time:    s.StartedAt.Format(time.RFC3339),
		Port:    s.Port,
		Chip:    s.Chip,
		Outcome: s.Outcome,
		Images:  make(map[string]string, len(s.Images)),
	}
	for _, img := range s.Images {
		code.Images[img.Offset] = img.SHA256
	}
	return code
}

// ExportSessionReport writes a one-page PDF describing a flash session:
// outcome banner, connection settings, the images with their hashes, the
// tail of the tool output and a QR code with the session summary.
func ExportSessionReport(path string, s model.FlashSession) error {
	if s.ID == "" {
		return fmt.Errorf("session has no id")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, marginBottom)
	pdf.SetTitle("Flash report "+s.ShortID(), false)
	pdf.AddPage()

	y := renderHeader(pdf, s)
	if err := renderQRCode(pdf, s, y); err != nil {
		return err
	}
	y = renderSettings(pdf, s, y)
	y = renderImages(pdf, s.Images, y+4)
	renderLogTail(pdf, s.LogTail, y+4)

	return pdf.OutputFileAndClose(path)
}

// renderHeader draws the title and the coloured outcome banner and returns
// the y position below them.
func renderHeader(pdf *fpdf.Fpdf, s model.FlashSession) float64 {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetXY(marginLeft, marginTop)
	pdf.CellFormat(contentWidth, 10, "ESP32 Flash Report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.SetX(marginLeft)
	pdf.CellFormat(contentWidth, 5, fmt.Sprintf("Session %s", s.ID), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	y := marginTop + 18
	col, ok := outcomeColor[s.Outcome]
	if !ok {
		col = [3]int{150, 150, 150}
	}
	pdf.SetFillColor(col[0], col[1], col[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	banner := fmt.Sprintf("%s  (exit code %d)", outcomeTitle(s.Outcome), s.ExitCode)
	pdf.CellFormat(contentWidth, 9, banner, "", 1, "L", true, 0, "")
	pdf.SetTextColor(0, 0, 0)

	return y + 13
}

func outcomeTitle(o model.Outcome) string {
	switch o {
	case model.OutcomeSuccess:
		return "FLASH SUCCEEDED"
	case model.OutcomeFailed:
		return "FLASH FAILED"
	case model.OutcomeCancelled:
		return "FLASH CANCELLED"
	case model.OutcomeError:
		return "TOOL ERROR"
	}
	return "IN PROGRESS"
}

// renderQRCode places the session QR code in the top right of the body.
func renderQRCode(pdf *fpdf.Fpdf, s model.FlashSession, y float64) error {
	payload, err := json.Marshal(NewSessionCode(s))
	if err != nil {
		return fmt.Errorf("failed to marshal session code: %w", err)
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("failed to generate QR code: %w", err)
	}
	name := "qr_" + s.ID
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))
	pdf.ImageOptions(name, pageWidth-marginRight-qrSize, y, qrSize, qrSize, false, opts, 0, "")
	return nil
}

// renderSettings draws the key/value block next to the QR code.
func renderSettings(pdf *fpdf.Fpdf, s model.FlashSession, y float64) float64 {
	rows := [][2]string{
		{"Started", s.StartedAt.Local().Format("2006-01-02 15:04:05")},
		{"Duration", formatDuration(s.Duration())},
		{"Port", s.Port},
		{"Chip", s.Chip},
		{"Baud", fmt.Sprintf("%d", s.Baud)},
		{"Tool", s.Tool},
	}
	if s.Error != "" {
		rows = append(rows, [2]string{"Error", s.Error})
	}

	keyW := 25.0
	valW := contentWidth - keyW - qrSize - 5
	for _, r := range rows {
		pdf.SetXY(marginLeft, y)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(keyW, rowHeight, r[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(valW, rowHeight, truncate(pdf, r[1], valW), "", 0, "L", false, 0, "")
		y += rowHeight
	}
	if floor := marginTop + 31 + qrSize; y < floor {
		y = floor
	}
	return y
}

// renderImages draws the image table.
func renderImages(pdf *fpdf.Fpdf, images []model.ImageRecord, y float64) float64 {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(contentWidth, 8, "Images", "", 1, "L", false, 0, "")
	y += 9

	widths := []float64{28, 20, 52, 20, contentWidth - 120}
	headers := []string{"Slot", "Offset", "File", "Size", "SHA-256"}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.SetXY(marginLeft, y)
	for i, h := range headers {
		pdf.CellFormat(widths[i], rowHeight, h, "1", 0, "L", true, 0, "")
	}
	y += rowHeight

	if len(images) == 0 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(contentWidth, rowHeight, "No image details recorded", "1", 0, "L", false, 0, "")
		return y + rowHeight
	}

	pdf.SetFont("Courier", "", 7)
	for _, img := range images {
		cells := []string{img.Slot, img.Offset, filepath.Base(img.Path), fmt.Sprintf("%d", img.Size), img.SHA256}
		pdf.SetXY(marginLeft, y)
		for i, c := range cells {
			pdf.CellFormat(widths[i], rowHeight, truncate(pdf, c, widths[i]-1), "1", 0, "L", false, 0, "")
		}
		y += rowHeight
	}
	return y
}

// renderLogTail prints as many trailing tool output lines as fit on the page.
func renderLogTail(pdf *fpdf.Fpdf, lines []string, y float64) {
	if len(lines) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(marginLeft, y)
	pdf.CellFormat(contentWidth, 8, "Tool output", "", 1, "L", false, 0, "")
	y += 9

	const lineH = 3.6
	fit := int((pageHeight - marginBottom - y) / lineH)
	if fit <= 0 {
		return
	}
	if len(lines) > fit {
		lines = lines[len(lines)-fit:]
	}
	pdf.SetFont("Courier", "", 7)
	pdf.SetTextColor(60, 60, 60)
	for _, l := range lines {
		pdf.SetXY(marginLeft, y)
		pdf.CellFormat(contentWidth, lineH, truncate(pdf, l, contentWidth), "", 0, "L", false, 0, "")
		y += lineH
	}
	pdf.SetTextColor(0, 0, 0)
}

// truncate shortens s with an ellipsis so it fits in width.
func truncate(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}
