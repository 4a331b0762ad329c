package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/golang/glog"
	"github.com/skratchdot/open-golang/open"

	"github.com/piwi3910/esp32-flasher/internal/export"
	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
)

// sessionRow is the one-line summary shown in the history list.
func sessionRow(s model.FlashSession) string {
	return fmt.Sprintf("%s  %-8s  %-9s  %s",
		s.StartedAt.Local().Format("2006-01-02 15:04"), s.Port, s.Outcome, s.ShortID())
}

// sessionDetails is the multi-line description shown for a selected session.
func sessionDetails(s model.FlashSession) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\n", s.ID)
	fmt.Fprintf(&sb, "Started: %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&sb, "Port: %s   Chip: %s   Baud: %d\n", s.Port, s.Chip, s.Baud)
	fmt.Fprintf(&sb, "Outcome: %s (exit code %d)\n", s.Outcome, s.ExitCode)
	if s.Error != "" {
		fmt.Fprintf(&sb, "Error: %s\n", s.Error)
	}
	for _, img := range s.Images {
		fmt.Fprintf(&sb, "%s %s  %d bytes  %s\n", img.Offset, filepath.Base(img.Path), img.Size, img.SHA256[:min(12, len(img.SHA256))])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *App) loadHistory() (project.FlashHistory, bool) {
	h, err := project.LoadHistory(a.opts.HistoryPath)
	if err != nil {
		dialog.ShowError(fmt.Errorf("could not read flash history: %w", err), a.window)
		return h, false
	}
	if len(h.Sessions) == 0 {
		dialog.ShowInformation("No history", "No flash sessions have been recorded yet.", a.window)
		return h, false
	}
	return h, true
}

func (a *App) showHistoryDialog() {
	h, ok := a.loadHistory()
	if !ok {
		return
	}
	// newest first
	sessions := make([]model.FlashSession, len(h.Sessions))
	for i, s := range h.Sessions {
		sessions[len(sessions)-1-i] = s
	}

	details := widget.NewLabel("Select a session")
	details.Wrapping = fyne.TextWrapWord
	details.TextStyle = fyne.TextStyle{Monospace: true}
	var selected *model.FlashSession

	reportBtn := widget.NewButton("Export Report...", func() {
		if selected != nil {
			a.exportSessionReport(*selected)
		}
	})
	reportBtn.Disable()

	list := widget.NewList(
		func() int { return len(sessions) },
		func() fyne.CanvasObject {
			l := widget.NewLabel("")
			l.TextStyle = fyne.TextStyle{Monospace: true}
			return l
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(sessionRow(sessions[id]))
		},
	)
	list.OnSelected = func(id widget.ListItemID) {
		s := sessions[id]
		selected = &s
		details.SetText(sessionDetails(s))
		reportBtn.Enable()
	}

	split := container.NewVSplit(list, container.NewBorder(nil, reportBtn, nil, nil, container.NewVScroll(details)))
	split.Offset = 0.5

	d := dialog.NewCustom(fmt.Sprintf("Flash History (%d sessions)", len(sessions)), "Close", split, a.window)
	d.Resize(fyne.NewSize(720, 520))
	d.Show()
}

func (a *App) exportHistoryXLSX() {
	h, ok := a.loadHistory()
	if !ok {
		return
	}
	d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		defer writer.Close()
		path := writer.URI().Path()
		if err := export.ExportHistoryXLSX(path, h.Sessions); err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		a.logStatus(fmt.Sprintf("Exported %d session(s) to %s", len(h.Sessions), path))
		dialog.ShowInformation("Export Complete", fmt.Sprintf("Flash history saved to %s", path), a.window)
	}, a.window)
	d.SetFileName("flash-history.xlsx")
	d.Show()
}

func (a *App) exportLastSessionReport() {
	if a.lastSession != nil {
		a.exportSessionReport(*a.lastSession)
		return
	}
	h, ok := a.loadHistory()
	if !ok {
		return
	}
	last, _ := h.Last()
	a.exportSessionReport(last)
}

func (a *App) exportSessionReport(s model.FlashSession) {
	d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		defer writer.Close()
		path := writer.URI().Path()
		if err := export.ExportSessionReport(path, s); err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		a.logStatus(fmt.Sprintf("Saved flash report to %s", path))
		dialog.ShowConfirm("Report Saved", "Open the report now?", func(ok bool) {
			if !ok {
				return
			}
			if err := open.Run(path); err != nil {
				glog.Warningf("opening %s: %v", path, err)
			}
		}, a.window)
	}, a.window)
	d.SetFileName(fmt.Sprintf("flash-%s.pdf", s.ShortID()))
	d.Show()
}
