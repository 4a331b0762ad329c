package ui

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
)

func (a *App) savePresets() {
	if err := project.SavePresets(a.opts.PresetsPath, a.presets); err != nil {
		a.logStatus(fmt.Sprintf("Warning: Could not save presets: %v", err))
	}
}

// applyPreset switches the image selection to a preset.
func (a *App) applyPreset(p model.FirmwarePreset) {
	p.ApplyTo(&a.config)
	a.updateSlotTitles()
	a.updateImageLabels()
	a.saveConfig()
	a.logStatus(fmt.Sprintf("Loaded preset: %s", p.Name))
}

func (a *App) showSavePresetDialog() {
	if !a.config.HasAnyImage() {
		dialog.ShowInformation("Nothing to save", "Select at least one image file first.", a.window)
		return
	}

	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("Preset name")
	descEntry := widget.NewMultiLineEntry()
	descEntry.SetPlaceHolder("Optional description")

	form := dialog.NewForm("Save Preset", "Save", "Cancel",
		[]*widget.FormItem{
			widget.NewFormItem("Name", nameEntry),
			widget.NewFormItem("Description", descEntry),
		},
		func(ok bool) {
			if !ok {
				return
			}
			name := strings.TrimSpace(nameEntry.Text)
			if name == "" {
				dialog.ShowError(fmt.Errorf("preset name must not be empty"), a.window)
				return
			}
			save := func() {
				a.presets.Add(model.NewFirmwarePreset(name, descEntry.Text, a.config))
				a.savePresets()
				a.logStatus(fmt.Sprintf("Saved preset: %s", name))
			}
			if _, exists := a.presets.FindByName(name); exists {
				dialog.ShowConfirm("Replace Preset",
					fmt.Sprintf("A preset named %q already exists. Replace it?", name),
					func(ok bool) {
						if ok {
							save()
						}
					}, a.window)
				return
			}
			save()
		},
		a.window,
	)
	form.Resize(fyne.NewSize(400, 260))
	form.Show()
}

func (a *App) showLoadPresetDialog() {
	if len(a.presets.Presets) == 0 {
		dialog.ShowInformation("No presets", "Save the current selection as a preset first.", a.window)
		return
	}
	sel := widget.NewSelect(a.presets.Names(), nil)
	details := widget.NewLabel("")
	details.Wrapping = fyne.TextWrapWord
	sel.OnChanged = func(name string) {
		if p, ok := a.presets.FindByName(name); ok {
			details.SetText(presetSummary(p))
		}
	}
	sel.SetSelectedIndex(0)

	d := dialog.NewCustomConfirm("Load Preset", "Load", "Cancel",
		container.NewVBox(sel, details),
		func(ok bool) {
			if !ok {
				return
			}
			if p, found := a.presets.FindByName(sel.Selected); found {
				a.applyPreset(p)
			}
		}, a.window)
	d.Resize(fyne.NewSize(480, 300))
	d.Show()
}

// presetSummary lists the files of a preset, one per line.
func presetSummary(p model.FirmwarePreset) string {
	var sb strings.Builder
	if p.Description != "" {
		sb.WriteString(p.Description + "\n\n")
	}
	cfg := model.AppConfig{}
	p.ApplyTo(&cfg)
	for _, s := range model.Slots() {
		path := cfg.ImagePath(s.Kind)
		if path == "" {
			path = "(none)"
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", s.OffsetHex(), s.Kind, path)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *App) showManagePresetsDialog() {
	list := container.NewVBox()
	var refresh func()
	refresh = func() {
		list.RemoveAll()
		if len(a.presets.Presets) == 0 {
			list.Add(widget.NewLabel("No presets saved yet."))
			return
		}
		for _, p := range a.presets.Presets {
			p := p
			row := container.NewHBox(
				widget.NewLabelWithStyle(p.Name, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
				widget.NewLabel(p.CreatedAt),
				layout.NewSpacer(),
				newButtonWithTooltip("", theme.ConfirmIcon(), "Load this preset", func() {
					a.applyPreset(p)
				}),
				newButtonWithTooltip("", theme.DeleteIcon(), "Delete this preset", func() {
					dialog.ShowConfirm("Delete Preset", fmt.Sprintf("Delete preset %q?", p.Name), func(ok bool) {
						if !ok {
							return
						}
						a.presets.Remove(p.ID)
						a.savePresets()
						a.logStatus(fmt.Sprintf("Deleted preset: %s", p.Name))
						refresh()
					}, a.window)
				}),
			)
			list.Add(row)
		}
	}
	refresh()

	d := dialog.NewCustom("Manage Presets", "Close", container.NewVScroll(list), a.window)
	d.Resize(fyne.NewSize(520, 380))
	d.Show()
}

func (a *App) showExportPresetDialog() {
	if len(a.presets.Presets) == 0 {
		dialog.ShowInformation("No presets", "There are no presets to export.", a.window)
		return
	}
	sel := widget.NewSelect(a.presets.Names(), nil)
	sel.SetSelectedIndex(0)

	dialog.ShowCustomConfirm("Export Preset", "Export...", "Cancel", sel, func(ok bool) {
		if !ok {
			return
		}
		p, found := a.presets.FindByName(sel.Selected)
		if !found {
			return
		}
		d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
			if err != nil || writer == nil {
				return
			}
			defer writer.Close()
			if err := project.ExportPreset(writer.URI().Path(), p); err != nil {
				dialog.ShowError(err, a.window)
				return
			}
			a.logStatus(fmt.Sprintf("Exported preset %s to %s", p.Name, writer.URI().Path()))
		}, a.window)
		d.SetFileName(p.Name + ".preset.json")
		d.Show()
	}, a.window)
}

func (a *App) importPreset() {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		defer reader.Close()
		p, err := project.ImportPreset(reader.URI().Path())
		if err != nil {
			dialog.ShowError(err, a.window)
			return
		}
		a.presets.Add(p)
		a.savePresets()
		a.logStatus(fmt.Sprintf("Imported preset: %s", p.Name))
	}, a.window)
	d.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	d.Show()
}
