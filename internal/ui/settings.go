package ui

import (
	"fmt"
	"path/filepath"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/golang/glog"
	"github.com/skratchdot/open-golang/open"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
)

// Choices offered by the settings dialog. Values are esptool's own
// spellings; the dashed forms for newer releases are derived when the
// command line is built.
var (
	chipChoices      = []string{"auto", "esp32", "esp32s2", "esp32s3", "esp32c2", "esp32c3", "esp32c6", "esp32h2"}
	baudChoices      = []string{"115200", "230400", "460800", "921600", "1500000"}
	beforeChoices    = []string{"default_reset", "usb_reset", "no_reset", "no_reset_no_sync"}
	afterChoices     = []string{"hard_reset", "soft_reset", "no_reset", "no_reset_stub"}
	flashModeChoices = []string{"keep", "qio", "qout", "dio", "dout"}
	flashFreqChoices = []string{"keep", "80m", "60m", "48m", "40m", "26m", "20m"}
	flashSizeChoices = []string{"keep", "detect", "1MB", "2MB", "4MB", "8MB", "16MB", "32MB"}
	themeChoices     = []string{"system", "light", "dark"}
)

// applySettings validates the edited settings and copies them into cfg.
func applySettings(cfg *model.AppConfig, o model.FlashOptions, baudText, appLabel, themeName string) error {
	baud, err := strconv.Atoi(baudText)
	if err != nil || baud <= 0 {
		return fmt.Errorf("baud rate must be a positive number, got %q", baudText)
	}
	o.Baud = baud

	probe := model.FlashPlan{Port: "COM1", Options: o}
	if _, err := esptool.BuildArgs(probe, ""); err != nil {
		return err
	}

	cfg.ApplyOptions(o)
	cfg.AppLabel = appLabel
	if cfg.AppLabel == "" {
		cfg.AppLabel = model.DefaultAppLabel
	}
	cfg.Theme = themeName
	return nil
}

// showSettingsDialog displays the flash settings editor.
func (a *App) showSettingsDialog() {
	o := a.config.Options()

	selectFor := func(options []string, val *string) *widget.Select {
		s := widget.NewSelect(options, func(selected string) {
			*val = selected
		})
		s.SetSelected(*val)
		return s
	}

	baudEntry := widget.NewSelectEntry(baudChoices)
	baudEntry.SetText(strconv.Itoa(o.Baud))

	compressCheck := widget.NewCheck("Compress data (-z)", func(checked bool) {
		o.Compress = checked
	})
	compressCheck.SetChecked(o.Compress)

	extraEntry := widget.NewEntry()
	extraEntry.SetPlaceHolder(`e.g. --no-stub`)
	extraEntry.SetText(o.ExtraArgs)

	labelEntry := widget.NewEntry()
	labelEntry.SetText(a.config.AppLabel)

	themeName := a.config.Theme
	themeSelect := selectFor(themeChoices, &themeName)

	formItems := []*widget.FormItem{
		widget.NewFormItem("Chip", selectFor(chipChoices, &o.Chip)),
		widget.NewFormItem("Baud Rate", baudEntry),
		widget.NewFormItem("Before", selectFor(beforeChoices, &o.Before)),
		widget.NewFormItem("After", selectFor(afterChoices, &o.After)),
		widget.NewFormItem("", widget.NewSeparator()),
		widget.NewFormItem("Flash Mode", selectFor(flashModeChoices, &o.FlashMode)),
		widget.NewFormItem("Flash Frequency", selectFor(flashFreqChoices, &o.FlashFreq)),
		widget.NewFormItem("Flash Size", selectFor(flashSizeChoices, &o.FlashSize)),
		widget.NewFormItem("", compressCheck),
		widget.NewFormItem("Extra Arguments", extraEntry),
		widget.NewFormItem("", widget.NewSeparator()),
		widget.NewFormItem("Application Label", labelEntry),
		widget.NewFormItem("Theme", themeSelect),
	}

	d := dialog.NewForm("Flash Settings", "Save", "Cancel", formItems,
		func(ok bool) {
			if !ok {
				return
			}
			o.ExtraArgs = extraEntry.Text
			if err := applySettings(&a.config, o, baudEntry.Text, labelEntry.Text, themeName); err != nil {
				dialog.ShowError(err, a.window)
				return
			}
			a.theme.SetVariantName(a.config.Theme)
			a.app.Settings().SetTheme(a.theme)
			a.updateSlotTitles()
			a.saveConfig()
			a.logStatus(fmt.Sprintf("Settings saved: %s @ %d baud", a.config.Chip, a.config.Baud))
		},
		a.window,
	)
	d.Resize(fyne.NewSize(480, 560))
	d.Show()
}

// showImportExportDialog displays the backup import/export dialog.
func (a *App) showImportExportDialog() {
	exportBtn := widget.NewButton("Export All Data...", func() {
		d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
			if err != nil || writer == nil {
				return
			}
			defer writer.Close()
			path := writer.URI().Path()
			if err := project.ExportAllData(path, a.config, a.presets); err != nil {
				dialog.ShowError(err, a.window)
			} else {
				dialog.ShowInformation("Export Complete",
					fmt.Sprintf("Settings and presets exported to:\n%s", path), a.window)
			}
		}, a.window)
		d.SetFileName("esp32-flasher-backup.json")
		d.Show()
	})

	importBtn := widget.NewButton("Import All Data...", func() {
		dialog.ShowConfirm("Import Data",
			"Importing data will replace your current settings and presets.\n\nAre you sure you want to continue?",
			func(ok bool) {
				if !ok {
					return
				}
				d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
					if err != nil || reader == nil {
						return
					}
					defer reader.Close()
					backup, err := project.ImportAllData(reader.URI().Path())
					if err != nil {
						dialog.ShowError(err, a.window)
						return
					}
					a.restoreBackup(backup)
					dialog.ShowInformation("Import Complete",
						fmt.Sprintf("Data imported successfully from backup created at %s.", backup.CreatedAt), a.window)
				}, a.window)
				d.Show()
			},
			a.window,
		)
	})

	content := container.NewVBox(
		widget.NewLabel("Export the flasher settings and firmware presets to a backup file,\nor import from a previously exported backup."),
		widget.NewSeparator(),
		exportBtn,
		widget.NewSeparator(),
		importBtn,
	)

	d := dialog.NewCustom("Import / Export Data", "Close", content, a.window)
	d.Resize(fyne.NewSize(450, 250))
	d.Show()
}

// restoreBackup replaces config and presets with a backup. The selected
// port stays, since it belongs to this machine.
func (a *App) restoreBackup(backup project.BackupData) {
	port := a.config.Port
	a.config = backup.Config
	a.config.Port = port
	a.presets = backup.Presets

	a.saveConfig()
	a.savePresets()
	a.theme.SetVariantName(a.config.Theme)
	a.app.Settings().SetTheme(a.theme)
	a.updateFromConfig()
	a.logStatus("Backup restored")
}

// openConfigFolder shows the folder holding config.json in the file manager.
func (a *App) openConfigFolder() {
	dir := filepath.Dir(a.opts.ConfigPath)
	if err := open.Run(dir); err != nil {
		glog.Warningf("opening %s: %v", dir, err)
		dialog.ShowError(fmt.Errorf("could not open %s: %w", dir, err), a.window)
	}
}
