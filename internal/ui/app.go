package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/golang/glog"

	fynetooltip "github.com/dweymouth/fyne-tooltip"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
	"github.com/piwi3910/esp32-flasher/internal/flasher"
	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
	"github.com/piwi3910/esp32-flasher/internal/serialport"
)

// Options configures where the App keeps its files and how it reaches the
// system. Zero values select the defaults.
type Options struct {
	ConfigPath  string
	PresetsPath string
	HistoryPath string
	Ports       serialport.Source
	Locator     *esptool.Locator
	Runner      *esptool.Runner
}

// slotLogNames are the names used in "Selected ..." log lines.
var slotLogNames = map[model.SlotKind]string{
	model.SlotBootloader:  "bootloader",
	model.SlotPartitions:  "partitions",
	model.SlotBootApp0:    "boot_app0",
	model.SlotApplication: "application binary",
}

// App holds all application state and UI references.
type App struct {
	app     fyne.App
	window  fyne.Window
	opts    Options
	config  model.AppConfig
	presets model.PresetStore
	theme   *FlasherTheme
	flasher *flasher.Flasher

	// UI references for dynamic updates
	portSelect  *widget.Select
	portInfo    *widget.Label
	toolLabel   *widget.Label
	slotTitles  map[model.SlotKind]*widget.Label
	imageLabels map[model.SlotKind]*widget.Label
	flashBtn    *widget.Button
	cancelBtn   *widget.Button
	progress    *widget.ProgressBar
	logGrid     *widget.TextGrid
	logScroll   *container.Scroll
	log         *LogBuffer

	ports       []serialport.Port
	cancel      context.CancelFunc
	lastSession *model.FlashSession
	pending     []string // log lines produced before the log widget exists
}

// NewApp loads the configuration and presets and prepares the window
// controller. Build must be called before the window is shown.
func NewApp(application fyne.App, window fyne.Window, opts Options) *App {
	if opts.ConfigPath == "" {
		opts.ConfigPath = project.DefaultConfigPath()
	}
	if opts.PresetsPath == "" {
		opts.PresetsPath = project.DefaultPresetsPath()
	}
	if opts.HistoryPath == "" {
		opts.HistoryPath = project.DefaultHistoryPath()
	}
	if opts.Ports == nil {
		opts.Ports = serialport.System
	}
	if opts.Locator == nil {
		opts.Locator = esptool.NewLocator()
	}

	a := &App{
		app:         application,
		window:      window,
		opts:        opts,
		log:         NewLogBuffer(),
		slotTitles:  make(map[model.SlotKind]*widget.Label),
		imageLabels: make(map[model.SlotKind]*widget.Label),
	}

	cfg, err := project.LoadAppConfig(opts.ConfigPath)
	if err != nil {
		glog.Warningf("could not load config %s: %v", opts.ConfigPath, err)
		a.pending = append(a.pending, fmt.Sprintf("Warning: Could not load config: %v", err))
		cfg = model.DefaultAppConfig()
	}
	a.config = cfg

	presets, err := project.LoadPresets(opts.PresetsPath)
	if err != nil {
		glog.Warningf("could not load presets %s: %v", opts.PresetsPath, err)
		a.pending = append(a.pending, fmt.Sprintf("Warning: Could not load presets: %v", err))
		presets = model.NewPresetStore()
	}
	a.presets = presets

	a.theme = NewFlasherTheme(cfg.Theme)
	application.Settings().SetTheme(a.theme)

	a.flasher = &flasher.Flasher{
		Runner:      opts.Runner,
		HistoryPath: opts.HistoryPath,
		Log: func(line string) {
			fyne.Do(func() { a.logStatus(line) })
		},
		Progress: func(pct float64) {
			fyne.Do(func() { a.progress.SetValue(pct) })
		},
	}
	return a
}

// SetupMenus creates the native menu bar for the application.
func (a *App) SetupMenus() {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Config Folder", func() {
			a.openConfigFolder()
		}),
		fyne.NewMenuItem("Import / Export Data...", func() {
			a.showImportExportDialog()
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Clear Log", func() {
			a.clearLog()
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Quit", func() {
			a.window.Close()
		}),
	)

	presetsMenu := fyne.NewMenu("Presets",
		fyne.NewMenuItem("Save Current as Preset...", func() {
			a.showSavePresetDialog()
		}),
		fyne.NewMenuItem("Load Preset...", func() {
			a.showLoadPresetDialog()
		}),
		fyne.NewMenuItem("Manage Presets...", func() {
			a.showManagePresetsDialog()
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Import Preset...", func() {
			a.importPreset()
		}),
		fyne.NewMenuItem("Export Preset...", func() {
			a.showExportPresetDialog()
		}),
	)

	historyMenu := fyne.NewMenu("History",
		fyne.NewMenuItem("View Flash History...", func() {
			a.showHistoryDialog()
		}),
		fyne.NewMenuItem("Export History to Excel...", func() {
			a.exportHistoryXLSX()
		}),
		fyne.NewMenuItem("Export Last Session Report...", func() {
			a.exportLastSessionReport()
		}),
	)

	settingsMenu := fyne.NewMenu("Settings",
		fyne.NewMenuItem("Flash Settings...", func() {
			a.showSettingsDialog()
		}),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", func() {
			a.showAboutDialog()
		}),
	)

	a.window.SetMainMenu(fyne.NewMainMenu(
		fileMenu,
		presetsMenu,
		historyMenu,
		settingsMenu,
		helpMenu,
	))
}

func (a *App) showAboutDialog() {
	dialog.ShowInformation(
		"About ESP32 Flasher",
		"ESP32 Flasher\n\n"+
			"Writes bootloader, partition table, boot_app0 and application\n"+
			"images to an ESP32 using esptool.\n\n"+
			"Version 1.0.0",
		a.window,
	)
}

// Build constructs the full UI, fills it from the loaded configuration and
// returns the root container.
func (a *App) Build() fyne.CanvasObject {
	title := widget.NewLabelWithStyle("ESP32 Flasher", fyne.TextAlignCenter, fyne.TextStyle{Bold: true})

	form := container.NewVBox(
		title,
		a.buildPortSection(),
		a.buildToolSection(),
		a.buildImageSection(),
		a.buildActions(),
	)
	content := container.NewBorder(form, nil, nil, nil, a.buildLogSection())

	for _, line := range a.pending {
		a.logStatus(line)
	}
	a.pending = nil

	a.refreshPorts()
	a.updateFromConfig()
	a.detectTool()

	return fynetooltip.AddWindowToolTipLayer(container.NewPadded(content), a.window.Canvas())
}

// ─── COM Port ──────────────────────────────────────────────

func (a *App) buildPortSection() fyne.CanvasObject {
	a.portSelect = widget.NewSelect(nil, func(port string) {
		a.onPortChanged(port)
	})
	a.portSelect.PlaceHolder = "No ports found"
	a.portInfo = widget.NewLabel("")
	a.portInfo.Importance = widget.LowImportance

	refreshBtn := newButtonWithTooltip("Refresh", theme.ViewRefreshIcon(), "Scan for serial ports again", func() {
		a.refreshPorts()
	})

	row := container.NewBorder(nil, nil, widget.NewLabel("Port:"), refreshBtn, a.portSelect)
	return widget.NewCard("COM Port Selection", "", container.NewVBox(row, a.portInfo))
}

func (a *App) refreshPorts() {
	ports, err := serialport.List(a.opts.Ports)
	if err != nil {
		a.logStatus(fmt.Sprintf("Error: %v", err))
	}
	a.ports = ports
	names := serialport.Names(ports)
	a.portSelect.SetOptions(names)

	selected, changed := serialport.Choose(names, a.config.Port)
	if selected == "" {
		a.portSelect.ClearSelected()
		a.portInfo.SetText("")
	} else {
		a.portSelect.SetSelected(selected)
		if changed {
			a.onPortChanged(selected)
		}
	}
	a.logStatus(fmt.Sprintf("Found %d COM port(s)", len(names)))
}

func (a *App) onPortChanged(port string) {
	a.portInfo.SetText(a.describePort(port))
	if port == "" || port == a.config.Port {
		return
	}
	a.config.Port = port
	a.config.RememberPort(port)
	a.saveConfig()
}

func (a *App) describePort(name string) string {
	for _, p := range a.ports {
		if p.Name == name {
			if p.Description == "" && p.IsUSB {
				return fmt.Sprintf("USB %s:%s", p.VID, p.PID)
			}
			return p.Description
		}
	}
	return ""
}

// ─── esptool ───────────────────────────────────────────────

func (a *App) buildToolSection() fyne.CanvasObject {
	a.toolLabel = widget.NewLabel("Not found")
	a.toolLabel.Importance = widget.DangerImportance
	a.toolLabel.Truncation = fyne.TextTruncateEllipsis

	browse := newButtonWithTooltip("Browse", theme.FolderOpenIcon(), "Select the esptool executable", func() {
		a.selectTool()
	})
	row := container.NewBorder(nil, nil, widget.NewLabel("esptool:"), browse, a.toolLabel)
	return widget.NewCard("ESP Tool Path", "", row)
}

func (a *App) setToolLabel() {
	tool, ok := esptool.ToolFromConfig(a.config.EsptoolPath)
	if !ok {
		a.toolLabel.SetText("Not found")
		a.toolLabel.Importance = widget.DangerImportance
	} else {
		a.toolLabel.SetText(tool.Display())
		a.toolLabel.Importance = widget.SuccessImportance
	}
	a.toolLabel.Refresh()
}

// detectTool searches for esptool in the background when the config does
// not name one.
func (a *App) detectTool() {
	if a.config.EsptoolPath != "" {
		a.setToolLabel()
		return
	}
	a.toolLabel.SetText("Searching...")
	a.toolLabel.Importance = widget.MediumImportance
	a.toolLabel.Refresh()

	locator := a.opts.Locator
	go func() {
		tool, ok := locator.Locate(context.Background())
		fyne.Do(func() {
			if ok && a.config.EsptoolPath == "" {
				a.config.EsptoolPath = tool.Path
				a.logStatus(fmt.Sprintf("Found esptool: %s", tool.Display()))
				a.saveConfig()
			}
			a.setToolLabel()
		})
	}()
}

func (a *App) selectTool() {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		if _, err := os.Stat(path); err != nil {
			dialog.ShowError(errors.New("Selected file does not exist!"), a.window)
			return
		}
		a.config.EsptoolPath = path
		a.setToolLabel()
		a.logStatus(fmt.Sprintf("Selected esptool: %s", path))
		a.saveConfig()
	}, a.window)
	a.setDialogLocation(d, a.config.EsptoolPath)
	d.Show()
}

// ─── Binary Files ──────────────────────────────────────────

func (a *App) buildImageSection() fyne.CanvasObject {
	grid := container.New(layout.NewFormLayout())
	for _, slot := range model.Slots() {
		kind := slot.Kind
		title := widget.NewLabel("")
		a.slotTitles[kind] = title

		name := widget.NewLabel("Not selected")
		name.Importance = widget.LowImportance
		name.Truncation = fyne.TextTruncateEllipsis
		a.imageLabels[kind] = name

		browse := newButtonWithTooltip("Browse", theme.FolderOpenIcon(),
			fmt.Sprintf("Select the image written at %s", slot.OffsetHex()), func() {
				a.selectImage(kind)
			})
		grid.Add(title)
		grid.Add(container.NewBorder(nil, nil, nil, browse, name))
	}
	a.updateSlotTitles()
	return widget.NewCard("Binary Files", "", grid)
}

func (a *App) updateSlotTitles() {
	for _, img := range model.NewFlashPlan(a.config).Images {
		if l, ok := a.slotTitles[img.Slot.Kind]; ok {
			l.SetText(fmt.Sprintf("%s (%s):", img.Slot.FileName, img.Slot.OffsetHex()))
		}
	}
}

func (a *App) updateImageLabels() {
	for kind, l := range a.imageLabels {
		path := a.config.ImagePath(kind)
		if path == "" {
			l.SetText("Not selected")
			l.Importance = widget.LowImportance
		} else {
			l.SetText(filepath.Base(path))
			l.Importance = widget.SuccessImportance
		}
		l.Refresh()
	}
}

func (a *App) selectImage(kind model.SlotKind) {
	d := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		a.config.SetImagePath(kind, path)
		a.updateImageLabels()
		a.logStatus(fmt.Sprintf("Selected %s: %s", slotLogNames[kind], path))
		a.saveConfig()
	}, a.window)

	exts := []string{".bin"}
	if kind == model.SlotApplication {
		exts = append(exts, ".hex", ".ihex")
	}
	d.SetFilter(storage.NewExtensionFileFilter(exts))
	a.setDialogLocation(d, a.config.ImagePath(kind))
	d.Show()
}

// setDialogLocation opens d in the folder of current, or the folder of
// the config file when nothing was selected yet.
func (a *App) setDialogLocation(d *dialog.FileDialog, current string) {
	dir := filepath.Dir(a.opts.ConfigPath)
	if current != "" && filepath.IsAbs(current) {
		dir = filepath.Dir(current)
	}
	if _, err := os.Stat(dir); err != nil {
		return
	}
	if lister, err := storage.ListerForURI(storage.NewFileURI(dir)); err == nil {
		d.SetLocation(lister)
	}
}

// updateFromConfig pushes the loaded configuration into the widgets.
func (a *App) updateFromConfig() {
	a.updateSlotTitles()
	a.updateImageLabels()
	a.setToolLabel()
	if a.config.HasAnyImage() {
		a.logStatus("Configuration loaded from " + filepath.Base(a.opts.ConfigPath))
	}
}

// ─── Flash ─────────────────────────────────────────────────

func (a *App) buildActions() fyne.CanvasObject {
	a.flashBtn = widget.NewButtonWithIcon("Flash ESP32", theme.UploadIcon(), func() {
		a.startFlash()
	})
	a.flashBtn.Importance = widget.HighImportance

	a.cancelBtn = widget.NewButtonWithIcon("Cancel", theme.CancelIcon(), func() {
		if a.cancel != nil {
			a.cancel()
		}
	})
	a.cancelBtn.Disable()

	a.progress = widget.NewProgressBar()
	a.progress.Max = 100

	buttons := container.NewHBox(layout.NewSpacer(), a.flashBtn, a.cancelBtn, layout.NewSpacer())
	return container.NewVBox(buttons, a.progress)
}

func (a *App) startFlash() {
	if a.cancel != nil {
		return
	}
	plan := model.NewFlashPlan(a.config)
	if err := plan.Validate(); err != nil {
		dialog.ShowError(err, a.window)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.flashBtn.Disable()
	a.cancelBtn.Enable()
	a.progress.SetValue(0)

	go func() {
		session, err := a.flasher.Flash(ctx, plan)
		cancel()
		fyne.Do(func() { a.flashFinished(session, err) })
	}()
}

func (a *App) flashFinished(session model.FlashSession, err error) {
	a.cancel = nil
	a.flashBtn.Enable()
	a.cancelBtn.Disable()
	if session.ID != "" {
		a.lastSession = &session
	}

	var exitErr *esptool.ExitError
	var toolErr *esptool.ToolError
	var validationErr *model.ValidationError
	switch {
	case err == nil:
		dialog.ShowInformation("Success", "ESP32 flashed successfully!", a.window)
	case errors.Is(err, context.Canceled):
		a.progress.SetValue(0)
	case errors.As(err, &exitErr):
		dialog.ShowError(errors.New("Flash process failed. Check the output above."), a.window)
	case errors.As(err, &toolErr), errors.As(err, &validationErr):
		dialog.ShowError(err, a.window)
	default:
		dialog.ShowError(fmt.Errorf("An error occurred:\n%v", err), a.window)
	}
}

// ─── Status Log ────────────────────────────────────────────

func (a *App) buildLogSection() fyne.CanvasObject {
	a.logGrid = widget.NewTextGrid()
	a.logScroll = container.NewScroll(a.logGrid)
	a.logScroll.SetMinSize(fyne.NewSize(0, 180))
	return widget.NewCard("Status Log", "", a.logScroll)
}

// logStatus appends a line to the status log. It must run on the UI
// goroutine; background work goes through fyne.Do.
func (a *App) logStatus(message string) {
	glog.V(2).Info(message)
	if a.logGrid == nil {
		a.pending = append(a.pending, message)
		return
	}
	before := a.log.Len()
	replaced := a.log.Append(message)
	if replaced || a.log.Len() > before {
		a.logGrid.SetRow(a.log.Len()-1, textGridRow(message))
	} else {
		// old lines were dropped, every row moved
		a.logGrid.SetText(a.log.Text())
	}
	a.logScroll.ScrollToBottom()
}

func (a *App) clearLog() {
	a.log.Clear()
	a.logGrid.Rows = nil
	a.logGrid.Refresh()
}

func textGridRow(text string) widget.TextGridRow {
	cells := make([]widget.TextGridCell, 0, len(text))
	for _, r := range text {
		cells = append(cells, widget.TextGridCell{Rune: r})
	}
	return widget.TextGridRow{Cells: cells}
}

// saveConfig persists the config. A failure is reported in the status log
// and does not interrupt the action that triggered it.
func (a *App) saveConfig() {
	if err := project.SaveAppConfig(a.opts.ConfigPath, a.config); err != nil {
		glog.Warningf("saving config: %v", err)
		a.logStatus(fmt.Sprintf("Warning: Could not save config: %v", err))
	}
}
