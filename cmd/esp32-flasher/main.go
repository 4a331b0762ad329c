// ESP32 Flasher: desktop front end for esptool
//
// Writes the bootloader, partition table, boot_app0 and application
// images of an Arduino ESP32 build to a board on a serial port.
//
// Build:
//   go build -o esp32-flasher ./cmd/esp32-flasher
//
// Cross-compile:
//   GOOS=windows GOARCH=amd64 go build -o esp32-flasher.exe ./cmd/esp32-flasher
//   GOOS=darwin  GOARCH=amd64 go build -o esp32-flasher-darwin ./cmd/esp32-flasher
//
// Using fyne-cross (recommended for proper packaging):
//   go install github.com/fyne-io/fyne-cross@latest
//   fyne-cross windows -arch=amd64
//   fyne-cross darwin  -arch=amd64,arm64

package main

import (
	goflag "flag"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/golang/glog"
	flag "github.com/spf13/pflag"

	"github.com/piwi3910/esp32-flasher/internal/ui"
)

var (
	configPath  = flag.String("config", "", "Config file (default: config.json next to the executable)")
	presetsPath = flag.String("presets", "", "Firmware presets file")
	historyPath = flag.String("history", "", "Flash history file")
)

func main() {
	flag.CommandLine.AddGoFlagSet(goflag.CommandLine)
	flag.Parse()
	defer glog.Flush()

	application := app.NewWithID("com.piwi3910.esp32flasher")
	window := application.NewWindow("ESP32 Flasher Tool")

	appUI := ui.NewApp(application, window, ui.Options{
		ConfigPath:  *configPath,
		PresetsPath: *presetsPath,
		HistoryPath: *historyPath,
	})
	appUI.SetupMenus()
	window.SetContent(appUI.Build())
	window.Resize(fyne.NewSize(800, 750))
	window.CenterOnScreen()
	window.ShowAndRun()
}
