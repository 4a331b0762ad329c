// esp32-flash flashes an ESP32 from the command line using the
// configuration saved by the desktop flasher. Flags override single
// settings for one run without changing the saved file.
//
// Examples:
//   esp32-flash --list-ports
//   esp32-flash --port COM5 --app build/LoRaController.ino.bin
//   esp32-flash --dry-run
package main

import (
	"context"
	"errors"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/golang/glog"
	flag "github.com/spf13/pflag"

	"github.com/piwi3910/esp32-flasher/internal/esptool"
	"github.com/piwi3910/esp32-flasher/internal/flasher"
	"github.com/piwi3910/esp32-flasher/internal/model"
	"github.com/piwi3910/esp32-flasher/internal/project"
	"github.com/piwi3910/esp32-flasher/internal/serialport"
)

const (
	exitOK        = 0
	exitError     = 1
	exitUsage     = 2
	exitCancelled = 130
)

// glog registers these on the standard flag set; they stay usable but are
// left out of --help.
var hiddenFlags = []string{
	"alsologtostderr",
	"log_backtrace_at",
	"log_dir",
	"logtostderr",
	"stderrthreshold",
	"v",
	"vmodule",
}

type cli struct {
	stdout, stderr io.Writer
	ports          serialport.Source
	probe          esptool.ProbeFunc
	runner         *esptool.Runner

	configPath  string
	historyPath string
	port        string
	tool        string
	images      map[model.SlotKind]*string
	chip        string
	baud        int
	listPorts   bool
	dryRun      bool
	noColor     bool
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{
		stdout: stdout,
		stderr: stderr,
		ports:  serialport.System,
		images: make(map[model.SlotKind]*string),
	}
}

func (c *cli) flagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("esp32-flash", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.StringVar(&c.configPath, "config", "", "Config file (default: the desktop flasher's config.json)")
	fs.StringVar(&c.historyPath, "history", "", "Flash history file (default: next to the config)")
	fs.StringVarP(&c.port, "port", "p", "", "Serial port to flash")
	fs.StringVar(&c.tool, "tool", "", "Path to esptool")
	for _, s := range model.Slots() {
		name := strings.ToLower(strings.ReplaceAll(s.Kind.String(), " ", "-"))
		if s.Kind == model.SlotApplication {
			name = "app"
		}
		c.images[s.Kind] = fs.String(name, "", fmt.Sprintf("Image written at %s", s.OffsetHex()))
	}
	fs.StringVar(&c.chip, "chip", "", "Chip type passed to esptool")
	fs.IntVarP(&c.baud, "baud", "b", 0, "Baud rate")
	fs.BoolVar(&c.listPorts, "list-ports", false, "List serial ports and exit")
	fs.BoolVar(&c.dryRun, "dry-run", false, "Print the esptool command line without flashing")
	fs.BoolVar(&c.noColor, "no-color", false, "Disable colored output")

	fs.AddGoFlagSet(goflag.CommandLine)
	for _, f := range hiddenFlags {
		fs.MarkHidden(f)
	}
	return fs
}

func main() {
	c := newCLI(os.Stdout, os.Stderr)
	code := c.run(os.Args[1:])
	glog.Flush()
	os.Exit(code)
}

func (c *cli) run(args []string) int {
	fs := c.flagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if c.noColor {
		color.NoColor = true
	}

	if c.listPorts {
		return c.printPorts()
	}

	if c.configPath == "" {
		c.configPath = project.DefaultConfigPath()
	}
	if c.historyPath == "" {
		c.historyPath = filepath.Join(filepath.Dir(c.configPath), "history.json")
	}
	cfg, err := project.LoadAppConfig(c.configPath)
	if err != nil {
		c.errorf("Error: could not load config %s: %v", c.configPath, err)
		return exitError
	}
	if err := c.applyOverrides(&cfg); err != nil {
		c.errorf("Error: %v", err)
		return exitUsage
	}
	plan := model.NewFlashPlan(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	f := &flasher.Flasher{
		Runner:      c.runner,
		Probe:       c.probe,
		HistoryPath: c.historyPath,
		Log:         c.logLine,
	}

	if c.dryRun {
		return c.printCommand(ctx, f, plan)
	}

	_, err = f.Flash(ctx, plan)
	return c.exitCode(err)
}

// applyOverrides copies the flags given on the command line into cfg.
func (c *cli) applyOverrides(cfg *model.AppConfig) error {
	if c.port != "" {
		cfg.Port = c.port
	}
	if c.tool != "" {
		// A bare name such as "esptool.py" is looked up on PATH.
		cfg.EsptoolPath = c.tool
		if filepath.Base(c.tool) != c.tool {
			cfg.EsptoolPath = absPath(c.tool)
		}
	}
	for kind, p := range c.images {
		if *p != "" {
			cfg.SetImagePath(kind, absPath(*p))
		}
	}
	if c.chip != "" {
		cfg.Chip = c.chip
	}
	if c.baud < 0 {
		return fmt.Errorf("baud rate must be a positive number, got %d", c.baud)
	}
	if c.baud > 0 {
		cfg.Baud = c.baud
	}
	return nil
}

func (c *cli) printPorts() int {
	ports, err := serialport.List(c.ports)
	if err != nil {
		c.errorf("Error: %v", err)
		return exitError
	}
	if len(ports) == 0 {
		color.New(color.FgYellow).Fprintln(c.stdout, "No serial ports found")
		return exitOK
	}
	for _, p := range ports {
		desc := p.Description
		if desc == "" && p.IsUSB {
			desc = fmt.Sprintf("USB %s:%s", p.VID, p.PID)
		}
		if desc == "" {
			fmt.Fprintln(c.stdout, p.Name)
			continue
		}
		fmt.Fprintf(c.stdout, "%-16s %s\n", p.Name, desc)
	}
	return exitOK
}

func (c *cli) printCommand(ctx context.Context, f *flasher.Flasher, plan model.FlashPlan) int {
	job, err := f.Prepare(ctx, plan)
	if err != nil {
		c.errorf("Error: %v", err)
		var validationErr *model.ValidationError
		if errors.As(err, &validationErr) {
			return exitUsage
		}
		return exitError
	}
	defer job.Close()
	for _, w := range job.Report.Warnings {
		c.logLine("Warning: " + w)
	}
	fmt.Fprintln(c.stdout, job.CommandLine())
	return exitOK
}

// exitCode maps the result of a flash to the process exit status. A failed
// esptool run passes its own code through.
func (c *cli) exitCode(err error) int {
	var exitErr *esptool.ExitError
	var toolErr *esptool.ToolError
	var validationErr *model.ValidationError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.As(err, &exitErr):
		if exitErr.Code > 0 {
			return exitErr.Code
		}
		return exitError
	case errors.As(err, &validationErr):
		// Flash does not log these.
		c.errorf("Error: %v", err)
		return exitUsage
	case errors.As(err, &toolErr):
		c.errorf("Error: %v", err)
		return exitError
	default:
		return exitError
	}
}

// logLine prints a status line, colored by what it reports.
func (c *cli) logLine(line string) {
	switch {
	case line == "Flash completed successfully!":
		color.New(color.FgGreen, color.Bold).Fprintln(c.stdout, line)
	case strings.HasPrefix(line, "Flash failed"), strings.HasPrefix(line, "Error:"):
		color.New(color.FgRed).Fprintln(c.stdout, line)
	case strings.HasPrefix(line, "Warning:"), line == "Flash cancelled":
		color.New(color.FgYellow).Fprintln(c.stdout, line)
	case line == flasher.Separator:
		color.New(color.FgCyan).Fprintln(c.stdout, line)
	default:
		fmt.Fprintln(c.stdout, line)
	}
}

func (c *cli) errorf(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(c.stderr, format+"\n", args...)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
