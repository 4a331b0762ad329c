package esptool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/golang/glog"
	goversion "github.com/mcuadros/go-version"
)

// Arduino board vendors that ship their own esptool copy.
var arduinoVendors = []string{"heltec", "espressif"}

// Locator searches the usual installation places of esptool. Its fields
// default to the current OS and user; tests point them at temp dirs.
type Locator struct {
	Home          string
	Drives        []string // Windows drive roots whose Users folders are scanned
	Arduino15Dirs []string
	PathNames     []string // command names tried on PATH
	ExeNames      []string // file names accepted inside Arduino folders
	LookPath      func(string) (string, error)
	Probe         ProbeFunc
	Stat          func(string) (os.FileInfo, error)
}

// NewLocator returns a Locator configured for the running system.
func NewLocator() *Locator {
	home, _ := os.UserHomeDir()
	l := &Locator{
		Home:      home,
		PathNames: []string{"esptool.py", "esptool"},
		LookPath:  exec.LookPath,
		Probe:     Probe,
		Stat:      os.Stat,
	}
	switch runtime.GOOS {
	case "windows":
		l.Drives = []string{`C:\`, `D:\`}
		l.ExeNames = []string{"esptool.exe"}
		l.PathNames = append(l.PathNames, "esptool.exe")
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			l.Arduino15Dirs = append(l.Arduino15Dirs, filepath.Join(local, "Arduino15"))
		}
	case "darwin":
		l.ExeNames = []string{"esptool", "esptool.py"}
		l.Arduino15Dirs = []string{filepath.Join(home, "Library", "Arduino15")}
	default:
		l.ExeNames = []string{"esptool", "esptool.py"}
		l.Arduino15Dirs = []string{filepath.Join(home, ".arduino15")}
	}
	return l
}

// Locate returns the first usable esptool: PATH first, then the Arduino
// hardware folders, then Arduino15 board packages (newest version first).
func (l *Locator) Locate(ctx context.Context) (Tool, bool) {
	for _, name := range l.PathNames {
		if _, err := l.LookPath(name); err != nil {
			continue
		}
		v, err := l.Probe(ctx, name)
		if err != nil {
			glog.V(1).Infof("%s on PATH failed --version: %v", name, err)
			continue
		}
		return Tool{Path: name, FromPATH: true, Version: v}, true
	}

	for _, path := range l.Candidates() {
		if info, err := l.Stat(path); err == nil && !info.IsDir() {
			glog.V(1).Infof("found esptool at %s", path)
			return Tool{Path: path}, true
		}
	}
	return Tool{}, false
}

// Candidates lists the file locations checked by Locate, in order.
func (l *Locator) Candidates() []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	if l.Home != "" {
		for _, vendor := range arduinoVendors {
			for _, exe := range l.ExeNames {
				add(filepath.Join(l.Home, "Documents", "Arduino", "hardware", vendor, "esp32", "tools", "esptool", exe))
			}
		}
	}

	for _, drive := range l.Drives {
		users, err := os.ReadDir(filepath.Join(drive, "Users"))
		if err != nil {
			continue
		}
		for _, u := range users {
			if !u.IsDir() {
				continue
			}
			hw := filepath.Join(drive, "Users", u.Name(), "Documents", "Arduino", "hardware")
			for _, vendor := range arduinoVendors {
				for _, exe := range l.ExeNames {
					add(filepath.Join(hw, vendor, "esp32", "tools", "esptool", exe))
				}
			}
		}
	}

	for _, dir := range l.Arduino15Dirs {
		for _, vendor := range []string{"esp32", "heltec", "espressif"} {
			base := filepath.Join(dir, "packages", vendor, "tools", "esptool_py")
			for _, v := range sortedVersionDirs(base) {
				for _, exe := range l.ExeNames {
					add(filepath.Join(base, v, exe))
				}
			}
		}
	}
	return out
}

// sortedVersionDirs returns the version-named subdirectories of dir,
// newest first.
func sortedVersionDirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if e.IsDir() {
			versions = append(versions, e.Name())
		}
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return goversion.Compare(versions[i], versions[j], ">")
	})
	return versions
}
