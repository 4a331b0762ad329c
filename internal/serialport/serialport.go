// Package serialport lists the serial ports an ESP32 may be attached to and
// guards a port against concurrent flashing.
package serialport

import (
	"sort"
	"strings"

	"github.com/albenik/go-serial/v2"
	"github.com/albenik/go-serial/v2/enumerator"
	"github.com/golang/glog"
)

// Port describes one serial port.
type Port struct {
	Name        string
	IsUSB       bool
	VID         string
	PID         string
	Serial      string
	Description string // known USB-UART bridge, empty otherwise
}

// Label is the text shown in the port selector.
func (p Port) Label() string {
	if p.Description == "" {
		return p.Name
	}
	return p.Name + " (" + p.Description + ")"
}

// LikelyESP32 reports whether the port sits behind a bridge commonly found
// on ESP32 boards.
func (p Port) LikelyESP32() bool {
	return p.Description != ""
}

// usbBridges maps "VID:PID" (upper case) to a bridge description.
var usbBridges = map[string]string{
	"10C4:EA60": "CP210x",
	"10C4:EA70": "CP2105",
	"1A86:7523": "CH340",
	"1A86:55D4": "CH9102",
	"1A86:55D3": "CH343",
	"0403:6001": "FTDI FT232",
	"0403:6010": "FTDI FT2232",
	"0403:6015": "FTDI FT231X",
	"303A:1001": "ESP32 USB-JTAG",
	"303A:0002": "ESP32-S2 USB",
}

// DescribeUSB returns the bridge name for a VID/PID pair.
func DescribeUSB(vid, pid string) string {
	return usbBridges[strings.ToUpper(vid)+":"+strings.ToUpper(pid)]
}

// Source enumerates ports; the package default uses the OS.
type Source func() ([]Port, error)

// System enumerates ports with USB details where the platform provides
// them, falling back to plain port names.
func System() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		ports := make([]Port, 0, len(details))
		for _, d := range details {
			p := Port{Name: d.Name, IsUSB: d.IsUSB}
			if d.IsUSB {
				p.VID = d.VID
				p.PID = d.PID
				p.Serial = d.SerialNumber
				p.Description = DescribeUSB(d.VID, d.PID)
			}
			ports = append(ports, p)
		}
		return ports, nil
	}
	glog.V(1).Infof("detailed port enumeration failed, using names only: %v", err)

	names, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]Port, 0, len(names))
	for _, n := range names {
		ports = append(ports, Port{Name: n})
	}
	return ports, nil
}

// List returns the ports from src sorted by name, with duplicates removed.
// A nil src means System.
func List(src Source) ([]Port, error) {
	if src == nil {
		src = System
	}
	ports, err := src()
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	out := ports[:0]
	for _, p := range ports {
		if p.Name == "" || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return naturalLess(out[i].Name, out[j].Name)
	})
	return out, nil
}

// Names returns the port names in order.
func Names(ports []Port) []string {
	names := make([]string, len(ports))
	for i, p := range ports {
		names[i] = p.Name
	}
	return names
}

// Choose picks the port to select after a refresh: the saved port if it is
// still present, otherwise the first one. changed reports whether the
// choice differs from saved and should be persisted.
func Choose(names []string, saved string) (selected string, changed bool) {
	if len(names) == 0 {
		return "", false
	}
	for _, n := range names {
		if n == saved {
			return saved, false
		}
	}
	return names[0], names[0] != saved
}

// naturalLess orders COM2 before COM10.
func naturalLess(a, b string) bool {
	pa, na := splitNumericSuffix(a)
	pb, nb := splitNumericSuffix(b)
	if pa != pb || na < 0 || nb < 0 {
		return a < b
	}
	return na < nb
}

func splitNumericSuffix(s string) (string, int) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) || len(s)-i > 9 {
		return s, -1
	}
	n := 0
	for _, c := range s[i:] {
		n = n*10 + int(c-'0')
	}
	return s[:i], n
}
