package firmware

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/marcinbor85/gohex"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

// IsIntelHex reports whether path names an Intel HEX file.
func IsIntelHex(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".hex" || ext == ".ihex"
}

// HexToBinary converts an Intel HEX file into a flat image starting at the
// lowest address it contains. Gaps are filled with 0xFF (erased flash).
func HexToBinary(path string) ([]byte, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(f); err != nil {
		return nil, 0, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, 0, fmt.Errorf("%s contains no data", filepath.Base(path))
	}
	start := segments[0].Address
	end := start
	for _, s := range segments {
		if s.Address < start {
			start = s.Address
		}
		if e := s.Address + uint32(len(s.Data)); e > end {
			end = e
		}
	}
	return mem.ToBinary(start, end-start, 0xFF), start, nil
}

// PrepareImages returns a copy of plan in which Intel HEX images have been
// converted to .bin files inside dir. The returned paths are the files
// created; the caller removes them after flashing.
func PrepareImages(plan model.FlashPlan, dir string) (model.FlashPlan, []string, error) {
	out := plan
	out.Images = make([]model.Image, len(plan.Images))
	copy(out.Images, plan.Images)

	var created []string
	for i, img := range out.Images {
		if !IsIntelHex(img.Path) {
			continue
		}
		data, base, err := HexToBinary(img.Path)
		if err != nil {
			return plan, created, err
		}
		if base != 0 && base != img.Slot.Offset {
			glog.Warningf("%s starts at 0x%x, flashing it at %s", img.Path, base, img.Slot.OffsetHex())
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return plan, created, err
		}
		name := strings.TrimSuffix(filepath.Base(img.Path), filepath.Ext(img.Path)) + ".bin"
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, data, 0644); err != nil {
			return plan, created, fmt.Errorf("writing converted image: %w", err)
		}
		created = append(created, target)
		out.Images[i].Path = target
	}
	return out, created, nil
}
