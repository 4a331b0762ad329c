// Package firmware performs pre-flight checks on the image files before
// they are handed to esptool: sizes, hashes, slot overlap and a few
// format sanity checks.
package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/piwi3910/esp32-flasher/internal/model"
)

// ImageMagic is the first byte of every ESP32 bootloader and app image.
const ImageMagic = 0xE9

// partitionSectorSize is the flash sector reserved for the partition table.
const partitionSectorSize = 0x1000

// ImageInfo describes one image file.
type ImageInfo struct {
	Slot   model.ImageSlot
	Path   string
	Size   int64
	SHA256 string
	First  byte // first byte of the file
}

// End returns the first flash address after the image.
func (i ImageInfo) End() uint32 {
	return i.Slot.Offset + uint32(i.Size)
}

// Record converts the info into a history record.
func (i ImageInfo) Record() model.ImageRecord {
	return model.ImageRecord{
		Slot:   i.Slot.Kind.String(),
		Offset: i.Slot.OffsetHex(),
		Path:   i.Path,
		Size:   i.Size,
		SHA256: i.SHA256,
	}
}

// Report is the result of inspecting a flash plan.
type Report struct {
	Images     []ImageInfo
	Partitions []Partition
	Warnings   []string
}

// Records returns the history records of all images.
func (r Report) Records() []model.ImageRecord {
	out := make([]model.ImageRecord, len(r.Images))
	for i, img := range r.Images {
		out[i] = img.Record()
	}
	return out
}

// ReadImage stats and hashes one image file.
func ReadImage(slot model.ImageSlot, path string) (ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%s image %s: %w", slot.Kind, filepath.Base(path), err)
	}
	defer f.Close()

	h := sha256.New()
	first := make([]byte, 1)
	n, err := io.ReadFull(f, first)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return ImageInfo{}, fmt.Errorf("%s image %s: %w", slot.Kind, filepath.Base(path), err)
	}
	if n == 0 {
		return ImageInfo{}, fmt.Errorf("%s image %s is empty", slot.Kind, filepath.Base(path))
	}
	h.Write(first)
	rest, err := io.Copy(h, f)
	if err != nil {
		return ImageInfo{}, fmt.Errorf("%s image %s: %w", slot.Kind, filepath.Base(path), err)
	}
	return ImageInfo{
		Slot:   slot,
		Path:   path,
		Size:   rest + 1,
		SHA256: hex.EncodeToString(h.Sum(nil)),
		First:  first[0],
	}, nil
}

// Inspect reads every image of plan. Unreadable or empty files and images
// that run into the next slot are errors; format oddities are returned as
// warnings because esptool will write whatever it is given.
func Inspect(plan model.FlashPlan) (Report, error) {
	var rep Report
	for _, img := range plan.Images {
		info, err := ReadImage(img.Slot, img.Path)
		if err != nil {
			return rep, err
		}
		rep.Images = append(rep.Images, info)
	}

	for i := 0; i+1 < len(rep.Images); i++ {
		cur, next := rep.Images[i], rep.Images[i+1]
		if cur.End() > next.Slot.Offset {
			return rep, fmt.Errorf("%s image (%d bytes at %s) overlaps %s at %s",
				cur.Slot.Kind, cur.Size, cur.Slot.OffsetHex(), next.Slot.Kind, next.Slot.OffsetHex())
		}
	}

	for _, info := range rep.Images {
		switch info.Slot.Kind {
		case model.SlotBootloader, model.SlotApplication:
			if info.First != ImageMagic {
				rep.Warnings = append(rep.Warnings, fmt.Sprintf(
					"%s does not look like an ESP32 image (first byte 0x%02x, expected 0x%02x)",
					filepath.Base(info.Path), info.First, ImageMagic))
			}
		case model.SlotPartitions:
			rep.checkPartitions(info, plan)
		}
	}
	return rep, nil
}

func (rep *Report) checkPartitions(info ImageInfo, plan model.FlashPlan) {
	if info.Size > partitionSectorSize {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s is %d bytes, larger than a partition table",
			filepath.Base(info.Path), info.Size))
	}
	data, err := os.ReadFile(info.Path)
	if err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("could not read %s: %v", filepath.Base(info.Path), err))
		return
	}
	parts, err := ParsePartitionTable(data)
	if err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("%s: %v", filepath.Base(info.Path), err))
		return
	}
	rep.Partitions = parts

	app, ok := plan.Image(model.SlotApplication)
	if !ok {
		return
	}
	part, ok := AppPartitionAt(parts, app.Slot.Offset)
	if !ok {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("partition table has no app partition at %s", app.Slot.OffsetHex()))
		return
	}
	for _, img := range rep.Images {
		if img.Slot.Kind == model.SlotApplication && img.Size > int64(part.Size) {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("application is %d bytes but partition %q holds only %d",
				img.Size, part.Label, part.Size))
		}
	}
}
