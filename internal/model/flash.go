package model

import (
	"errors"
	"fmt"
)

// SlotKind identifies one of the four fixed flash images.
type SlotKind int

const (
	SlotBootloader SlotKind = iota
	SlotPartitions
	SlotBootApp0
	SlotApplication
)

func (k SlotKind) String() string {
	switch k {
	case SlotBootloader:
		return "Bootloader"
	case SlotPartitions:
		return "Partitions"
	case SlotBootApp0:
		return "Boot App0"
	case SlotApplication:
		return "Application"
	default:
		return "Unknown"
	}
}

// ImageSlot describes where an image is written and how it is presented.
type ImageSlot struct {
	Kind     SlotKind
	Offset   uint32
	FileName string // conventional file name shown in the UI
	Missing  string // validation message when no file is selected
}

// OffsetHex formats the offset the way esptool expects it.
func (s ImageSlot) OffsetHex() string {
	return fmt.Sprintf("0x%x", s.Offset)
}

var slots = []ImageSlot{
	{Kind: SlotBootloader, Offset: 0x1000, FileName: "Bootloader.bin", Missing: "Please select bootloader.bin file"},
	{Kind: SlotPartitions, Offset: 0x8000, FileName: "Partitions.bin", Missing: "Please select partitions.bin file"},
	{Kind: SlotBootApp0, Offset: 0xe000, FileName: "boot_app0.bin", Missing: "Please select boot_app0.bin file"},
	{Kind: SlotApplication, Offset: 0x10000, FileName: DefaultAppLabel, Missing: "Please select " + DefaultAppLabel + " file"},
}

// Slots returns the four image slots in ascending offset order.
func Slots() []ImageSlot {
	out := make([]ImageSlot, len(slots))
	copy(out, slots)
	return out
}

// SlotFor returns the slot definition for kind.
func SlotFor(kind SlotKind) ImageSlot {
	for _, s := range slots {
		if s.Kind == kind {
			return s
		}
	}
	return ImageSlot{Kind: kind}
}

// FlashOptions are the esptool parameters that are not image paths.
type FlashOptions struct {
	Chip      string
	Baud      int
	Before    string
	After     string
	FlashMode string
	FlashFreq string
	FlashSize string
	Compress  bool
	ExtraArgs string
}

// Image pairs a slot with the file selected for it.
type Image struct {
	Slot ImageSlot
	Path string
}

// FlashPlan is everything needed to assemble one esptool invocation.
type FlashPlan struct {
	Port     string
	ToolPath string
	Options  FlashOptions
	Images   []Image
}

// ErrMissingInput is wrapped by every validation failure of a FlashPlan.
var ErrMissingInput = errors.New("missing input")

// ValidationError carries the user-facing message for a missing input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrMissingInput }

// NewFlashPlan builds a plan from the config, with images in offset order.
// A non-empty appLabel replaces the application slot's display name.
func NewFlashPlan(cfg AppConfig) FlashPlan {
	plan := FlashPlan{
		Port:     cfg.Port,
		ToolPath: cfg.EsptoolPath,
		Options:  cfg.Options(),
	}
	for _, s := range Slots() {
		if s.Kind == SlotApplication && cfg.AppLabel != "" {
			s.FileName = cfg.AppLabel
			s.Missing = "Please select " + cfg.AppLabel + " file"
		}
		plan.Images = append(plan.Images, Image{Slot: s, Path: cfg.ImagePath(s.Kind)})
	}
	return plan
}

// Validate reports the first missing input in the order the form presents
// them: port, the four images, then the tool.
func (p FlashPlan) Validate() error {
	if p.Port == "" {
		return &ValidationError{Message: "Please select a COM port"}
	}
	for _, img := range p.Images {
		if img.Path == "" {
			return &ValidationError{Message: img.Slot.Missing}
		}
	}
	if p.ToolPath == "" {
		return &ValidationError{Message: "Please select esptool.exe path"}
	}
	if p.Options.Baud <= 0 {
		return &ValidationError{Message: "Baud rate must be > 0"}
	}
	return nil
}

// Image returns the image for a slot kind.
func (p FlashPlan) Image(kind SlotKind) (Image, bool) {
	for _, img := range p.Images {
		if img.Slot.Kind == kind {
			return img, true
		}
	}
	return Image{}, false
}
