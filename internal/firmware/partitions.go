package firmware

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ESP partition table entry layout (esp_partition_info_t).
const (
	PartitionMagic     uint16 = 0x50aa
	partitionEntrySize        = 32
	maxPartitions             = 95 // 0xC00 bytes of table space
)

// Partition types.
const (
	PartitionTypeApp  uint8 = 0x00
	PartitionTypeData uint8 = 0x01
)

// Partition is one entry of an ESP partition table.
type Partition struct {
	Type    uint8
	Subtype uint8
	Offset  uint32
	Size    uint32
	Label   string
	Flags   uint32
}

// TypeName returns a readable partition type.
func (p Partition) TypeName() string {
	switch p.Type {
	case PartitionTypeApp:
		switch {
		case p.Subtype == 0x00:
			return "app/factory"
		case p.Subtype >= 0x10 && p.Subtype <= 0x1f:
			return fmt.Sprintf("app/ota_%d", p.Subtype-0x10)
		case p.Subtype == 0x20:
			return "app/test"
		}
		return fmt.Sprintf("app/0x%02x", p.Subtype)
	case PartitionTypeData:
		switch p.Subtype {
		case 0x00:
			return "data/ota"
		case 0x01:
			return "data/phy"
		case 0x02:
			return "data/nvs"
		case 0x03:
			return "data/coredump"
		case 0x81:
			return "data/fat"
		case 0x82:
			return "data/spiffs"
		case 0x83:
			return "data/littlefs"
		}
		return fmt.Sprintf("data/0x%02x", p.Subtype)
	}
	return fmt.Sprintf("0x%02x/0x%02x", p.Type, p.Subtype)
}

type rawPartition struct {
	Magic   uint16
	Type    uint8
	Subtype uint8
	Offset  uint32
	Size    uint32
	Label   [16]byte
	Flags   uint32
}

// ErrNotPartitionTable is returned when data does not start with a
// partition entry.
var ErrNotPartitionTable = errors.New("not an ESP partition table")

// ParsePartitionTable decodes the entries of a partitions.bin image. It
// stops at the first entry without the partition magic (the MD5 entry or
// erased flash).
func ParsePartitionTable(data []byte) ([]Partition, error) {
	var parts []Partition
	r := bytes.NewReader(data)
	for i := 0; i < maxPartitions && r.Len() >= partitionEntrySize; i++ {
		var raw rawPartition
		if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
			return nil, fmt.Errorf("reading partition entry %d: %w", i, err)
		}
		if raw.Magic != PartitionMagic {
			break
		}
		parts = append(parts, Partition{
			Type:    raw.Type,
			Subtype: raw.Subtype,
			Offset:  raw.Offset,
			Size:    raw.Size,
			Label:   strings.TrimRight(string(raw.Label[:]), "\x00"),
			Flags:   raw.Flags,
		})
	}
	if len(parts) == 0 {
		return nil, ErrNotPartitionTable
	}
	return parts, nil
}

// AppPartitionAt returns the app partition starting at offset.
func AppPartitionAt(parts []Partition, offset uint32) (Partition, bool) {
	for _, p := range parts {
		if p.Type == PartitionTypeApp && p.Offset == offset {
			return p, true
		}
	}
	return Partition{}, false
}

// EncodePartitionTable is the inverse of ParsePartitionTable. The table is
// terminated with erased (0xFF) bytes.
func EncodePartitionTable(parts []Partition) []byte {
	out := make([]byte, 0, (len(parts)+1)*partitionEntrySize)
	for _, p := range parts {
		var label [16]byte
		copy(label[:], p.Label)
		out = binary.LittleEndian.AppendUint16(out, PartitionMagic)
		out = append(out, p.Type, p.Subtype)
		out = binary.LittleEndian.AppendUint32(out, p.Offset)
		out = binary.LittleEndian.AppendUint32(out, p.Size)
		out = append(out, label[:]...)
		out = binary.LittleEndian.AppendUint32(out, p.Flags)
	}
	return append(out, bytes.Repeat([]byte{0xff}, partitionEntrySize)...)
}
