package model

import "testing"

func TestNewFirmwarePreset(t *testing.T) {
	cfg := completeConfig()
	p := NewFirmwarePreset("Gateway v2", "LoRa gateway", cfg)

	if p.ID == "" {
		t.Error("expected non-empty ID")
	}
	if p.CreatedAt == "" {
		t.Error("expected non-empty CreatedAt")
	}
	if p.BootloaderPath != cfg.BootloaderPath || p.AppBinPath != cfg.AppBinPath {
		t.Error("preset did not capture image paths")
	}
}

func TestFirmwarePresetApplyTo(t *testing.T) {
	src := completeConfig()
	src.AppLabel = "Node.ino.bin"
	p := NewFirmwarePreset("Node", "", src)

	dst := DefaultAppConfig()
	dst.Port = "COM9"
	p.ApplyTo(&dst)

	if dst.Port != "COM9" {
		t.Errorf("port should be untouched, got %s", dst.Port)
	}
	if dst.PartitionsPath != src.PartitionsPath {
		t.Errorf("expected partitions %s, got %s", src.PartitionsPath, dst.PartitionsPath)
	}
	if dst.AppLabel != "Node.ino.bin" {
		t.Errorf("expected app label to follow preset, got %s", dst.AppLabel)
	}
}

func TestPresetStoreAddReplacesByName(t *testing.T) {
	store := NewPresetStore()
	first := NewFirmwarePreset("Gateway", "v1", completeConfig())
	store.Add(first)

	second := NewFirmwarePreset("Gateway", "v2", completeConfig())
	store.Add(second)

	if len(store.Presets) != 1 {
		t.Fatalf("expected 1 preset, got %d", len(store.Presets))
	}
	if store.Presets[0].Description != "v2" {
		t.Errorf("expected replaced description, got %s", store.Presets[0].Description)
	}
	if store.Presets[0].ID != first.ID {
		t.Error("replacement should keep the original ID")
	}
}

func TestPresetStoreRemoveAndFind(t *testing.T) {
	store := NewPresetStore()
	a := NewFirmwarePreset("A", "", completeConfig())
	b := NewFirmwarePreset("B", "", completeConfig())
	store.Add(a)
	store.Add(b)

	if got := store.Names(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Errorf("unexpected names %v", got)
	}
	if !store.Remove(a.ID) {
		t.Fatal("expected remove to succeed")
	}
	if store.Remove(a.ID) {
		t.Error("second remove should fail")
	}
	if _, ok := store.FindByName("A"); ok {
		t.Error("A should be gone")
	}
	if p, ok := store.FindByName("B"); !ok || p.ID != b.ID {
		t.Error("B should be found")
	}
}
