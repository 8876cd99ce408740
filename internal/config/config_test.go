package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
frames_list_file: "frames.lst"
features_file: "features.bin"
features_dim: 128
filename_offsets:
  vid_id_off: 1
  vid_id_len: 5
  shot_id_off: 7
  shot_id_len: 4
  frame_num_off: 12
  frame_num_len: 6
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DisplayPageSize != 64 {
		t.Errorf("expected default display_page_size 64, got %d", cfg.DisplayPageSize)
	}
	if cfg.SomWidth != 8 || cfg.SomHeight != 8 {
		t.Errorf("expected default 8x8 som grid, got %dx%d", cfg.SomWidth, cfg.SomHeight)
	}
	if cfg.UserToken != "default" {
		t.Errorf("expected default user_token, got %q", cfg.UserToken)
	}
}

func TestLoadHonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
user_token: "alice"
frames_list_file: "frames.lst"
features_file: "features.bin"
features_dim: 256
display_page_size: 32
som_width: 16
som_height: 12
filename_offsets:
  vid_id_off: 1
  vid_id_len: 5
  shot_id_off: 7
  shot_id_len: 4
  frame_num_off: 12
  frame_num_len: 6
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.UserToken != "alice" {
		t.Errorf("expected explicit user_token to survive, got %q", cfg.UserToken)
	}
	if cfg.DisplayPageSize != 32 || cfg.SomWidth != 16 || cfg.SomHeight != 12 {
		t.Errorf("expected explicit values to override defaults, got %+v", cfg)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	if _, err := Load("nonexistent.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "not: [invalid yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoadRejectsMissingRequiredPaths(t *testing.T) {
	path := writeConfig(t, `display_page_size: 10`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing frames_list_file/features_file")
	}
}

func TestLoadRejectsZeroFeaturesDim(t *testing.T) {
	path := writeConfig(t, `
frames_list_file: "frames.lst"
features_file: "features.bin"
filename_offsets:
  vid_id_len: 5
  shot_id_len: 4
  frame_num_len: 6
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing features_dim")
	}
}
