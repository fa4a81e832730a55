package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
server:
  ip: "127.0.0.1"
  port: 9000
  auth:
    enabled: true
    allowed_devices: ["device-1"]
    tokens:
      device-1: "secret-token"
log:
  level: "info"
  filename: "test.log"
selected_module:
  VAD: "http"
  ASR: "tencent"
  LLM: "openai"
  TTS: "qcloud"
  Memory: "llm"
  Intent: "shortcut"
prompt: "You are a helpful assistant."
CMD_exit: ["再见", "退出"]
close_connection_no_voice_time: 90
tts_timeout: 5
music:
  music_dir: "/tmp/music"
  music_ext: [".mp3"]
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.IP != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Fatalf("server mismatch: %+v", cfg.Server)
	}
	if !cfg.Server.Auth.Enabled || cfg.Server.Auth.Tokens["device-1"] != "secret-token" {
		t.Fatalf("auth mismatch: %+v", cfg.Server.Auth)
	}
	if cfg.SelectedModule.LLM != "openai" || cfg.SelectedModule.ASR != "tencent" {
		t.Fatalf("selected module mismatch: %+v", cfg.SelectedModule)
	}
	if cfg.IdleTimeoutSecs != 90 || cfg.TTSTimeoutSecs != 5 {
		t.Fatalf("timeout mismatch: idle=%d tts=%d", cfg.IdleTimeoutSecs, cfg.TTSTimeoutSecs)
	}
	if len(cfg.CMDExit) != 2 || cfg.CMDExit[0] != "再见" {
		t.Fatalf("exit commands mismatch: %+v", cfg.CMDExit)
	}
	if cfg.Music.MusicDir != "/tmp/music" {
		t.Fatalf("music dir mismatch: %+v", cfg.Music)
	}
}

func TestLoadKeepsDefaultsForOmittedFields(t *testing.T) {
	path := writeTempConfig(t, `server:
  port: 7000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Fatalf("Port=%d, want 7000 from override", cfg.Server.Port)
	}
	if cfg.Server.IP != "0.0.0.0" {
		t.Fatalf("IP=%q, want default 0.0.0.0 to survive partial YAML", cfg.Server.IP)
	}
	if cfg.IdleTimeoutSecs != 120 {
		t.Fatalf("IdleTimeoutSecs=%d, want default 120", cfg.IdleTimeoutSecs)
	}
	if cfg.IOT.Speaker.Volume != 100 {
		t.Fatalf("Speaker volume=%d, want default 100", cfg.IOT.Speaker.Volume)
	}
}

func TestLoadEnvOverridesPort(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	t.Setenv("LINGECHO_SERVER_PORT", "6000")
	t.Setenv("LINGECHO_AUTH_ENABLED", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Fatalf("Port=%d, want env override 6000", cfg.Server.Port)
	}
	if cfg.Server.Auth.Enabled {
		t.Fatalf("Auth.Enabled should be overridden to false")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
