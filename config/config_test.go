package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("rtmp:\n  addr: \":19350\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RTMP.Addr != ":19350" {
		t.Errorf("expected rtmp addr to be %v, but got %v", ":19350", cfg.RTMP.Addr)
	}
	if cfg.RTMP.ChunkSize != DefaultChunkSize {
		t.Errorf("expected chunk size to be %v, but got %v", DefaultChunkSize, cfg.RTMP.ChunkSize)
	}
	if cfg.RTMP.WindowAckSize != DefaultClientWindowSize {
		t.Errorf("expected window ack size to be %v, but got %v", DefaultClientWindowSize, cfg.RTMP.WindowAckSize)
	}
	if cfg.Pull.ReconnectDelay != DefaultReconnectDelay {
		t.Errorf("expected reconnect delay to be %v, but got %v", DefaultReconnectDelay, cfg.Pull.ReconnectDelay)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level to be %v, but got %v", "info", cfg.Log.Level)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknownField", "rtmp:\n  port: 1935\n"},
		{"badLevel", "log:\n  level: loud\n"},
		{"hugeChunk", "rtmp:\n  chunk_size: 4294967295\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.in)); err == nil {
				t.Errorf("expected an error for %q", tt.in)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir, err := ioutil.TempDir("", "config")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "relay.yaml")
	content := `
http:
  addr: ":8081"
  websocket: true
pull:
  url_template: "http://origin:8080/{app}/{name}.flv"
  reconnect_delay: 2s
log:
  level: debug
`
	if err := ioutil.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.HTTP.WebSocket || cfg.HTTP.Addr != ":8081" {
		t.Errorf("expected http section to be loaded, but got %+v", cfg.HTTP)
	}
	if cfg.Pull.ReconnectDelay != 2*time.Second {
		t.Errorf("expected reconnect delay to be %v, but got %v", 2*time.Second, cfg.Pull.ReconnectDelay)
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}
