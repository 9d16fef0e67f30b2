package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/v4link/internal/config"
	"github.com/danmuck/v4link/internal/protocol"
	"github.com/danmuck/v4link/internal/protocol/frame"
	"github.com/danmuck/v4link/internal/testutil/testlog"
)

func TestDaemonJournalsFramesAndServesAdmin(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultDaemonConfig()
	cfg.JournalPath = filepath.Join(t.TempDir(), "frames.db")
	d, err := newDaemon(cfg)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	defer d.close()

	ping, _ := frame.Encode(protocol.CmdPing, nil)
	var out bytes.Buffer
	if err := d.device.Feed(ping, &out); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if n, err := d.journal.Count(context.Background()); err != nil || n != 1 {
		t.Fatalf("journal count=%d err=%v", n, err)
	}

	rr := httptest.NewRecorder()
	d.admin.HTTPRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/journal", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"command":"ping"`) {
		t.Fatalf("journal route code=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	cfg := config.DefaultDaemonConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.AdminAddr = ""
	d, err := newDaemon(cfg)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("daemon did not stop")
	}
}
