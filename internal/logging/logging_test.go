package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestNewWritesBothSinks(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "logs")
	var stderr bytes.Buffer
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)

	log, closer, err := newAt("debug", dir, &stderr, now)
	if err != nil {
		t.Fatalf("newAt: %v", err)
	}
	log.WithField("file", "a.csv").Debug("census done")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "linemend-2024-03-09.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, out := range []string{string(b), stderr.String()} {
		if !strings.Contains(out, "census done") || !strings.Contains(out, "file=a.csv") {
			t.Fatalf("log output %q lacks the entry", out)
		}
	}
}

func TestNewLevels(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, _, err := newAt("", "", &buf, time.Now())
	if err != nil {
		t.Fatalf("newAt: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("default level = %v, want info", log.GetLevel())
	}
	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug entry leaked at info level: %q", buf.String())
	}
	if _, _, err := New("loud", ""); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
