package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/shaiso/Surveyor/internal/mq"
)

type fakePublisher struct {
	alerts []mq.Alert
	err    error
}

func (p *fakePublisher) PublishAlert(ctx context.Context, alert mq.Alert) error {
	p.alerts = append(p.alerts, alert)
	return p.err
}

func TestMQNotifier_PublishesAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	pub := &fakePublisher{}

	n := NewMQNotifier(pub, "surveyor-downloader", logger)
	if err := n.Notify(context.Background(), "restore failed", "directory not found"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(pub.alerts))
	}
	if pub.alerts[0].Service != "surveyor-downloader" || pub.alerts[0].Subject != "restore failed" {
		t.Errorf("unexpected alert %+v", pub.alerts[0])
	}
	if !strings.Contains(buf.String(), "restore failed") {
		t.Errorf("alert should be logged: %s", buf.String())
	}
}

func TestMQNotifier_PublishErrorReturned(t *testing.T) {
	pub := &fakePublisher{err: mq.ErrNoChannel}
	n := NewMQNotifier(pub, "surveyor-jobpool", slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	if err := n.Notify(context.Background(), "s", "b"); !errors.Is(err, mq.ErrNoChannel) {
		t.Errorf("expected ErrNoChannel, got %v", err)
	}
}

func TestNew_WithoutPublisherLogs(t *testing.T) {
	if _, ok := New(nil, "x", nil).(*LogNotifier); !ok {
		t.Error("expected LogNotifier without publisher")
	}
}
