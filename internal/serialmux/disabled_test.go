package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// DisabledSerialMux must satisfy the same interface as the real mux.
var _ SerialMuxInterface = (*DisabledSerialMux)(nil)
var _ SerialMuxInterface = (*SerialMux[*PipePort])(nil)

func TestDisabledSerialMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()

	done := make(chan struct{})
	go func() {
		if _, ok := <-ch; ok {
			t.Errorf("expected channel to be closed on unsubscribe")
		}
		close(done)
	}()

	d.Unsubscribe(id)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for subscriber to be unblocked after Unsubscribe")
	}
}

func TestDisabledSerialMux_CloseClosesAllChannels(t *testing.T) {
	d := NewDisabledSerialMux()
	id1, ch1 := d.Subscribe()
	_, ch2 := d.Subscribe()

	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	for _, ch := range []chan string{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Errorf("expected channel to be closed on Close")
		}
	}

	_, late := d.Subscribe()
	if _, ok := <-late; ok {
		t.Errorf("expected subscription after Close to be closed")
	}

	d.Unsubscribe(id1)
	if err := d.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

func TestDisabledSerialMux_MonitorBlocksUntilCancel(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := d.Monitor(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Monitor returned %v", err)
	}
	if err := d.SendCommand("reset"); err != nil {
		t.Errorf("SendCommand returned %v", err)
	}
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	mux := http.NewServeMux()
	NewDisabledSerialMux().AttachAdminRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	if w.Code != http.StatusOK || w.Body.String() != "serial disabled" {
		t.Errorf("got %d %q", w.Code, w.Body.String())
	}
}
