package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestCountersRegistered(t *testing.T) {
	before := testutil.ToFloat64(DuplicatesSuppressed.WithLabelValues("ack"))
	DuplicatesSuppressed.WithLabelValues("ack").Inc()
	if got := testutil.ToFloat64(DuplicatesSuppressed.WithLabelValues("ack")); got != before+1 {
		t.Errorf("duplicates{ack} = %v, want %v", got, before+1)
	}
}

func TestServerExposesMetrics(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	s := NewServer(addr, zap.NewNop())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	MessagesSent.Inc()
	resp, err := http.Get("http://" + addr + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "rishta_messages_sent_total") {
		t.Error("metrics output lacks rishta_messages_sent_total")
	}
}
