package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusCollectorRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewPrometheusCollector(reg)

	c.ConnectionOpened()
	c.ConnectionClosed()
	c.ConnectionError()
	c.TransferStarted("upload")
	c.TransferCompleted("upload", 2048, 1.5)
	c.TransferFailed("download")
	c.BlockSent()
	c.BlockReceived()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families, got none")
	}
}

func TestNoopCollectorDoesNotPanic(t *testing.T) {
	var c Collector = &NoopCollector{}
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.ConnectionError()
	c.TransferStarted("upload")
	c.TransferCompleted("upload", 0, 0)
	c.TransferFailed("upload")
	c.BlockSent()
	c.BlockReceived()
}
