package exporter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHTTPServer(t *testing.T) {

	stdout, _ := newTestStdout()
	registry, counter, _ := newTestRegistry(t)

	exporter := NewExporter(registry, SinkFunc(func(ctx context.Context, data []byte) error {
		return nil
	}), ExporterOptions{}, nil, stdout)

	counter.Inc()
	if err := exporter.Cycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	server := NewHTTPServer(HTTPOptions{Listen: "127.0.0.1:0"}, exporter, nil, stdout)

	var wg sync.WaitGroup
	server.StartInWaitGroup(&wg)

	waitFor(t, 5*time.Second, func() bool { return server.Addr() != nil })

	r, err := http.Get(fmt.Sprintf("http://%s/metrics", server.Addr().String()))
	if err != nil {
		t.Fatal(err)
	}
	content, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "grpc_requests_total 1\n") {
		t.Fatalf("Published text is not served:\n%s", content)
	}

	server.Stop()
	wg.Wait()
}

func TestHTTPServerDisabled(t *testing.T) {

	stdout, _ := newTestStdout()
	if NewHTTPServer(HTTPOptions{}, nil, nil, stdout) != nil {
		t.Fatal("Endpoint without listen must be disabled")
	}
}

func TestHTTPServerStopBeforeServe(t *testing.T) {

	stdout, _ := newTestStdout()
	registry, _, _ := newTestRegistry(t)
	exporter := NewExporter(registry, nil, ExporterOptions{Path: "-"}, nil, stdout)

	server := NewHTTPServer(HTTPOptions{Listen: "127.0.0.1:0"}, exporter, nil, stdout)

	var wg sync.WaitGroup
	server.StartInWaitGroup(&wg)
	server.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Endpoint is still serving after stop")
	}
	if server.Addr() != nil {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", server.Addr().String()))
		if err == nil {
			resp.Body.Close()
			t.Fatal("Stopped endpoint still answers")
		}
	}
}
