package provider

import (
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/devopsext/greeter/common"
	"github.com/devopsext/greeter/telemetry"
)

func datadogNewMeter(agentHost string, agentPort int) (*DataDogMeter, *Stdout) {

	stdout, _ := newTestStdout("debug")

	datadog := NewDataDogMeter(DataDogMeterOptions{
		AgentHost: agentHost,
		AgentPort: agentPort,
		Prefix:    "test",
		DataDogOptions: DataDogOptions{
			ServiceName: "greeter-datadog-meter-test",
			Environment: "test",
			Tags:        "tag1=value1,,tag3=value3",
		},
	}, nil, stdout)

	return datadog, stdout
}

func TestDataDogMeter(t *testing.T) {

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	datadog, _ := datadogNewMeter("127.0.0.1", conn.LocalAddr().(*net.UDPAddr).Port)
	if datadog == nil {
		t.Fatal("Invalid datadog")
	}

	counter, err := datadog.Counter("requests", "Requests", common.Labels{"method": "SayHello"}, "grpc")
	if err != nil {
		t.Fatal(err)
	}
	counter.Inc()
	if err := counter.Add(-1); !errors.Is(err, telemetry.ErrInvalidDelta) {
		t.Fatalf("Negative delta must be rejected: %v", err)
	}

	histogram, err := datadog.Histogram("duration", "Duration", nil, nil, "grpc")
	if err != nil {
		t.Fatal(err)
	}
	histogram.Observe(0.05)

	// close flushes buffered packets
	datadog.Stop()

	var received strings.Builder
	buf := make([]byte, 65536)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !strings.Contains(received.String(), "test.grpc.duration") || !strings.Contains(received.String(), "test.grpc.requests") {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			t.Fatalf("No datagrams received: %v, got %q", err, received.String())
		}
		received.Write(buf[:n])
	}

	payload := received.String()
	if !strings.Contains(payload, "test.grpc.requests:1|c") {
		t.Fatalf("Wrong counter datagram: %q", payload)
	}
	if !strings.Contains(payload, "test.grpc.duration:0.05|h") {
		t.Fatalf("Wrong histogram datagram: %q", payload)
	}
	for _, tag := range []string{"method:SayHello", "tag1:value1", "service:greeter-datadog-meter-test", "env:test"} {
		if !strings.Contains(payload, tag) {
			t.Fatalf("Missing tag %s in %q", tag, payload)
		}
	}
}

func TestDataDogMeterWrongAgentHost(t *testing.T) {

	datadog, _ := datadogNewMeter("", 0)
	if datadog != nil {
		t.Fatal("Valid datadog")
	}
}
