package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := "listener 1883\nallow_anonymous true\npersistence false\n"
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

func TestSchedulePublisherWithMosquitto(t *testing.T) {
	if testing.Short() {
		t.Skip("container test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()
	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(ctx) }()

	got := make(chan UnitPlan, 4)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("listener"))
	if token := sub.Connect(); token.Wait() && token.Error() != nil {
		t.Skipf("broker not reachable: %v", token.Error())
	}
	defer sub.Disconnect(100)
	token := sub.Subscribe("uc/+/units/#", 1, func(_ paho.Client, m paho.Message) {
		var plan UnitPlan
		if err := json.Unmarshal(m.Payload(), &plan); err == nil {
			got <- plan
		}
	})
	if token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}

	pub, err := NewSchedulePublisher(Config{Enabled: true, Broker: broker, ClientID: "planner", QoS: 1})
	if err != nil {
		t.Fatalf("publisher: %v", err)
	}
	defer pub.Disconnect()
	if err := pub.PublishPlan(planEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	seen := map[string]bool{}
	timeout := time.After(5 * time.Second)
	for len(seen) < 2 {
		select {
		case plan := <-got:
			seen[plan.Unit] = true
		case <-timeout:
			t.Fatalf("received %v before timeout", seen)
		}
	}
	if !seen["coal/1"] || !seen["gas"] {
		t.Fatalf("unexpected units %v", seen)
	}
}
