package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ucplan/core/events"
	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/schedule"
	"github.com/kilianp07/ucplan/internal/eventbus"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests.
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	published   []published
	publishErrs []error
	connectErr  error
	disconnects int
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(nil)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.disconnects++
	m.mu.Unlock()
}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

func (m *mockClient) messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.published...)
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = orig })
}

func planEvent() events.PlanCompleted {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	in := model.Instance{
		Name:    "north grid",
		Start:   start,
		Horizon: 2,
		Units:   []model.FossilUnit{{Name: "coal/1", CapacityMW: 100}, {Name: "gas", CapacityMW: 50}},
	}
	s := &schedule.Schedule{
		Status:    milp.StatusOptimal,
		TotalCost: 1234.5,
		Hours: []schedule.Hour{
			{Hour: 1, Units: []schedule.UnitHour{{Name: "coal/1", Committed: true, GenerationMW: 80}, {Name: "gas"}}, ChargeMW: 5, StateOfChargeMWh: 4},
			{Hour: 2, Units: []schedule.UnitHour{{Name: "coal/1", Committed: true, GenerationMW: 90}, {Name: "gas", Committed: true, GenerationMW: 10}}, DischargeMW: 2, StateOfChargeMWh: 2},
		},
	}
	return events.PlanCompleted{RunID: "run-1", Instance: in, Outcome: schedule.Outcome{Status: milp.StatusOptimal, Schedule: s}}
}

func TestPublishPlanOptimal(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewSchedulePublisher(Config{Enabled: true, Broker: "tcp://localhost:1883", QoS: 1, Retain: true})
	require.NoError(t, err)

	require.NoError(t, pub.PublishPlan(planEvent()))
	msgs := mc.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "uc/north_grid/status", msgs[0].topic)
	assert.Equal(t, "uc/north_grid/units/coal_1", msgs[1].topic)
	assert.Equal(t, "uc/north_grid/units/gas", msgs[2].topic)
	assert.Equal(t, "uc/north_grid/battery", msgs[3].topic)
	for _, m := range msgs {
		assert.Equal(t, byte(1), m.qos)
		assert.True(t, m.retained)
	}

	var status StatusMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &status))
	assert.Equal(t, "optimal", status.Status)
	require.NotNil(t, status.TotalCost)
	assert.Equal(t, 1234.5, *status.TotalCost)

	var gas UnitPlan
	require.NoError(t, json.Unmarshal(msgs[2].payload, &gas))
	assert.Equal(t, "run-1", gas.RunID)
	require.Len(t, gas.Setpoints, 2)
	assert.False(t, gas.Setpoints[0].Committed)
	assert.Equal(t, 10.0, gas.Setpoints[1].GenerationMW)
	assert.True(t, gas.Setpoints[1].At.Equal(time.Date(2026, 6, 1, 1, 0, 0, 0, time.UTC)))

	var bat BatteryPlan
	require.NoError(t, json.Unmarshal(msgs[3].payload, &bat))
	require.Len(t, bat.Steps, 2)
	assert.Equal(t, 5.0, bat.Steps[0].ChargeMW)
	assert.Equal(t, 2.0, bat.Steps[1].DischargeMW)
}

func TestPublishPlanDiagnosticOnly(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewSchedulePublisher(Config{Enabled: true, Broker: "tcp://localhost:1883"})
	require.NoError(t, err)

	ev := planEvent()
	ev.Outcome = schedule.Outcome{Status: milp.StatusInfeasible, Diagnostic: &schedule.Diagnostic{Status: milp.StatusInfeasible, Message: "no feasible commitment"}}
	require.NoError(t, pub.PublishPlan(ev))
	msgs := mc.messages()
	require.Len(t, msgs, 1)
	var status StatusMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &status))
	assert.Equal(t, "infeasible", status.Status)
	assert.Nil(t, status.TotalCost)
	assert.Equal(t, "no feasible commitment", status.Message)
}

func TestPublishRetries(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	pub, err := NewSchedulePublisher(Config{Enabled: true, Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	ev := planEvent()
	ev.Outcome = schedule.Outcome{Status: milp.StatusTimeout, Diagnostic: &schedule.Diagnostic{}}
	require.NoError(t, pub.PublishPlan(ev))
	assert.Len(t, mc.messages(), 2)
}

func TestPublishGivesUp(t *testing.T) {
	fail := fmt.Errorf("net fail")
	mc := &mockClient{publishErrs: []error{fail, fail}}
	withMock(t, mc)
	pub, err := NewSchedulePublisher(Config{Enabled: true, Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	require.NoError(t, err)
	err = pub.PublishPlan(planEvent())
	require.ErrorIs(t, err, fail)
	assert.Contains(t, err.Error(), "uc/north_grid/status")
}

func TestNewSchedulePublisherErrors(t *testing.T) {
	mc := &mockClient{connectErr: fmt.Errorf("refused")}
	withMock(t, mc)
	_, err := NewSchedulePublisher(Config{Enabled: true, Broker: "tcp://localhost:1883"})
	assert.Error(t, err)
	_, err = NewSchedulePublisher(Config{Enabled: true})
	assert.Error(t, err)
}

func TestStartConsumesBus(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	pub, err := NewSchedulePublisher(Config{Enabled: true, Broker: "tcp://localhost:1883", TopicPrefix: "plans/"})
	require.NoError(t, err)

	bus := eventbus.New[events.PlanCompleted](0)
	done := pub.Start(context.Background(), bus)
	bus.Publish(planEvent())
	bus.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher did not stop")
	}
	msgs := mc.messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "plans/north_grid/status", msgs[0].topic)

	pub.Disconnect()
	assert.Equal(t, 1, mc.disconnects)
}

func TestTopicSegment(t *testing.T) {
	assert.Equal(t, "_", topicSegment(""))
	assert.Equal(t, "a_b_c_d", topicSegment("a/b+c#d"))
}
