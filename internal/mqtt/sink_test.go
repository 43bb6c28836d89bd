package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/electrolux-bridge/internal/entity"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  string
}

type fakeClient struct {
	mu           sync.Mutex
	published    []published
	subscribed   []string
	handler      paho.MessageHandler
	publishErr   error
	disconnected bool
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	c.published = append(c.published, published{topic: topic, retained: retained, payload: body})
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handler = callback
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.published))
	for i, p := range c.published {
		out[i] = p.topic
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type controlCall struct {
	id     string
	action string
	value  any
}

type fakeController struct {
	calls chan controlCall
}

func (c *fakeController) Control(_ context.Context, id, action string, value any) (bool, error) {
	c.calls <- controlCall{id: id, action: action, value: value}
	return true, nil
}

func TestStartSubscribesAndAnnounces(t *testing.T) {
	c := &fakeClient{}
	s := newSink(c, Config{Prefix: "/home/elx/"}, nil)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(c.subscribed) != 1 || c.subscribed[0] != "home/elx/+/set" {
		t.Fatalf("unexpected subscriptions %v", c.subscribed)
	}
	if c.published[0].topic != "home/elx/bridge/availability" || c.published[0].payload != "online" || !c.published[0].retained {
		t.Fatalf("unexpected announcement %+v", c.published[0])
	}
}

func TestPublishStateAndAvailabilityChanges(t *testing.T) {
	c := &fakeClient{}
	s := newSink(c, Config{}, nil)
	snap := entity.Snapshot{ID: "electrolux_fan_P1", Kind: entity.KindFan, State: "on", Available: true}

	if err := s.Publish(context.Background(), snap); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := s.Publish(context.Background(), snap); err != nil {
		t.Fatalf("publish: %v", err)
	}
	snap.Available = false
	if err := s.Publish(context.Background(), snap); err != nil {
		t.Fatalf("publish: %v", err)
	}

	want := []string{
		"elxbridge/electrolux_fan_P1/state",
		"elxbridge/electrolux_fan_P1/availability",
		"elxbridge/electrolux_fan_P1/state",
		"elxbridge/electrolux_fan_P1/state",
		"elxbridge/electrolux_fan_P1/availability",
	}
	got := c.topics()
	if len(got) != len(want) {
		t.Fatalf("unexpected topics %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("topic %d: got %s want %s", i, got[i], want[i])
		}
	}
	if c.published[4].payload != "offline" {
		t.Fatalf("expected offline, got %s", c.published[4].payload)
	}

	var decoded entity.Snapshot
	if err := json.Unmarshal([]byte(c.published[0].payload), &decoded); err != nil {
		t.Fatalf("state payload: %v", err)
	}
	if decoded.ID != snap.ID || decoded.State != "on" {
		t.Fatalf("unexpected state payload %+v", decoded)
	}
}

func TestPublishError(t *testing.T) {
	c := &fakeClient{publishErr: errors.New("not connected")}
	s := newSink(c, Config{}, nil)
	if err := s.Publish(context.Background(), entity.Snapshot{ID: "x"}); err == nil {
		t.Fatalf("expected publish error")
	}
}

func TestSetMessageDispatchesControl(t *testing.T) {
	c := &fakeClient{}
	controller := &fakeController{calls: make(chan controlCall, 1)}
	s := newSink(c, Config{}, controller)
	if err := s.start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	c.handler(nil, fakeMessage{
		topic:   "elxbridge/electrolux_climate_A1/set",
		payload: []byte(`{"action":"set_temperature","value":21.5}`),
	})

	select {
	case call := <-controller.calls:
		if call.id != "electrolux_climate_A1" || call.action != "set_temperature" || call.value != 21.5 {
			t.Fatalf("unexpected call %+v", call)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("control was not dispatched")
	}
}

func TestSetMessageIgnoresMalformedInput(t *testing.T) {
	controller := &fakeController{calls: make(chan controlCall, 3)}
	s := newSink(&fakeClient{}, Config{}, controller)

	s.handleSet(nil, fakeMessage{topic: "elxbridge/x/set", payload: []byte(`not json`)})
	s.handleSet(nil, fakeMessage{topic: "elxbridge/x/set", payload: []byte(`{"value":1}`)})
	s.handleSet(nil, fakeMessage{topic: "other/x/set", payload: []byte(`{"action":"turn_on"}`)})

	select {
	case call := <-controller.calls:
		t.Fatalf("unexpected control %+v", call)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEntityFromSetTopic(t *testing.T) {
	s := newSink(&fakeClient{}, Config{}, nil)
	cases := map[string]string{
		"elxbridge/electrolux_fan_P1/set": "electrolux_fan_P1",
		"elxbridge/a/b/set":               "",
		"elxbridge//set":                  "",
		"elxbridge/fan/state":             "",
	}
	for topic, want := range cases {
		got, ok := s.entityFromSetTopic(topic)
		if got != want || ok != (want != "") {
			t.Fatalf("%s: got %q ok=%v", topic, got, ok)
		}
	}
}

func TestCloseAnnouncesOffline(t *testing.T) {
	c := &fakeClient{}
	s := newSink(c, Config{}, nil)
	s.Close()
	if !c.disconnected || c.published[0].payload != "offline" {
		t.Fatalf("expected offline announcement and disconnect")
	}
}

func TestConnectRequiresBroker(t *testing.T) {
	if _, err := Connect(Config{}, nil, nil); err == nil {
		t.Fatalf("expected error without broker")
	}
}
