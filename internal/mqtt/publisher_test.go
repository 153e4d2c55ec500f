package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bobobo1618/ninesleep/internal/config"
	"github.com/bobobo1618/ninesleep/internal/sensor"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient records publishes. Methods the publisher does not use panic via
// the nil embedded interface.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	connected bool
	messages  []published
	token     *fakeToken
	discs     int
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Connect() mqtt.Token { return completedToken(nil) }

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.discs++
	c.mu.Unlock()
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, payload: payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return completedToken(nil)
}

func newTestPublisher(prefix string, client *fakeClient) *Publisher {
	p := NewPublisher(config.Config{
		MQTTBroker:      "localhost",
		MQTTPort:        1883,
		MQTTClientID:    "test",
		MQTTTopicPrefix: prefix,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.client = client
	return p
}

func reading() sensor.Reading {
	return sensor.Reading{
		Device:     "pod-7",
		BatchID:    42,
		Seq:        3,
		ReceivedAt: time.Date(2024, 1, 23, 7, 30, 0, 0, time.UTC),
		Record:     sensor.Log{TS: 1705995001, Message: "pump started", Level: "info"},
	}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		r      sensor.Reading
		want   string
	}{
		{name: "prefixed", prefix: "ninesleep", r: reading(), want: "ninesleep/pod-7/log"},
		{name: "slashes trimmed", prefix: "/home/bed/", r: reading(), want: "home/bed/pod-7/log"},
		{name: "no prefix", prefix: "", r: reading(), want: "pod-7/log"},
		{name: "no device", prefix: "ninesleep", r: sensor.Reading{Record: sensor.CapSense{}}, want: "ninesleep/unknown/capSense"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPublisher(tt.prefix, &fakeClient{})
			if got := p.Topic(tt.r); got != tt.want {
				t.Fatalf("Topic = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestPublish_NotConnected(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newTestPublisher("ninesleep", client)

	// The broker session is up but the connect handler has not fired.
	if err := p.Publish(context.Background(), reading()); err == nil {
		t.Fatal("Publish before connect succeeded; want error")
	}
	if len(client.messages) != 0 {
		t.Fatalf("published %d messages while disconnected", len(client.messages))
	}
}

func TestPublish_SendsJSONAtQoS1(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newTestPublisher("ninesleep", client)
	p.setConnected(true)

	if err := p.Publish(context.Background(), reading()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(client.messages) != 1 {
		t.Fatalf("published %d messages; want 1", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "ninesleep/pod-7/log" {
		t.Fatalf("topic = %q; want %q", msg.topic, "ninesleep/pod-7/log")
	}
	if msg.qos != 1 {
		t.Fatalf("qos = %d; want 1", msg.qos)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["type"] != "log" {
		t.Fatalf("type = %v; want log", body["type"])
	}
	if body["batch_id"] != float64(42) {
		t.Fatalf("batch_id = %v; want 42", body["batch_id"])
	}
	rec, ok := body["record"].(map[string]any)
	if !ok || rec["msg"] != "pump started" {
		t.Fatalf("record = %v; want msg=pump started", body["record"])
	}
}

func TestPublish_BrokerError(t *testing.T) {
	client := &fakeClient{connected: true, token: completedToken(errors.New("not authorized"))}
	p := newTestPublisher("ninesleep", client)
	p.setConnected(true)

	err := p.Publish(context.Background(), reading())
	if err == nil {
		t.Fatal("Publish succeeded; want broker error")
	}
}

func TestPublish_ContextCancelled(t *testing.T) {
	client := &fakeClient{connected: true, token: &fakeToken{done: make(chan struct{})}}
	p := newTestPublisher("ninesleep", client)
	p.setConnected(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, reading()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish error = %v; want context.Canceled", err)
	}
}

func TestDisconnect_StopsConnect(t *testing.T) {
	client := &fakeClient{}
	p := newTestPublisher("ninesleep", client)

	p.Disconnect()
	p.Disconnect()

	if client.discs != 2 {
		t.Fatalf("client disconnects = %d; want 2", client.discs)
	}
	if err := p.Connect(context.Background()); err == nil {
		t.Fatal("Connect after Disconnect succeeded; want error")
	}
	if p.IsConnected() {
		t.Fatal("IsConnected after Disconnect = true")
	}
}
