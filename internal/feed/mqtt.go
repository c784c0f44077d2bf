package feed

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/pendulum.report/internal/monitoring"
)

// mqttClient is the part of mqtt.Client the source needs.
type mqttClient interface {
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSource receives tracker lines published on an MQTT topic. A message
// may carry several newline separated lines.
type MQTTSource struct {
	client mqttClient
	topic  string
	qos    byte

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
	closing      bool
}

// NewMQTTSource connects lazily: the broker is contacted in Monitor.
func NewMQTTSource(broker, clientID, topic string, qos byte) *MQTTSource {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	return newMQTTSource(mqtt.NewClient(opts), topic, qos)
}

func newMQTTSource(client mqttClient, topic string, qos byte) *MQTTSource {
	return &MQTTSource{
		client:      client,
		topic:       topic,
		qos:         qos,
		subscribers: make(map[string]chan string),
	}
}

func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *MQTTSource) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 64)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		close(ch)
		return id, ch
	}
	s.subscribers[id] = ch
	return id, ch
}

func (s *MQTTSource) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Monitor connects to the broker, subscribes to the topic and blocks until
// ctx is done.
func (s *MQTTSource) Monitor(ctx context.Context) error {
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	token := s.client.Subscribe(s.topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		s.deliver(msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		s.client.Disconnect(250)
		return fmt.Errorf("failed to subscribe to %q: %w", s.topic, token.Error())
	}
	monitoring.Logf("feed: subscribed to %s", s.topic)

	<-ctx.Done()

	s.client.Unsubscribe(s.topic).WaitTimeout(time.Second)
	s.client.Disconnect(250)
	return ctx.Err()
}

// deliver splits a payload into lines and fans them out without blocking.
func (s *MQTTSource) deliver(payload []byte) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		return
	}
	for _, line := range strings.Split(string(payload), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, ch := range s.subscribers {
			select {
			case ch <- line:
			default:
				// slow subscriber: drop rather than stall the client
			}
		}
	}
}

// PublishJSON publishes v as JSON on the source topic with the given
// suffix, e.g. "result" gives "<topic>/result".
func (s *MQTTSource) PublishJSON(suffix string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	topic := s.topic + "/" + suffix
	token := s.client.Publish(topic, s.qos, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timed out publishing to %q", topic)
	}
	return token.Error()
}

func (s *MQTTSource) Close() error {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if s.closing {
		return nil
	}
	s.closing = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return nil
}
