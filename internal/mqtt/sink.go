// Package mqtt mirrors entity state onto an MQTT broker and accepts user
// actions from it.
//
// Topics, below a configurable prefix:
//
//	<prefix>/bridge/availability   online|offline (retained, last will)
//	<prefix>/<entity>/state        snapshot JSON (retained)
//	<prefix>/<entity>/availability online|offline (retained)
//	<prefix>/<entity>/set          {"action": "...", "value": ...}
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/joshp123/electrolux-bridge/internal/entity"
	"github.com/joshp123/electrolux-bridge/internal/logging"
)

const (
	DefaultPrefix = "elxbridge"

	online  = "online"
	offline = "offline"

	controlTimeout = 30 * time.Second
)

type Config struct {
	// Broker is a URL such as tcp://host:1883 or ssl://host:8883.
	Broker         string
	Username       string
	Password       string
	ClientID       string
	Prefix         string
	QoS            byte
	ConnectTimeout time.Duration
}

func (c Config) Enabled() bool {
	return c.Broker != ""
}

// Controller runs entity actions received on set topics.
type Controller interface {
	Control(ctx context.Context, id, action string, value any) (bool, error)
}

// client is the part of paho.Client the sink uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// Sink publishes entity snapshots and dispatches set commands.
type Sink struct {
	client     client
	prefix     string
	qos        byte
	timeout    time.Duration
	controller Controller

	mu        sync.Mutex
	available map[string]bool
}

// Connect dials the broker. The connection is retried in the background
// when the broker is not reachable yet; onConnect runs after every
// (re)connect once the set subscription is in place.
func Connect(cfg Config, controller Controller, onConnect func()) (*Sink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker is not configured")
	}
	s := newSink(nil, cfg, controller)

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "elxbridge-" + logging.InstanceID()
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(s.timeout)
	opts.SetWill(s.topic("bridge", "availability"), offline, s.qos, true)
	opts.OnConnect = func(paho.Client) {
		if err := s.start(); err != nil {
			logging.Logger(nil).WithError(err).Error("mqtt: subscribing to set topics")
			return
		}
		logging.Logger(nil).WithField("broker", cfg.Broker).Info("mqtt: connected")
		if onConnect != nil {
			onConnect()
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logging.Logger(nil).WithError(err).Warn("mqtt: connection lost")
	}

	c := paho.NewClient(opts)
	s.client = c
	if token := c.Connect(); !token.WaitTimeout(s.timeout) {
		logging.Logger(nil).WithField("broker", cfg.Broker).Warn("mqtt: broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "mqtt connect")
	}
	return s, nil
}

func newSink(c client, cfg Config, controller Controller) *Sink {
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Sink{
		client:     c,
		prefix:     prefix,
		qos:        cfg.QoS,
		timeout:    timeout,
		controller: controller,
		available:  make(map[string]bool),
	}
}

func (s *Sink) topic(parts ...string) string {
	return s.prefix + "/" + strings.Join(parts, "/")
}

// start subscribes to set topics and announces the bridge.
func (s *Sink) start() error {
	if err := s.wait(s.client.Subscribe(s.topic("+", "set"), s.qos, s.handleSet)); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	s.mu.Lock()
	s.available = make(map[string]bool)
	s.mu.Unlock()
	return s.wait(s.client.Publish(s.topic("bridge", "availability"), s.qos, true, online))
}

// Publish sends the snapshot as retained state and updates availability
// when it changed.
func (s *Sink) Publish(_ context.Context, snap entity.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := s.wait(s.client.Publish(s.topic(snap.ID, "state"), s.qos, true, payload)); err != nil {
		return errors.Wrapf(err, "publish state for %s", snap.ID)
	}

	s.mu.Lock()
	prev, seen := s.available[snap.ID]
	s.available[snap.ID] = snap.Available
	s.mu.Unlock()
	if seen && prev == snap.Available {
		return nil
	}
	status := offline
	if snap.Available {
		status = online
	}
	if err := s.wait(s.client.Publish(s.topic(snap.ID, "availability"), s.qos, true, status)); err != nil {
		s.mu.Lock()
		delete(s.available, snap.ID)
		s.mu.Unlock()
		return errors.Wrapf(err, "publish availability for %s", snap.ID)
	}
	return nil
}

type setRequest struct {
	Action string          `json:"action"`
	Value  json.RawMessage `json:"value,omitempty"`
}

func (s *Sink) handleSet(_ paho.Client, msg paho.Message) {
	log := logging.Logger(nil).WithField("topic", msg.Topic())
	id, ok := s.entityFromSetTopic(msg.Topic())
	if !ok {
		log.Warn("mqtt: ignoring message on unexpected topic")
		return
	}
	var req setRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil || req.Action == "" {
		log.WithError(err).Warn("mqtt: ignoring malformed set payload")
		return
	}
	var value any
	if len(req.Value) > 0 {
		if err := json.Unmarshal(req.Value, &value); err != nil {
			log.WithError(err).Warn("mqtt: ignoring malformed set value")
			return
		}
	}
	if s.controller == nil {
		return
	}

	// handlers run on paho's router goroutine; commands can take a while
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), controlTimeout)
		defer cancel()
		accepted, err := s.controller.Control(ctx, id, req.Action, value)
		entry := log.WithField("entity", id).WithField("action", req.Action).WithField("accepted", accepted)
		if err != nil {
			entry.WithError(err).Warn("mqtt: action failed")
			return
		}
		entry.Info("mqtt: action handled")
	}()
}

func (s *Sink) entityFromSetTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, s.prefix+"/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// Close announces the bridge offline and disconnects.
func (s *Sink) Close() {
	if err := s.wait(s.client.Publish(s.topic("bridge", "availability"), s.qos, true, offline)); err != nil {
		logging.Logger(nil).WithError(err).Warn("mqtt: announcing offline")
	}
	s.client.Disconnect(250)
}

func (s *Sink) wait(token paho.Token) error {
	if !token.WaitTimeout(s.timeout) {
		return errors.New("timed out waiting for broker")
	}
	return token.Error()
}
