package main

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Topics lists every topic the monitor publishes to or subscribes on.
type Topics struct {
	TemperatureState string
	MotionState      string
	CameraState      string
	CameraSettings   string
	MonitorConfig    string
	MonitorState     string
	MonitorWiFi      string

	CameraCmnd       string
	CameraSetSetting string
	MotionCmnd       string
	TemperatureCmnd  string
	MonitorCmnd      string
}

// NewTopics derives the topic set from prefix, e.g. "gate".
func NewTopics(prefix string) Topics {
	return Topics{
		TemperatureState: prefix + "/temperature/state",
		MotionState:      prefix + "/motion/state",
		CameraState:      prefix + "/camera/state",
		CameraSettings:   prefix + "/camera/settings",
		MonitorConfig:    prefix + "/monitor/config",
		MonitorState:     prefix + "/monitor/state",
		MonitorWiFi:      prefix + "/monitor/wifi",

		CameraCmnd:       prefix + "/camera/cmnd",
		CameraSetSetting: prefix + "/camera/setsetting",
		MotionCmnd:       prefix + "/motion/cmnd",
		TemperatureCmnd:  prefix + "/temperature/cmnd",
		MonitorCmnd:      prefix + "/monitor/cmnd",
	}
}

// Subscriptions returns the command topics.
func (t Topics) Subscriptions() []string {
	return []string{t.CameraCmnd, t.CameraSetSetting, t.MotionCmnd, t.TemperatureCmnd, t.MonitorCmnd}
}

// Message is one inbound command.
type Message struct {
	Topic   string
	Payload string
}

// Publisher sends a payload on a topic.
type Publisher interface {
	Publish(topic, payload string) error
}

// Transport is the pub/sub link to the broker.  Inbound messages are queued
// and delivered on Messages so that they are handled on the control loop.
type Transport interface {
	Publisher
	Connect(ctx context.Context) error
	Connected() bool
	Messages() <-chan Message
	Close()
}

// inboxSize bounds the number of commands waiting for the control loop.
const inboxSize = 32

// mqttBroker is the Transport backed by paho.  Automatic reconnects are off;
// the control loop checks Connected every tick and calls Connect itself.
type mqttBroker struct {
	client  mqtt.Client
	topics  Topics
	inbox   chan Message
	timeout time.Duration
	log     *zap.Logger
}

func newMQTTBroker(o MQTTOptions, topics Topics, log *zap.Logger) *mqttBroker {
	b := &mqttBroker{
		topics:  topics,
		inbox:   make(chan Message, inboxSize),
		timeout: o.ConnectTimeout,
		log:     log,
	}
	if b.timeout <= 0 {
		b.timeout = 5 * time.Second
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)
	opts.SetUsername(o.Username)
	opts.SetPassword(o.Password)
	opts.SetCleanSession(false)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(b.timeout)
	opts.SetOnConnectHandler(b.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	b.client = mqtt.NewClient(opts)
	return b
}

// onConnect (re)subscribes to the command topics.  paho runs it on its own
// goroutine, so waiting on the token is fine.
func (b *mqttBroker) onConnect(c mqtt.Client) {
	filters := make(map[string]byte)
	for _, t := range b.topics.Subscriptions() {
		filters[t] = 0
	}
	token := c.SubscribeMultiple(filters, b.receive)
	if !token.WaitTimeout(b.timeout) {
		b.log.Warn("mqtt subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		b.log.Error("mqtt subscribe", zap.Error(err))
		return
	}
	b.log.Info("mqtt subscribed", zap.Strings("topics", b.topics.Subscriptions()))
}

// receive queues a message for the control loop.  It never blocks the paho
// router; when the inbox is full the message is dropped.
func (b *mqttBroker) receive(_ mqtt.Client, m mqtt.Message) {
	msg := Message{Topic: m.Topic(), Payload: string(m.Payload())}
	select {
	case b.inbox <- msg:
	default:
		b.log.Warn("command inbox full, dropping message", zap.String("topic", msg.Topic))
	}
}

// Connect dials the broker and waits for the session to be established.
func (b *mqttBroker) Connect(ctx context.Context) error {
	token := b.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return newError(KindTransport, "mqtt connect", "", ctx.Err())
	case <-time.After(b.timeout):
		return newError(KindTransport, "mqtt connect", "timed out", nil)
	}
	if err := token.Error(); err != nil {
		return newError(KindTransport, "mqtt connect", "", err)
	}
	return nil
}

func (b *mqttBroker) Connected() bool { return b.client.IsConnected() }

func (b *mqttBroker) Messages() <-chan Message { return b.inbox }

// Publish sends payload with QoS 0, not retained.
func (b *mqttBroker) Publish(topic, payload string) error {
	if !b.client.IsConnected() {
		return newError(KindTransport, "publish "+topic, "not connected", nil)
	}
	token := b.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(b.timeout) {
		return newError(KindTransport, "publish "+topic, "timed out", nil)
	}
	if err := token.Error(); err != nil {
		return newError(KindTransport, "publish "+topic, "", err)
	}
	return nil
}

func (b *mqttBroker) Close() {
	b.client.Disconnect(250)
}
