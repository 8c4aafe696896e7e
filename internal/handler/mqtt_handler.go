package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"caregiver-companion/internal/config"
	"caregiver-companion/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	publishTimeout = 5 * time.Second
	outboxSize     = 256
)

// MonitorControl is what remote commands can do to the monitor.
type MonitorControl interface {
	Start()
	Stop() bool
}

type commandPayload struct {
	Action string `json:"action"`
}

// mqttPublisher is the part of mqtt.Client the bridge publishes through.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type outbound struct {
	topic   string
	payload []byte
}

// MQTTBridge publishes views, notifications and alerts under
// <prefix>/<owner>/... and accepts start/stop on <prefix>/monitor/command.
// Views and notifications go through a bounded outbox drained by one
// goroutine, so Render and Notify never wait on the broker.
type MQTTBridge struct {
	client   mqtt.Client
	pub      mqttPublisher
	prefix   string
	logger   *zap.Logger
	outbox   chan outbound
	done     chan struct{}
	stopOnce sync.Once
}

func newMQTTBridge(client mqtt.Client, pub mqttPublisher, prefix string, queue int, logger *zap.Logger) *MQTTBridge {
	b := &MQTTBridge{
		client: client,
		pub:    pub,
		prefix: prefix,
		logger: logger,
		outbox: make(chan outbound, queue),
		done:   make(chan struct{}),
	}
	go b.drain()
	return b
}

func CommandTopic(prefix string) string {
	return prefix + "/monitor/command"
}

func NewMessageHandler(control MonitorControl, prefix string, logger *zap.Logger) mqtt.MessageHandler {
	commandTopic := CommandTopic(prefix)
	return func(client mqtt.Client, msg mqtt.Message) {
		logger.Debug("received message", zap.String("topic", msg.Topic()), zap.ByteString("payload", msg.Payload()))

		switch msg.Topic() {
		case commandTopic:
			handleCommand(control, msg.Payload(), logger)
		default:
			logger.Warn("unknown topic", zap.String("topic", msg.Topic()))
		}
	}
}

func handleCommand(control MonitorControl, payload []byte, logger *zap.Logger) {
	var cmd commandPayload
	if err := json.Unmarshal(payload, &cmd); err != nil {
		logger.Warn("invalid monitor command", zap.Error(err), zap.ByteString("payload", payload))
		return
	}
	switch cmd.Action {
	case "start":
		control.Start()
	case "stop":
		control.Stop()
	default:
		logger.Warn("unknown monitor command", zap.String("action", cmd.Action))
	}
}

func InitializeMQTT(cfg *config.Config, control MonitorControl, logger *zap.Logger) (*MQTTBridge, error) {
	commandTopic := CommandTopic(cfg.MQTTTopicPrefix)
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetWriteTimeout(publishTimeout)
	opts.SetDefaultPublishHandler(NewMessageHandler(control, cfg.MQTTTopicPrefix, logger))
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
		token := client.Subscribe(commandTopic, 1, nil)
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("failed to subscribe", zap.String("topic", commandTopic), zap.Error(err))
			return
		}
		logger.Info("subscribed to topic", zap.String("topic", commandTopic))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return newMQTTBridge(client, client, cfg.MQTTTopicPrefix, outboxSize, logger), nil
}

func (b *MQTTBridge) topic(ownerID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", b.prefix, ownerID, kind)
}

// Render queues the view for publishing.
func (b *MQTTBridge) Render(v models.View) {
	if v.OwnerID == "" {
		return
	}
	b.publishAsync(b.topic(v.OwnerID, "vitals"), v)
}

func (b *MQTTBridge) Notify(n models.Notification) {
	if n.OwnerID == "" {
		return
	}
	b.publishAsync(b.topic(n.OwnerID, "notifications"), n)
}

// PublishAlert waits for the broker to accept the alert.
func (b *MQTTBridge) PublishAlert(ctx context.Context, alert models.EmergencyAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	timeout := publishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	token := b.pub.Publish(b.topic(alert.OwnerID, "alerts"), 1, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt publish timed out after %s", timeout)
	}
	return token.Error()
}

func (b *MQTTBridge) publishAsync(topic string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		b.logger.Error("failed to marshal MQTT payload", zap.String("topic", topic), zap.Error(err))
		return
	}
	select {
	case b.outbox <- outbound{topic: topic, payload: payload}:
	default:
		b.logger.Debug("MQTT outbox full, dropping message", zap.String("topic", topic))
	}
}

func (b *MQTTBridge) drain() {
	for {
		select {
		case msg := <-b.outbox:
			b.pub.Publish(msg.topic, 0, false, msg.payload)
		case <-b.done:
			return
		}
	}
}

func (b *MQTTBridge) Disconnect() {
	if b.done != nil {
		b.stopOnce.Do(func() { close(b.done) })
	}
	if b.client != nil {
		b.client.Disconnect(250)
	}
}
