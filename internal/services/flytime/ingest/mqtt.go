package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skyfleet/flytime/internal/platform/timeouts"
)

// osdTopicFilter matches OSD telemetry for every drone.
const osdTopicFilter = "thing/product/+/osd"

// MQTTConfig selects the broker session for the telemetry feed.
type MQTTConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
}

// MQTT subscribes to the OSD telemetry feed and forwards every message to a
// Processor. Reconnection and resubscription are delegated to the paho
// client; deliveries are at-least-once at best and failures drop the
// message.
type MQTT struct {
	client    mqtt.Client
	processor *Processor
}

// NewMQTT builds the telemetry subscriber. Connect must be called before
// messages flow.
func NewMQTT(cfg MQTTConfig, processor *Processor) (*MQTT, error) {
	if strings.TrimSpace(cfg.BrokerURL) == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}

	source := &MQTT{processor: processor}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Printf("mqtt connected, subscribing to %s", osdTopicFilter)
		token := client.Subscribe(osdTopicFilter, 0, source.handleMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("mqtt subscribe: %v", err)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt connection lost: %v", err)
	})

	source.client = mqtt.NewClient(opts)
	return source, nil
}

// Connect establishes the broker session. Failure here is fatal to startup;
// later disconnects are retried by the client itself.
func (m *MQTT) Connect() error {
	token := m.client.Connect()
	if !token.WaitTimeout(timeouts.MQTTConnect) {
		return fmt.Errorf("mqtt connect: timeout after %s", timeouts.MQTTConnect)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close tears down the broker session.
func (m *MQTT) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Disconnect(250)
}

func (m *MQTT) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	if err := m.processor.HandleMessage(context.Background(), msg.Topic(), msg.Payload()); err != nil {
		log.Printf("process osd message on %s: %v", msg.Topic(), err)
	}
}
