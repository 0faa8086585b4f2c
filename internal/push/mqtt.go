package push

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MQTTConfig configures the MQTT push listener.
type MQTTConfig struct {
	BrokerURL string `yaml:"broker_url"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TLS       bool   `yaml:"tls"`
	QoS       byte   `yaml:"qos"`
}

// MQTTListener subscribes to device shadow topics and forwards every
// message to the handler. Reconnects are automatic; subscriptions are
// replayed on reconnect.
type MQTTListener struct {
	cfg     MQTTConfig
	handler Handler
	client  mqtt.Client

	mu     sync.Mutex
	topics map[string]struct{}
}

// NewMQTTListener creates an MQTT push listener.
func NewMQTTListener(cfg MQTTConfig, handler Handler) *MQTTListener {
	return &MQTTListener{
		cfg:     cfg,
		handler: handler,
		topics:  make(map[string]struct{}),
	}
}

// Start connects to the broker, subscribes to all known topics and blocks
// until the context is cancelled.
func (l *MQTTListener) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(l.cfg.BrokerURL)
	opts.SetClientID(fmt.Sprintf("smarthome-bridge-%s", uuid.New().String()[:8]))

	if l.cfg.Username != "" {
		opts.SetUsername(l.cfg.Username)
		opts.SetPassword(l.cfg.Password)
	}

	if l.cfg.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Str("broker", l.cfg.BrokerURL).Msg("MQTT connected")
		l.resubscribe(client)
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		return fmt.Errorf("connect mqtt broker: %w", token.Error())
	}

	l.mu.Lock()
	l.client = client
	l.mu.Unlock()

	log.Info().Msg("MQTT push listener started")

	<-ctx.Done()

	client.Disconnect(250)
	log.Info().Msg("MQTT push listener stopped")

	return ctx.Err()
}

// Subscribe adds a device topic. Safe to call before Start; the topic is
// picked up on connect.
func (l *MQTTListener) Subscribe(topic string) error {
	l.mu.Lock()
	if _, ok := l.topics[topic]; ok {
		l.mu.Unlock()
		return nil
	}
	l.topics[topic] = struct{}{}
	client := l.client
	l.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return nil
	}
	return l.subscribe(client, topic)
}

func (l *MQTTListener) resubscribe(client mqtt.Client) {
	l.mu.Lock()
	topics := make([]string, 0, len(l.topics))
	for t := range l.topics {
		topics = append(topics, t)
	}
	l.mu.Unlock()

	for _, topic := range topics {
		if err := l.subscribe(client, topic); err != nil {
			log.Error().Err(err).Str("topic", topic).Msg("MQTT resubscribe failed")
		}
	}
}

func (l *MQTTListener) subscribe(client mqtt.Client, topic string) error {
	token := client.Subscribe(topic, l.cfg.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		log.Debug().
			Str("topic", msg.Topic()).
			Int("size", len(msg.Payload())).
			Msg("Shadow message received")
		l.handler(msg.Topic(), msg.Payload())
	})

	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}

	log.Info().Str("topic", topic).Msg("Subscribed to shadow topic")
	return nil
}
