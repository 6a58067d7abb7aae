package notifier

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"fleet-monitor/telemetry/internal/broadcast"
	"fleet-monitor/telemetry/internal/config"
	"fleet-monitor/telemetry/pkg/log"
)

const (
	publishTimeout = 5 * time.Second

	// reasonNoSubscribers is a successful publish nobody was listening to.
	reasonNoSubscribers = 16
)

// publisher is satisfied by *autopaho.ConnectionManager.
type publisher interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// MQTTNotifier mirrors every vehicle update to
// {root}/vehicles/{id}/telemetry. It is registered with the broadcaster as
// one more connection.
type MQTTNotifier struct {
	pub       publisher
	cm        *autopaho.ConnectionManager
	topicRoot string
	qos       byte
}

var _ broadcast.Conn = (*MQTTNotifier)(nil)

// Dial starts a managed MQTT connection. It returns once the connection
// manager is running; the first connect and any reconnects happen in the
// background and sends fail until the broker is reachable.
func Dial(ctx context.Context, cfg *config.Config, logger log.Logger) (*MQTTNotifier, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.WithName("mqtt")

	brokerURL, err := url.Parse(cfg.MQTTBroker)
	if err != nil {
		return nil, fmt.Errorf("invalid mqtt broker url: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         0,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectUsername:               cfg.MQTTUsername,
		ConnectPassword:               []byte(cfg.MQTTPassword),
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			logger.Info("connected to MQTT broker", "server", cfg.MQTTBroker)
		},
		OnConnectError: func(err error) {
			logger.Error(err, "failed to connect to MQTT broker", "server", cfg.MQTTBroker)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.MQTTClientID,
			OnClientError: func(err error) {
				logger.Error(err, "MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					logger.Info("server requested disconnect", "reason", d.Properties.ReasonString)
				} else {
					logger.Info("server requested disconnect", "reasonCode", int(d.ReasonCode))
				}
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create mqtt connection manager: %w", err)
	}

	n := newMQTTNotifier(cm, cfg.MQTTTopicRoot)
	n.cm = cm
	return n, nil
}

func newMQTTNotifier(pub publisher, topicRoot string) *MQTTNotifier {
	return &MQTTNotifier{pub: pub, topicRoot: topicRoot}
}

func (n *MQTTNotifier) Topic(vehicleID string) string {
	return fmt.Sprintf("%s/vehicles/%s/telemetry", n.topicRoot, vehicleID)
}

func (n *MQTTNotifier) Send(ctx context.Context, msg broadcast.Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	pr, err := n.pub.Publish(ctx, &paho.Publish{
		QoS:     n.qos,
		Topic:   n.Topic(msg.Snapshot.ID),
		Payload: msg.Payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	})
	if err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}
	if pr != nil && pr.ReasonCode != 0 && pr.ReasonCode != reasonNoSubscribers {
		return fmt.Errorf("mqtt publish rejected with reason code %d", pr.ReasonCode)
	}
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close(ctx context.Context) error {
	if n.cm == nil {
		return nil
	}
	return n.cm.Disconnect(ctx)
}
