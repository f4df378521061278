package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wrenfold/haptic-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds

	keepAliveInterval = 60 * time.Second
	pingTimeout       = 10 * time.Second
)

// buildClientOptions constructs paho client options from config.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts.AddBroker(brokerURL)

	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	// Clean session: broker discards state on disconnect. We track our own
	// subscriptions and restore them on reconnect.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	maxReconnect := time.Duration(cfg.Reconnect.MaxDelay) * time.Second
	if maxReconnect <= 0 {
		maxReconnect = 2 * time.Minute
	}
	opts.SetMaxReconnectInterval(maxReconnect)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(keepAliveInterval)
	opts.SetPingTimeout(pingTimeout)

	// Queue QoS>0 publishes while reconnecting rather than failing them.
	opts.SetOrderMatters(false)

	return opts
}

// configureLWT sets up the Last Will and Testament message.
//
// If the server crashes or loses connection ungracefully, the broker
// publishes this message so device links and observers can detect the
// router going away.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	opts.SetWill(topics.SystemStatus(), string(buildOfflineLWTPayload(clientID)), 1, true)
}

// statusPayload is the JSON shape published to the system status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// buildOnlinePayload creates the online status message.
func buildOnlinePayload(clientID string) []byte {
	payload, _ := json.Marshal(statusPayload{
		Status:    "online",
		ClientID:  clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}

// buildOfflinePayload creates the graceful offline status message.
func buildOfflinePayload(clientID string) []byte {
	payload, _ := json.Marshal(statusPayload{
		Status:    "offline",
		ClientID:  clientID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Reason:    "shutdown",
	})
	return payload
}

// buildOfflineLWTPayload creates the ungraceful offline message published
// by the broker on our behalf. No timestamp: the broker stores this at
// connect time, so a connect-time stamp would be misleading.
func buildOfflineLWTPayload(clientID string) []byte {
	payload, _ := json.Marshal(statusPayload{
		Status:   "offline",
		ClientID: clientID,
		Reason:   "connection_lost",
	})
	return payload
}
