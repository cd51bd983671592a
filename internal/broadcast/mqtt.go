package broadcast

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTTransport delivers room traffic over an MQTT broker. Room topics map
// directly onto broker topics, so "joining a room" is a plain broker-side
// subscription for observers.
type MQTTTransport struct {
	client mqtt.Client
}

// NewMQTTClient connects a paho client with automatic broker reconnection.
func NewMQTTClient(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

func NewMQTTTransport(client mqtt.Client) *MQTTTransport {
	return &MQTTTransport{client: client}
}

func (t *MQTTTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	token := t.client.Publish(topic, 1, false, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
