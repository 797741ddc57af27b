// Package telemetry mirrors axis commands to an MQTT broker as JSON for
// external dashboards. The mirror is best-effort and optional: the UDP
// control link never waits on it.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bci-flystick/flystick/internal/axis"
)

// message is the published JSON payload.
type message struct {
	Seq      uint32  `json:"seq"`
	TS       float64 `json:"ts"` // unix seconds
	Yaw      float32 `json:"yaw"`
	Altitude float32 `json:"altitude"`
	Pitch    float32 `json:"pitch"`
	Throttle float32 `json:"throttle"`
	Neutral  bool    `json:"neutral,omitempty"`
}

// Mirror publishes commands to one broker topic.
type Mirror struct {
	client mqtt.Client
	topic  string
}

// NewMirror connects to the broker. clientID should be unique per process.
func NewMirror(broker, clientID, topic string) (*Mirror, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", broker, token.Error())
	}
	log.Printf("telemetry: mirroring commands to %s topic %q", broker, topic)
	return &Mirror{client: client, topic: topic}, nil
}

// Publish mirrors one command. Errors are logged, not returned: the mirror
// must never disturb the control loop.
func (m *Mirror) Publish(cmd axis.Command) {
	payload, err := json.Marshal(message{
		Seq:      cmd.Seq,
		TS:       float64(cmd.Timestamp.UnixNano()) / 1e9,
		Yaw:      cmd.Axes[axis.Yaw],
		Altitude: cmd.Axes[axis.Altitude],
		Pitch:    cmd.Axes[axis.Pitch],
		Throttle: cmd.Axes[axis.Throttle],
		Neutral:  cmd.Neutral,
	})
	if err != nil {
		log.Printf("telemetry: marshal error: %v", err)
		return
	}
	if token := m.client.Publish(m.topic, 0, false, payload); token.Wait() && token.Error() != nil {
		log.Printf("telemetry: publish error: %v", token.Error())
	}
}

// Close disconnects from the broker.
func (m *Mirror) Close() {
	m.client.Disconnect(250)
}
