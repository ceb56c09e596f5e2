package mqtt

import (
	"sync"
	"time"

	coremqtt "github.com/viklund/heatopt/core/mqtt"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/infra/logger"
)

// Actuator adapts the MQTT client to the zone controller's actuation
// boundary. Commands are fire-and-forget from the controller's point of
// view; acknowledgments are awaited in the background and only logged,
// since outcomes are observed through the sensor boundary anyway.
type Actuator struct {
	client     coremqtt.Client
	validity   time.Duration
	ackTimeout time.Duration
	log        logger.Logger
}

// NewActuator creates an actuator. validity bounds how long a published
// command may still be applied; it normally equals the planning step.
func NewActuator(client coremqtt.Client, validity, ackTimeout time.Duration) *Actuator {
	if ackTimeout <= 0 {
		ackTimeout = 5 * time.Second
	}
	return &Actuator{
		client:     client,
		validity:   validity,
		ackTimeout: ackTimeout,
		log:        logger.New("actuator"),
	}
}

// SetHeatingLevel publishes the command for the zone.
func (a *Actuator) SetHeatingLevel(zoneID string, level model.HeatingLevel, effectiveFrom time.Time) error {
	cmdID, err := a.client.SendSetpoint(zoneID, level, effectiveFrom, effectiveFrom.Add(a.validity))
	if err != nil {
		return err
	}
	go func() {
		ok, err := a.client.WaitForAck(cmdID, a.ackTimeout)
		if err != nil || !ok {
			a.log.Warnf("zone %s: no ack for command %s: %v", zoneID, cmdID, err)
		}
	}()
	return nil
}

// MockClient is an in-memory mqtt.Client used in tests.
type MockClient struct {
	mu       sync.Mutex
	Commands []SetpointCommand
	FailZone map[string]bool
}

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{FailZone: make(map[string]bool)}
}

// SendSetpoint records the command or fails when configured to.
func (m *MockClient) SendSetpoint(zoneID string, level model.HeatingLevel, effectiveFrom, validUntil time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailZone[zoneID] {
		return "", coremqtt.ErrAckTimeout
	}
	cmd := SetpointCommand{
		CommandID:     "cmd-" + zoneID,
		ZoneID:        zoneID,
		Level:         float64(level),
		EffectiveFrom: effectiveFrom.UnixMilli(),
		ValidUntil:    validUntil.UnixMilli(),
	}
	m.Commands = append(m.Commands, cmd)
	return cmd.CommandID, nil
}

// WaitForAck acknowledges immediately.
func (m *MockClient) WaitForAck(string, time.Duration) (bool, error) { return true, nil }

// Sent returns a copy of the recorded commands.
func (m *MockClient) Sent() []SetpointCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SetpointCommand, len(m.Commands))
	copy(out, m.Commands)
	return out
}
