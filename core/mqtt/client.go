package mqtt

import (
	"time"

	"github.com/viklund/heatopt/core/model"
)

// Client represents an MQTT client capable of sending setpoint commands to
// thermostats and waiting for acknowledgments.
type Client interface {
	// SendSetpoint publishes a heating level for the given zone and returns
	// the command identifier used to track the acknowledgment. The command
	// carries its validity window; receivers discard commands whose window
	// has passed.
	SendSetpoint(zoneID string, level model.HeatingLevel, effectiveFrom, validUntil time.Time) (commandID string, err error)

	// WaitForAck waits for an acknowledgment for the provided command
	// identifier or until the timeout expires.
	WaitForAck(commandID string, timeout time.Duration) (bool, error)
}
