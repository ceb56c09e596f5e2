package mqtt

import "errors"

// ErrAckTimeout is returned when a setpoint command is not acknowledged
// before the timeout. Thermostat effects are still observed through the
// sensor path, so callers log this rather than retrying.
var ErrAckTimeout = errors.New("timeout waiting for setpoint ack")
