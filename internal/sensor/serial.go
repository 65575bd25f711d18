package sensor

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial runs the same session protocol over a UART-attached sensor
// module instead of the TCP exploration server.
func OpenSerial(portName string, cfg SessionConfig) (*Client, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return newClient(port, cfg)
}
