package otrcp

import (
	"io"

	"github.com/tarm/serial"
)

// OpenSerial opens the UART the RCP is attached to. baud is typically
// 115200 or 460800 depending on the co-processor firmware.
func OpenSerial(dev string, baud int) (io.ReadWriteCloser, error) {
	c := &serial.Config{Name: dev, Baud: baud}
	return serial.OpenPort(c)
}
