package nmea

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// OpenPort opens a GNSS receiver's serial port in 8N1 mode.
func OpenPort(name string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:              name,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return port, nil
}
