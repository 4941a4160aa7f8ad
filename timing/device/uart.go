package device

import (
	"io"
)

// UART register offsets, 16550 layout.
const (
	UARTData       = 0x0
	UARTLineStatus = 0x5
)

// Line status bits.
const (
	LSRDataReady = 0x01
	LSRTxEmpty   = 0x60
)

const uartWindow = 0x100

// UART is a byte-wide serial port. Bytes written to the data register go to
// an io.Writer; bytes queued with Feed are read back from it.
type UART struct {
	name  string
	out   io.Writer
	input []byte

	sent uint64
}

// NewUART creates a UART that writes its output to out.
func NewUART(name string, out io.Writer) *UART {
	if out == nil {
		out = io.Discard
	}

	return &UART{name: name, out: out}
}

// Name returns the name of the UART.
func (u *UART) Name() string {
	return u.name
}

// Size returns the register window size.
func (u *UART) Size() uint64 {
	return uartWindow
}

// Feed queues input bytes.
func (u *UART) Feed(data []byte) {
	u.input = append(u.input, data...)
}

// Sent returns the number of bytes transmitted.
func (u *UART) Sent() uint64 {
	return u.sent
}

// Read implements Device.
func (u *UART) Read(offset uint64, size int) (uint64, bool) {
	if size != 1 {
		return 0, false
	}

	switch offset {
	case UARTData:
		if len(u.input) == 0 {
			return 0, true
		}

		b := u.input[0]
		u.input = u.input[1:]

		return uint64(b), true
	case UARTLineStatus:
		lsr := uint64(LSRTxEmpty)
		if len(u.input) > 0 {
			lsr |= LSRDataReady
		}

		return lsr, true
	}

	return 0, false
}

// Write implements Device.
func (u *UART) Write(offset uint64, size int, value uint64) bool {
	if size != 1 || offset != UARTData {
		return false
	}

	if _, err := u.out.Write([]byte{byte(value)}); err != nil {
		return false
	}

	u.sent++

	return true
}

// Tick implements Device.
func (u *UART) Tick() {}
