//go:build linux

package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
	4000000: unix.B4000000,
}

// Configure 把 tty 设置成 raw 8N1
func (h *Handle) Configure(baud int) error {
	speed, ok := baudRates[baud]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedBaud, baud)
	}

	t, err := unix.IoctlGetTermios(h.fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr %s: %w", h.path, err)
	}

	t.Cflag &^= unix.CBAUD | unix.PARENB | unix.CSIZE | unix.CSTOPB
	t.Cflag |= speed | unix.CLOCAL | unix.CREAD | unix.CS8 | unix.HUPCL
	t.Ispeed = speed
	t.Ospeed = speed

	t.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ISIG
	t.Iflag &^= unix.INLCR | unix.ICRNL | unix.IGNCR | unix.IXON | unix.IXOFF
	t.Iflag |= unix.IGNPAR
	t.Oflag &^= unix.OPOST | unix.ONLRET | unix.ONOCR | unix.OCRNL | unix.ONLCR

	if err := unix.IoctlSetTermios(h.fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("tcsetattr %s: %w", h.path, err)
	}
	return nil
}
