//go:build linux

package spi

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Minimal Linux spidev implementation backed by /dev/spidev*.
//
// Every Transfer is one full-duplex SPI_IOC_MESSAGE(1) with chip select held
// for the whole buffer, which is what register access on SX127x/SX126x needs.

const (
	spiIocWrMode        = 0x40016B01
	spiIocWrBitsPerWord = 0x40016B03
	spiIocWrMaxSpeedHz  = 0x40046B04
	spiIocMessage1      = 0x40206B00
)

// ioc_transfer from linux/spi/spidev.h.
type iocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Device is an opened spidev node (e.g., /dev/spidev0.0).
//
// Device is not safe for concurrent transfers; the radio loop owns it.
type Device struct {
	f       *os.File
	path    string
	speedHz uint32
}

func Open(path string, speedHz uint32) (*Device, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	d := &Device{f: f, path: path, speedHz: speedHz}

	mode := uint8(0)
	bits := uint8(8)
	for _, c := range []struct {
		req uintptr
		ptr unsafe.Pointer
	}{
		{spiIocWrMode, unsafe.Pointer(&mode)},
		{spiIocWrBitsPerWord, unsafe.Pointer(&bits)},
		{spiIocWrMaxSpeedHz, unsafe.Pointer(&speedHz)},
	} {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), c.req, uintptr(c.ptr)); errno != 0 {
			_ = f.Close()
			return nil, fmt.Errorf("spi %s setup: %w", path, errno)
		}
	}
	return d, nil
}

func (d *Device) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *Device) String() string {
	if d == nil {
		return "spi(nil)"
	}
	return d.path
}

// Transfer clocks out tx while clocking in the same number of bytes into rx.
// rx may be nil when the response is not needed.
func (d *Device) Transfer(tx, rx []byte) error {
	if d == nil || d.f == nil {
		return errors.New("spi device is nil")
	}
	if len(tx) == 0 {
		return nil
	}
	if rx != nil && len(rx) < len(tx) {
		return fmt.Errorf("spi rx buffer %d bytes, need %d", len(rx), len(tx))
	}
	xfer := iocTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		length:      uint32(len(tx)),
		speedHz:     d.speedHz,
		bitsPerWord: 8,
	}
	if rx != nil {
		xfer.rxBuf = uint64(uintptr(unsafe.Pointer(&rx[0])))
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(spiIocMessage1), uintptr(unsafe.Pointer(&xfer)))
	if errno != 0 {
		return errno
	}
	return nil
}
