//go:build linux

package spi

import (
	"os"
	"strings"
	"testing"
	"unsafe"
)

func TestIocTransferLayout(t *testing.T) {
	// The kernel ABI fixes struct spi_ioc_transfer at 32 bytes.
	if got := unsafe.Sizeof(iocTransfer{}); got != 32 {
		t.Fatalf("sizeof(iocTransfer)=%d want 32", got)
	}
}

func TestTransfer_NilDevice(t *testing.T) {
	var d *Device
	err := d.Transfer([]byte{0x42}, nil)
	if err == nil || !strings.Contains(err.Error(), "spi device is nil") {
		t.Fatalf("err=%v want spi device is nil", err)
	}
}

func TestTransfer_EmptyIsNoop(t *testing.T) {
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	defer f.Close()

	d := &Device{f: f, path: "/dev/null"}
	if err := d.Transfer(nil, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestTransfer_ShortRx(t *testing.T) {
	f, err := os.OpenFile("/dev/null", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile /dev/null: %v", err)
	}
	defer f.Close()

	d := &Device{f: f, path: "/dev/null"}
	err = d.Transfer([]byte{1, 2, 3}, make([]byte, 1))
	if err == nil || !strings.Contains(err.Error(), "rx buffer") {
		t.Fatalf("err=%v want rx buffer error", err)
	}
}

func TestOpen_MissingNode(t *testing.T) {
	if _, err := Open("/dev/spidev-does-not-exist", 1_000_000); err == nil {
		t.Fatalf("expected error opening missing node")
	}
}
