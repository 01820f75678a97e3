//go:build !linux

package spi

import "fmt"

type Device struct{}

func Open(path string, speedHz uint32) (*Device, error) {
	return nil, fmt.Errorf("spi: unsupported OS (need linux)")
}

func (d *Device) Close() error                 { return nil }
func (d *Device) String() string               { return "spi(unsupported)" }
func (d *Device) Transfer(tx, rx []byte) error { return fmt.Errorf("spi: unsupported OS") }
