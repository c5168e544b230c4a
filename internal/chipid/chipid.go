// Package chipid resolves the 48 bit factory identifier the device EUI is
// derived from.
package chipid

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/ttn-sensor-node/internal/config"
)

const mask = 1<<48 - 1

// ErrNoInterface is returned when no network interface with a 48 bit
// hardware address was found.
var ErrNoInterface = errors.New("no interface with a 48 bit hardware address")

// interfaces is overwritten by the tests.
var interfaces = net.Interfaces

// Get returns the chip id. It uses the configured chip id when set, else the
// hardware address of the configured (or first suitable) network interface.
func Get(c config.Config) (uint64, error) {
	if c.Device.ChipID != "" {
		id, err := Parse(c.Device.ChipID)
		if err != nil {
			return 0, err
		}

		log.WithField("chip_id", c.Device.ChipID).Info("chipid: using configured chip id")
		return id, nil
	}

	ifaces, err := interfaces()
	if err != nil {
		return 0, errors.Wrap(err, "get network interfaces error")
	}

	for _, iface := range ifaces {
		if c.Device.Interface != "" && iface.Name != c.Device.Interface {
			continue
		}
		if c.Device.Interface == "" && iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			continue
		}

		log.WithFields(log.Fields{
			"interface":        iface.Name,
			"hardware_address": iface.HardwareAddr.String(),
		}).Info("chipid: using hardware address as chip id")

		return FromHardwareAddr(iface.HardwareAddr), nil
	}

	if c.Device.Interface != "" {
		return 0, errors.Wrapf(ErrNoInterface, "interface %s", c.Device.Interface)
	}
	return 0, ErrNoInterface
}

// Parse parses a hexadecimal chip id of at most 12 characters.
func Parse(s string) (uint64, error) {
	if len(s) == 0 || len(s) > 12 {
		return 0, errors.Errorf("chip id must be 1 to 12 hex characters, got %d", len(s))
	}

	id, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrap(err, "parse chip id error")
	}
	return id, nil
}

// FromHardwareAddr returns the chip id of the given 48 bit hardware address,
// most significant byte first.
func FromHardwareAddr(addr net.HardwareAddr) uint64 {
	var id uint64
	for _, b := range addr {
		id = id<<8 | uint64(b)
	}
	return id & mask
}
