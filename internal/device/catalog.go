package device

import "fmt"

// Catalog enumerates the cameras on the rig and their static capabilities.
// It is populated once at startup and never mutated afterwards.
type Catalog struct {
	devices []Device
}

// NewCatalog creates a catalog from the discovered devices.
func NewCatalog(devices []Device) *Catalog {
	return &Catalog{devices: devices}
}

// Devices returns all devices in discovery order.
func (c *Catalog) Devices() []Device {
	out := make([]Device, len(c.devices))
	copy(out, c.devices)
	return out
}

// ByID looks up a device by identifier.
func (c *Catalog) ByID(id string) (Device, bool) {
	for _, d := range c.devices {
		if d.ID == id {
			return d, true
		}
	}
	return Device{}, false
}

// ByPosition looks up a device by rig position.
func (c *Catalog) ByPosition(p Position) (Device, bool) {
	for _, d := range c.devices {
		if d.Position == p {
			return d, true
		}
	}
	return Device{}, false
}

// Default returns the wide camera, the fallback target for every failed
// reconfiguration. Falls back to the first device on rigs without a wide
// module.
func (c *Catalog) Default() (Device, error) {
	if d, ok := c.ByPosition(PositionWide); ok {
		return d, nil
	}
	if len(c.devices) > 0 {
		return c.devices[0], nil
	}
	return Device{}, fmt.Errorf("catalog is empty")
}
