package session

import (
	"fmt"
	"math"

	"github.com/smazurov/cinecam/internal/device"
	"github.com/smazurov/cinecam/internal/events"
)

// substitutionThreshold is how close the requested factor must be to another
// camera's native factor before the session substitutes the device instead
// of zooming digitally.
const substitutionThreshold = 0.5

// zoomRampRate is the smooth ramp speed in zoom factors per second.
const zoomRampRate = 4.0

// SwitchLens moves the session to the camera at the named rig position. The
// switch is a full reconfiguration transaction; exposure state is restored
// against the new sensor's actual frame rate.
func (c *Controller) SwitchLens(position device.Position) error {
	return c.do("switchLens", func() error {
		if !c.running {
			return newError(KindNotRunning, "session is not running", nil)
		}
		if c.pipeline.Active() {
			return newError(KindConfigurationFailed, "lens is locked while recording", nil)
		}
		target, ok := c.catalog.ByPosition(position)
		if !ok {
			return newError(KindLensUnavailable, fmt.Sprintf("no %s camera on this rig", position), nil)
		}
		if c.drv != nil && c.drv.Device().ID == target.ID {
			return nil
		}
		c.metrics.LensSwitches.WithLabelValues("substitution").Inc()
		if err := c.reconfigure(target); err != nil {
			return err
		}
		c.zoomFactor = target.NativeZoom
		c.setStatus(string(target.Position), c.zoomFactor, "running")
		c.bus.Publish(events.ZoomChangedEvent{Factor: c.zoomFactor})
		return nil
	})
}

// SetZoom drives the rig toward an overall zoom factor. When the factor
// lands within the substitution threshold of another camera's native factor
// the session switches devices; otherwise the current camera ramps its
// digital zoom smoothly.
func (c *Controller) SetZoom(factor float64) error {
	return c.do("setZoom", func() error {
		if !c.running {
			return newError(KindNotRunning, "session is not running", nil)
		}
		if factor <= 0 {
			return newError(KindConfigurationFailed, fmt.Sprintf("zoom factor %.2f", factor), nil)
		}

		current := c.drv.Device()
		target := c.nearestByNative(factor)

		substitute := target.ID != current.ID &&
			math.Abs(factor-target.NativeZoom) < substitutionThreshold &&
			!c.pipeline.Active()

		if substitute {
			c.metrics.LensSwitches.WithLabelValues("substitution").Inc()
			if err := c.reconfigure(target); err != nil {
				return err
			}
			digital := clampZoom(factor/target.NativeZoom, target)
			if err := c.drv.SetZoom(digital); err != nil {
				c.logger.Warn("Failed to set zoom after lens switch", "error", err)
			}
		} else {
			target = current
			c.metrics.LensSwitches.WithLabelValues("digitalZoom").Inc()
			digital := clampZoom(factor/current.NativeZoom, current)
			if err := c.drv.RampZoom(digital, zoomRampRate); err != nil {
				return newError(KindConfigurationFailed, "zoom ramp", err)
			}
		}

		c.zoomFactor = factor
		c.setStatus(string(target.Position), factor, "running")
		c.bus.Publish(events.ZoomChangedEvent{Factor: factor})
		return nil
	})
}

// Zoom returns the last requested overall zoom factor.
func (c *Controller) Zoom() float64 {
	var z float64
	_ = c.do("zoom", func() error {
		z = c.zoomFactor
		return nil
	})
	return z
}

// nearestByNative picks the camera whose native factor is closest to the
// requested overall factor.
func (c *Controller) nearestByNative(factor float64) device.Device {
	devices := c.catalog.Devices()
	best := devices[0]
	bestDist := math.Abs(factor - best.NativeZoom)
	for _, d := range devices[1:] {
		if dist := math.Abs(factor - d.NativeZoom); dist < bestDist {
			best = d
			bestDist = dist
		}
	}
	return best
}

func clampZoom(digital float64, dev device.Device) float64 {
	if digital < dev.MinZoom {
		return dev.MinZoom
	}
	if digital > dev.MaxZoom {
		return dev.MaxZoom
	}
	return digital
}
