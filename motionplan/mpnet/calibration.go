// Package mpnet generates constrained configurations from a learned proposal network, optionally refined by a
// discriminator, and reconciles them with task space region chains through the robot's kinematics.
package mpnet

import (
	"github.com/pkg/errors"

	"go.viam.com/compnetx/referenceframe"
)

// NetworkWidth is the fixed width of the proposal network's state representation.
const NetworkWidth = 13

// taskSpaceSlots is the number of network slots after the robot's joints.
const taskSpaceSlots = 6

// ErrInvalidDimension is returned when an ambient dimension has no calibration or does not fit the network.
var ErrInvalidDimension = errors.New("unsupported ambient dimension")

// NewInvalidDimensionError returns an ErrInvalidDimension for dim.
func NewInvalidDimensionError(dim int) error {
	return errors.Wrapf(ErrInvalidDimension, "dimension %d", dim)
}

// Calibration holds the constants used for one ambient dimensionality.
type Calibration struct {
	// Coefficient scales the discriminator gradient step.
	Coefficient float64 `json:"coefficient"`
	// Threshold is the discriminator score above which the step is taken.
	Threshold float64 `json:"threshold"`
	// Remap[j] is the network slot holding ambient dimension j.
	Remap []int `json:"remap"`
}

// Validate checks that the remap places dim ambient values in distinct network slots.
func (c Calibration) Validate(dim int) error {
	if len(c.Remap) != dim {
		return errors.Wrapf(NewInvalidDimensionError(dim), "remap has %d entries", len(c.Remap))
	}
	seen := make(map[int]bool, dim)
	for j, slot := range c.Remap {
		if slot < 0 || slot >= NetworkWidth {
			return errors.Errorf("remap entry %d names slot %d outside the network's %d", j, slot, NetworkWidth)
		}
		if seen[slot] {
			return errors.Errorf("remap uses slot %d twice", slot)
		}
		seen[slot] = true
	}
	return nil
}

func slots(ranges ...[2]int) []int {
	var out []int
	for _, r := range ranges {
		for i := r[0]; i <= r[1]; i++ {
			out = append(out, i)
		}
	}
	return out
}

// DefaultCalibrations returns the calibration table for the supported dimensionalities: 9 and 11 dimensional tasks
// place their chain values in the trailing network slots, 13 dimensional tasks use every slot in order.
func DefaultCalibrations() map[int]Calibration {
	return map[int]Calibration{
		9:  {Coefficient: 0.01, Threshold: 1.2, Remap: slots([2]int{0, 6}, [2]int{11, 12})},
		11: {Coefficient: 0.01, Threshold: 1.2, Remap: slots([2]int{0, 9}, [2]int{12, 12})},
		13: {Coefficient: 0.1, Threshold: 0.1, Remap: slots([2]int{0, 12})},
	}
}

// DefaultTaskSpaceBounds returns the bounds of the network slots following the robot's joints: x, y, z in meters
// then roll, pitch, yaw in radians.
func DefaultTaskSpaceBounds() [taskSpaceSlots]referenceframe.Limit {
	return [taskSpaceSlots]referenceframe.Limit{
		{Min: -1.8594740, Max: 1.7491616},
		{Min: -1.13057968, Max: 1.4989415},
		{Min: -0.5839896, Max: 1.47961},
		{Min: -3.142, Max: 3.142},
		{Min: -3.142, Max: 3.142},
		{Min: -3.142, Max: 3.142},
	}
}
