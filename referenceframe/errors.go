package referenceframe

import (
	"fmt"

	"github.com/pkg/errors"
)

// World is the reserved name of the root frame of a model file.
const World = "world"

var (
	// ErrCircularReference is returned when a model's frames do not form a tree.
	ErrCircularReference = errors.New("infinite loop finding path from end effector to world")

	// ErrNeedOneEndEffector is returned when a model has zero or several leaf frames.
	ErrNeedOneEndEffector = errors.New("need exactly one end effector")

	// ErrNoModelInformation is used when there is no model information.
	ErrNoModelInformation = errors.New("no model information")
)

// NewIncorrectDoFError returns an error indicating that the number of inputs does not match the frame's degrees of freedom.
func NewIncorrectDoFError(actual, expected int) error {
	return errors.Errorf("number of actual inputs %d does not match expected %d", actual, expected)
}

// NewFrameNotInListOfTransformsError returns an error indicating that a frame is missing from the transform list.
func NewFrameNotInListOfTransformsError(frameName string) error {
	return fmt.Errorf("frame %s is missing from the list of transforms", frameName)
}

// NewParentFrameNotInMapOfParentsError returns an error indicating that a frame's parent is not defined.
func NewParentFrameNotInMapOfParentsError(frameName string) error {
	return fmt.Errorf("parent for frame %s is not defined", frameName)
}

// NewReservedWordError returns an error indicating a reserved word was used as an ID.
func NewReservedWordError(configType, reservedWord string) error {
	return fmt.Errorf("reserved word: cannot name a %s '%s'", configType, reservedWord)
}
