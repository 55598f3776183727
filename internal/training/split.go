package training

import (
	"errors"
	"fmt"

	"loadcast/internal/dataset"
)

// ErrInvalidSplit means the split fractions are out of range.
var ErrInvalidSplit = errors.New("invalid split fractions")

// Split partitions the frame chronologically into train, validation and test
// segments. testFrac must be in (0,1), valFrac in [0,1), and their sum below 1.
// The validation segment may be empty when valFrac is 0.
func Split(f *dataset.Frame, testFrac, valFrac float64) (train, val, test *dataset.Frame, err error) {
	if testFrac <= 0 || testFrac >= 1 {
		return nil, nil, nil, fmt.Errorf("%w: test fraction %v not in (0,1)", ErrInvalidSplit, testFrac)
	}
	if valFrac < 0 || valFrac >= 1 {
		return nil, nil, nil, fmt.Errorf("%w: validation fraction %v not in [0,1)", ErrInvalidSplit, valFrac)
	}
	if testFrac+valFrac >= 1 {
		return nil, nil, nil, fmt.Errorf("%w: test+validation %v leaves no training data", ErrInvalidSplit, testFrac+valFrac)
	}

	n := f.Len()
	nTest := int(float64(n) * testFrac)
	nVal := int(float64(n) * valFrac)
	if nTest < 1 || n-nTest-nVal < 1 {
		return nil, nil, nil, fmt.Errorf("%w: %d rows cannot satisfy test=%v val=%v", ErrInvalidSplit, n, testFrac, valFrac)
	}

	trainEnd := n - nTest - nVal
	valEnd := n - nTest
	return f.Slice(0, trainEnd), f.Slice(trainEnd, valEnd), f.Slice(valEnd, n), nil
}
