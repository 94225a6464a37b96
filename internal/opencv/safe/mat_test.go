package safe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type countingTracker struct {
	allocated   map[uint64]int64
	deallocated int
}

func (c *countingTracker) TrackAllocation(mat *Mat, size int64, _ string) {
	if c.allocated == nil {
		c.allocated = make(map[uint64]int64)
	}
	c.allocated[mat.ID()] = size
}

func (c *countingTracker) TrackDeallocation(*Mat, string) {
	c.deallocated++
}

func TestNewMatFromBytesOwnsItsBuffer(t *testing.T) {
	tracker := &countingTracker{}
	data := []byte{1, 2, 3, 4, 5, 6}

	mat, err := NewMatFromBytes(2, 1, gocv.MatTypeCV8UC3, data, tracker, "bgr")
	require.NoError(t, err)
	defer mat.Close()

	data[0] = 99
	got, err := mat.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
	assert.Equal(t, int64(6), tracker.allocated[mat.ID()])

	_, err = NewMatFromBytes(2, 2, gocv.MatTypeCV8UC1, data, nil, "short")
	assert.Error(t, err)
}

func TestCloseIsIdempotentAndTracked(t *testing.T) {
	tracker := &countingTracker{}
	mat, err := NewMatWithTracker(2, 2, gocv.MatTypeCV8UC1, tracker, "plane")
	require.NoError(t, err)

	mat.Close()
	mat.Close()
	assert.Equal(t, 1, tracker.deallocated)
	assert.False(t, mat.IsValid())
	assert.True(t, mat.Empty())

	_, err = mat.Bytes()
	assert.Error(t, err)
	_, err = mat.Clone()
	assert.Error(t, err)
	assert.Error(t, ValidateMatForOperation(mat, "closed"))
}

func TestAccessorsCheckBounds(t *testing.T) {
	mat, err := NewMatFromBytes(2, 2, gocv.MatTypeCV8UC1, []byte{1, 2, 3, 4}, nil, "plane")
	require.NoError(t, err)
	defer mat.Close()

	v, err := mat.GetUCharAt(1, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), v)

	_, err = mat.GetUCharAt(2, 0)
	assert.Error(t, err)

	require.NoError(t, mat.Fill(9))
	data, err := mat.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, data)
}

func TestValidators(t *testing.T) {
	plane, err := NewMatWithTracker(3, 4, gocv.MatTypeCV8UC1, nil, "plane")
	require.NoError(t, err)
	defer plane.Close()
	color, err := NewMatWithTracker(3, 4, gocv.MatTypeCV8UC3, nil, "color")
	require.NoError(t, err)
	defer color.Close()
	other, err := NewMatWithTracker(4, 3, gocv.MatTypeCV8UC1, nil, "other")
	require.NoError(t, err)
	defer other.Close()

	assert.NoError(t, ValidatePlane(plane, "op"))
	assert.Error(t, ValidatePlane(color, "op"))
	assert.NoError(t, ValidateColor(color, "op"))
	assert.Error(t, ValidateColor(plane, "op"))
	assert.NoError(t, ValidateSameSize(plane, color, "op"))
	assert.Error(t, ValidateSameSize(plane, other, "op"))
	assert.Error(t, ValidateMatForOperation(nil, "op"))

	assert.NoError(t, ValidateDimensions(640, 480, "op"))
	assert.Error(t, ValidateDimensions(0, 480, "op"))
	assert.Error(t, ValidateDimensions(40000, 10, "op"))
}
