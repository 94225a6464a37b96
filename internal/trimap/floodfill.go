package trimap

import (
	"fmt"

	"backdrop-cutout/internal/analysis"
	"backdrop-cutout/internal/opencv/memory"
	"backdrop-cutout/internal/opencv/safe"
)

// BorderFloodFill grows the backdrop from the four image corners over the
// grayscale map. A neighbour joins when it lies within Tolerance of the
// corner's own value, so gradients cannot creep into the subject. A corner
// that is not itself within Tolerance of white claims only its own pixel.
type BorderFloodFill struct {
	Tolerance    int
	BorderMargin int
}

func (f *BorderFloodFill) Name() string { return "flood-fill" }

func (f *BorderFloodFill) Build(arena *memory.Arena, ch *analysis.Channels) (*Result, error) {
	if ch == nil {
		return nil, fmt.Errorf("flood fill: channels are nil")
	}
	if err := safe.ValidatePlane(ch.Gray, "flood fill"); err != nil {
		return nil, err
	}
	if f.BorderMargin < 0 {
		return nil, fmt.Errorf("flood fill: negative border margin %d", f.BorderMargin)
	}

	gray, err := ch.Gray.Bytes()
	if err != nil {
		return nil, fmt.Errorf("flood fill: %w", err)
	}
	rows, cols := ch.Gray.Rows(), ch.Gray.Cols()

	background := plane{rows: rows, cols: cols, data: make([]byte, rows*cols)}
	visited := make([]bool, rows*cols)
	for _, seed := range corners(rows, cols) {
		for i := range visited {
			visited[i] = false
		}
		if nearWhite(gray[seed], f.Tolerance) {
			floodFill(gray, visited, rows, cols, seed, f.Tolerance)
		} else {
			visited[seed] = true
		}
		for i, v := range visited {
			if v {
				background.data[i] = 255
			}
		}
	}
	fillBorder(background.data, rows, cols, f.BorderMargin, 255)

	labels := make([]byte, rows*cols)
	for i, v := range background.data {
		if v == 255 {
			labels[i] = byte(CertainBG)
		} else {
			labels[i] = byte(ProbableFG)
		}
	}

	return newResult(arena, labels, background)
}

func corners(rows, cols int) []int {
	return []int{0, cols - 1, (rows - 1) * cols, rows*cols - 1}
}

func nearWhite(v byte, tolerance int) bool {
	return int(v) >= 255-tolerance
}

// floodFill marks in visited every cell 4-connected to seed whose gray
// value stays within tolerance of the seed value.
func floodFill(gray []byte, visited []bool, rows, cols, seed, tolerance int) {
	ref := int(gray[seed])
	match := func(i int) bool {
		if visited[i] {
			return false
		}
		d := int(gray[i]) - ref
		return d >= -tolerance && d <= tolerance
	}

	stack := []int{seed}
	visited[seed] = true
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%cols, i/cols

		if x > 0 && match(i-1) {
			visited[i-1] = true
			stack = append(stack, i-1)
		}
		if x < cols-1 && match(i+1) {
			visited[i+1] = true
			stack = append(stack, i+1)
		}
		if y > 0 && match(i-cols) {
			visited[i-cols] = true
			stack = append(stack, i-cols)
		}
		if y < rows-1 && match(i+cols) {
			visited[i+cols] = true
			stack = append(stack, i+cols)
		}
	}
}
