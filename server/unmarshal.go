package server

import (
	"fmt"
	"slices"
	"strconv"
)

func skipSpace(data []byte, i int) int {
	for i < len(data) {
		switch data[i] {
		case ' ', '\n', '\t', '\r':
			i++
		default:
			return i
		}
	}
	return i
}

// scanCoord reads one float starting at i. An empty run of number
// characters parses as zero, the surrounding grammar rejects the
// stray byte that follows.
func scanCoord(data []byte, i int) (float64, int, error) {
	start := i
	for i < len(data) {
		c := data[i]
		if (c >= '0' && c <= '9') || c == '-' || c == '.' || c == 'e' || c == 'E' {
			i++
			continue
		}
		break
	}
	if start == i {
		return 0, i, nil
	}
	v, err := strconv.ParseFloat(string(data[start:i]), 64)
	if err != nil {
		return 0, i, fmt.Errorf("bad coordinate: %w", err)
	}
	return v, i, nil
}

// unmarshalPointsListFast parses a JSON array of [lat, lon] pairs without
// going through encoding/json. The multi point endpoint is the hot path for
// territory scans, bodies there run to tens of thousands of points.
func unmarshalPointsListFast(data []byte, result *[][2]float64) error {
	n := len(data)
	*result = slices.Grow(*result, n/16) // n/16 is a heuristic

	i := skipSpace(data, 0)
	if i >= n || data[i] != '[' {
		return fmt.Errorf("points list must open with '['")
	}
	i++

	for i < n {
		i = skipSpace(data, i)
		if i < n && data[i] == ']' {
			i++
			break
		}
		if i >= n || data[i] != '[' {
			return fmt.Errorf("point must open with '['")
		}
		i++

		var point [2]float64
		for j := 0; j < 2; j++ {
			var err error
			point[j], i, err = scanCoord(data, skipSpace(data, i))
			if err != nil {
				return err
			}
			i = skipSpace(data, i)
			if j == 0 {
				if i >= n || data[i] != ',' {
					return fmt.Errorf("point needs two comma separated coordinates")
				}
				i++
			}
		}

		for i < n && data[i] != ']' {
			i++
		}
		if i >= n {
			return fmt.Errorf("unterminated point")
		}
		i++

		*result = append(*result, point)

		i = skipSpace(data, i)
		if i < n && data[i] == ',' {
			i++
		} else if i < n && data[i] == ']' {
			i++
			break
		}
	}

	return nil
}
