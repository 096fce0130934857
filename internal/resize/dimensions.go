// Package resize computes target image dimensions from size constraints.
package resize

import (
	"errors"
	"fmt"
)

// ErrInvalidConstraint is returned when no dimension constraint is set.
var ErrInvalidConstraint = errors.New("at least one of max length, max width or max height must be set")

// Constraints limits the size of a resized image. Zero means unset.
type Constraints struct {
	MaxLength int `mapstructure:"max_length"` // limit for the longer side
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
}

// Validate checks that at least one constraint is set and none is negative.
func (c Constraints) Validate() error {
	if c.MaxLength < 0 || c.MaxWidth < 0 || c.MaxHeight < 0 {
		return fmt.Errorf("%w: negative value in %+v", ErrInvalidConstraint, c)
	}
	if c.MaxLength == 0 && c.MaxWidth == 0 && c.MaxHeight == 0 {
		return ErrInvalidConstraint
	}

	return nil
}

// Calculate returns the target size for a width x height image.
//
// The first matching rule wins:
//  1. max length set and the longer side exceeds it: the longer side becomes
//     max length (height for portrait, where height >= width).
//  2. only max width set and width exceeds it.
//  3. only max height set and height exceeds it.
//  4. otherwise the size is returned unchanged.
//
// Results are truncated; images are never upscaled.
func Calculate(width, height int, c Constraints) (int, int, error) {
	if err := c.Validate(); err != nil {
		return 0, 0, err
	}
	if width <= 0 || height <= 0 {
		return width, height, nil
	}

	byWidth := c.MaxWidth > 0 && c.MaxHeight == 0 && c.MaxLength == 0
	byHeight := c.MaxHeight > 0 && c.MaxWidth == 0 && c.MaxLength == 0

	switch {
	case c.MaxLength > 0 && max(width, height) > c.MaxLength:
		if height >= width {
			return scale(width, c.MaxLength, height), c.MaxLength, nil
		}
		return c.MaxLength, scale(height, c.MaxLength, width), nil
	case byWidth && width > c.MaxWidth:
		return c.MaxWidth, scale(height, c.MaxWidth, width), nil
	case byHeight && height > c.MaxHeight:
		return scale(width, c.MaxHeight, height), c.MaxHeight, nil
	default:
		return width, height, nil
	}
}

// SizeQualityTag returns the deterministic file name suffix describing the
// constraints and quality, e.g. "_max5000q75".
func SizeQualityTag(c Constraints, quality int) string {
	switch {
	case c.MaxLength > 0:
		return fmt.Sprintf("_max%dq%d", c.MaxLength, quality)
	case c.MaxWidth > 0 && c.MaxHeight > 0:
		return fmt.Sprintf("_w%dh%dq%d", c.MaxWidth, c.MaxHeight, quality)
	case c.MaxWidth > 0:
		return fmt.Sprintf("_w%dq%d", c.MaxWidth, quality)
	default:
		return fmt.Sprintf("_h%dq%d", c.MaxHeight, quality)
	}
}

// scale returns side * target / reference, truncated, and at least 1.
func scale(side, target, reference int) int {
	v := int(int64(side) * int64(target) / int64(reference))
	if v < 1 {
		return 1
	}

	return v
}
