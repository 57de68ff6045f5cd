package stitch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidMode is returned for stitch modes outside the known set.
var ErrInvalidMode = errors.New("invalid stitching mode")

// Mode fixes the order in which the three images are joined.
type Mode int

const (
	// ModeLeftLeft stitches middle+right, then left onto that.
	ModeLeftLeft Mode = iota
	// ModeLeftRight stitches left+middle, then warps right onto that.
	ModeLeftRight
	// ModeRightRight warps middle onto left, trims the ragged edge, then warps right.
	ModeRightRight
)

var modeNames = map[Mode]string{
	ModeLeftLeft:   "left-left",
	ModeLeftRight:  "left-right",
	ModeRightRight: "right-right",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode accepts either the numeric code or the name.
func ParseMode(value string) (Mode, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if n, err := strconv.Atoi(value); err == nil {
		if m := Mode(n); m.Valid() {
			return m, nil
		}
		return 0, fmt.Errorf("%w: %d", ErrInvalidMode, n)
	}
	for m, name := range modeNames {
		if name == value {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, value)
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
