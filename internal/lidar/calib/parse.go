package calib

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/lidarcal/internal/fsutil"
)

var (
	// ErrMalformedLine is returned for a non-blank line without an "ID:" prefix.
	ErrMalformedLine = errors.New("line is not of the form \"ID: values\"")
	// ErrValueCount is returned when a recognised ID has the wrong number of values.
	ErrValueCount = errors.New("wrong number of values")
	// ErrMissingMatrix is returned when a file lacks one of the required roles.
	ErrMissingMatrix = errors.New("calibration matrix missing")
)

// ParseError reports a problem on one line of a calibration file.
type ParseError struct {
	Line int
	ID   string
	Err  error
}

func (e *ParseError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("calibration line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("calibration line %d (%s): %v", e.Line, e.ID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse reads "ID: v0 v1 ..." lines. P2, R0_rect and Tr_velo_to_cam are
// reshaped by their role; other IDs and blank lines are ignored. A later
// line for the same ID replaces an earlier one.
func Parse(r io.Reader) (*Set, error) {
	s := &Set{}
	var seen [roleCount]bool

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		id, rest, ok := strings.Cut(text, ":")
		if !ok {
			return nil, &ParseError{Line: line, Err: ErrMalformedLine}
		}
		id = strings.TrimSpace(id)
		role, known := RoleFromID(id)
		if !known {
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) != role.ValueCount() {
			return nil, &ParseError{Line: line, ID: id,
				Err: fmt.Errorf("%w: got %d, want %d", ErrValueCount, len(fields), role.ValueCount())}
		}
		vals := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, &ParseError{Line: line, ID: id, Err: err}
			}
			vals[i] = v
		}

		switch role {
		case RoleProjection:
			copy(s.proj[:], vals)
		case RoleRectification:
			s.rect = reshape3x3(vals)
		case RoleExtrinsic:
			s.extrinsic = reshape3x4(vals)
		}
		seen[role] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read calibration: %w", err)
	}

	for _, r := range Roles() {
		if !seen[r] {
			return nil, fmt.Errorf("%w: %s", ErrMissingMatrix, r.ID())
		}
	}
	return s, nil
}

// LoadFile reads and parses the calibration file at path.
func LoadFile(fsys fsutil.FileSystem, path string) (*Set, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}
	s, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
