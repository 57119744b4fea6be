// Package pointcloud holds LiDAR point clouds in sensor frame and reads the
// KITTI velodyne binary layout.
package pointcloud

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/lidarcal/internal/fsutil"
)

// kittiRecordSize is four little-endian float32 values: x, y, z, reflectance.
const kittiRecordSize = 16

// ErrTruncated is returned when a binary cloud ends inside a record.
var ErrTruncated = errors.New("point cloud ends mid-record")

// Point is one LiDAR return in sensor frame. Reflectance is carried
// alongside the position untouched.
type Point struct {
	Position    r3.Vector
	Reflectance float64
}

// Cloud is an ordered point sequence. Order is significant and is preserved
// by every filtering step downstream.
type Cloud struct {
	Points []Point
}

// FromPositions builds a cloud with zero reflectance.
func FromPositions(ps []r3.Vector) Cloud {
	c := Cloud{Points: make([]Point, len(ps))}
	for i, p := range ps {
		c.Points[i].Position = p
	}
	return c
}

// Len returns the number of points.
func (c Cloud) Len() int { return len(c.Points) }

// Positions returns the point positions in order.
func (c Cloud) Positions() []r3.Vector {
	out := make([]r3.Vector, len(c.Points))
	for i, p := range c.Points {
		out[i] = p.Position
	}
	return out
}

// ReadKITTI decodes a velodyne .bin stream.
func ReadKITTI(r io.Reader) (Cloud, error) {
	br := bufio.NewReader(r)
	var c Cloud
	var rec [kittiRecordSize]byte
	for {
		n, err := io.ReadFull(br, rec[:])
		if err == io.EOF {
			return c, nil
		}
		if err == io.ErrUnexpectedEOF {
			return Cloud{}, fmt.Errorf("%w: %d trailing bytes after %d points", ErrTruncated, n, len(c.Points))
		}
		if err != nil {
			return Cloud{}, fmt.Errorf("read point %d: %w", len(c.Points), err)
		}
		c.Points = append(c.Points, Point{
			Position: r3.Vector{
				X: float64(f32(rec[0:4])),
				Y: float64(f32(rec[4:8])),
				Z: float64(f32(rec[8:12])),
			},
			Reflectance: float64(f32(rec[12:16])),
		})
	}
}

// WriteKITTI encodes c in the velodyne .bin layout. Values are narrowed to float32.
func WriteKITTI(w io.Writer, c Cloud) error {
	bw := bufio.NewWriter(w)
	var rec [kittiRecordSize]byte
	for _, p := range c.Points {
		binary.LittleEndian.PutUint32(rec[0:4], math.Float32bits(float32(p.Position.X)))
		binary.LittleEndian.PutUint32(rec[4:8], math.Float32bits(float32(p.Position.Y)))
		binary.LittleEndian.PutUint32(rec[8:12], math.Float32bits(float32(p.Position.Z)))
		binary.LittleEndian.PutUint32(rec[12:16], math.Float32bits(float32(p.Reflectance)))
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadKITTI reads the velodyne .bin file at path.
func LoadKITTI(fsys fsutil.FileSystem, path string) (Cloud, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return Cloud{}, fmt.Errorf("failed to read point cloud: %w", err)
	}
	c, err := ReadKITTI(bytes.NewReader(data))
	if err != nil {
		return Cloud{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func f32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
