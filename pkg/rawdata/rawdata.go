// Package rawdata reads and writes acquisition captures: a flat
// little-endian binary container holding the encoding geometry and every
// readout with its metadata, trajectory and density weights. It is the thin
// file collaborator of the pipeline; reconstruction code never touches the
// format.
package rawdata

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"mrkspace/pkg/acquisition"
)

// Scheme hints how the reader should buffer the capture while decoding.
type Scheme int

const (
	// Memory slurps the whole capture into memory before decoding. Fastest
	// for repeated access, with a transient 2x footprint.
	Memory Scheme = iota

	// File streams the capture through a buffered reader, keeping only the
	// decoded store in memory.
	File
)

// ParseScheme maps the command-line storage tags to a Scheme.
func ParseScheme(tag string) (Scheme, error) {
	switch tag {
	case "memory":
		return Memory, nil
	case "file":
		return File, nil
	default:
		return 0, fmt.Errorf("unknown storage scheme %q: must be memory or file", tag)
	}
}

const (
	captureMagic   = 0x4d524b53 // "MRKS"
	captureVersion = 1
)

// Write stores the capture at path, overwriting any existing file.
func Write(path string, s *acquisition.Store) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating capture file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := encode(w, s); err != nil {
		return fmt.Errorf("writing capture: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing capture: %w", err)
	}
	return nil
}

// Read loads a capture written by Write.
func Read(path string, scheme Scheme) (*acquisition.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture file: %w", err)
	}
	defer f.Close()

	var r io.Reader
	switch scheme {
	case Memory:
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading capture file: %w", err)
		}
		r = &sliceReader{data: data}
	case File:
		r = bufio.NewReaderSize(f, 1<<20)
	default:
		return nil, fmt.Errorf("unknown storage scheme %d", scheme)
	}

	s, err := decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding capture %s: %w", path, err)
	}
	return s, nil
}

type sliceReader struct {
	data []byte
	off  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

type captureHeader struct {
	Magic      uint32
	Version    uint32
	MatrixX    int32
	MatrixY    int32
	MatrixZ    int32
	Coils      int32
	FOVx       float64
	FOVy       float64
	FOVz       float64
	Oversample int32
	Trajectory int32
	Count      uint32
}

type readoutHeader struct {
	Phase      int32
	Slice      int32
	Average    int32
	Contrast   int32
	Repetition int32
	TrajDims   int32
	Samples    uint32
	Flags      uint64
	Timestamp  uint64
}

func encode(w io.Writer, s *acquisition.Store) error {
	h := captureHeader{
		Magic:      captureMagic,
		Version:    captureVersion,
		MatrixX:    int32(s.Info.MatrixX),
		MatrixY:    int32(s.Info.MatrixY),
		MatrixZ:    int32(s.Info.MatrixZ),
		Coils:      int32(s.Info.Coils),
		FOVx:       s.Info.FOVx,
		FOVy:       s.Info.FOVy,
		FOVz:       s.Info.FOVz,
		Oversample: int32(s.Info.OversamplingFactor),
		Trajectory: int32(s.Info.Trajectory),
		Count:      uint32(s.Len()),
	}
	if err := binary.Write(w, binary.LittleEndian, h); err != nil {
		return err
	}
	for i := 0; i < s.Len(); i++ {
		a := s.At(i)
		rh := readoutHeader{
			Phase:      int32(a.Step.Phase),
			Slice:      int32(a.Step.Slice),
			Average:    int32(a.Step.Average),
			Contrast:   int32(a.Step.Contrast),
			Repetition: int32(a.Step.Repetition),
			TrajDims:   int32(a.TrajDims),
			Samples:    uint32(len(a.Data)),
			Flags:      uint64(a.Flags),
			Timestamp:  a.Timestamp,
		}
		if err := binary.Write(w, binary.LittleEndian, rh); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, a.Data); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(a.Traj))); err != nil {
			return err
		}
		if len(a.Traj) > 0 {
			if err := binary.Write(w, binary.LittleEndian, a.Traj); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(a.DCW))); err != nil {
			return err
		}
		if len(a.DCW) > 0 {
			if err := binary.Write(w, binary.LittleEndian, a.DCW); err != nil {
				return err
			}
		}
	}
	return nil
}

func decode(r io.Reader) (*acquisition.Store, error) {
	var h captureHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if h.Magic != captureMagic {
		return nil, fmt.Errorf("bad magic 0x%08x, not an acquisition capture", h.Magic)
	}
	if h.Version != captureVersion {
		return nil, fmt.Errorf("unsupported capture version %d", h.Version)
	}

	if h.MatrixX < 1 || h.MatrixY < 1 || h.MatrixZ < 1 || h.Coils < 1 || h.Oversample < 1 {
		return nil, fmt.Errorf("implausible geometry %dx%dx%d, %d coils, oversample %d",
			h.MatrixX, h.MatrixY, h.MatrixZ, h.Coils, h.Oversample)
	}

	info := acquisition.EncodingInfo{
		MatrixX:            int(h.MatrixX),
		MatrixY:            int(h.MatrixY),
		MatrixZ:            int(h.MatrixZ),
		Coils:              int(h.Coils),
		FOVx:               h.FOVx,
		FOVy:               h.FOVy,
		FOVz:               h.FOVz,
		OversamplingFactor: int(h.Oversample),
		Trajectory:         acquisition.TrajectoryType(h.Trajectory),
	}
	s := acquisition.NewStore(info)

	// The geometry bounds every per-readout length. Checking before each
	// allocation keeps a corrupt or truncated capture from demanding
	// arbitrary amounts of memory.
	maxSamples := info.Coils * info.ReadoutSamples()

	for i := uint32(0); i < h.Count; i++ {
		var rh readoutHeader
		if err := binary.Read(r, binary.LittleEndian, &rh); err != nil {
			return nil, fmt.Errorf("readout %d header: %w", i, err)
		}
		if rh.Samples == 0 || int64(rh.Samples) > int64(maxSamples) {
			return nil, fmt.Errorf("readout %d claims %d samples, geometry allows at most %d",
				i, rh.Samples, maxSamples)
		}
		if rh.TrajDims < 0 || rh.TrajDims > 3 {
			return nil, fmt.Errorf("readout %d has %d trajectory dimensions", i, rh.TrajDims)
		}
		a := &acquisition.Acquisition{
			Step: acquisition.EncodingStep{
				Phase:      int(rh.Phase),
				Slice:      int(rh.Slice),
				Average:    int(rh.Average),
				Contrast:   int(rh.Contrast),
				Repetition: int(rh.Repetition),
			},
			TrajDims:  int(rh.TrajDims),
			Flags:     acquisition.Flags(rh.Flags),
			Timestamp: rh.Timestamp,
		}
		a.Data = make([]complex128, rh.Samples)
		if err := binary.Read(r, binary.LittleEndian, a.Data); err != nil {
			return nil, fmt.Errorf("readout %d samples: %w", i, err)
		}
		perCoil := int(rh.Samples) / info.Coils
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("readout %d trajectory length: %w", i, err)
		}
		if int64(n) > int64(rh.TrajDims)*int64(perCoil) {
			return nil, fmt.Errorf("readout %d claims %d trajectory values for %d samples of %d dimensions",
				i, n, perCoil, rh.TrajDims)
		}
		if n > 0 {
			a.Traj = make([]float64, n)
			if err := binary.Read(r, binary.LittleEndian, a.Traj); err != nil {
				return nil, fmt.Errorf("readout %d trajectory: %w", i, err)
			}
		}
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, fmt.Errorf("readout %d weight length: %w", i, err)
		}
		if int64(n) > int64(perCoil) {
			return nil, fmt.Errorf("readout %d claims %d density weights for %d samples",
				i, n, perCoil)
		}
		if n > 0 {
			a.DCW = make([]float64, n)
			if err := binary.Read(r, binary.LittleEndian, a.DCW); err != nil {
				return nil, fmt.Errorf("readout %d weights: %w", i, err)
			}
		}
		s.Append(a)
	}
	return s, nil
}
