package scene

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/accel"
	"github.com/achilleasa/rtcore/accel/bvh"
	"github.com/achilleasa/rtcore/log"
	"github.com/achilleasa/rtcore/memory"
	"github.com/achilleasa/rtcore/prim"
)

const (
	archiveVersion = 1
	headerFile     = "scene.gob"
)

var ErrInvalidArchive = errors.New("scene: invalid scene archive")

type archiveHeader struct {
	Version int
	Flags   Flags
	Kinds   []prim.Kind
}

func hierarchyFile(index int) string {
	return fmt.Sprintf("accel/%d.gob", index)
}

// Save writes the committed hierarchies to w as a zip archive. Geometry
// buffers are not stored; a loaded scene can answer queries but cannot be
// modified.
func (s *Scene) Save(w io.Writer) error {
	a, err := s.Accel()
	if err != nil {
		return err
	}

	var hierarchies []*bvh.BVH
	switch v := a.(type) {
	case *bvh.BVH:
		hierarchies = append(hierarchies, v)
	case *accel.Composite:
		for i := 0; i < v.Len(); i++ {
			h, ok := v.Member(i).(*bvh.BVH)
			if !ok {
				return errors.Wrapf(accel.ErrUnknownVariant, "composite member %T", v.Member(i))
			}
			hierarchies = append(hierarchies, h)
		}
	default:
		return errors.Wrapf(accel.ErrUnknownVariant, "%T", a)
	}

	header := archiveHeader{
		Version: archiveVersion,
		Flags:   s.flags,
		Kinds:   make([]prim.Kind, len(hierarchies)),
	}
	for index, h := range hierarchies {
		header.Kinds[index] = h.Kind()
	}

	zw := zip.NewWriter(w)
	if err = writeEntry(zw, headerFile, func(enc *gob.Encoder) error { return enc.Encode(header) }); err != nil {
		return err
	}
	for index, h := range hierarchies {
		if err = writeEntry(zw, hierarchyFile(index), h.Encode); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, name string, encode func(*gob.Encoder) error) error {
	f, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "scene: creating archive entry %s", name)
	}
	if err = encode(gob.NewEncoder(f)); err != nil {
		return errors.Wrapf(err, "scene: writing archive entry %s", name)
	}
	return nil
}

// Load reads a scene archive written by Save. The returned scene is
// committed and read-only.
func Load(r io.Reader, monitor memory.Monitor) (*Scene, error) {
	logger := log.New("scene")
	start := time.Now()

	// zip requires a ReaderAt so the archive is buffered in memory
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArchive, err.Error())
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	var header archiveHeader
	if err = readEntry(entries, headerFile, func(dec *gob.Decoder) error { return dec.Decode(&header) }); err != nil {
		return nil, err
	}
	if header.Version != archiveVersion {
		return nil, errors.Wrapf(ErrInvalidArchive, "unsupported archive version %d", header.Version)
	}
	if len(header.Kinds) == 0 {
		return nil, errors.Wrap(ErrInvalidArchive, "archive contains no hierarchies")
	}

	hierarchies := make([]*bvh.BVH, 0, len(header.Kinds))
	release := func() {
		for _, h := range hierarchies {
			h.Release()
		}
	}
	for index, kind := range header.Kinds {
		var h *bvh.BVH
		err = readEntry(entries, hierarchyFile(index), func(dec *gob.Decoder) error {
			var decodeErr error
			h, decodeErr = bvh.Decode(dec, monitor)
			return decodeErr
		})
		if err != nil {
			release()
			return nil, err
		}
		hierarchies = append(hierarchies, h)
		if h.Kind() != kind {
			release()
			return nil, errors.Wrapf(ErrInvalidArchive, "hierarchy %d has kind %s; expected %s", index, h.Kind(), kind)
		}
	}

	s, err := New(header.Flags, monitor)
	if err != nil {
		release()
		return nil, err
	}
	if len(hierarchies) == 1 {
		s.accel = hierarchies[0]
	} else {
		composite := accel.NewComposite()
		for _, h := range hierarchies {
			composite.Add(h)
		}
		s.accel = composite
	}
	s.committed = true
	s.readOnly = true

	logger.Infof("loaded %d hierarchies in %d ms", len(hierarchies), time.Since(start).Nanoseconds()/1e6)
	return s, nil
}

func readEntry(entries map[string]*zip.File, name string, decode func(*gob.Decoder) error) error {
	f, ok := entries[name]
	if !ok {
		return errors.Wrapf(ErrInvalidArchive, "missing entry %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(ErrInvalidArchive, "opening entry %s: %v", name, err)
	}
	defer rc.Close()

	if err = decode(gob.NewDecoder(rc)); err != nil {
		// Keep causes that already classify the failure
		switch errors.Cause(err) {
		case memory.ErrOutOfMemory, bvh.ErrCorruptArchive:
			return errors.Wrapf(err, "scene: reading archive entry %s", name)
		}
		return errors.Wrapf(ErrInvalidArchive, "reading entry %s: %v", name, err)
	}
	return nil
}
