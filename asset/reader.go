package asset

import (
	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/rtcore"
	"github.com/achilleasa/rtcore/scene"
)

var ErrUnsupportedFormat = errors.New("asset: unsupported scene file format")

// Read a model from a wavefront file.
func ReadModel(filename string) (*Model, error) {
	res, err := NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	if res.Ext() != ".obj" {
		return nil, errors.Wrap(ErrUnsupportedFormat, filename)
	}
	return ReadWavefront(res)
}

// Load a scene into d. Wavefront files are parsed, uploaded into a new
// static scene and committed. Zip files are loaded as compiled scene
// archives.
func ReadScene(d *rtcore.Device, filename string) (*scene.Scene, error) {
	res, err := NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	switch res.Ext() {
	case ".obj":
		model, err := ReadWavefront(res)
		if err != nil {
			return nil, err
		}
		return BuildScene(d, model)
	case ".zip":
		return d.LoadScene(res)
	}
	return nil, errors.Wrap(ErrUnsupportedFormat, filename)
}

// Upload model into a new static scene and commit it.
func BuildScene(d *rtcore.Device, model *Model) (*scene.Scene, error) {
	s, err := d.NewScene(scene.Static)
	if err != nil {
		return nil, err
	}
	if err = model.Upload(d, s); err != nil {
		d.DeleteScene(s)
		return nil, err
	}
	if err = d.Commit(s); err != nil {
		d.DeleteScene(s)
		return nil, err
	}
	return s, nil
}
