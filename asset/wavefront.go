package asset

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/achilleasa/rtcore/geometry"
	"github.com/achilleasa/rtcore/log"
	"github.com/achilleasa/rtcore/types"
)

// The radius assigned to vertices that do not specify a fourth component.
const DefaultCurveRadius float32 = 0.01

type wavefrontReader struct {
	logger log.Logger

	model *Model

	// The mesh and hair group receiving faces and lines. Each group keeps
	// a map from global vertex indices to its own vertex buffer.
	curMesh     *Mesh
	curMeshRefs map[int]uint32
	curHair     *Hair
	groupName   string

	// Vertices of all parsed files.
	vertexList []types.Vec4

	// An error stack that provides additional error information when
	// scene files include other files.
	errStack []string
}

func newWavefrontReader() *wavefrontReader {
	return &wavefrontReader{
		logger:    log.New("wavefront reader"),
		model:     &Model{},
		groupName: "default",
	}
}

// Read a model from a wavefront resource.
func ReadWavefront(res *Resource) (*Model, error) {
	r := newWavefrontReader()
	r.logger.Noticef(`parsing model from "%s"`, res.Path())
	start := time.Now()

	if err := r.parse(res); err != nil {
		return nil, err
	}
	r.closeGroup()

	tris, curves := r.model.Primitives()
	r.logger.Noticef(
		"parsed %d meshes (%d triangles) and %d hair groups (%d curves) in %d ms",
		len(r.model.Meshes), tris, len(r.model.Hair), curves, time.Since(start).Nanoseconds()/1e6,
	)
	return r.model, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)
	return errors.New(strings.Trim(
		fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
		"\n",
	))
}

// Push a frame to the error stack.
func (r *wavefrontReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Finish the current mesh and hair groups dropping them if empty.
func (r *wavefrontReader) closeGroup() {
	if r.curMesh != nil {
		if len(r.curMesh.Triangles) == 0 {
			r.logger.Warningf(`dropping mesh "%s" as it contains no faces`, r.curMesh.Name)
		} else {
			r.model.Meshes = append(r.model.Meshes, r.curMesh)
		}
	}
	if r.curHair != nil && len(r.curHair.Curves) != 0 {
		r.model.Hair = append(r.model.Hair, r.curHair)
	}
	r.curMesh, r.curMeshRefs, r.curHair = nil, nil, nil
}

func (r *wavefrontReader) mesh() *Mesh {
	if r.curMesh == nil {
		r.curMesh = &Mesh{Name: r.groupName}
		r.curMeshRefs = make(map[int]uint32)
	}
	return r.curMesh
}

func (r *wavefrontReader) hair() *Hair {
	if r.curHair == nil {
		r.curHair = &Hair{Name: r.groupName}
	}
	return r.curHair
}

// Parse a wavefront file. Files included with "call" share the vertex list
// but use indices relative to their own vertices.
func (r *wavefrontReader) parse(res *Resource) error {
	lineNum := 0
	relVertexOffset := len(r.vertexList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "call"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [call]", res.Path(), lineNum))
			incRes, err := NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			err = r.parse(incRes)
			incRes.Close()
			if err != nil {
				return err
			}
			r.popFrame()
		case "v":
			v, err := parseVertex(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			r.closeGroup()
			r.groupName = lineTokens[1]
		case "f":
			if err := r.parseFace(lineTokens, relVertexOffset); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "l":
			if err := r.parseLine(lineTokens, relVertexOffset); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "vn", "vt", "s", "usemtl", "mtllib":
			// Shading attributes are not used by the tracer.
		default:
			r.logger.Debugf("[%s: %d] skipping unsupported statement %q", res.Path(), lineNum, lineTokens[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return r.emitError(res.Path(), lineNum, "%s", err.Error())
	}
	return nil
}

// Parse a triangular or quad face. Each face argument has the format
// vertexIndex[/uvIndex[/normalIndex]]; only the vertex index is used.
// Quads are split into two triangles.
func (r *wavefrontReader) parseFace(lineTokens []string, relVertexOffset int) error {
	if len(lineTokens) < 4 || len(lineTokens) > 5 {
		return errors.Errorf(`unsupported syntax for "f"; expected 3 arguments for triangular face or 4 arguments for a quad face; got %d. Select the triangulation option in your exporter`, len(lineTokens)-1)
	}

	mesh := r.mesh()
	var indices [4]uint32
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")
		if vTokens[0] == "" {
			return errors.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err := selectVertexIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return errors.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}

		local, seen := r.curMeshRefs[vOffset]
		if !seen {
			local = uint32(len(mesh.Vertices))
			mesh.Vertices = append(mesh.Vertices, r.vertexList[vOffset])
			r.curMeshRefs[vOffset] = local
		}
		indices[arg] = local
	}

	mesh.Triangles = append(mesh.Triangles, geometry.Triangle{V0: indices[0], V1: indices[1], V2: indices[2]})
	if len(lineTokens) == 5 {
		mesh.Triangles = append(mesh.Triangles, geometry.Triangle{V0: indices[0], V1: indices[2], V2: indices[3]})
	}
	return nil
}

// Parse a polyline into cubic bezier segments. Consecutive segments share
// their end points so a line needs 4, 7, 10, ... vertices.
func (r *wavefrontReader) parseLine(lineTokens []string, relVertexOffset int) error {
	count := len(lineTokens) - 1
	if count < 4 || (count-1)%3 != 0 {
		return errors.Errorf(`unsupported syntax for "l"; expected 3n+1 control points (n >= 1); got %d`, count)
	}

	hair := r.hair()
	base := uint32(len(hair.Vertices))
	for arg := 0; arg < count; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")
		vOffset, err := selectVertexIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return errors.Errorf("could not parse control point %d: %s", arg, err.Error())
		}
		hair.Vertices = append(hair.Vertices, r.vertexList[vOffset])
	}
	for seg := 0; seg < (count-1)/3; seg++ {
		hair.Curves = append(hair.Curves, base+uint32(seg*3))
	}
	return nil
}

// Given a vertex index token calculate the offset into the vertex list.
// Positive indices start at 1 and are relative to the current file; negative
// indices count back from the end of the list.
func selectVertexIndex(indexToken string, listLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var offset int
	switch {
	case index < 0:
		offset = listLen + int(index)
	case index > 0:
		offset = relOffset + int(index-1)
	default:
		return -1, errors.New("index 0 is not valid")
	}
	if offset < 0 || offset >= listLen {
		return -1, errors.New("index out of bounds")
	}
	return offset, nil
}

// Parse a vertex row with an optional radius.
func parseVertex(lineTokens []string) (types.Vec4, error) {
	if len(lineTokens) < 4 || len(lineTokens) > 5 {
		return types.Vec4{}, errors.Errorf(`unsupported syntax for "%s"; expected 3 or 4 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec4{0, 0, 0, DefaultCurveRadius}
	for tokIdx := 1; tokIdx < len(lineTokens); tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
