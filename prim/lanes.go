package prim

import "github.com/achilleasa/rtcore/types"

// N 3-component vectors in structure-of-arrays form.
type Vec3x4 struct {
	X, Y, Z [N]float32
}

// Get lane j as a vector.
func (v *Vec3x4) Lane(j int) types.Vec3 {
	return types.Vec3{v.X[j], v.Y[j], v.Z[j]}
}

// Set lane j.
func (v *Vec3x4) SetLane(j int, val types.Vec3) {
	v.X[j], v.Y[j], v.Z[j] = val[0], val[1], val[2]
}

// N 4-component vectors in structure-of-arrays form.
type Vec4x4 struct {
	X, Y, Z, W [N]float32
}

// Get lane j as a vector.
func (v *Vec4x4) Lane(j int) types.Vec4 {
	return types.Vec4{v.X[j], v.Y[j], v.Z[j], v.W[j]}
}

// Set lane j.
func (v *Vec4x4) SetLane(j int, val types.Vec4) {
	v.X[j], v.Y[j], v.Z[j], v.W[j] = val[0], val[1], val[2], val[3]
}
