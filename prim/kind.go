package prim

import "github.com/pkg/errors"

// The number of lanes in a packed leaf block.
const N = 4

var ErrUnknownKind = errors.New("prim: unknown primitive kind")

// Kind identifies a packed leaf layout. Each kind corresponds to one
// acceleration structure variant.
type Kind uint8

const (
	KindTriangle4 Kind = iota
	KindBezier4
)

var kindNames = map[Kind]string{
	KindTriangle4: "bvh4.triangle4",
	KindBezier4:   "bvh4.bezier4",
}

// Alternative names accepted by ParseKind. Triangle4 blocks store raw
// vertices so the "v" layout name refers to the same kind.
var kindAliases = map[string]Kind{
	"bvh4.triangle4v": KindTriangle4,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Lookup a kind by its name.
func ParseKind(name string) (Kind, error) {
	for kind, kindName := range kindNames {
		if kindName == name {
			return kind, nil
		}
	}
	if kind, ok := kindAliases[name]; ok {
		return kind, nil
	}
	return 0, errors.Wrapf(ErrUnknownKind, "%q", name)
}

// Ref identifies a single primitive by geometry and primitive id.
type Ref struct {
	GeomID uint32
	PrimID uint32
}
