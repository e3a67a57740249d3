package instgraph

// DataType is the primitive type a memory access handles.
type DataType int

// The three data types an access can carry. Unknown means resolution
// failed and the caller must fall back to a default shape.
const (
	TypeUnknown DataType = iota
	TypeInteger
	TypeFloat
)

func (t DataType) String() string {
	switch t {
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	default:
		return "UNKNOWN"
	}
}

// AccessKind describes the shape of a memory access: how many bits a single
// unit occupies, how many bits the whole vector access occupies, and
// whether the unit is integer or floating point data. Kinds decoded from an
// opcode have UnitSize less than or equal to VecSize; the analyzer's default
// fallback kind for an access narrower than 4 bytes has UnitSize 32 and a
// smaller VecSize.
type AccessKind struct {
	UnitSize uint32
	VecSize  uint32
	Type     DataType
}

// Less orders AccessKind lexicographically by (VecSize, UnitSize, Type), so
// it can be used as a map key that sorts deterministically when iterated
// after collection into a slice.
func (k AccessKind) Less(o AccessKind) bool {
	if k.VecSize != o.VecSize {
		return k.VecSize < o.VecSize
	}

	if k.UnitSize != o.UnitSize {
		return k.UnitSize < o.UnitSize
	}

	return k.Type < o.Type
}
