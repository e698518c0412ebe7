package domain

// Metadata is an unstructured container, used for run configuration snapshots.
type Metadata map[string]any

// Clone copies m deeply through nested maps and slices of the plain
// map[string]any / []any shapes produced by JSON and YAML decoders.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneAny(child)
		}
		return out
	case Metadata:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneAny(child)
		}
		return out
	default:
		return v
	}
}
