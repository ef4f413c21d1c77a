package manifest

// Trim returns a new manifest holding only the allowed fields present in m.
// Missing fields stay missing; defaults are applied during enrichment.
func Trim(m Manifest, allowed []string) Manifest {
	ret := make(Manifest, len(allowed))
	for _, k := range allowed {
		if v, ok := m[k]; ok {
			ret[k] = v
		}
	}
	return ret
}

func TrimAll(l Manifests, allowed []string) Manifests {
	ret := make(Manifests, len(l))
	for i, m := range l {
		ret[i] = Trim(m, allowed)
	}
	return ret
}
