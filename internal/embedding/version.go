// Package embedding provides face embedding vector math and the closed set
// of encoding versions the service understands.
package embedding

import "fmt"

// Version identifies an embedding encoding. Vectors from different versions
// come from different models and must never be compared to each other.
type Version string

const (
	// LegacyV1 is the original 128-dimensional dlib encoding. Kept only as a
	// migration fallback; never mixed into a matching batch.
	LegacyV1 Version = "legacy-v1"

	// ArcFaceV4 is the current 512-dimensional ArcFace encoding.
	ArcFaceV4 Version = "arcface-v4"
)

// versionDims maps each known version to its fixed vector length.
var versionDims = map[Version]int{
	LegacyV1:  128,
	ArcFaceV4: 512,
}

// Dim returns the fixed vector length for the version, or 0 if unknown.
func (v Version) Dim() int {
	return versionDims[v]
}

// Valid reports whether v is a known encoding version.
func (v Version) Valid() bool {
	_, ok := versionDims[v]
	return ok
}

// ParseVersion converts a stored version string into a Version.
func ParseVersion(s string) (Version, error) {
	v := Version(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown encoding version %q", s)
	}
	return v, nil
}

// CheckDim verifies that vec has the length required by v.
func CheckDim(v Version, vec []float32) error {
	if want := v.Dim(); len(vec) != want {
		return fmt.Errorf("%w: version %s expects %d dimensions, got %d",
			ErrDimensionMismatch, v, want, len(vec))
	}
	return nil
}
