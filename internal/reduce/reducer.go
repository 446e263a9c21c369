package reduce

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Reducer projects scaled features into the latent space used by the
// scorers. Exactly one reducer (or none) is active per trained model
// version; its output dimensionality is immutable for that version.
type Reducer interface {
	Transform(x *mat.Dense) (*mat.Dense, error)
	OutputDim() int
	Kind() string
}

const (
	KindPCA  = "pca"
	KindPPCA = "ppca"
)

func (p *PCA) Kind() string  { return KindPCA }
func (p *PPCA) Kind() string { return KindPPCA }

// Artifact is the JSON-serializable form of an optional fitted reducer.
type Artifact struct {
	Kind string `json:"kind"`
	PCA  *PCA   `json:"pca,omitempty"`
	PPCA *PPCA  `json:"ppca,omitempty"`
}

func NewArtifact(r Reducer) *Artifact {
	switch v := r.(type) {
	case *PCA:
		return &Artifact{Kind: KindPCA, PCA: v}
	case *PPCA:
		return &Artifact{Kind: KindPPCA, PPCA: v}
	default:
		return nil
	}
}

// Reducer rehydrates the fitted reducer from its artifact form.
func (a *Artifact) Reducer() (Reducer, error) {
	switch a.Kind {
	case KindPCA:
		if a.PCA == nil {
			return nil, fmt.Errorf("pca artifact has no payload")
		}
		return a.PCA, nil
	case KindPPCA:
		if a.PPCA == nil {
			return nil, fmt.Errorf("ppca artifact has no payload")
		}
		return a.PPCA, nil
	default:
		return nil, fmt.Errorf("unknown reducer kind %q", a.Kind)
	}
}
