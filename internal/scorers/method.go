// Package scorers contains the independent anomaly detectors. Every scorer
// maps the latent matrix to one score per row, higher meaning more anomalous;
// detectors whose native convention is inverted are sign-flipped here at the
// boundary.
package scorers

// Method identifies one detector in the closed ensemble. Fusion and
// evaluation iterate this fixed set, never an open-ended mapping.
type Method string

const (
	MethodIsoForest   Method = "if"
	MethodLOF         Method = "lof"
	MethodMahalanobis Method = "mah"
	MethodCopula      Method = "copula"
	MethodGMM         Method = "gmm"
	MethodOCSVM       Method = "ocsvm"
	MethodDensity     Method = "hdbscan"
	MethodAutoencoder Method = "ae"
)

// AllMethods fixes the iteration order of the ensemble.
var AllMethods = []Method{
	MethodIsoForest,
	MethodLOF,
	MethodMahalanobis,
	MethodCopula,
	MethodGMM,
	MethodOCSVM,
	MethodDensity,
	MethodAutoencoder,
}

// ScoreSet holds one score column per enabled method.
type ScoreSet map[Method][]float64

// Capabilities records which optional scorer backends are available. It is
// resolved once at startup; the registry omits methods whose capability is
// absent instead of failing the run.
type Capabilities struct {
	DensityClustering bool
}

// DetectCapabilities resolves optional support at startup. The density
// clustering scorer is compiled in, so it is always available here; the flag
// stays so deployments can disable it explicitly.
func DetectCapabilities() Capabilities {
	return Capabilities{DensityClustering: true}
}
