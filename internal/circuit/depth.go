package circuit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// #region depth

// Depth returns the ASAP layer count of the spec. Each gate starts one layer
// after the latest gate on any qubit it touches; conditional gates also wait
// for the measurement that wrote their classical bit.
func Depth(spec Spec) int {
	qubit := make(map[int]int)
	clbit := make(map[int]int)
	depth := 0
	for _, st := range spec.Stages {
		for _, g := range st.Gates {
			layer := 0
			for _, q := range g.Qubits {
				layer = max(layer, qubit[q])
			}
			if g.Condition != nil {
				layer = max(layer, clbit[g.Condition.Clbit])
			}
			layer++
			for _, q := range g.Qubits {
				qubit[q] = layer
			}
			if g.Op == OpMeasure && len(g.Qubits) == 1 {
				clbit[g.Qubits[0]] = layer
			}
			depth = max(depth, layer)
		}
	}
	return depth
}

// #endregion depth

// #region fingerprint

// specDomainKey is the BLAKE3 key for circuit fingerprints: the ASCII
// domain name zero-padded to 32 bytes.
var specDomainKey = [32]byte{
	'i', 'g', 'n', 'i', 't', 'i', 'o', 'n', '.', 'c', 'i', 'r', 'c', 'u', 'i', 't',
	'.', 's', 'p', 'e', 'c', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Fingerprint returns the hex BLAKE3 keyed digest of the spec's JSON encoding.
// Two specs with identical stages, gates and angles share a fingerprint.
func Fingerprint(spec Spec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode spec: %w", err)
	}
	hasher, err := blake3.NewKeyed(specDomainKey[:])
	if err != nil {
		return "", fmt.Errorf("blake3 keyed init: %w", err)
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// #endregion fingerprint
