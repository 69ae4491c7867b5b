// Package datasettest generates synthetic raw cytology tables for tests.
package datasettest

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/cytodash/dataset"
)

// RawCSV returns a raw table with n rows in the source layout: id, diagnosis,
// the 30 feature columns and an empty trailing column. Every third row is
// malignant and has its features shifted up, so the classes are learnable.
func RawCSV(n int, seed uint64) string {
	r := rand.New(rand.NewPCG(seed, seed))

	var b strings.Builder
	b.WriteString(`"id","diagnosis"`)
	for _, k := range dataset.FeatureKeys() {
		fmt.Fprintf(&b, `,"%s"`, k)
	}
	b.WriteString(",\n")

	for i := 0; i < n; i++ {
		code, shift := dataset.CodeBenign, 1.0
		if i%3 == 0 {
			code, shift = dataset.CodeMalignant, 1.6
		}
		fmt.Fprintf(&b, "%d,%s", 842302+i, code)
		for j := 0; j < dataset.NumFeatures; j++ {
			base := float64(j%10+1) * shift
			fmt.Fprintf(&b, ",%.4f", base*(1+0.25*r.Float64()))
		}
		b.WriteString(",\n")
	}
	return b.String()
}

// WriteRawCSV writes RawCSV(n, seed) into a temp dir and returns its path.
func WriteRawCSV(tb testing.TB, n int, seed uint64) string {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(RawCSV(n, seed)), 0o644); err != nil {
		tb.Fatalf("write dataset: %v", err)
	}
	return path
}
