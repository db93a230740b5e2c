package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func blobsCSV() string {
	var sb strings.Builder
	for i := 0; i < 12; i++ {
		base := float64((i % 2) * 50)
		sb.WriteString(strings.Join([]string{
			formatValue(base + float64(i%3)),
			formatValue(base + float64(i%5)*0.5),
			formatValue(base - float64(i%4)),
		}, ","))
		sb.WriteString("\n")
	}
	return sb.String()
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEmbedCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "data.csv", blobsCSV())
	config := writeFile(t, dir, "umap.yaml", "num_epochs: 20\nnum_neighbors: 4\n")
	output := filepath.Join(dir, "embedding.csv")

	_, err := execute(t, "embed", "--input", input, "--output", output, "--config", config)
	require.NoError(t, err)

	embedding, err := loadCSV[float32](output)
	require.NoError(t, err)
	require.Len(t, embedding, 12)
	assert.Len(t, embedding[0], 2)
}

func TestEmbedCommandBoundedGoroutines(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "data.csv", blobsCSV())
	config := writeFile(t, dir, "umap.yaml", "num_epochs: 20\nnum_neighbors: 4\nnum_threads: 4\nparallel_optimization: true\n")
	bounded := filepath.Join(dir, "bounded.csv")
	unbounded := filepath.Join(dir, "unbounded.csv")

	_, err := execute(t, "embed", "--input", input, "--output", bounded, "--config", config, "--max-goroutines", "2")
	require.NoError(t, err)
	_, err = execute(t, "embed", "--input", input, "--output", unbounded, "--config", config)
	require.NoError(t, err)

	a, err := loadCSV[float32](bounded)
	require.NoError(t, err)
	b, err := loadCSV[float32](unbounded)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestEmbedCommandMissingInput(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.csv")
	_, err := execute(t, "embed", "--input", missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load "+missing)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEmbedCommandRejectsUnknownOption(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "data.csv", blobsCSV())
	config := writeFile(t, dir, "umap.yaml", "epochs: 20\n")

	_, err := execute(t, "embed", "--input", input, "--config", config, "--output", filepath.Join(dir, "out.csv"))
	require.Error(t, err)
}

func TestKmeansCommand(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "data.csv", blobsCSV())
	centers := filepath.Join(dir, "centers.csv")
	clusters := filepath.Join(dir, "clusters.csv")

	out, err := execute(t, "kmeans", "--input", input, "-k", "2",
		"--centers-out", centers, "--clusters-out", clusters, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "umapkit_kmeans_runs_total")

	c, err := loadCSV[float64](centers)
	require.NoError(t, err)
	assert.Len(t, c, 2)

	assignments, err := loadCSV[float64](clusters)
	require.NoError(t, err)
	require.Len(t, assignments, 12)
	for i := 2; i < 12; i++ {
		assert.Equal(t, assignments[i%2], assignments[i])
	}
	assert.NotEqual(t, assignments[0], assignments[1])
}

func TestDefaultsCommand(t *testing.T) {
	out, err := execute(t, "defaults")
	require.NoError(t, err)
	var params map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &params))
	assert.Equal(t, "annoy", params["method"])
	assert.Equal(t, 15, params["num_neighbors"])

	out, err = execute(t, "defaults", "kmeans")
	require.NoError(t, err)
	assert.Contains(t, out, "batch_size: 500")

	_, err = execute(t, "defaults", "pca")
	require.Error(t, err)
}

func TestLoadCSVErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := loadCSV[float32](writeFile(t, dir, "empty.csv", ""))
	require.Error(t, err)

	_, err = loadCSV[float32](writeFile(t, dir, "text.csv", "1,2\n3,x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1, col 1")

	_, err = loadCSV[float64](filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}
