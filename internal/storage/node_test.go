package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasMeta(t *testing.T) {
	assert.True(t, HasMeta("*.fits"))
	assert.True(t, HasMeta("file?.csv"))
	assert.True(t, HasMeta("file[0-9].csv"))
	assert.False(t, HasMeta("vos://results/file.csv"))
	assert.False(t, HasMeta(""))
}

func TestWithScheme(t *testing.T) {
	assert.Equal(t, "vos://results", WithScheme("results"))
	assert.Equal(t, "vos://results", WithScheme("vos://results"))
	assert.Equal(t, "vos://", WithScheme(""))

	// Concatenation artifacts collapse.
	assert.Equal(t, "vos://dir/name", WithScheme("vos://dir//name"))
}

func TestCollapseSlashes(t *testing.T) {
	assert.Equal(t, "vos://dir/name", CollapseSlashes("vos://dir///name"))
	assert.Equal(t, "vos://dir/name", CollapseSlashes("vos://dir/name"))
	assert.Equal(t, "vos://a/b/c", CollapseSlashes("vos:///a///b///c"))
}

func TestNodeName(t *testing.T) {
	assert.Equal(t, "file.csv", Node{Path: "vos://results/file.csv"}.Name())
	assert.Equal(t, "results", Node{Path: "vos://results/"}.Name())
	assert.Equal(t, "file.csv", Node{Path: "file.csv"}.Name())
}
