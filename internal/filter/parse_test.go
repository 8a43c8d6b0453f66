package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	ruleFile := filepath.Join(dir, "photosync.rules")

	content := `# screenshots are not photos
- Screenshots/
+ *.xmp

- *.psd
noprefix.bin
`
	require.NoError(t, os.WriteFile(ruleFile, []byte(content), 0644))

	c := NewChain()
	require.NoError(t, c.LoadFile(ruleFile))

	require.Len(t, c.rules, 4)
	assert.False(t, c.rules[0].Include)
	assert.True(t, c.rules[1].Include)
	assert.False(t, c.rules[2].Include)
	assert.False(t, c.rules[3].Include)

	assert.False(t, c.Match("Screenshots", true, 0))
	assert.True(t, c.Match("raw/edit.xmp", false, 100))
	assert.False(t, c.Match("edits/layered.psd", false, 100))
	assert.False(t, c.Match("noprefix.bin", false, 100))
}

func TestLoadFileEmpty(t *testing.T) {
	dir := t.TempDir()
	ruleFile := filepath.Join(dir, "empty.rules")
	require.NoError(t, os.WriteFile(ruleFile, []byte("# only comments\n\n"), 0644))

	c := NewChain()
	require.NoError(t, c.LoadFile(ruleFile))
	assert.Empty(t, c.rules)
}

func TestLoadFileNotExists(t *testing.T) {
	c := NewChain()
	err := c.LoadFile("/nonexistent/path")
	assert.Error(t, err)
}
