package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyChainIncludesAll(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Match("any/file.txt", false, 1024))
	assert.True(t, c.Match("any/dir", true, 0))
	assert.True(t, c.Empty())
}

func TestDefaultPolicyAllowsMedia(t *testing.T) {
	c := Default()

	assert.True(t, c.Match("2024/IMG_0001.jpg", false, MinPhotoSize))
	assert.True(t, c.Match("2024/IMG_0001.JPG", false, MinPhotoSize)) // case-insensitive
	assert.True(t, c.Match("raw/DSC0001.arw", false, 20*1024*1024))
	assert.True(t, c.Match("clips/holiday.mp4", false, 5*1024*1024))
}

func TestDefaultPolicyDropsJunk(t *testing.T) {
	c := Default()

	assert.False(t, c.Match("2024/notes.txt", false, 100*1024))
	assert.False(t, c.Match("2024/meta.json", false, 100*1024))
	assert.False(t, c.Match("2024/Thumbs.db", false, 100*1024))
	assert.False(t, c.Match("2024/.nomedia", false, 100*1024))
}

func TestDefaultPolicyMinSize(t *testing.T) {
	c := Default()

	// Thumbnails fall under the floor.
	assert.False(t, c.Match("cache.jpg", false, MinPhotoSize-1))
	assert.True(t, c.Match("real.jpg", false, MinPhotoSize))
}

func TestDefaultPolicyPrunesDirs(t *testing.T) {
	c := Default()

	assert.False(t, c.Match("2024/@eaDir", true, 0))
	assert.False(t, c.Match("tmp", true, 0))
	assert.False(t, c.Match("photos/cache", true, 0))
	assert.True(t, c.Match("2024/June", true, 0))
}

func TestIncludeRuleRescuesFile(t *testing.T) {
	// A "+" rule runs before the built-in extension policy.
	c := Default()
	require.NoError(t, c.AddInclude("*.xmp"))

	assert.True(t, c.Match("raw/DSC0001.xmp", false, MinPhotoSize))
	assert.False(t, c.Match("raw/DSC0001.pp3", false, MinPhotoSize))
}

func TestExcludePattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.jpg"))

	assert.False(t, c.Match("a.jpg", false, 100))
	assert.False(t, c.Match("sub/b.jpg", false, 100))
	assert.True(t, c.Match("a.png", false, 100))
}

func TestIncludeOverridesExclude(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddInclude("keep.jpg"))
	require.NoError(t, c.AddExclude("*.jpg"))

	// include rule matches first for keep.jpg.
	assert.True(t, c.Match("keep.jpg", false, 100))
	assert.False(t, c.Match("drop.jpg", false, 100))
}

func TestExcludeIncludeOrder(t *testing.T) {
	// First match wins: the earlier exclude shadows the include.
	c := NewChain()
	require.NoError(t, c.AddExclude("*.jpg"))
	require.NoError(t, c.AddInclude("keep.jpg"))

	assert.False(t, c.Match("keep.jpg", false, 100))
	assert.False(t, c.Match("drop.jpg", false, 100))
}

func TestDirOnlyPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("exports/"))

	assert.False(t, c.Match("exports", true, 0))
	assert.True(t, c.Match("exports", false, 100)) // file named "exports" survives
}

func TestAnchoredPattern(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("/inbox.jpg"))

	assert.False(t, c.Match("inbox.jpg", false, 100))
	assert.True(t, c.Match("sub/inbox.jpg", false, 100))
}

func TestMinSizeIgnoresDirectories(t *testing.T) {
	c := NewChain()
	c.SetMinSize(1024)

	assert.False(t, c.Match("tiny.jpg", false, 512))
	assert.True(t, c.Match("somedir", true, 0))
}

func TestExtensionNormalization(t *testing.T) {
	c := NewChain()
	c.AllowExts(".JPG", "png")

	assert.True(t, c.Match("a.jpg", false, 100))
	assert.True(t, c.Match("b.PNG", false, 100))
	assert.False(t, c.Match("c.gif", false, 100))
}
