package fs

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T) *Filesystem {
	t.Helper()
	fsys, err := Open(t.TempDir())
	require.Nil(t, err)
	return fsys
}

func TestAddThenExtractRoundTrip(t *testing.T) {
	fsys := newFS(t)
	content := bytes.Repeat([]byte("hello segfs "), 500)

	require.Nil(t, fsys.Add("/docs/readme.txt", bytes.NewReader(content)))

	got, err := fsys.Extract("/docs/readme.txt")
	require.Nil(t, err)
	assert.Equal(t, content, got)
}

func TestAddCreatesMissingIntermediateDirectories(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/a/b/c/file.txt", bytes.NewReader([]byte("x"))))

	entries, err := fsys.List()
	require.Nil(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "a")
	assert.Contains(t, names, "b")
	assert.Contains(t, names, "c")
	assert.Contains(t, names, "file.txt")
}

func TestAddRejectsExistingPath(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/f.txt", bytes.NewReader([]byte("1"))))
	err := fsys.Add("/f.txt", bytes.NewReader([]byte("2")))
	assert.NotNil(t, err)
}

func TestAddRejectsIntermediateComponentThatIsAFile(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/f.txt", bytes.NewReader([]byte("1"))))
	err := fsys.Add("/f.txt/nested.txt", bytes.NewReader([]byte("2")))
	assert.NotNil(t, err)
}

func TestAddEmptyFileRoundTrips(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/empty.txt", bytes.NewReader(nil)))

	got, err := fsys.Extract("/empty.txt")
	require.Nil(t, err)
	assert.Empty(t, got)
}

func TestExtractMissingPathFails(t *testing.T) {
	fsys := newFS(t)
	_, err := fsys.Extract("/nope.txt")
	assert.NotNil(t, err)
}

func TestExtractDirectoryFails(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/a/f.txt", bytes.NewReader([]byte("x"))))
	_, err := fsys.Extract("/a")
	assert.NotNil(t, err)
}

func TestRemoveFile(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/f.txt", bytes.NewReader([]byte("x"))))
	require.Nil(t, fsys.Remove("/f.txt"))

	_, err := fsys.Extract("/f.txt")
	assert.NotNil(t, err)

	require.Nil(t, fsys.Add("/f.txt", bytes.NewReader([]byte("y"))))
}

func TestRemoveDirectoryRecursivelyDeletesSubtree(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/a/b/one.txt", bytes.NewReader([]byte("1"))))
	require.Nil(t, fsys.Add("/a/b/two.txt", bytes.NewReader([]byte("2"))))
	require.Nil(t, fsys.Add("/a/three.txt", bytes.NewReader([]byte("3"))))

	require.Nil(t, fsys.Remove("/a"))

	entries, err := fsys.List()
	require.Nil(t, err)
	assert.Empty(t, entries)

	_, err = fsys.Extract("/a/b/one.txt")
	assert.NotNil(t, err)
}

func TestRemoveMissingPathFails(t *testing.T) {
	fsys := newFS(t)
	assert.NotNil(t, fsys.Remove("/nope"))
}

func TestStatTracksUsage(t *testing.T) {
	fsys := newFS(t)
	before, err := fsys.Stat()
	require.Nil(t, err)

	require.Nil(t, fsys.Add("/f.txt", bytes.NewReader(bytes.Repeat([]byte("z"), 5000))))

	after, err := fsys.Stat()
	require.Nil(t, err)
	assert.Greater(t, after.UsedInodes, before.UsedInodes)
	assert.Greater(t, after.UsedBlocks, before.UsedBlocks)
}

func TestDebugReportsRootAndPathLevels(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/a/b/leaf.txt", bytes.NewReader([]byte("hello"))))

	report, err := fsys.Debug("/a/b/leaf.txt")
	require.Nil(t, err)
	require.Len(t, report.Levels, 3)
	assert.Equal(t, "/", report.Levels[0].Label)
	assert.Equal(t, "/a", report.Levels[1].Label)
	assert.Equal(t, "/a/b", report.Levels[2].Label)

	require.NotNil(t, report.File)
	assert.EqualValues(t, 5, report.File.Size)
	assert.EqualValues(t, 1, report.File.Counts.Direct)
}

func TestDebugOnDirectoryHasNoFileSummary(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/a/leaf.txt", bytes.NewReader([]byte("x"))))

	report, err := fsys.Debug("/a")
	require.Nil(t, err)
	assert.Nil(t, report.File)
	require.Len(t, report.Levels, 2)
	assert.Equal(t, "/a", report.Levels[1].Label)
	require.Len(t, report.Levels[1].Entries, 1)
	assert.Equal(t, "leaf.txt", report.Levels[1].Entries[0].Name)
}

func TestListOrdersDepthFirst(t *testing.T) {
	fsys := newFS(t)
	require.Nil(t, fsys.Add("/a/b/leaf.txt", bytes.NewReader([]byte("1"))))

	entries, err := fsys.List()
	require.Nil(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "a", entries[0].Name)
	assert.Equal(t, 1, entries[0].Depth)
	assert.True(t, entries[0].IsDir)

	assert.Equal(t, "b", entries[1].Name)
	assert.Equal(t, 2, entries[1].Depth)
	assert.True(t, entries[1].IsDir)

	assert.Equal(t, "leaf.txt", entries[2].Name)
	assert.Equal(t, 3, entries[2].Depth)
	assert.False(t, entries[2].IsDir)
}
