//go:build linux || darwin

package crew

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/harrison/crew/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_FIFOIsUnsupported(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, syscall.Mkfifo(filepath.Join(root, "pipe"), 0o644))
	writeFile(t, filepath.Join(root, "file.txt"), "needle\n")

	sink := &collector{}
	c := newTestCrew(t, 2, sink)

	summary, err := c.Start(context.Background(), root, "needle")
	require.NoError(t, err)

	unsupported := sink.kind(models.KindUnsupported)
	require.Len(t, unsupported, 1)
	assert.Equal(t, "FIFO", unsupported[0].FileType)
	assert.Equal(t, filepath.Join(root, "pipe"), unsupported[0].Path)
	assert.True(t, unsupported[0].IsFailure())
	assert.Equal(t, 1, summary.Unsupported)
	assert.Equal(t, 1, summary.Matches)
}
