package crew

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/crew/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// collector is a Sink that keeps every outcome it receives.
type collector struct {
	mu       sync.Mutex
	outcomes []models.Outcome
}

func (c *collector) Record(o models.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

func (c *collector) all() []models.Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Outcome(nil), c.outcomes...)
}

func (c *collector) kind(kind string) []models.Outcome {
	var out []models.Outcome
	for _, o := range c.all() {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

func (c *collector) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = nil
}

// traceLogger records trace lines so tests can inspect worker diagnostics.
type traceLogger struct {
	mu     sync.Mutex
	lines  []string
	starts int
	ends   []models.RunSummary
}

func (l *traceLogger) LogTrace(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, message)
}

func (l *traceLogger) LogRunStart(*models.Query, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts++
}

func (l *traceLogger) LogRunComplete(s models.RunSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ends = append(l.ends, s)
}

// quietLogger is a traceLogger that reports trace output as disabled.
type quietLogger struct {
	traceLogger
}

func (*quietLogger) TraceEnabled() bool { return false }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestCrew(t *testing.T, size int, sink Sink, opts ...Option) *Crew {
	t.Helper()
	c, err := New(size, sink, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, c.Close())
	})
	return c
}

func TestNew(t *testing.T) {
	t.Run("starts requested workers", func(t *testing.T) {
		c := newTestCrew(t, 4, nil)
		assert.Equal(t, 4, c.Size())
		assert.Equal(t, DefaultCapacity, c.Capacity())

		stats := c.Stats()
		assert.Equal(t, 4, stats.Workers)
		assert.Zero(t, stats.Live)
		assert.False(t, stats.Running)
	})

	t.Run("size above capacity", func(t *testing.T) {
		c, err := New(5, nil, WithCapacity(4))
		require.Error(t, err)
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrCapacityExceeded)

		var capErr *CapacityError
		require.True(t, errors.As(err, &capErr))
		assert.Equal(t, 5, capErr.Requested)
		assert.Equal(t, 4, capErr.Capacity)
		assert.True(t, IsUsageError(err))
	})

	t.Run("size equal to capacity", func(t *testing.T) {
		c := newTestCrew(t, 4, nil, WithCapacity(4))
		assert.Equal(t, 4, c.Size())
	})

	t.Run("zero size", func(t *testing.T) {
		_, err := New(0, nil)
		assert.ErrorIs(t, err, ErrInvalidSize)
	})
}

func TestStart_SingleMatchingFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "greeting.txt")
	writeFile(t, root, "first line\nsay hello world\nlast line\n")

	sink := &collector{}
	c := newTestCrew(t, 4, sink)

	summary, err := c.Start(context.Background(), root, "hello")
	require.NoError(t, err)

	matches := sink.kind(models.KindMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, root, matches[0].Path)
	assert.Equal(t, 2, matches[0].Line)
	assert.Equal(t, "say hello world", matches[0].Text)
	assert.Equal(t, summary.RunID, matches[0].RunID)
	assert.Len(t, sink.all(), 1)

	assert.Equal(t, 1, summary.Matches)
	assert.Equal(t, root, summary.Root)
	assert.Equal(t, "hello", summary.Term)
	assert.False(t, summary.Aborted)
	assert.Zero(t, c.Stats().Live)
}

func TestStart_BrokenSymlinkAndMiss(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "plain.txt"), "nothing to see\n")
	require.NoError(t, os.Symlink(filepath.Join(root, "missing"), filepath.Join(root, "dangling")))

	sink := &collector{}
	c := newTestCrew(t, 2, sink)

	summary, err := c.Start(context.Background(), root, "hello")
	require.NoError(t, err)

	assert.Len(t, sink.kind(models.KindExpanded), 1)
	skipped := sink.kind(models.KindSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, filepath.Join(root, "dangling"), skipped[0].Path)
	misses := sink.kind(models.KindNoMatch)
	require.Len(t, misses, 1)
	assert.Equal(t, filepath.Join(root, "plain.txt"), misses[0].Path)
	assert.Empty(t, sink.kind(models.KindMatch))
	assert.Empty(t, sink.kind(models.KindError))

	assert.Equal(t, 1, summary.Directories)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Misses)
	assert.Zero(t, c.Stats().Live)
}

func TestStart_SymlinkToDirectoryIsNotFollowed(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "real")
	writeFile(t, filepath.Join(target, "inside.txt"), "hello\n")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "alias")))

	sink := &collector{}
	c := newTestCrew(t, 3, sink)

	_, err := c.Start(context.Background(), root, "hello")
	require.NoError(t, err)

	matches := sink.kind(models.KindMatch)
	require.Len(t, matches, 1, "the file must be found once, through the real directory only")
	assert.Equal(t, filepath.Join(target, "inside.txt"), matches[0].Path)
	assert.Len(t, sink.kind(models.KindSkipped), 1)
}

func TestStart_FanOutCompleteness(t *testing.T) {
	root := t.TempDir()
	want := make(map[string]bool)
	for d := 0; d < 10; d++ {
		for f := 0; f < 5; f++ {
			path := filepath.Join(root, fmt.Sprintf("dir%02d", d), fmt.Sprintf("file%d.txt", f))
			content := "no luck here\n"
			if f%2 == 0 {
				content = "line one\nneedle in line two\n"
			}
			writeFile(t, path, content)
			want[path] = f%2 == 0
		}
	}

	sink := &collector{}
	c := newTestCrew(t, 4, sink, WithCapacity(4))

	summary, err := c.Start(context.Background(), root, "needle")
	require.NoError(t, err)

	perPath := make(map[string]int)
	for _, o := range sink.all() {
		if o.Kind == models.KindMatch || o.Kind == models.KindNoMatch {
			perPath[o.Path]++
			assert.Equal(t, want[o.Path], o.Kind == models.KindMatch, "wrong verdict for %s", o.Path)
		}
	}
	assert.Len(t, perPath, 50)
	for path, n := range perPath {
		assert.Equal(t, 1, n, "file %s produced %d outcomes", path, n)
	}

	assert.Equal(t, 11, summary.Directories)
	assert.Equal(t, 30, summary.Matches)
	assert.Equal(t, 20, summary.Misses)
	assert.Equal(t, 50, summary.Searched())
	assert.Zero(t, summary.Errors)
	assert.Zero(t, c.Stats().Live)
}

func TestStart_DeepTree(t *testing.T) {
	root := t.TempDir()
	dir := root
	for depth := 0; depth < 30; depth++ {
		dir = filepath.Join(dir, fmt.Sprintf("d%d", depth))
		writeFile(t, filepath.Join(dir, "leaf.txt"), "deep\n")
	}

	sink := &collector{}
	c := newTestCrew(t, 4, sink)

	summary, err := c.Start(context.Background(), root, "deep")
	require.NoError(t, err)
	assert.Equal(t, 31, summary.Directories)
	assert.Equal(t, 30, summary.Matches)
}

func TestStart_FirstMatchOnly(t *testing.T) {
	lines := []string{"one", "two", "the term", "four", "five", "six", "the term again", "eight"}
	root := filepath.Join(t.TempDir(), "twice.txt")
	writeFile(t, root, strings.Join(lines, "\n")+"\n")

	sink := &collector{}
	c := newTestCrew(t, 2, sink)

	summary, err := c.Start(context.Background(), root, "term")
	require.NoError(t, err)

	matches := sink.kind(models.KindMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, 3, matches[0].Line)
	assert.Equal(t, 1, summary.Matches)
}

func TestStart_LinesLongerThanReadBuffer(t *testing.T) {
	x := func(n int) string { return strings.Repeat("x", n) }
	tests := []struct {
		name     string
		content  string
		wantLine int
		wantText string
	}{
		{
			name:     "term across first chunk boundary",
			content:  x(searchBufferSize-3) + "NEEDLE" + x(searchBufferSize) + "\n",
			wantLine: 1,
			wantText: x(maxMatchText),
		},
		{
			name:     "term across later chunk boundary",
			content:  x(2*searchBufferSize-2) + "NEEDLE\n",
			wantLine: 1,
			wantText: x(maxMatchText),
		},
		{
			name:     "long lines are counted once",
			content:  x(3*searchBufferSize) + "\nshort\nNEEDLE here\n",
			wantLine: 3,
			wantText: "NEEDLE here",
		},
		{
			name:    "partial term at end of long line",
			content: x(2*searchBufferSize) + "NEED\nLE\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "long.txt")
			writeFile(t, root, tt.content)

			sink := &collector{}
			c := newTestCrew(t, 1, sink)

			_, err := c.Start(context.Background(), root, "NEEDLE")
			require.NoError(t, err)

			matches := sink.kind(models.KindMatch)
			if tt.wantLine == 0 {
				assert.Empty(t, matches)
				assert.Len(t, sink.kind(models.KindNoMatch), 1)
				return
			}
			require.Len(t, matches, 1)
			assert.Equal(t, tt.wantLine, matches[0].Line)
			assert.Equal(t, tt.wantText, matches[0].Text)
		})
	}
}

func TestStart_LastLineWithoutNewline(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tail.txt")
	writeFile(t, root, "a\nb\nfound at end")

	sink := &collector{}
	c := newTestCrew(t, 1, sink)

	_, err := c.Start(context.Background(), root, "end")
	require.NoError(t, err)

	matches := sink.kind(models.KindMatch)
	require.Len(t, matches, 1)
	assert.Equal(t, 3, matches[0].Line)
}

func TestStart_EmptyDirectoryAndEmptyFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))
	writeFile(t, filepath.Join(root, "zero.txt"), "")

	sink := &collector{}
	c := newTestCrew(t, 2, sink)

	summary, err := c.Start(context.Background(), root, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Directories)
	assert.Equal(t, 1, summary.Misses)

	for _, o := range sink.kind(models.KindExpanded) {
		if o.Path == root {
			assert.Equal(t, 2, o.Children)
		} else {
			assert.Equal(t, 0, o.Children)
		}
	}
}

func TestStart_MissingRootIsItemError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does-not-exist")

	sink := &collector{}
	c := newTestCrew(t, 1, sink)

	summary, err := c.Start(context.Background(), root, "x")
	require.NoError(t, err, "a stat failure is reported as an outcome, not returned")

	errs := sink.kind(models.KindError)
	require.Len(t, errs, 1)
	var itemErr *models.ItemError
	require.True(t, errors.As(errs[0].Err, &itemErr))
	assert.Equal(t, "stat", itemErr.Op)
	assert.True(t, errors.Is(errs[0].Err, os.ErrNotExist))
	assert.Equal(t, 1, summary.Errors)
}

func TestStart_UnreadableEntries(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}

	root := t.TempDir()
	locked := filepath.Join(root, "locked")
	writeFile(t, filepath.Join(locked, "hidden.txt"), "needle\n")
	secret := filepath.Join(root, "secret.txt")
	writeFile(t, secret, "needle\n")
	writeFile(t, filepath.Join(root, "open.txt"), "needle\n")

	require.NoError(t, os.Chmod(locked, 0o000))
	require.NoError(t, os.Chmod(secret, 0o000))
	t.Cleanup(func() {
		os.Chmod(locked, 0o755)
		os.Chmod(secret, 0o644)
	})

	sink := &collector{}
	c := newTestCrew(t, 2, sink)

	summary, err := c.Start(context.Background(), root, "needle")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Matches, "siblings of unreadable entries are still searched")
	assert.Equal(t, 2, summary.Errors)

	ops := make(map[string]bool)
	for _, o := range sink.kind(models.KindError) {
		var itemErr *models.ItemError
		require.True(t, errors.As(o.Err, &itemErr))
		ops[itemErr.Op] = true
	}
	assert.True(t, ops["open directory"])
	assert.True(t, ops["read file"])
	assert.Zero(t, c.Stats().Live)
}

func TestStart_PathTooLong(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "short"), "x\n")
	writeFile(t, filepath.Join(root, strings.Repeat("n", 40)), "x\n")

	sink := &collector{}
	c := newTestCrew(t, 2, sink, WithMaxPathLength(len(root)+10))

	summary, err := c.Start(context.Background(), root, "x")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Matches)
	errs := sink.kind(models.KindError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, ErrPathTooLong)
	var itemErr *models.ItemError
	require.ErrorAs(t, errs[0].Err, &itemErr)
	assert.Equal(t, "enqueue", itemErr.Op)

	_, err = c.Start(context.Background(), filepath.Join(root, strings.Repeat("n", 40)), "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStart_InvalidArguments(t *testing.T) {
	sink := &collector{}
	c := newTestCrew(t, 1, sink)

	tests := []struct {
		name string
		root string
		term string
	}{
		{name: "empty root", root: "", term: "x"},
		{name: "empty term", root: t.TempDir(), term: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Start(context.Background(), tt.root, tt.term)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.True(t, IsUsageError(err))
		})
	}
	assert.Empty(t, sink.all())
}

func TestStart_ReusesPoolAcrossRuns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "alpha\n")
	writeFile(t, filepath.Join(root, "b", "b.txt"), "beta\n")

	sink := &collector{}
	log := &traceLogger{}
	c := newTestCrew(t, 3, sink, WithLogger(log))

	first, err := c.Start(context.Background(), root, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Matches)

	sink.reset()
	second, err := c.Start(context.Background(), root, "beta")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Matches)
	assert.NotEqual(t, first.RunID, second.RunID)

	for _, o := range sink.all() {
		assert.Equal(t, second.RunID, o.RunID)
	}

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Equal(t, 2, log.starts)
	assert.Len(t, log.ends, 2)
}

// blockingSink parks the first outcome it sees until release is closed, which
// keeps the first run busy for as long as the test needs.
type blockingSink struct {
	collector
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (b *blockingSink) Record(o models.Outcome) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	b.collector.Record(o)
}

func TestStart_BusyWhileRunActive(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%d.txt", i)), "needle\n")
	}

	// A single worker parked in the sink keeps the queue frozen.
	sink := newBlockingSink()
	c := newTestCrew(t, 1, sink)

	var g errgroup.Group
	var summary models.RunSummary
	g.Go(func() error {
		var err error
		summary, err = c.Start(context.Background(), root, "needle")
		return err
	})

	<-sink.entered
	before := c.Stats()
	require.True(t, before.Running)
	require.Equal(t, 6, before.Live)

	_, err := c.Start(context.Background(), root, "needle")
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, c.Close(), ErrBusy)

	after := c.Stats()
	assert.Equal(t, before.Live, after.Live, "a rejected start must not enqueue anything")

	close(sink.release)
	require.NoError(t, g.Wait())
	assert.Equal(t, 5, summary.Matches)
	assert.Zero(t, c.Stats().Live)

	// The crew is usable again once the run has drained.
	_, err = c.Start(context.Background(), root, "needle")
	assert.NoError(t, err)
}

func TestStart_ConcurrentCallersOnlyOneRuns(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("d%d", i%4), fmt.Sprintf("f%d.txt", i)), "needle\n")
	}

	c := newTestCrew(t, 4, nil)

	var mu sync.Mutex
	var ok, busy int
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			summary, err := c.Start(context.Background(), root, "needle")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				if summary.Matches != 20 {
					return fmt.Errorf("run %s found %d matches", summary.RunID, summary.Matches)
				}
			case errors.Is(err, ErrBusy):
				busy++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 8, ok+busy)
	assert.GreaterOrEqual(t, ok, 1)
}

func TestStart_BackToBackRunsKeepTheirOwnSummary(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 4; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%d.txt", i)), "needle\n")
	}

	c := newTestCrew(t, 4, nil)

	const callers, runsEach = 8, 200
	var mu sync.Mutex
	seen := make(map[string]bool)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			for done := 0; done < runsEach; {
				summary, err := c.Start(context.Background(), root, "needle")
				if errors.Is(err, ErrBusy) {
					runtime.Gosched()
					continue
				}
				if err != nil {
					return err
				}
				if summary.Matches != 4 || summary.Directories != 1 || summary.Aborted {
					return fmt.Errorf("run %s: matches=%d directories=%d aborted=%v",
						summary.RunID, summary.Matches, summary.Directories, summary.Aborted)
				}
				mu.Lock()
				dup := seen[summary.RunID]
				seen[summary.RunID] = true
				mu.Unlock()
				if dup {
					return fmt.Errorf("run id %s returned twice", summary.RunID)
				}
				done++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, seen, callers*runsEach)
}

func TestStart_LateCancellationOfFinishedRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "needle\n")

	c := newTestCrew(t, 2, nil)

	// A cancellation arriving for a run that already finished must not
	// discard the items of the next one.
	c.abort(models.NewQuery("finished", root, "needle"))

	summary, err := c.Start(context.Background(), root, "needle")
	require.NoError(t, err)
	assert.False(t, summary.Aborted)
	assert.Equal(t, 1, summary.Matches)
}

func TestStart_TraceSkippedWhenDisabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "needle\n")

	quiet := &quietLogger{}
	c := newTestCrew(t, 2, nil, WithLogger(quiet))
	_, err := c.Start(context.Background(), root, "needle")
	require.NoError(t, err)
	assert.Empty(t, quiet.lines)
	require.Len(t, quiet.ends, 1)

	loud := &traceLogger{}
	c = newTestCrew(t, 2, nil, WithLogger(TeeLogger(&quietLogger{}, loud)))
	_, err = c.Start(context.Background(), root, "needle")
	require.NoError(t, err)
	assert.NotEmpty(t, loud.lines)
	assert.True(t, strings.HasPrefix(loud.lines[0], "worker "))
}

func TestStart_LiveCountPositiveWhileOutcomesFlow(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 12; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("d%d", i%3), fmt.Sprintf("f%d.txt", i)), "x\n")
	}

	var c *Crew
	var mu sync.Mutex
	var seen []int
	sink := SinkFunc(func(models.Outcome) {
		live := c.Stats().Live
		mu.Lock()
		seen = append(seen, live)
		mu.Unlock()
	})
	log := &traceLogger{}
	c = newTestCrew(t, 3, sink, WithLogger(log))

	_, err := c.Start(context.Background(), root, "x")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for _, live := range seen {
		assert.Positive(t, live, "the item producing an outcome is still counted")
	}

	// The final finish trace may land just after Start returns.
	assert.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		for _, line := range log.lines {
			if strings.Contains(line, "finished") && strings.HasSuffix(line, "(live 0)") {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestStart_Cancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(root, fmt.Sprintf("f%02d.txt", i)), "needle\n")
	}

	sink := newBlockingSink()
	c := newTestCrew(t, 1, sink)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g errgroup.Group
	var summary models.RunSummary
	var runErr error
	g.Go(func() error {
		summary, runErr = c.Start(ctx, root, "needle")
		return nil
	})

	// The single worker is parked on the root's expansion outcome with all
	// twenty children queued behind it.
	<-sink.entered
	cancel()
	require.Eventually(t, func() bool { return c.abortedRun.Load() != nil }, time.Second, time.Millisecond)
	close(sink.release)
	require.NoError(t, g.Wait())

	assert.ErrorIs(t, runErr, context.Canceled)
	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, summary.Directories)
	assert.Zero(t, summary.Matches, "queued items are discarded once aborted")
	assert.Zero(t, c.Stats().Live)

	// A fresh context runs to completion on the same crew.
	sink.reset()
	summary, err := c.Start(context.Background(), root, "needle")
	require.NoError(t, err)
	assert.False(t, summary.Aborted)
	assert.Equal(t, 20, summary.Matches)
}

func TestClose(t *testing.T) {
	c, err := New(3, nil)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.True(t, c.Stats().Closed)
	assert.NoError(t, c.Close(), "second close is a no-op")

	_, err = c.Start(context.Background(), t.TempDir(), "x")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTee(t *testing.T) {
	a, b := &collector{}, &collector{}
	sink := Tee(a, nil, b)

	sink.Record(models.Outcome{Path: "p", Kind: models.KindMatch})

	assert.Len(t, a.all(), 1)
	assert.Len(t, b.all(), 1)
}

func TestStart_AlreadyCancelledContext(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "needle\n")

	sink := &collector{}
	c := newTestCrew(t, 2, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := c.Start(ctx, root, "needle")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Aborted)
	assert.Empty(t, sink.all(), "the root is discarded before any worker examines it")
	assert.Zero(t, c.Stats().Live)
}

func TestTeeLogger(t *testing.T) {
	a, b := &traceLogger{}, &traceLogger{}
	l := TeeLogger(a, nil, b)

	l.LogTrace("hello")
	l.LogRunStart(models.NewQuery("r", "/", "x"), 1)
	l.LogRunComplete(models.RunSummary{RunID: "r"})

	for _, tl := range []*traceLogger{a, b} {
		assert.Equal(t, []string{"hello"}, tl.lines)
		assert.Equal(t, 1, tl.starts)
		require.Len(t, tl.ends, 1)
		assert.Equal(t, "r", tl.ends[0].RunID)
	}
}
