package crew

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/harrison/crew/internal/models"
)

const (
	// readDirBatch bounds how many directory entries are read before the
	// children are handed to the queue.
	readDirBatch = 128

	// maxMatchText caps the matching line stored in an outcome.
	maxMatchText = 256

	// searchBufferSize is the largest piece of a line held in memory while
	// searching a file.
	searchBufferSize = 64 * 1024
)

// ErrPathTooLong is wrapped in the outcome of a child whose path exceeds the crew's path limit.
var ErrPathTooLong = errors.New("path exceeds maximum length")

// worker is one long-lived member of the crew.
type worker struct {
	index int
	crew  *Crew
}

// run is the worker loop: dequeue, process, finish, until a stop sentinel arrives.
func (w *worker) run() {
	defer w.crew.wg.Done()
	q := w.crew.queue

	for {
		item, live := q.dequeue()
		if item.IsStop() {
			w.tracef("stop received")
			return
		}
		w.tracef("got %s (live %d)", item.Path, live)

		if w.crew.isAborted(item) {
			w.crew.discard()
			w.tracef("discarding %s, run aborted", item.Path)
		} else {
			w.process(item)
		}

		// Children of item were enqueued inside process, so they are already
		// counted before this decrement becomes visible.
		live = q.finish()
		w.tracef("finished %s (live %d)", item.Path, live)
	}
}

// process classifies the entry named by item and acts on it.
func (w *worker) process(item *models.WorkItem) {
	info, err := os.Lstat(item.Path)
	if err != nil {
		w.fail(item, "stat", item.Path, err)
		return
	}

	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		w.emit(item, models.Outcome{Kind: models.KindSkipped})
	case mode.IsDir():
		w.expand(item)
	case mode.IsRegular():
		w.search(item)
	default:
		w.emit(item, models.Outcome{Kind: models.KindUnsupported, FileType: fileTypeName(mode)})
	}
}

// expand enqueues one child item per directory entry. Children enqueued
// before an enumeration failure stay valid work.
func (w *worker) expand(item *models.WorkItem) {
	dir, err := os.Open(item.Path)
	if err != nil {
		w.fail(item, "open directory", item.Path, err)
		return
	}

	children := 0
	var readErr error
	for {
		entries, err := dir.ReadDir(readDirBatch)
		for _, entry := range entries {
			child := childPath(item.Path, entry.Name())
			if len(child) > w.crew.maxPath {
				w.fail(item, "enqueue", child, fmt.Errorf("%w (%d bytes)", ErrPathTooLong, w.crew.maxPath))
				continue
			}
			live := w.crew.queue.enqueue(models.NewWorkItem(child, item.Query))
			children++
			w.tracef("add %s (live %d)", child, live)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
	}
	closeErr := dir.Close()

	if readErr != nil {
		w.fail(item, "read directory", item.Path, readErr)
	} else {
		w.emit(item, models.Outcome{Kind: models.KindExpanded, Children: children})
	}
	if closeErr != nil {
		w.fail(item, "close directory", item.Path, closeErr)
	}
}

// search reads the file line by line and reports the first line containing
// the term. Reading stops at the first match. Memory per worker is bounded by
// the read buffer: a line longer than the buffer is scanned in chunks that
// overlap by len(term)-1 bytes, so a term straddling a chunk boundary is
// still found.
func (w *worker) search(item *models.WorkItem) {
	file, err := os.Open(item.Path)
	if err != nil {
		w.fail(item, "read file", item.Path, err)
		return
	}

	reader := bufio.NewReaderSize(file, searchBufferSize)
	overlap := len(item.Query.Term) - 1
	var (
		carry   []byte // tail of the current line kept from the previous chunk
		head    []byte // start of the current line, for the match text
		scratch []byte
		window  []byte
		lineNo  = 1
		matched bool
		readErr error
	)
	for {
		chunk, err := reader.ReadSlice('\n')
		if len(chunk) > 0 {
			if len(head) < maxMatchText {
				head = append(head, chunk[:min(len(chunk), maxMatchText-len(head))]...)
			}
			window = chunk
			if len(carry) > 0 {
				scratch = append(append(scratch[:0], carry...), chunk...)
				window = scratch
			}
			if item.Query.Matches(window) {
				w.emit(item, models.Outcome{
					Kind: models.KindMatch,
					Line: lineNo,
					Text: matchText(head),
				})
				matched = true
				break
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			carry = append(carry[:0], window[max(0, len(window)-overlap):]...)
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}
		lineNo++
		carry = carry[:0]
		head = head[:0]
	}
	closeErr := file.Close()

	switch {
	case readErr != nil:
		w.fail(item, "read file", item.Path, readErr)
	case !matched:
		w.emit(item, models.Outcome{Kind: models.KindNoMatch})
	}
	if closeErr != nil {
		w.fail(item, "close file", item.Path, closeErr)
	}
}

func (w *worker) emit(item *models.WorkItem, o models.Outcome) {
	if o.Path == "" {
		o.Path = item.Path
	}
	o.RunID = item.Query.RunID
	o.Worker = w.index
	o.At = time.Now()
	w.crew.record(o)
}

func (w *worker) fail(item *models.WorkItem, op, path string, err error) {
	w.emit(item, models.Outcome{
		Kind: models.KindError,
		Path: path,
		Err:  models.NewItemError(op, path, err),
	})
}

func (w *worker) tracef(format string, args ...interface{}) {
	if !w.crew.trace {
		return
	}
	w.crew.logger.LogTrace(fmt.Sprintf("worker %d: "+format, append([]interface{}{w.index}, args...)...))
}

// childPath joins parent and name with a single separator.
// The result is not cleaned, so "./a" stays "./a".
func childPath(parent, name string) string {
	if strings.HasSuffix(parent, string(os.PathSeparator)) {
		return parent + name
	}
	return parent + string(os.PathSeparator) + name
}

// fileTypeName names the type of a non-regular, non-directory, non-symlink entry.
func fileTypeName(mode fs.FileMode) string {
	switch {
	case mode&fs.ModeNamedPipe != 0:
		return "FIFO"
	case mode&fs.ModeCharDevice != 0:
		return "CHR"
	case mode&fs.ModeDevice != 0:
		return "BLK"
	case mode&fs.ModeSocket != 0:
		return "SOCK"
	default:
		return "UNKNOWN"
	}
}

func matchText(line []byte) string {
	text := strings.TrimRight(string(line), "\r\n")
	if len(text) > maxMatchText {
		text = text[:maxMatchText]
	}
	return strings.ToValidUTF8(text, "")
}
