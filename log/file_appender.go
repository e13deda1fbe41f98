package log

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"time"
)

// _asyncByteSizePerIOWrite caps one coalesced async write (4MB).
const _asyncByteSizePerIOWrite = 4 << 20

// ErrAppenderClosed is returned by writes after Close.
var ErrAppenderClosed = errors.New("log appender closed")

// FileAppender writes entries to a size-rotated file, either inline or from
// a background goroutine that coalesces queued entries into one write per
// tick.
type FileAppender struct {
	fileName          string
	fileSplitMB       int
	isAsync           bool
	asyncWriteMillSec int

	lock   sync.Mutex // guards fileFd
	fileFd *os.File

	// stateLock is held shared by producers while they enqueue and
	// exclusively by Close, so no producer is left blocked on bufChan.
	stateLock sync.RWMutex
	closed    bool

	bufChan      chan *bytes.Buffer
	ntfChan      chan chan struct{}
	exitChan     chan struct{}
	loopDone     chan struct{}
	asyncSendBuf *bytes.Buffer
	bufferPool   sync.Pool
}

// NewFileAppender creates a FileAppender and panics on failure.
func NewFileAppender(cfg *LogCfg) *FileAppender {
	a, err := newFileAppender(cfg)
	if err != nil {
		panic(err)
	}
	return a
}

func newFileAppender(cfg *LogCfg) (*FileAppender, error) {
	if err := CheckCfgValid(cfg); err != nil {
		return nil, err
	}
	a := &FileAppender{
		fileName:          cfg.LogPath,
		fileSplitMB:       cfg.FileSplitMB,
		isAsync:           cfg.IsAsync,
		asyncWriteMillSec: cfg.AsyncWriteMillSec,
	}

	fd, err := openLogFile(a.fileName)
	if err != nil {
		return nil, err
	}
	a.fileFd = fd

	if a.isAsync {
		a.bufferPool = sync.Pool{
			New: func() any {
				return &bytes.Buffer{}
			},
		}
		a.asyncSendBuf = bytes.NewBuffer(make([]byte, 0, 64<<10))
		a.bufChan = make(chan *bytes.Buffer, cfg.AsyncCacheSize)
		a.ntfChan = make(chan chan struct{})
		a.exitChan = make(chan struct{})
		a.loopDone = make(chan struct{})
		go a.asyncWriteLoop()
	}
	return a, nil
}

// Write queues buf in async mode or writes it inline otherwise.
func (a *FileAppender) Write(buf []byte) (int, error) {
	if !a.isAsync {
		return a.writeSync(buf)
	}

	a.stateLock.RLock()
	defer a.stateLock.RUnlock()
	if a.closed {
		return 0, ErrAppenderClosed
	}
	a.writeAsync(buf)
	return len(buf), nil
}

// Refresh blocks until every queued entry is written and synced.
func (a *FileAppender) Refresh() error {
	if !a.isAsync {
		return nil
	}
	a.stateLock.RLock()
	defer a.stateLock.RUnlock()
	if a.closed {
		return nil
	}
	doneChan := make(chan struct{})
	a.ntfChan <- doneChan
	<-doneChan
	return nil
}

// Close drains queued entries, stops the writer goroutine and closes the file.
func (a *FileAppender) Close() error {
	if a.isAsync {
		a.stateLock.Lock()
		if a.closed {
			a.stateLock.Unlock()
			return nil
		}
		a.closed = true
		a.stateLock.Unlock()

		close(a.exitChan)
		<-a.loopDone
	}

	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fileFd != nil {
		err := a.fileFd.Close()
		a.fileFd = nil
		return err
	}
	return nil
}

func (a *FileAppender) writeSync(buf []byte) (int, error) {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.fileFd == nil {
		return 0, ErrAppenderClosed
	}

	fd, err := rotateIfNeeded(a.fileName, a.fileSplitMB, a.fileFd)
	if err != nil {
		return 0, err
	}
	a.fileFd = fd
	return a.fileFd.Write(buf)
}

// writeAsync copies buf into a pooled buffer and queues it. When the queue
// is full it asks the writer goroutine for an immediate drain and then
// blocks until there is room.
func (a *FileAppender) writeAsync(buf []byte) {
	buffer := a.bufferPool.Get().(*bytes.Buffer)
	buffer.Reset()
	buffer.Write(buf)

	select {
	case a.bufChan <- buffer:
	default:
		select {
		case a.bufChan <- buffer:
		case a.ntfChan <- nil:
			a.bufChan <- buffer
		}
	}
}

// writeAll drains bufChan, coalescing entries up to _asyncByteSizePerIOWrite
// per write.
func (a *FileAppender) writeAll() {
	for {
		select {
		case buffer := <-a.bufChan:
			if a.asyncSendBuf.Len()+buffer.Len() > _asyncByteSizePerIOWrite {
				_, _ = a.writeSync(a.asyncSendBuf.Bytes())
				a.asyncSendBuf.Reset()
			}
			a.asyncSendBuf.Write(buffer.Bytes())
			buffer.Reset()
			a.bufferPool.Put(buffer)
		default:
			if a.asyncSendBuf.Len() > 0 {
				_, _ = a.writeSync(a.asyncSendBuf.Bytes())
				a.asyncSendBuf.Reset()
			}
			return
		}
	}
}

func (a *FileAppender) asyncWriteLoop() {
	defer close(a.loopDone)
	tickTimer := time.NewTicker(time.Duration(a.asyncWriteMillSec) * time.Millisecond)
	defer tickTimer.Stop()
	for {
		select {
		case doneChan := <-a.ntfChan:
			a.writeAll()
			if doneChan != nil {
				a.lock.Lock()
				if a.fileFd != nil {
					_ = a.fileFd.Sync()
				}
				a.lock.Unlock()
				doneChan <- struct{}{}
			}
		case <-tickTimer.C:
			a.writeAll()
		case <-a.exitChan:
			a.writeAll()
			return
		}
	}
}
