// Package rsyncstats tallies per-connection transfer totals.
package rsyncstats

import "io"

type TransferStats struct {
	Read    int64 // total bytes read (from network connection)
	Written int64 // total bytes written (to network connection)
	Size    int64 // total size of files
}

type CountingReader struct {
	r    io.Reader
	read int64
}

func (r *CountingReader) Read(p []byte) (n int, err error) {
	n, err = r.r.Read(p)
	r.read += int64(n)
	return n, err
}

func (r *CountingReader) BytesRead() int64 { return r.read }

type CountingWriter struct {
	w       io.Writer
	written int64
}

func (w *CountingWriter) Write(p []byte) (n int, err error) {
	n, err = w.w.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *CountingWriter) BytesWritten() int64 { return w.written }

// CounterPair wraps a connection's reader and writer so that the
// transfer totals can be reported once the session ends.
func CounterPair(r io.Reader, w io.Writer) (*CountingReader, *CountingWriter) {
	crd := &CountingReader{r: r}
	cwr := &CountingWriter{w: w}
	return crd, cwr
}
