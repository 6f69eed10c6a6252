package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Sink is the destination of the serialized metrics text.
type Sink interface {
	Publish(ctx context.Context, data []byte) error
	String() string
}

// FileSink replaces the file content on every publish. Data goes to a temp file
// in the same directory first and is renamed over the target, so readers see
// either the previous or the new content.
type FileSink struct {
	Path string
}

func (fs *FileSink) Publish(ctx context.Context, data []byte) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(fs.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fs.Path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, fs.Path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

func (fs *FileSink) String() string {
	return fs.Path
}

// WriterSink writes each publish to an io.Writer, typically stdout.
type WriterSink struct {
	Writer io.Writer
	Name   string
	mu     sync.Mutex
}

func (ws *WriterSink) Publish(ctx context.Context, data []byte) error {

	if err := ctx.Err(); err != nil {
		return err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	_, err := ws.Writer.Write(data)
	return err
}

func (ws *WriterSink) String() string {

	if ws.Name == "" {
		return "stdout"
	}
	return ws.Name
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, data []byte) error

func (f SinkFunc) Publish(ctx context.Context, data []byte) error {
	return f(ctx, data)
}

func (f SinkFunc) String() string {
	return fmt.Sprintf("func(%p)", f)
}

// NewSink maps a path option to a sink: "-" is stdout, anything else a file.
func NewSink(path string) Sink {

	if path == "-" {
		return &WriterSink{Writer: os.Stdout}
	}
	return &FileSink{Path: path}
}
