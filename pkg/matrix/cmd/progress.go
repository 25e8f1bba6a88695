package cmd

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/ngld/knossos/packages/buildmatrix/pkg"
	"github.com/ngld/knossos/packages/buildmatrix/pkg/matrix"
)

// syncBuffer collects builder output. The interpreter may write stdout and stderr from
// different goroutines.
type syncBuffer struct {
	buf  bytes.Buffer
	lock sync.Mutex
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Reset() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.buf.Reset()
}

func (b *syncBuffer) WriteTo(w io.Writer) (int64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.WriteTo(w)
}

func (b *syncBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Len()
}

// progressObserver announces cases, drives the optional progress bar and replays the captured
// builder output of failed cases.
type progressObserver struct {
	bar     *progressbar.ProgressBar
	capture *syncBuffer
	out     io.Writer
}

func newProgressBar(total int, out io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription("matrix"),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
	)
}

func (o *progressObserver) clear() {
	if o.bar != nil {
		_ = o.bar.Clear()
	}
}

func (o *progressObserver) redraw() {
	if o.bar != nil {
		_ = o.bar.RenderBlank()
	}
}

func (o *progressObserver) CaseStarted(index, total int, c matrix.Case) {
	if o.capture != nil {
		o.capture.Reset()
	}

	if o.bar != nil {
		o.bar.Describe(c.Name)
		o.redraw()
		return
	}

	pkg.PrintTask(fmt.Sprintf("[%d/%d] %s", index+1, total, c.Name))
}

func (o *progressObserver) CaseFinished(index, total int, result matrix.CaseResult) {
	if result.Outcome.Failed() && o.capture != nil && o.capture.Len() > 0 {
		o.clear()
		pkg.PrintError(fmt.Sprintf("output of %s:", result.Name))
		_, _ = o.capture.WriteTo(o.out)
		o.redraw()
	}

	if o.bar != nil {
		_ = o.bar.Add(1)
	}
}

func (o *progressObserver) finish() {
	if o.bar != nil {
		_ = o.bar.Finish()
	}
}
