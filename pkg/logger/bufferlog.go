// Package logger implements a per-job in-memory log buffer.
//
// Detailed lines are buffered WHILE a dataset file is being imported.
//   - If the import fails the buffer is replayed, followed by the error.
//   - If it succeeds the buffer is dropped and a single summary line is written.
//
// A dedicated goroutine owns the buffers; callers only send commands over a
// channel, so there are no mutexes.
package logger

import (
	"bytes"
	"log"
	"strings"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
	actSync
)

type cmd struct {
	act     action
	job     string
	message string
	err     error
	done    chan struct{}
}

var ch = make(chan cmd, 128)

// Begin enables buffering for job.
func Begin(job string) { ch <- cmd{act: actBegin, job: job} }

// Append adds a detail line. Without an active buffer the line is printed.
func Append(job, msg string) { ch <- cmd{act: actAppend, job: job, message: msg} }

// Success drops the buffer and prints summary as the only line for job.
func Success(job, summary string) { ch <- cmd{act: actSuccess, job: job, message: summary} }

// FlushError replays the buffer and prints err.
func FlushError(job string, err error) { ch <- cmd{act: actFlushErr, job: job, err: err} }

// Sync blocks until every command sent before it has been handled.
func Sync() {
	done := make(chan struct{})
	ch <- cmd{act: actSync, done: done}
	<-done
}

func init() { go runloop() }

func runloop() {
	buffers := make(map[string]*bytes.Buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.job] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.job]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				log.Print(c.message)
			}

		case actSuccess:
			log.Printf("[%-13s][Import] ✔ %s", c.job, c.message)
			delete(buffers, c.job)

		case actFlushErr:
			if b := buffers[c.job]; b != nil {
				lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
				for _, ln := range lines {
					if ln != "" {
						log.Print(ln)
					}
				}
				delete(buffers, c.job)
			}
			log.Printf("[%-13s][ERROR] %v", c.job, c.err)

		case actSync:
			close(c.done)
		}
	}
}
