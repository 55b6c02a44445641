package client

import (
	"bufio"
	"io"
	"sync"
)

// Input is a source of operator lines. The channel is closed when the
// source is exhausted, which the control loop treats as /quit.
type Input interface {
	Lines() <-chan string
}

type lineInput struct {
	lines chan string
}

// LineInput reads newline-terminated lines from r on a background
// goroutine, for terminal operation.
func LineInput(r io.Reader) Input {
	in := &lineInput{lines: make(chan string)}
	go func() {
		defer close(in.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			in.lines <- scanner.Text()
		}
	}()

	return in
}

func (in *lineInput) Lines() <-chan string {
	return in.lines
}

// QueueInput is an Input fed programmatically, for a GUI front end or tests.
type QueueInput struct {
	lines chan string
	once  sync.Once
}

// NewQueueInput creates a QueueInput holding up to size pending lines.
func NewQueueInput(size int) *QueueInput {
	return &QueueInput{lines: make(chan string, size)}
}

// Push queues one line; it blocks while the queue is full.
func (q *QueueInput) Push(line string) {
	q.lines <- line
}

// Close ends the input.
func (q *QueueInput) Close() {
	q.once.Do(func() { close(q.lines) })
}

// Lines implements Input.
func (q *QueueInput) Lines() <-chan string {
	return q.lines
}
