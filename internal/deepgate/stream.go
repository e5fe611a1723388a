// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deepgate

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Stream markers.
const (
	doneMarker       = "[DONE]"
	thinkOpenMarker  = "<think>"
	thinkCloseMarker = "</think>"
	errorEvent       = "error"
)

// errIdle is the cause of a stream aborted by the idle watchdog.
var errIdle = errors.New("no data received within idle timeout")

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader applies the completion stream state machine to
// server-sent-event lines.
//
// Only data lines carry tokens. A [DONE] payload (any case) ends the stream.
// <think> and </think> payloads toggle thinking mode; they are never emitted,
// and nor is anything between them. Every other payload is appended to the
// answer and the callback receives the whole answer so far.
type StreamReader struct {
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	accumulator strings.Builder

	event    string
	thinking bool
	thought  bool
	done     bool
	tokens   int
}

// NewStreamReader creates an empty stream reader.
func NewStreamReader() *StreamReader {
	return &StreamReader{}
}

// HandleLine feeds one line, without its line terminator, to the state
// machine. It reports stop once the stream is finished, either by [DONE] or
// by an error event.
func (s *StreamReader) HandleLine(line string, onToken TokenFunc) (stop bool, err error) {
	if line == "" {
		// A blank line ends the frame.
		s.event = ""
		return false, nil
	}
	if strings.HasPrefix(line, ":") {
		return false, nil
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		return false, nil
	}

	switch field {
	case "event":
		s.event = strings.TrimSpace(value)
		return false, nil
	case "data":
		// The payload is everything after "data:". Tokens carry their own
		// leading spaces, so none is stripped here.
		return s.handleData(value, onToken)
	default:
		// id, retry and unknown fields carry nothing for us.
		return false, nil
	}
}

func (s *StreamReader) handleData(data string, onToken TokenFunc) (bool, error) {
	if s.event == errorEvent {
		msg := strings.TrimSpace(data)
		if msg == "" {
			msg = "server reported a stream error"
		}
		return true, errors.New(msg)
	}

	// Control markers match with or without one separating space.
	marker := strings.TrimPrefix(data, " ")
	if strings.EqualFold(marker, doneMarker) {
		s.done = true
		return true, nil
	}

	switch marker {
	case thinkOpenMarker:
		s.thinking = true
		s.thought = true
		return false, nil
	case thinkCloseMarker:
		s.thinking = false
		return false, nil
	}

	if s.thinking || data == "" {
		return false, nil
	}

	s.accumulator.WriteString(data)
	s.tokens++
	if onToken != nil {
		onToken(s.accumulator.String())
	}
	return false, nil
}

// Content returns the answer assembled so far.
func (s *StreamReader) Content() string {
	return s.accumulator.String()
}

// Thinking reports whether the reader is inside a thinking segment.
func (s *StreamReader) Thinking() bool {
	return s.thinking
}

// Result summarizes the reader state.
func (s *StreamReader) Result(elapsed time.Duration) *StreamResult {
	return &StreamResult{
		Content:      s.accumulator.String(),
		Tokens:       s.tokens,
		Thought:      s.thought,
		Unterminated: s.thinking,
		Done:         s.done,
		Elapsed:      elapsed,
	}
}

// =============================================================================
// LINE PUMP
// =============================================================================

type lineResult struct {
	line string
	err  error
}

// pumpLines reads r line by line until EOF or error and sends each line with
// its terminator stripped. The channel is closed on EOF. quit stops the pump
// early; the caller closes r to unblock a pending read.
func pumpLines(r io.Reader, out chan<- lineResult, quit <-chan struct{}) {
	defer close(out)

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			select {
			case out <- lineResult{line: strings.TrimRight(line, "\r\n")}:
			case <-quit:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				select {
				case out <- lineResult{err: err}:
				case <-quit:
				}
			}
			return
		}
	}
}

// Process drives the state machine from body until [DONE], end of body, an
// error event, a read error, the idle timeout or ctx cancellation. A zero
// idle timeout disables the watchdog. body is closed before Process returns.
func (s *StreamReader) Process(ctx context.Context, body io.ReadCloser, idle time.Duration, onToken TokenFunc) error {
	lines := make(chan lineResult)
	quit := make(chan struct{})
	defer body.Close()
	defer close(quit)

	go pumpLines(body, lines, quit)

	var timeout <-chan time.Time
	var timer *time.Timer
	if idle > 0 {
		timer = time.NewTimer(idle)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return errIdle
		case res, ok := <-lines:
			if !ok {
				return nil
			}
			if res.err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return res.err
			}
			if timer != nil {
				timer.Reset(idle)
			}

			stop, err := s.HandleLine(res.line, onToken)
			if err != nil {
				return &serverStreamError{msg: err.Error()}
			}
			if stop {
				return nil
			}
		}
	}
}

// serverStreamError is an error frame sent by the server.
type serverStreamError struct {
	msg string
}

func (e *serverStreamError) Error() string {
	return "server error: " + e.msg
}

// =============================================================================
// STREAMING CHAT
// =============================================================================

// StreamCompletion posts chat to the environment's chat endpoint and
// assembles the streamed answer. onToken, which may be nil, receives the
// full accumulated answer after every visible token, synchronously on the
// calling goroutine.
//
// A nil error means the stream ended by [DONE] or end of body. On failure
// the returned result still holds the partial answer, which the error also
// carries (see PartialContent).
func (c *Client) StreamCompletion(ctx context.Context, env Environment, chat ChatCompletion, onToken TokenFunc) (*StreamResult, error) {
	if !env.Valid() {
		return nil, invalidEnvironment(env)
	}
	if strings.TrimSpace(chat.Model) == "" {
		return nil, &ClientError{Type: ErrTypeInvalidArgument, Message: "chat payload has no model"}
	}
	if len(chat.Messages) == 0 {
		return nil, &ClientError{Type: ErrTypeInvalidArgument, Message: "chat payload has no messages"}
	}

	start := time.Now()
	log := c.log.With().Str("env", env.String()).Str("model", chat.Model).Logger()

	body, err := c.http.OpenStream(ctx, endpoint(env, pathChat), chat)
	if err != nil {
		return &StreamResult{Elapsed: time.Since(start)}, fromTransport("chat request failed", err)
	}

	reader := NewStreamReader()
	progress := rate.Sometimes{Interval: 2 * time.Second}
	tokenFn := func(accumulated string) {
		progress.Do(func() {
			log.Debug().Int("chars", len(accumulated)).Msg("streaming")
		})
		if onToken != nil {
			onToken(accumulated)
		}
	}

	err = reader.Process(ctx, body, c.config.StreamIdleTimeout, tokenFn)
	result := reader.Result(time.Since(start))
	if err != nil {
		streamErr := classifyStreamError(err, result.Content)
		log.Warn().Err(err).Int("tokens", result.Tokens).Msg("completion stream failed")
		return result, streamErr
	}

	if result.Unterminated {
		log.Warn().Msg("stream ended inside a thinking segment")
	}
	logStreamDone(log, result)
	return result, nil
}

// classifyStreamError maps a Process failure. Cancellation takes the
// transport failure path; everything else aborted an open stream.
func classifyStreamError(err error, partial string) *ClientError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeNetwork, Message: "chat request cancelled", Cause: err, Partial: partial}
	}
	return &ClientError{Type: ErrTypeStreamAborted, Message: "completion stream aborted", Cause: err, Partial: partial}
}

func logStreamDone(log zerolog.Logger, result *StreamResult) {
	log.Debug().
		Int("tokens", result.Tokens).
		Bool("thought", result.Thought).
		Bool("done_marker", result.Done).
		Dur("elapsed", result.Elapsed).
		Msg("completion stream finished")
}
