package stream

import (
	"bufio"
	"context"
	"io"
	"strings"

	"agentdeck/pkg/logger"
)

// Decode reads SSE frames from reader and delivers them in arrival order.
// A malformed frame is logged and skipped; it never aborts the stream. The
// channel closes when a result frame arrives, the reader ends, or ctx is
// cancelled. Decode owns the reader and closes it.
func Decode(ctx context.Context, reader io.ReadCloser) <-chan Frame {
	frames := make(chan Frame, 32)

	go func() {
		defer close(frames)
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		// Tool results can be large single lines.
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			data, ok := extractData(scanner.Text())
			if !ok {
				continue
			}

			frame, err := ParseFrame([]byte(data))
			if err != nil {
				logger.Error().Err(err).Str("data", data).Msg("skipping malformed frame")
				continue
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}

			if frame.Type == FrameResult {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			// Transient; the stream simply stops yielding frames.
			logger.Error().Err(err).Msg("event stream read error")
		}
	}()

	return frames
}

// extractData strips the SSE "data:" prefix, skipping blank lines,
// comments and non-data fields.
func extractData(line string) (string, bool) {
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}

	data := strings.TrimPrefix(line, "data:")
	data = strings.TrimSpace(data)
	if data == "" {
		return "", false
	}
	return data, true
}
