package upstream

import (
	"bufio"
	"bytes"
	"io"

	"github.com/rs/zerolog/log"
)

// maxSSELineSize bounds a single SSE line.
const maxSSELineSize = 4 * 1024 * 1024

// sseStream reads "data: " lines from an upstream body. Comment lines,
// event names and undecodable payloads are skipped; [DONE] ends the stream.
type sseStream struct {
	provider string
	body     io.ReadCloser
	scanner  *bufio.Scanner
	done     bool
}

func newSSEStream(provider string, body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &sseStream{provider: provider, body: body, scanner: scanner}
}

// Next returns the next chunk, or io.EOF at end of stream.
func (s *sseStream) Next() (*Chunk, error) {
	if s.done {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(data) == 0 {
			continue
		}
		if bytes.Equal(data, []byte("[DONE]")) {
			s.done = true
			return nil, io.EOF
		}
		chunk, err := DecodeChunk(data)
		if err != nil {
			log.Debug().Str("provider", s.provider).Int("size", len(data)).Msg("upstream: skipping undecodable chunk")
			continue
		}
		return chunk, nil
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the upstream body.
func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}

var _ ChunkStream = (*sseStream)(nil)
