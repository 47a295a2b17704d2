package app

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/bft-labs/bulkship/pkg/bulk"
	"github.com/bft-labs/bulkship/pkg/log"
)

// maxLineBytes caps a single input line.
const maxLineBytes = 16 << 20

// Sink accepts actions. *bulk.Operator satisfies it.
type Sink interface {
	Add(actions ...bulk.Action) error
}

// Stats counts what one input produced.
type Stats struct {
	Lines   int
	Actions int
	Skipped int
}

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Actions += o.Actions
	s.Skipped += o.Skipped
}

// Shipper reads NDJSON input and feeds decoded actions to a Sink.
// Lines that fail to decode are logged and skipped.
type Shipper struct {
	sink    Sink
	decoder LineDecoder
	logger  log.Logger
}

// NewShipper creates a shipper. A nil logger discards output.
func NewShipper(sink Sink, decoder LineDecoder, logger log.Logger) *Shipper {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Shipper{sink: sink, decoder: decoder, logger: logger}
}

// ShipFile ships every line of the file at path.
func (s *Shipper) ShipFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	return s.ShipReader(ctx, path, f)
}

// ShipReader ships every line of r. name identifies r in logs. It stops
// at the first sink error or when ctx is done.
func (s *Shipper) ShipReader(ctx context.Context, name string, r io.Reader) (Stats, error) {
	var st Stats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		st.Lines++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}

		action, err := s.decoder.Decode(line)
		if err != nil {
			st.Skipped++
			s.logger.Warn("skipping input line",
				log.String("input", name),
				log.Int("line", st.Lines),
				log.Err(err),
			)
			continue
		}

		if err := s.sink.Add(action); err != nil {
			return st, fmt.Errorf("%s:%d: %w", name, st.Lines, err)
		}
		st.Actions++
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read %s: %w", name, err)
	}

	s.logger.Info("input shipped",
		log.String("input", name),
		log.Int("lines", st.Lines),
		log.Int("actions", st.Actions),
		log.Int("skipped", st.Skipped),
	)
	return st, nil
}
