package main

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/rawbytedev/msgstream/pkg/bridge"
	"github.com/rawbytedev/msgstream/pkg/envelope"
	"github.com/rawbytedev/msgstream/pkg/message"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/stream"
	"github.com/rawbytedev/msgstream/pkg/view"
)

var dumpCommand = cli.Command{
	Name:      "dump",
	Usage:     "Print every record of a framed stream file",
	ArgsUsage: "FILE",
	Action:    runDump,
}

func runDump(ctx *cli.Context) error {
	path := ctx.Args().First()
	if path == "" {
		return errors.New("dump: missing FILE")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "dump")
	}
	codec, err := envelope.NewCodec(cfg.EnvelopeOptions())
	if err != nil {
		return err
	}
	defer codec.Close()

	b, err := bridge.New(bridge.WithCodec(codec), bridge.WithLogger(log.Logger))
	if err != nil {
		return err
	}
	defer b.Close()

	d := &dumper{w: ctx.App.Writer}
	b.RegisterAll(d)
	n, err := b.Ingest(data)
	if err != nil {
		return err
	}
	if n < len(data) {
		log.Warn().Int("bytes", len(data)-n).Msg("trailing partial frame ignored")
	}
	return b.Commit()
}

// dumper prints streams as they are delivered.
type dumper struct {
	w      io.Writer
	frames int
}

func (d *dumper) Handle(s *stream.ReadOnly, count uint32) error {
	fmt.Fprintf(d.w, "frame %d: %s, %d records, %d bytes\n", d.frames, s.Schema(), count, s.Size())
	d.frames++
	return dumpStream(d.w, s, 1)
}

func dumpStream(w io.Writer, s *stream.ReadOnly, depth int) error {
	h := s.Schema()
	if h.Kind == schema.KindStatic {
		return dumpStatic(w, s, depth)
	}
	if h.IsNone() {
		return nil
	}
	i := 0
	for rec, err := range view.Walk(s) {
		if err != nil {
			return err
		}
		if err := dumpRecord(w, i, rec, depth); err != nil {
			return err
		}
		i++
	}
	return nil
}

func dumpStatic(w io.Writer, s *stream.ReadOnly, depth int) error {
	id := s.Schema().ID
	m, err := message.Registered.New(id)
	if err != nil {
		fmt.Fprintf(w, "%s(skipped %s)\n", indent(depth), message.Registered.Name(id))
		return nil
	}
	stride, err := message.FixedSize(m)
	if err != nil {
		return err
	}
	data := s.Span()
	for i := range int(s.Count()) {
		payload, err := data.SliceN(i*stride, stride)
		if err != nil {
			return err
		}
		if err := dumpRecord(w, i, view.Record{ID: id, Payload: payload}, depth); err != nil {
			return err
		}
	}
	return nil
}

func dumpRecord(w io.Writer, i int, rec view.Record, depth int) error {
	name := message.Registered.Name(rec.ID)
	m, err := message.Registered.New(rec.ID)
	if err != nil {
		fmt.Fprintf(w, "%s#%d %s skipped (%d bytes)\n", indent(depth), i, name, rec.Payload.Len())
		return nil
	}
	if err := message.Decode(rec.Payload, m); err != nil {
		return errors.Wrapf(err, "record %d (%s)", i, name)
	}
	if diag, ok := m.(*message.InstrumentationDiagnostic); ok {
		inner := *diag
		inner.Messages = message.SubStream{}
		fmt.Fprintf(w, "%s#%d %s %+v\n", indent(depth), i, name, inner)
		sub, err := diag.Messages.Stream()
		if err != nil {
			return err
		}
		return dumpStream(w, sub, depth+1)
	}
	fmt.Fprintf(w, "%s#%d %s %+v\n", indent(depth), i, name, reflect.ValueOf(m).Elem().Interface())
	return nil
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
