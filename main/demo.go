package main

import (
	"os"

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

var demoCommand = cli.Command{
	Name:   "demo",
	Usage:  "Write a sample message stream",
	Action: runDemo,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "out",
			Usage: "Output file",
		},
		cli.BoolFlag{
			Name:  "zstd",
			Usage: "Compress frame payloads",
		},
	},
}

func runDemo(ctx *cli.Context) error {
	out := ctx.String("out")
	if out == "" {
		return errors.New("demo: --out is required")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	opts := cfg.EnvelopeOptions()
	if ctx.Bool("zstd") {
		opts.Compression = envelope.CompressionZstd
	}
	codec, err := envelope.NewCodec(opts)
	if err != nil {
		return err
	}
	defer codec.Close()

	f, err := os.Create(out)
	if err != nil {
		return errors.Wrap(err, "demo")
	}
	defer f.Close()

	b, err := bridge.New(bridge.WithSink(f), bridge.WithCodec(codec), bridge.WithLogger(log.Logger))
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Submit(writeSession); err != nil {
		return err
	}
	if err := b.Commit(); err != nil {
		return err
	}

	// a static batch framed outside the bus
	jobs := stream.NewReadWrite(schema.Header{})
	v, err := view.NewStatic[message.JobDiagnostic](jobs)
	if err != nil {
		return err
	}
	for i := 3; i >= 0; i-- {
		if err := v.Add(message.JobDiagnostic{Remaining: uint32(i)}); err != nil {
			return err
		}
	}
	frame, err := codec.Marshal(jobs.Freeze())
	if err != nil {
		return err
	}
	if _, err := f.Write(frame); err != nil {
		return errors.Wrap(err, "demo")
	}
	log.Info().Str("out", out).Stringer("compression", opts.Compression).Msg("demo stream written")
	return nil
}

func writeSession(v *view.Ordered) error {
	diags := stream.NewReadWrite(schema.Header{})
	dv, err := view.NewOrdered(diags)
	if err != nil {
		return err
	}
	for _, msg := range []string{"unused variable 'x'", "implicit truncation"} {
		if _, err := dv.Add(message.CompilationDiagnostic{Content: msg}); err != nil {
			return err
		}
	}

	msgs := []message.Message{
		message.HostConnected{Accepted: true},
		message.Log{Severity: message.SeverityInfo, System: "layer", Message: "instrumentation attached"},
		message.GetShaderSourceMapping{SGUID: 17},
		message.ShaderSourceMapping{ShaderGUID: 0xC0FFEE, SGUID: 17, Line: 42, Column: 8, Contents: "float4 main() : SV_Target"},
		message.InstrumentationDiagnostic{
			PassedShaders:      12,
			FailedShaders:      1,
			PassedPipelines:    4,
			ShaderMilliseconds: 31,
			TotalMilliseconds:  40,
			Messages:           message.Embed(diags),
		},
		message.JobDiagnostic{Remaining: 0},
	}
	for _, m := range msgs {
		if _, err := v.Add(m); err != nil {
			return err
		}
	}
	return nil
}
