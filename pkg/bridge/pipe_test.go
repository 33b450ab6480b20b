package bridge_test

import (
	"bytes"

	"github.com/rawbytedev/msgstream/pkg/bridge"
	"github.com/rawbytedev/msgstream/pkg/message"
	"github.com/rawbytedev/msgstream/pkg/schema"
	"github.com/rawbytedev/msgstream/pkg/stream"
	"github.com/rawbytedev/msgstream/pkg/view"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// collect records every ordered record id delivered to it.
type collect struct {
	ids []uint32
}

func (c *collect) Handle(s *stream.ReadOnly, count uint32) error {
	if !s.Schema().IsOrdered() {
		return nil
	}
	v, err := view.NewOrdered(s)
	if err != nil {
		return err
	}
	for it := v.Iterator(); it.Good(); it.Next() {
		c.ids = append(c.ids, it.ID())
	}
	return nil
}

var _ = Describe("Bridge", func() {
	var (
		wire     bytes.Buffer
		producer *bridge.Bridge
		consumer *bridge.Bridge
		got      *collect
	)

	BeforeEach(func() {
		wire.Reset()
		var err error
		producer, err = bridge.New(bridge.WithSink(&wire))
		Expect(err).ToNot(HaveOccurred())
		consumer, err = bridge.New()
		Expect(err).ToNot(HaveOccurred())
		got = &collect{}
	})

	AfterEach(func() {
		producer.Close()
		consumer.Close()
	})

	submit := func(msgs ...message.Message) {
		Expect(producer.Submit(func(v *view.Ordered) error {
			for _, m := range msgs {
				if _, err := v.Add(m); err != nil {
					return err
				}
			}
			return nil
		})).To(Succeed())
	}

	Context("when piping through a sink", func() {
		It("delivers every committed record in order", func() {
			consumer.Register(schema.OrderedID, got)

			submit(message.HostConnected{Accepted: true}, message.Log{System: "s", Message: "m"})
			Expect(producer.Commit()).To(Succeed())
			submit(message.JobDiagnostic{Remaining: 1})
			Expect(producer.Commit()).To(Succeed())

			n, err := consumer.Ingest(wire.Bytes())
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(wire.Len()))
			Expect(consumer.Pending()).To(Equal(2))

			Expect(consumer.Commit()).To(Succeed())
			Expect(got.ids).To(Equal([]uint32{
				message.IDHostConnected,
				message.IDLog,
				message.IDJobDiagnostic,
			}))
		})

		It("holds back a partial frame until the rest arrives", func() {
			consumer.RegisterAll(got)
			submit(message.GetShaderSourceMapping{SGUID: 7})
			Expect(producer.Commit()).To(Succeed())

			data := wire.Bytes()
			n, err := consumer.Ingest(data[:len(data)-1])
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(BeZero())

			n, err = consumer.Ingest(data)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(len(data)))
			Expect(consumer.Commit()).To(Succeed())
			Expect(got.ids).To(ConsistOf(message.IDGetShaderSourceMapping))
		})
	})

	Context("after unregistering", func() {
		It("stops delivering", func() {
			stop := consumer.RegisterAll(got)
			stop()

			submit(message.HostConnected{})
			Expect(producer.Commit()).To(Succeed())
			_, err := consumer.Ingest(wire.Bytes())
			Expect(err).ToNot(HaveOccurred())
			Expect(consumer.Commit()).To(Succeed())
			Expect(got.ids).To(BeEmpty())
		})
	})
})
