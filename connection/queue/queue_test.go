package queue

import (
	"testing"

	"github.com/getlayered/layerconn/connection/message"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestQueue(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Inbound Queue Suite")
}

var _ = Describe("Inbound Queue", func() {
	var q *Queue

	dataMessage := func(payload string) message.Message {
		return message.Message{Type: message.Binary, Payload: []byte(payload)}
	}

	Context("Ordering", func() {

		BeforeEach(func() {
			q = New(1024, nil)
			q.Push(dataMessage("first"))
			q.Push(dataMessage("second"))
			q.Push(dataMessage("third"))
		})

		It("pops in insertion order", func() {
			for _, expected := range []string{"first", "second", "third"} {
				m, ok := q.TryPop()
				Expect(ok).To(BeTrue())
				Expect(string(m.Payload)).To(Equal(expected))
			}

			_, ok := q.TryPop()
			Expect(ok).To(BeFalse())
		})

		It("peeks without removing", func() {
			m, ok := q.Peek()
			Expect(ok).To(BeTrue())
			Expect(string(m.Payload)).To(Equal("first"))
			Expect(q.Len()).To(Equal(3))
		})
	})

	Context("Amount accounting", func() {

		BeforeEach(func() {
			q = New(1024, nil)
			q.Push(dataMessage("12345"))
			q.Push(dataMessage("123"))
		})

		It("accumulates the size of buffered messages", func() {
			Expect(q.Amount()).To(Equal(8))
		})

		It("releases exactly the popped message's size", func() {
			m, _ := q.TryPop()
			Expect(q.Amount()).To(Equal(8 - len(m.Payload)))
		})

		It("reaches zero when drained", func() {
			q.TryPop()
			q.TryPop()
			Expect(q.Amount()).To(Equal(0))
		})
	})

	Context("With a custom size function", func() {

		BeforeEach(func() {
			q = New(10, func(m message.Message) int { return 1 })
			q.Push(dataMessage("a very long payload"))
		})

		It("uses the supplied function for accounting", func() {
			Expect(q.Amount()).To(Equal(1))
		})
	})

	Context("Overflow", func() {
		When("The limit is exceeded with the default policy", func() {

			BeforeEach(func() {
				q = New(4, nil)
				q.Push(dataMessage("12345678"))
				q.Push(dataMessage("abcd"))
			})

			It("keeps accumulating; the limit is accounting only", func() {
				Expect(q.Len()).To(Equal(2))
				Expect(q.Amount()).To(Equal(12))
			})
		})

		When("Dropping is enabled", func() {

			BeforeEach(func() {
				q = New(8, nil)
				q.DropWhenFull(true)
				q.Push(dataMessage("aaaa"))
				q.Push(dataMessage("bbbb"))
				q.Push(dataMessage("cccc"))
			})

			It("drops the oldest messages to make room", func() {
				Expect(q.Len()).To(Equal(2))

				m, _ := q.TryPop()
				Expect(string(m.Payload)).To(Equal("bbbb"))
			})
		})
	})
})
