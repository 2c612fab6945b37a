package target

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestTarget(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Target Resolver Suite")
}

var _ = Describe("Target Resolver", func() {
	var resolved *Resolved
	var err error

	Context("Valid targets", func() {
		When("Given a plain target with a path", func() {

			BeforeEach(func() {
				resolved, err = Parse("ws://example.org/chat")
			})

			It("resolves the default service and keeps the path", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.Scheme).To(Equal("ws"))
				Expect(resolved.Hostname).To(Equal("example.org"))
				Expect(resolved.Service).To(Equal("80"))
				Expect(resolved.Host).To(Equal("example.org"))
				Expect(resolved.Path).To(Equal("/chat"))
				Expect(resolved.Secure()).To(BeFalse())
			})
		})

		When("Given a secure target with an explicit service", func() {

			BeforeEach(func() {
				resolved, err = Parse("wss://example.org:9000")
			})

			It("keeps the service in the composite host and defaults the path", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.Scheme).To(Equal("wss"))
				Expect(resolved.Service).To(Equal("9000"))
				Expect(resolved.Host).To(Equal("example.org:9000"))
				Expect(resolved.Path).To(Equal("/"))
				Expect(resolved.Secure()).To(BeTrue())
			})
		})

		When("Given a secure target without a service", func() {

			BeforeEach(func() {
				resolved, err = Parse("wss://example.org")
			})

			It("defaults to the secure well-known service", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.Service).To(Equal("443"))
				Expect(resolved.Host).To(Equal("example.org"))
			})
		})

		When("The scheme is omitted", func() {

			BeforeEach(func() {
				resolved, err = Parse("example.org:9000/chat")
			})

			It("defaults to the insecure scheme", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.Scheme).To(Equal("ws"))
				Expect(resolved.Host).To(Equal("example.org:9000"))
				Expect(resolved.Path).To(Equal("/chat"))
			})
		})

		When("Given a bracketed literal address", func() {

			BeforeEach(func() {
				resolved, err = Parse("ws://[::1]:9000/chat")
			})

			It("strips the brackets from the hostname but not the composite host", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.Hostname).To(Equal("::1"))
				Expect(resolved.Service).To(Equal("9000"))
				Expect(resolved.Host).To(Equal("[::1]:9000"))
				Expect(resolved.Literal).To(BeTrue())
			})
		})

		When("The target has a query string", func() {

			BeforeEach(func() {
				resolved, err = Parse("ws://example.org/chat?room=7&name=x")
			})

			It("appends the query to the path", func() {
				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.Path).To(Equal("/chat?room=7&name=x"))
			})
		})
	})

	Context("Invalid targets", func() {
		When("Given an unsupported scheme", func() {

			BeforeEach(func() {
				resolved, err = Parse("http://x")
			})

			It("fails", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("Given a target without a host", func() {

			BeforeEach(func() {
				resolved, err = Parse("ws:///chat")
			})

			It("fails", func() {
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
