package connection

import (
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/getlayered/layerconn/connection/message"
	"github.com/getlayered/layerconn/logger"
	"github.com/getlayered/layerconn/tests/server"
)

var _ = Describe("Connection Integration", func() {
	log := logger.MockLogger(GinkgoWriter)

	var wsServer *server.WebsocketServer
	var client *Client
	var openCount, closedCount, errorCount atomic.Int32

	wireCounters := func() {
		openCount.Store(0)
		closedCount.Store(0)
		errorCount.Store(0)
		client.OnOpen(func() { openCount.Add(1) })
		client.OnClosed(func() { closedCount.Add(1) })
		client.OnError(func(reason string) { errorCount.Add(1) })
	}

	waitForOpen := func() {
		Eventually(client.IsOpen).WithTimeout(3 * time.Second).Should(BeTrue())
	}

	Context("Against a live insecure server", func() {

		BeforeEach(func() {
			wsServer = server.NewWebsocketServer(log)
			client = New(log.GetComponentLogger("Integration"), Config{})
			wireCounters()

			Expect(client.Open("ws://" + wsServer.Host + "/chat")).To(Succeed())
		})

		AfterEach(func() {
			// Tear the client down inside this spec so its callbacks
			// can't fire after the next spec resets the counters.
			client.Close()
			Eventually(client.Done()).WithTimeout(3 * time.Second).Should(BeClosed())
			wsServer.Shutdown()
		})

		It("opens the full chain and fires open once", func() {
			waitForOpen()
			Expect(openCount.Load()).To(Equal(int32(1)))
		})

		It("echoes a text message through the chain", func() {
			waitForOpen()

			ok, err := client.SendText("whooopie")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())

			var m *message.Message
			Eventually(func() *message.Message {
				m = client.Receive()
				return m
			}).WithTimeout(3 * time.Second).ShouldNot(BeNil())

			Expect(m.Type).To(Equal(message.Text))
			Expect(string(m.Payload)).To(Equal("whooopie"))
		})

		It("buffers control messages but never surfaces them", func() {
			waitForOpen()

			Expect(wsServer.Ping([]byte("keepalive"))).To(Succeed())

			Eventually(client.AvailableAmount).WithTimeout(3 * time.Second).Should(BeNumerically(">", 0))
			Expect(client.Receive()).To(BeNil())
			Expect(client.AvailableAmount()).To(Equal(0))
		})

		It("closes gracefully from our side", func() {
			waitForOpen()

			client.Close()

			Eventually(client.IsClosed).WithTimeout(3 * time.Second).Should(BeTrue())
			Eventually(client.Done()).WithTimeout(3 * time.Second).Should(BeClosed())
			Expect(closedCount.Load()).To(Equal(int32(1)))
			Expect(client.Err()).ToNot(HaveOccurred())
		})

		It("closes cleanly when the server says goodbye", func() {
			waitForOpen()

			wsServer.Close()

			Eventually(client.IsClosed).WithTimeout(3 * time.Second).Should(BeTrue())
			Expect(closedCount.Load()).To(Equal(int32(1)))
			Expect(errorCount.Load()).To(Equal(int32(0)))
		})

		It("surfaces an error when the server vanishes abruptly", func() {
			waitForOpen()

			wsServer.ForceClose()

			Eventually(client.IsClosed).WithTimeout(3 * time.Second).Should(BeTrue())
			Expect(errorCount.Load()).To(Equal(int32(1)))
			Expect(closedCount.Load()).To(Equal(int32(1)))
		})

		It("refuses a second open while established", func() {
			waitForOpen()
			Expect(client.Open("ws://" + wsServer.Host + "/chat")).To(MatchError(ErrInvalidState))
		})
	})

	Context("Against a live tls server", func() {

		BeforeEach(func() {
			wsServer = server.NewTLSWebsocketServer(log)
			client = New(log.GetComponentLogger("Integration"), Config{
				DisableTLSVerification: true,
			})
			wireCounters()

			Expect(client.Open("wss://" + wsServer.Host + "/chat")).To(Succeed())
		})

		AfterEach(func() {
			client.Close()
			Eventually(client.Done()).WithTimeout(3 * time.Second).Should(BeClosed())
			wsServer.Shutdown()
		})

		It("opens through the secure layer and echoes", func() {
			waitForOpen()

			ok, err := client.Send([]byte{0xde, 0xad, 0xbe, 0xef})
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())

			var m *message.Message
			Eventually(func() *message.Message {
				m = client.Receive()
				return m
			}).WithTimeout(3 * time.Second).ShouldNot(BeNil())

			Expect(m.Type).To(Equal(message.Binary))
			Expect(m.Payload).To(Equal([]byte{0xde, 0xad, 0xbe, 0xef}))
		})
	})

	Context("Against a dead endpoint", func() {

		BeforeEach(func() {
			client = New(log.GetComponentLogger("Integration"), Config{})
			wireCounters()
		})

		It("fails the stream layer and closes with an error", func() {
			// Port 0 guarantees nothing is listening
			Expect(client.Open("ws://127.0.0.1:0")).To(Succeed())

			Eventually(client.IsClosed).WithTimeout(5 * time.Second).Should(BeTrue())
			Expect(errorCount.Load()).To(Equal(int32(1)))
			Expect(closedCount.Load()).To(Equal(int32(1)))
			Expect(client.Err()).To(HaveOccurred())
		})
	})
})
