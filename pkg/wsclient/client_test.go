package wsclient_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/telnet2/go-practice/go-ipcbind/internal/demo"
	"github.com/telnet2/go-practice/go-ipcbind/internal/server"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/wsclient"
)

var _ = Describe("Client", func() {
	Describe("Options", func() {
		It("should start disconnected", func() {
			c := wsclient.New(wsclient.Options{URL: wsURL})
			defer c.Close()
			Expect(c.State()).To(Equal(wsclient.StateDisconnected))
		})

		It("should fail to dial an unreachable host", func() {
			_, err := wsclient.Dial(ctx, wsclient.Options{URL: "ws://127.0.0.1:1/ipc"})
			Expect(err).To(HaveOccurred())
		})

		It("should refuse calls after Close", func() {
			c := dial("main")
			Expect(c.Close()).To(Succeed())

			_, err := c.Invoke(ctx, "goodbye_world", nil)
			Expect(err).To(MatchError(wsclient.ErrClosed))
		})
	})

	Describe("Commands", func() {
		var bindings *demo.Bindings

		BeforeEach(func() {
			bindings = demo.NewBindings(dial("main"))
		})

		It("should invoke typed commands", func() {
			hello, err := bindings.HelloWorld(ctx, "WebSocket")
			Expect(err).NotTo(HaveOccurred())
			Expect(hello).To(Equal("Hello, WebSocket! You've been greeted from Go!"))

			s, err := bindings.SomeStruct(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.SomeField).To(Equal("Hello World"))
		})

		It("should decode typed error results", func() {
			res, err := bindings.HasError(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError()).To(BeTrue())
			Expect(res.Error).To(Equal(32))
		})

		It("should run concurrent invocations", func() {
			var wg sync.WaitGroup
			results := make(chan string, 20)
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					bye, err := bindings.GoodbyeWorld(ctx)
					Expect(err).NotTo(HaveOccurred())
					results <- bye
				}()
			}
			wg.Wait()
			close(results)
			Expect(results).To(HaveLen(20))
		})

		It("should surface host errors as RPCError", func() {
			c := dial("main")

			_, err := c.Invoke(ctx, "not_registered", nil)
			Expect(err).To(MatchError(wsclient.ErrCommandNotFound))

			_, err = c.Invoke(ctx, "explode", nil)
			Expect(err).To(MatchError(wsclient.ErrCommandFailed))
			var rpcErr *wsclient.RPCError
			Expect(err).To(BeAssignableToTypeOf(rpcErr))
			Expect(err.Error()).To(ContainSubstring("boom"))
		})

		It("should reject commands outside the catalog before sending", func() {
			_, err := bindings.Commands().Invoke(ctx, "explode", nil)
			Expect(err).To(MatchError(ipc.ErrUnknownKey))
		})
	})

	Describe("Events", func() {
		var (
			main, settings *demo.Bindings
			mainClient     *wsclient.Client
			settingsClient *wsclient.Client
		)

		BeforeEach(func() {
			mainClient = dial("main")
			settingsClient = dial("settings")
			main = demo.NewBindings(mainClient)
			settings = demo.NewBindings(settingsClient)
		})

		It("should deliver broadcasts across connections", func() {
			received := make(chan string, 4)
			unlisten, err := main.DemoEvent.Global().Listen(ctx, func(r ipc.Received[string]) {
				received <- r.Payload
			})
			Expect(err).NotTo(HaveOccurred())
			defer unlisten()

			Expect(settings.DemoEvent.Global().Emit(ctx, "hi")).To(Succeed())
			Eventually(received).Should(Receive(Equal("hi")))
		})

		It("should deliver host emissions", func() {
			received := make(chan ipc.Received[string], 4)
			unlisten, err := main.DemoEvent.Global().Listen(ctx, func(r ipc.Received[string]) {
				received <- r
			})
			Expect(err).NotTo(HaveOccurred())
			defer unlisten()

			Expect(testHost.Emit(ctx, demo.DemoEventName, "from host")).To(Succeed())

			var r ipc.Received[string]
			Eventually(received).Should(Receive(&r))
			Expect(r.Err).NotTo(HaveOccurred())
			Expect(r.Payload).To(Equal("from host"))
			Expect(r.ID).NotTo(BeEmpty())
		})

		It("should keep targeted emissions inside the window", func() {
			scoped := make(chan string, 4)
			global := make(chan string, 4)

			_, err := main.DemoEvent.ScopedTo(mainClient.Window("main")).Listen(ctx, func(r ipc.Received[string]) {
				scoped <- r.Payload
			})
			Expect(err).NotTo(HaveOccurred())
			_, err = main.DemoEvent.Global().Listen(ctx, func(r ipc.Received[string]) {
				global <- r.Payload
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(settings.DemoEvent.ScopedTo(settingsClient.Window("settings")).Emit(ctx, "elsewhere")).To(Succeed())
			Expect(settings.DemoEvent.ScopedTo(settingsClient.Window("main")).Emit(ctx, "to main")).To(Succeed())

			Eventually(scoped).Should(Receive(Equal("to main")))
			Consistently(global, 200*time.Millisecond).ShouldNot(Receive())
		})

		It("should fire Once a single time", func() {
			var count int32
			var mu sync.Mutex
			_, err := main.EmptyEvent.Global().Once(ctx, func(ipc.Received[ipc.Void]) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(settings.EmptyEvent.Global().EmitEmpty(ctx)).To(Succeed())
			Expect(settings.EmptyEvent.Global().EmitEmpty(ctx)).To(Succeed())

			current := func() int32 {
				mu.Lock()
				defer mu.Unlock()
				return count
			}
			Eventually(current).Should(Equal(int32(1)))
			Consistently(current, 200*time.Millisecond).Should(Equal(int32(1)))
		})

		It("should stop delivering after unlisten", func() {
			received := make(chan json.RawMessage, 4)
			unlisten, err := mainClient.Listen(ctx, "progress", func(m ipc.Message) {
				received <- m.Payload
			})
			Expect(err).NotTo(HaveOccurred())
			Eventually(func() int { return testHost.Bus().Count("progress", "") }).Should(Equal(1))

			unlisten()
			unlisten()

			Eventually(func() int { return testHost.Bus().Count("progress", "") }).Should(Equal(0))
			Expect(testHost.Emit(ctx, "progress", 50)).To(Succeed())
			Consistently(received, 200*time.Millisecond).ShouldNot(Receive())
		})

		It("should report payload shape mismatches to the listener", func() {
			received := make(chan ipc.Received[string], 4)
			_, err := main.DemoEvent.Global().Listen(ctx, func(r ipc.Received[string]) {
				received <- r
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(testHost.Emit(ctx, demo.DemoEventName, map[string]int{"n": 1})).To(Succeed())

			var r ipc.Received[string]
			Eventually(received).Should(Receive(&r))
			Expect(r.Err).To(MatchError(ipc.ErrShapeMismatch))
			Expect(r.Payload).To(BeEmpty())
		})
	})

	Describe("Callbacks", func() {
		It("should answer a command invoked from a callback during an event burst", func() {
			cfg := server.DefaultConfig()
			cfg.OutboundBuffer = 1024
			h, srv, ts := startHost(cfg)
			defer ts.Close()
			defer h.Close()
			defer srv.Shutdown(context.Background())

			c := dialURL("ws"+strings.TrimPrefix(ts.URL, "http")+"/ipc", wsclient.Options{
				Label:   "main",
				Timeout: 3 * time.Second,
			})

			const burst = 400
			var seen atomic.Int32
			release := make(chan struct{})
			replies := make(chan error, 1)
			_, err := c.Listen(ctx, demo.DemoEventName, func(ipc.Message) {
				if seen.Add(1) == 1 {
					<-release
					_, err := c.Invoke(ctx, "goodbye_world", nil)
					replies <- err
				}
			})
			Expect(err).NotTo(HaveOccurred())

			for i := 0; i < burst; i++ {
				Expect(h.Emit(ctx, demo.DemoEventName, "burst")).To(Succeed())
			}
			// Let the burst reach the client while the first callback is held.
			time.Sleep(200 * time.Millisecond)
			close(release)

			Eventually(replies, 2*time.Second).Should(Receive(BeNil()))
			Eventually(seen.Load, 5*time.Second).Should(Equal(int32(burst)))
		})
	})

	Describe("Reconnect", func() {
		It("should re-register subscriptions after the connection drops", func() {
			h, srv, ts := startHost(server.DefaultConfig())
			defer ts.Close()
			defer h.Close()

			url := "ws" + ts.URL[len("http"):] + "/ipc"
			c := dialURL(url, wsclient.Options{
				Label:          "main",
				Timeout:        5 * time.Second,
				AutoReconnect:  true,
				ReconnectDelay: 20 * time.Millisecond,
			})

			received := make(chan string, 4)
			_, err := c.Listen(ctx, demo.DemoEventName, func(m ipc.Message) {
				select {
				case received <- string(m.Payload):
				default:
				}
			})
			Expect(err).NotTo(HaveOccurred())

			// Drops every live WebSocket; the HTTP listener keeps accepting.
			Expect(srv.Shutdown(context.Background())).To(Succeed())

			Eventually(func() string {
				_ = h.Emit(ctx, demo.DemoEventName, "again")
				select {
				case p := <-received:
					return p
				case <-time.After(50 * time.Millisecond):
					return ""
				}
			}, 5*time.Second).Should(Equal(`"again"`))
			Expect(c.State()).To(Equal(wsclient.StateConnected))
			Expect(h.Bus().Count(demo.DemoEventName, "")).To(Equal(1))
		})
	})
})
