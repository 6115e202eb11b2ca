// Command tii-example is a small demo binary wiring a tii.Server to a real
// TCP listener, grounded on examples/basic.rs (plain HTTP routes) and
// examples/websocket_broadcast.rs (a fizzbuzz-broadcasting WebSocket
// route). It accepts flags via stdlib flag only, since no example repo
// pulls in a CLI framework for a two-flag demo binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/tiihttp/tii"
	"github.com/tiihttp/tii/internal/connector"
	"github.com/tiihttp/tii/internal/ctx"
	"github.com/tiihttp/tii/internal/httpx"
	"github.com/tiihttp/tii/internal/log"
	"github.com/tiihttp/tii/internal/mime"
	"github.com/tiihttp/tii/internal/routing"
	"github.com/tiihttp/tii/internal/typesystem"
	"github.com/tiihttp/tii/internal/ws"
	"github.com/tiihttp/tii/router"
	"github.com/tiihttp/tii/wsbroadcast"
)

// contactInfo is the domain value behind /contact's entity response: the
// handler builds one value and lets content negotiation pick whether the
// client gets HTML or JSON back, grounded on the spec's "entity +
// serializer (deferred serialization against the negotiated media
// type)" body shape.
type contactInfo struct {
	Email string
}

func (c contactInfo) String() string { return "contact<" + c.Email + ">" }

func serializeContact(m mime.MediaType, entity any) ([]byte, error) {
	c := entity.(contactInfo)
	if m == mime.ApplicationJSON {
		return []byte(`{"email":"` + c.Email + `"}`), nil
	}
	return []byte("<html><body><p>mailto:" + c.Email + "</p></body></html>"), nil
}

// logEntityResponses is a response filter demonstrating the type-system
// cast registry: it only knows it wants a fmt.Stringer, not that the
// concrete entity type behind today's route is contactInfo.
func logEntityResponses(logger zerolog.Logger) routing.ResponseFilter {
	return func(rc *ctx.RequestContext, resp *httpx.Response) (*httpx.Response, error) {
		if s, err := httpx.CastEntity[fmt.Stringer](resp, rc.TypeSystem()); err == nil {
			logger.Debug().Str("entity", s.String()).Msg("response carries an entity")
		}
		return resp, nil
	}
}

func main() {
	addr := flag.String("addr", "0.0.0.0:8080", "address to listen on")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := log.New(os.Stdout, level)

	broadcaster := wsbroadcast.New(logger.With().Str("component", "wsbroadcast").Logger(),
		wsbroadcast.WithConnectHandler(onConnect),
		wsbroadcast.WithDisconnectHandler(onDisconnect),
		wsbroadcast.WithMessageHandler(fizzbuzzHandler),
	)

	runCtx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := broadcaster.Run(runCtx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("broadcaster stopped")
		}
	}()

	ts := typesystem.NewBuilder()
	typesystem.RegisterCast(ts, func(c contactInfo) (fmt.Stringer, bool) { return c, true })

	rb := router.New(logger.With().Str("component", "router").Logger())
	rb = rb.WithResponseFilter(logEntityResponses(logger.With().Str("component", "filter").Logger()))
	rb, err := rb.Get("/").Produces(mime.TextHTML).Endpoint(home)
	if err != nil {
		logger.Fatal().Err(err).Msg("register /")
	}
	rb, err = rb.Get("/contact").Produces(mime.TextHTML).Produces(mime.ApplicationJSON).Endpoint(contact)
	if err != nil {
		logger.Fatal().Err(err).Msg("register /contact")
	}
	rb, err = rb.RouteAny("/echo/method", echoMethod)
	if err != nil {
		logger.Fatal().Err(err).Msg("register /echo/method")
	}
	rb, err = rb.Get("/path/{name}").Endpoint(pathParam)
	if err != nil {
		logger.Fatal().Err(err).Msg("register /path/{name}")
	}
	rb, err = rb.WsRouteGet("/ws", wsHandler(broadcaster))
	if err != nil {
		logger.Fatal().Err(err).Msg("register /ws")
	}
	rt := rb.Build()

	srv, err := tii.New(logger.With().Str("component", "server").Logger(),
		tii.WithRouter(rt),
		tii.WithTypeSystem(ts.Build()),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("build server")
	}
	srv.AddShutdownHook(func() {
		cancel()
		broadcaster.Shutdown()
	})

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal().Err(err).Msg("listen")
	}

	conn := connector.New("tii-example", listener, srv.Accept, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info().Msg("shutting down")
	srv.Shutdown()
	conn.ShutdownAndJoin()
}

func home(rc *ctx.RequestContext) (*httpx.Response, error) {
	return httpx.NewFixedStringResponse(httpx.StatusOK, "<html><body><h1>tii</h1><p><a href=\"/contact\">contact</a></p></body></html>"), nil
}

func contact(rc *ctx.RequestContext) (*httpx.Response, error) {
	return httpx.NewEntityResponse(httpx.StatusOK, contactInfo{Email: "nobody@example.invalid"},
		[]mime.MediaType{mime.TextHTML, mime.ApplicationJSON}, serializeContact), nil
}

func echoMethod(rc *ctx.RequestContext) (*httpx.Response, error) {
	return httpx.NewFixedStringResponse(httpx.StatusOK, rc.RequestHead().Method.String()), nil
}

func pathParam(rc *ctx.RequestContext) (*httpx.Response, error) {
	name, _ := rc.PathParam("name")
	return httpx.NewFixedStringResponse(httpx.StatusOK, fmt.Sprintf("hello, %s", name)), nil
}

func wsHandler(b *wsbroadcast.Broadcaster) router.WebSocketHandler {
	return func(rc *ctx.RequestContext, conn *ws.Stream) error {
		b.LinkAndWait(conn)
		return nil
	}
}

func onConnect(h *wsbroadcast.Handle) {
	fmt.Printf("connect: %s\n", h.PeerAddr())
}

func onDisconnect(h *wsbroadcast.Handle) {
	fmt.Printf("disconnect: %s\n", h.PeerAddr())
	h.Broadcast(ws.NewMessage([]byte(fmt.Sprintf("%s left", h.PeerAddr()))))
}

// fizzbuzzHandler answers every message with its fizzbuzz substitution,
// and additionally broadcasts the result to every connected client
// whenever it lands on "fizzbuzz" itself (mirrors
// examples/websocket_broadcast.rs's message_handler).
func fizzbuzzHandler(h *wsbroadcast.Handle, msg wsbroadcast.Message) {
	result := fizzbuzz(strings.TrimSpace(string(msg.Payload)))
	out := ws.NewMessage([]byte(result))
	if result == "fizzbuzz" {
		h.Broadcast(out)
		return
	}
	h.Send(out)
}

func fizzbuzz(s string) string {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return s
		}
		n = n*10 + int(c-'0')
	}
	switch {
	case n%15 == 0:
		return "fizzbuzz"
	case n%3 == 0:
		return "fizz"
	case n%5 == 0:
		return "buzz"
	default:
		return s
	}
}
