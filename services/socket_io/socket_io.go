package socket_io

import (
	"Gamebuddies/middleware"
	"Gamebuddies/services/presence"
	"Gamebuddies/services/rooms"
	"Gamebuddies/services/socket_io/handlers"
	socketio_types "Gamebuddies/services/socket_io/types"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/log"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io/v2/socket"
)

type Options struct {
	Origins []string
	Debug   bool
}

// MySocketServer is the real-time channel: it owns the socket.io server and
// routes every inbound event to a session handler
type MySocketServer struct {
	*socketio_types.SocketServer

	handler *handlers.Handler
	log     *logrus.Entry
}

// New creates the socket server. Its SocketServer is the registry's
// broadcaster, so it has to exist before the registry.
func New(tracker *presence.Tracker) *MySocketServer {
	return &MySocketServer{
		SocketServer: socketio_types.NewSocketServer(socket.NewServer(nil, nil), tracker),
		log:          logrus.WithField("component", "socket"),
	}
}

// Start wires the handlers and mounts socket.io on the router
func (sio *MySocketServer) Start(router *gin.Engine, registry *rooms.Registry, identity middleware.IdentityResolver, opts Options) {
	log.DEBUG = opts.Debug
	c := socket.DefaultServerOptions()
	c.SetServeClient(false)
	c.SetPingInterval(10 * time.Second)
	c.SetPingTimeout(5 * time.Second)
	c.SetMaxHttpBufferSize(1000000)
	c.SetConnectTimeout(10 * time.Second)
	c.SetTransports(types.NewSet("polling", "websocket"))
	origin := "*"
	if len(opts.Origins) > 0 && opts.Origins[0] != "*" {
		origin = opts.Origins[0]
	}
	c.SetCors(&types.Cors{
		Origin:      origin,
		Credentials: true,
	})

	sio.handler = handlers.New(registry, sio.Tracker, identity, sio.SocketServer)

	// a connection evicted for a silent heartbeat loses its socket too
	sio.Tracker.SetLossHandler(presence.LossHandlerFunc(func(conn presence.Connection) {
		registry.ConnectionLost(conn)
		sio.CloseConnection(conn.ID)
	}))

	sio.Sio_server.On("connection", func(clients ...interface{}) {
		client := clients[0].(*socket.Socket)
		session := sio.handler.Connect(socketio_types.WrapSocket(client), client.Handshake().Auth)

		for _, event := range handlers.Events() {
			event := event
			client.On(event, func(args ...interface{}) {
				session.Handle(event, args)
			})
		}

		client.On("disconnect", func(args ...interface{}) {
			reason := ""
			if len(args) > 0 {
				reason, _ = args[0].(string)
			}
			session.Disconnect(reason)
		})
	})

	handler := gin.WrapH(sio.Sio_server.ServeHandler(c))
	router.POST("/socket.io/*f", handler)
	router.GET("/socket.io/*f", handler)

	sio.log.Info("socket server started")
}

// Close disconnects every client and stops the socket.io server
func (sio *MySocketServer) Close() {
	sio.Sio_server.Close(nil)
	sio.log.Info("socket server closed")
}
