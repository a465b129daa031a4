// Package zsock provides typed, ownership-checked ZeroMQ-style sockets over a
// pluggable transport engine.
//
// # Architecture
//
// A Context owns the engine resources; sockets are built from it:
//   - Socket is the dynamic socket; role checks happen at run time
//   - ReqSocket, RepSocket, PubSocket, SubSocket, PushSocket, PullSocket,
//     DealerSocket, RouterSocket and PairSocket expose only what their role allows
//   - ServerSocket, ClientSocket, RadioSocket and DishSocket are the single part
//     draft roles; only engine/memengine provides them
//   - Poller waits for readiness across many sockets
//   - Monitor streams connection lifecycle events of a socket
//   - Directory maps service names to endpoints through a shared msgpack file
//
// The default engine is engine/zmq4engine (ZMTP over go-zeromq/zmq4).
// engine/memengine runs everything in-process and is what the tests use.
//
// # Quick Start
//
// Request/reply over inproc:
//
//	ctx, err := zsock.NewContext(zsock.ContextConfig{Engine: memengine.New()})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Term(context.Background())
//
//	rep, _ := zsock.NewRep(ctx, nil)
//	defer rep.Close()
//	rep.Bind("inproc://echo")
//
//	req, _ := zsock.NewReq(ctx, nil)
//	defer req.Close()
//	req.Connect("inproc://echo")
//
//	req.SendString("ping", 0)
//	msg, _ := rep.Recv(0)   // "ping"
//	rep.SendString("pong", 0)
//	reply, _ := req.RecvString(0) // "pong"
//
// Publish/subscribe over TCP with a wildcard port:
//
//	pub, _ := zsock.NewPub(ctx, nil)
//	pub.Bind("tcp://*:*")
//
//	sub, _ := zsock.NewSub(ctx, zsock.NewSocketConfig().Subscribe([]byte("weather.")))
//	sub.Connect(pub.LastEndpoint())
//
// # Errors
//
// Every error is an *Error. Compare kinds with errors.Is against the Err*
// sentinels, for example errors.Is(err, zsock.ErrWouldBlock).
package zsock

// Version is the current library version
const Version = "0.1.0"
