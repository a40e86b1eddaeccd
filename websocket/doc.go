// Package websocket implements the WebSocket protocol (RFC 6455), the
// permessage-deflate extension (RFC 7692), and HTTP/2 bootstrapping (RFC
// 8441).
//
// Unlike a blocking Conn, the unit of concurrency here is a Session: the
// Upgrader and Dialer both return one already running, with its own
// goroutine driving the protocol state machine, reassembling fragmented
// messages, answering pings, and enforcing the close handshake. Callers
// consume inbound messages through a MessageStream and send outbound ones
// through a Writer, both obtained from the Session:
//
//	var upgrader = websocket.Upgrader{Config: websocket.Config{AutoPingInterval: 30 * time.Second}}
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//	    sess, err := upgrader.Upgrade(w, r, nil)
//	    if err != nil {
//	        return
//	    }
//	    stream, _ := sess.Messages()
//	    for {
//	        msg, ok := stream.Next()
//	        if !ok {
//	            break
//	        }
//	        if err := sess.Writer().WriteMessage(msg); err != nil {
//	            break
//	        }
//	    }
//	}
//
// Client Example:
//
//	sess, _, err := websocket.DefaultDialer.Dial("ws://localhost:8080/ws", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = sess.Writer().WriteText("hello")
//
// Concurrency:
//
// A Session's Writer may be called from any number of goroutines; writes
// are serialized onto the wire in call order. Session.Messages may be
// called exactly once; the returned MessageStream is meant for a single
// consuming goroutine, matching the single reader/single writer model
// RFC 6455 implementations conventionally use, just moved from blocking
// calls onto a channel-backed stream.
//
// Extensions:
//
// permessage-deflate (RFC 7692) is negotiated by passing a *DeflateConfig
// in Upgrader.Extensions or Dialer.Extensions. Each connection gets its
// own compressor and decompressor so that context takeover (retaining the
// sliding-window dictionary across messages) works as RFC 7692 describes;
// request *_no_context_takeover on the DeflateConfig to disable it in
// either direction.
//
// Origin Checking:
//
// The Upgrader calls CheckOrigin to validate the request's Origin header.
// A nil CheckOrigin falls back to same-origin.
package websocket
