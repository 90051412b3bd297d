package web

import (
	"github.com/gorilla/websocket"
)

// client is a single browser connected to a Room.
type client struct {
	socket *websocket.Conn
	// send carries messages for this client; the room closes it on leave.
	send chan []byte
}

// read drains the socket until the peer goes away. Incoming messages are ignored.
func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			lg.Debugf("write to %s: %s", c.socket.RemoteAddr(), err)
			return
		}
	}
}
