/*
Package web publishes device samples to browsers over websockets.
The room and client pattern is adapted from Mat Ryer's Go Blueprints examples,
see https://github.com/matryer/goblueprints
*/
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/d2r2/go-logger"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

var lg = logger.NewPackageLogger("web", logger.InfoLevel)

// ErrClosed is returned by Publish once the room has stopped.
var ErrClosed = errors.New("room closed")

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

// Room fans every published message out to all connected websocket clients.
type Room struct {
	// forward holds incoming messages to send to the clients.
	forward chan []byte
	join    chan *client
	leave   chan *client
	done    chan struct{}
	clients map[*client]bool
	count   int32

	mu   sync.Mutex
	last []byte
}

// NewRoom makes a new room that is ready to Run.
func NewRoom() *Room {
	return &Room{
		forward: make(chan []byte),
		join:    make(chan *client),
		leave:   make(chan *client),
		done:    make(chan struct{}),
		clients: make(map[*client]bool),
	}
}

// Run services the room until ctx is cancelled, then disconnects every client.
func (r *Room) Run(ctx context.Context) {
	defer func() {
		for c := range r.clients {
			delete(r.clients, c)
			close(c.send)
		}
		atomic.StoreInt32(&r.count, 0)
		close(r.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.join:
			r.clients[c] = true
			atomic.StoreInt32(&r.count, int32(len(r.clients)))
			lg.Infof("client %s joined", c.socket.RemoteAddr())
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
			}
			atomic.StoreInt32(&r.count, int32(len(r.clients)))
			lg.Infof("client %s left", c.socket.RemoteAddr())
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					lg.Debugf("client %s is behind, message dropped", c.socket.RemoteAddr())
				}
			}
		}
	}
}

// Clients returns the number of connected clients.
func (r *Room) Clients() int {
	return int(atomic.LoadInt32(&r.count))
}

// Publish encodes v as JSON and forwards it to every client.
func (r *Room) Publish(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encoding message")
	}
	r.mu.Lock()
	r.last = msg
	r.mu.Unlock()
	select {
	case r.forward <- msg:
		return nil
	case <-r.done:
		return ErrClosed
	}
}

// Last returns the most recently published message, or nil.
func (r *Room) Last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		lg.Errorf("websocket upgrade: %s", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
	}
	select {
	case r.join <- c:
	case <-r.done:
		socket.Close()
		return
	}
	defer func() {
		select {
		case r.leave <- c:
		case <-r.done:
		}
	}()
	go c.write()
	c.read()
}
