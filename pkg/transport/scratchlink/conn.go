package scratchlink

import (
	"context"

	"golang.org/x/net/websocket"
)

// PacketReadWriter reads and writes whole messages.
type PacketReadWriter interface {
	ReadPacket() ([]byte, error)
	WritePacket([]byte) error
	Close() error
}

// wsConn sends JSON-RPC messages as text frames.
type wsConn websocket.Conn

// Dial opens a websocket to Scratch Link.
func Dial(ctx context.Context, url, origin string) (PacketReadWriter, error) {
	config, err := websocket.NewConfig(url, origin)
	if err != nil {
		return nil, err
	}
	conn, err := config.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return (*wsConn)(conn), nil
}

// ReadPacket implements PacketReadWriter.
func (c *wsConn) ReadPacket() (pkt []byte, err error) {
	err = websocket.Message.Receive((*websocket.Conn)(c), &pkt)
	return
}

// WritePacket implements PacketReadWriter.
func (c *wsConn) WritePacket(pkt []byte) error {
	return websocket.Message.Send((*websocket.Conn)(c), string(pkt))
}

// Close implements PacketReadWriter.
func (c *wsConn) Close() error {
	return (*websocket.Conn)(c).Close()
}
