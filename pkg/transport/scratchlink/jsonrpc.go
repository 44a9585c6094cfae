package scratchlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
	fx "github.com/robotalks/boost.go/pkg/framework"
)

// ErrSessionClosed indicates the connection to Scratch Link is gone.
var ErrSessionClosed = errors.New("scratch link session closed")

const jsonrpcVersion = "2.0"

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint32         `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  interface{}     `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type inboundMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uint32         `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements error.
func (e *RPCError) Error() string {
	return fmt.Sprintf("scratch link error %d: %s", e.Code, e.Message)
}

// NotificationHandler handles requests without id from Scratch Link.
type NotificationHandler func(method string, params json.RawMessage)

type callResult struct {
	result json.RawMessage
	err    error
}

type callFuture struct {
	method string
	// result is nil for calls nobody waits for.
	result chan callResult
}

// session is a JSON-RPC 2.0 peer over a PacketReadWriter.
type session struct {
	rw      PacketReadWriter
	handler NotificationHandler

	sendLock sync.Mutex
	lock     sync.Mutex
	seq      uint32
	pending map[uint32]*callFuture
	err     error

	cancel context.CancelFunc
	doneCh chan struct{}
}

func newSession(rw PacketReadWriter, handler NotificationHandler) *session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		rw:      rw,
		handler: handler,
		pending: make(map[uint32]*callFuture),
		cancel:  cancel,
		doneCh:  make(chan struct{}),
	}
	go func() {
		err := fx.RunWithContextCloser(ctx, rw, s.receive)
		s.shutdown(err)
		close(s.doneCh)
	}()
	return s
}

func (s *session) send(method string, params interface{}, wait bool) (*callFuture, error) {
	s.lock.Lock()
	if s.err != nil {
		s.lock.Unlock()
		return nil, s.err
	}
	s.seq++
	if s.seq == 0 {
		s.seq++
	}
	id := s.seq
	f := &callFuture{method: method}
	if wait {
		f.result = make(chan callResult, 1)
	}
	s.pending[id] = f
	s.lock.Unlock()

	pkt, err := json.Marshal(&message{JSONRPC: jsonrpcVersion, ID: &id, Method: method, Params: params})
	if err == nil {
		glog.V(4).Infof("scratch link > %s", pkt)
		err = s.write(pkt)
	}
	if err != nil {
		s.lock.Lock()
		delete(s.pending, id)
		s.lock.Unlock()
		return nil, err
	}
	return f, nil
}

func (s *session) write(pkt []byte) error {
	s.sendLock.Lock()
	defer s.sendLock.Unlock()
	return s.rw.WritePacket(pkt)
}

// call sends a request and decodes the result into result unless it is nil.
func (s *session) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	f, err := s.send(method, params, true)
	if err != nil {
		return err
	}
	select {
	case r := <-f.result:
		if r.err != nil {
			return r.err
		}
		if result != nil && len(r.result) > 0 {
			return json.Unmarshal(r.result, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post sends a request without waiting, an error in the response is logged.
func (s *session) post(method string, params interface{}) error {
	_, err := s.send(method, params, false)
	return err
}

func (s *session) receive() error {
	for {
		pkt, err := s.rw.ReadPacket()
		if err != nil {
			return err
		}
		glog.V(4).Infof("scratch link < %s", pkt)
		var msg inboundMessage
		if err = json.Unmarshal(pkt, &msg); err != nil {
			glog.Warningf("scratch link: invalid message: %v", err)
			continue
		}
		if msg.Method != "" {
			if msg.ID != nil {
				// requests to us are not supported.
				s.reply(*msg.ID, &RPCError{Code: -32601, Message: "method not found"})
				continue
			}
			if s.handler != nil {
				s.handler(msg.Method, msg.Params)
			}
			continue
		}
		if msg.ID != nil {
			s.resolve(*msg.ID, &msg)
		}
	}
}

func (s *session) reply(id uint32, rpcErr *RPCError) {
	pkt, err := json.Marshal(&message{JSONRPC: jsonrpcVersion, ID: &id, Error: rpcErr})
	if err == nil {
		err = s.write(pkt)
	}
	if err != nil {
		glog.Warningf("scratch link: reply error: %v", err)
	}
}

func (s *session) resolve(id uint32, msg *inboundMessage) {
	s.lock.Lock()
	f := s.pending[id]
	delete(s.pending, id)
	s.lock.Unlock()
	if f == nil {
		glog.V(2).Infof("scratch link: response %d without request", id)
		return
	}
	var r callResult
	if msg.Error != nil {
		r.err = msg.Error
	} else {
		r.result = msg.Result
	}
	if f.result != nil {
		f.result <- r
		return
	}
	if r.err != nil {
		glog.Warningf("scratch link: %s failed: %v", f.method, r.err)
	}
}

func (s *session) shutdown(err error) {
	if err == nil || err == context.Canceled {
		err = ErrSessionClosed
	}
	s.lock.Lock()
	pending := s.pending
	s.pending = make(map[uint32]*callFuture)
	if s.err == nil {
		s.err = err
	}
	s.lock.Unlock()
	for _, f := range pending {
		if f.result != nil {
			f.result <- callResult{err: err}
		}
	}
	glog.V(1).Infof("scratch link session closed: %v", err)
}

func (s *session) alive() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err == nil
}

func (s *session) close() {
	s.cancel()
	<-s.doneCh
}
