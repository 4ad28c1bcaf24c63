package binary

import (
	"context"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/dataplane"
)

// Server is the binary protocol's TCP front-end. Each connection runs in
// its own goroutine and enables TCP_NODELAY, routing decoded requests
// straight to the DataPlane; the wire protocol defines no auth opcodes.
type Server struct {
	addr string
	dp   *dataplane.DataPlane
	log  *zap.Logger

	ln net.Listener
}

// NewServer builds a Server listening on addr, delegating PUT/GET/DEL to dp.
func NewServer(addr string, dp *dataplane.DataPlane, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{addr: addr, dp: dp, log: log}
}

// ListenAndServe opens the listener and serves connections until ctx is
// canceled or the listener is closed.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("binary protocol accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Addr returns the bound listener address (useful for tests binding ":0").
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				if werr := WriteFrame(conn, EncodeResponse(RespError, nil, "frame exceeds max size")); werr != nil {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) {
				s.log.Debug("binary protocol frame read failed, closing connection", zap.Error(err))
			}
			return
		}

		resp := s.handleRequest(ctx, payload)
		if err := WriteFrame(conn, resp); err != nil {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, payload []byte) []byte {
	req, err := DecodeRequest(payload)
	if err != nil {
		return EncodeResponse(RespError, nil, err.Error())
	}

	switch req.Op {
	case OpPing:
		return EncodeResponse(RespPong, nil, "")

	case OpPut:
		if _, err := s.dp.Put(ctx, req.Cache, req.Key, req.Value, nil); err != nil {
			return errorResponse(err)
		}
		return EncodeResponse(RespOK, nil, "")

	case OpGet:
		r, err := s.dp.Get(ctx, req.Cache, req.Key)
		if err != nil {
			return errorResponse(err)
		}
		if !r.Found {
			return EncodeResponse(RespNotFound, nil, "")
		}
		return EncodeResponse(RespValue, r.Value, "")

	case OpDel:
		// OK whether or not the key existed; only GET misses map to
		// NOT_FOUND.
		if _, err := s.dp.Delete(ctx, req.Cache, req.Key); err != nil {
			return errorResponse(err)
		}
		return EncodeResponse(RespOK, nil, "")

	default:
		return EncodeResponse(RespError, nil, "unknown opcode")
	}
}

func errorResponse(err error) []byte {
	if errors.Is(err, apperr.ErrNotFound) {
		return EncodeResponse(RespNotFound, nil, "")
	}
	return EncodeResponse(RespError, nil, err.Error())
}
