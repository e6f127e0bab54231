package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/bigbuf/device"
	"github.com/joshuapare/bigbuf/mem"
)

// DefaultMaxTransfer bounds the bytes moved by one read or write.
const DefaultMaxTransfer = 1 << 20

// ServerOptions configures a Server.
type ServerOptions struct {
	MaxTransfer uint64       // zero selects DefaultMaxTransfer
	Logger      *slog.Logger // nil discards
}

// Server answers control requests against one Device.
type Server struct {
	dev         *device.Device
	maxTransfer uint64
	log         *slog.Logger
}

// NewServer creates a Server for dev.
func NewServer(dev *device.Device, opts ServerOptions) *Server {
	s := &Server{dev: dev, maxTransfer: opts.MaxTransfer, log: opts.Logger}
	if s.maxTransfer == 0 {
		s.maxTransfer = DefaultMaxTransfer
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Serve accepts connections on ln until ctx is done or Accept fails. It
// closes ln and every open connection before returning. A cancelled ctx is
// not an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		_ = ln.Close()
		return nil
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("control: accept: %w", err)
			}
			g.Go(func() error {
				s.serveConn(ctx, conn)
				return nil
			})
		}
	})
	return g.Wait()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
	}()

	log := s.log.With("remote", conn.RemoteAddr().String())
	log.Debug("connection opened")
	dec := cbor.NewDecoder(conn)
	enc := cbor.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn("decode request", "err", err)
			}
			return
		}
		resp := s.Handle(ctx, &req)
		log.Debug("request", "op", req.Op, "status", resp.Status)
		if err := enc.Encode(resp); err != nil {
			if ctx.Err() == nil {
				log.Warn("encode response", "err", err)
			}
			return
		}
	}
}

// Handle executes one request.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	resp := &Response{}
	var err error
	switch req.Op {
	case OpAlloc:
		var info device.Info
		info, err = s.dev.Allocate(ctx, req.Size)
		resp.setInfo(info)
	case OpAddr:
		var info device.Info
		info, err = s.dev.Describe()
		resp.setInfo(info)
	case OpRelease:
		err = s.dev.Release()
	case OpRead:
		if err = s.checkTransfer(req.Len); err == nil {
			buf := make([]byte, req.Len)
			if _, err = s.dev.ReadAt(buf, req.Off); err == nil {
				resp.Data = buf
			}
		}
	case OpWrite:
		if err = s.checkTransfer(uint64(len(req.Data))); err == nil {
			_, err = s.dev.WriteAt(req.Data, req.Off)
		}
	default:
		err = fmt.Errorf("%w: unknown op %d", mem.ErrInvalidRequest, req.Op)
	}
	resp.Status = statusOf(err)
	if err != nil {
		resp.Message = err.Error()
	}
	return resp
}

func (s *Server) checkTransfer(n uint64) error {
	if n > s.maxTransfer {
		return fmt.Errorf("%w: transfer of %d bytes above %d", mem.ErrInvalidRequest, n, s.maxTransfer)
	}
	return nil
}
