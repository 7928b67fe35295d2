package broker

import (
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"sharedlog/internal/protocol"
	"sharedlog/internal/store"
)

// Broker dispatches framed requests to a Store over TCP connections. It
// is a demo caller, not a replication or wire-dispatch layer.
type Broker struct {
	Config Config
	Store  *store.Store
	Logger *zap.SugaredLogger

	quit chan struct{}
	wg   sync.WaitGroup
}

// New returns a Broker serving s over cfg.ListenAddr once Start is
// called.
func New(cfg Config, s *store.Store, logger *zap.SugaredLogger) *Broker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Broker{
		Config: cfg,
		Store:  s,
		Logger: logger,
		quit:   make(chan struct{}),
	}
}

// Start listens and serves connections until Stop is called.
func (b *Broker) Start() error {
	ln, err := net.Listen("tcp", b.Config.ListenAddr)
	if err != nil {
		return err
	}

	b.Logger.Infow("broker listening", "addr", b.Config.ListenAddr)

	go func() {
		<-b.quit
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-b.quit:
				return nil
			default:
				b.Logger.Warnw("accept error", "error", err)
				continue
			}
		}

		b.wg.Add(1)
		go b.handleConnection(conn)
	}
}

// Stop closes the listener and waits for in-flight connections to drain.
func (b *Broker) Stop() {
	close(b.quit)
	b.wg.Wait()
}

func (b *Broker) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		b.wg.Done()
	}()

	for {
		req, err := protocol.ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				b.Logger.Debugw("connection read error", "error", err)
			}
			return
		}

		err = func() error {
			defer req.Release()

			respBody, handleErr := b.handleRequest(req)
			if handleErr != nil {
				b.Logger.Warnw("malformed request", "apiKey", req.Header.ApiKey, "error", handleErr)
				return handleErr
			}
			return protocol.SendResponse(conn, req.Header.CorrelationID, respBody)
		}()
		if err != nil {
			return
		}
	}
}
