package pg

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/imoocdb/imoocdb/server/engine"
)

// Server accepts PostgreSQL v3 connections on a single listener and serves
// each on its own goroutine, the standard Go accept-loop idiom -- the
// teacher's own accept loop (server/net/net_server.go) is built on
// log4go/dubbogo/gost, neither of which imoocdb's own stack depends on, so
// this edition's loop is written directly against net.Listener instead of
// adapting it.
type Server struct {
	db      *engine.Database
	planner Planner
	log     *logrus.Logger
}

// NewServer builds a Server that will hand off every accepted connection to
// a Handler backed by db and planner.
func NewServer(db *engine.Database, planner Planner) *Server {
	return &Server{db: db, planner: planner, log: logrus.StandardLogger()}
}

// ListenAndServe listens on addr and serves connections until the listener
// errors (typically because Close was called on it from another goroutine).
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.log.WithField("addr", addr).Info("pg: listening")
	return s.Serve(ln)
}

// Serve accepts connections from ln until it errors, serving each on its own
// goroutine through one Handler shared by every connection.
func (s *Server) Serve(ln net.Listener) error {
	handler := NewHandler(s.db, s.planner)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go handler.Serve(conn)
	}
}
