// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/execinfo"
)

// session is the connection a thread services, kept in the thread specific
// context between stages.
type session struct {
	conn    net.Conn
	reader  *bufio.Reader
	pending []byte
}

func (s *session) close() {
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.WithError(err).Debug("Failed to close client connection")
	}
}

// EchoServer is the callback of a MultiClientService: each thread accepts one
// client while waiting for a request and echoes its lines back until the
// client hangs up.
type EchoServer struct {
	listener *net.TCPListener
	poll     time.Duration
}

// NewEchoServer serves clients of listener. poll bounds every blocking call
// so that the thread can observe a stop request.
func NewEchoServer(listener *net.TCPListener, poll time.Duration) *EchoServer {
	return &EchoServer{listener: listener, poll: poll}
}

func (e *EchoServer) Execute(info *execinfo.ExecutionInfo) error {
	switch info.Stage() {
	case execinfo.StartupStage:
		return nil
	case execinfo.MainStage:
		switch info.StageSpecific() {
		case execinfo.WaitRequestStageSpecific:
			return e.accept(info)
		case execinfo.ServiceRequestStageSpecific:
			return e.serve(info)
		}
		return nil
	default:
		if s, ok := info.ThreadSpecificContext().(*session); ok {
			s.close()
			info.SetThreadSpecificContext(nil)
		}
		return nil
	}
}

func (e *EchoServer) accept(info *execinfo.ExecutionInfo) error {
	if err := e.listener.SetDeadline(time.Now().Add(e.poll)); err != nil {
		return fmt.Errorf("setting accept deadline: %w", err)
	}
	conn, err := e.listener.Accept()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return errorkind.ErrTimeout
		}
		return fmt.Errorf("accepting client: %w", err)
	}
	log.WithField("client", conn.RemoteAddr().String()).Debug("Client connected")
	info.SetThreadSpecificContext(&session{conn: conn, reader: bufio.NewReader(conn)})
	return nil
}

func (e *EchoServer) serve(info *execinfo.ExecutionInfo) error {
	s, ok := info.ThreadSpecificContext().(*session)
	if !ok {
		return fmt.Errorf("servicing without a client: %w", errorkind.ErrIllegalOperation)
	}
	if err := s.conn.SetReadDeadline(time.Now().Add(e.poll)); err != nil {
		return fmt.Errorf("setting read deadline: %w", err)
	}
	chunk, err := s.reader.ReadBytes('\n')
	s.pending = append(s.pending, chunk...)
	if err != nil {
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			return nil
		case errors.Is(err, io.EOF):
			e.flush(s)
			s.close()
			info.SetThreadSpecificContext(nil)
			return errorkind.ErrCompleted
		default:
			return fmt.Errorf("reading from client: %w", err)
		}
	}
	return e.flush(s)
}

func (e *EchoServer) flush(s *session) error {
	if len(s.pending) == 0 {
		return nil
	}
	_, err := s.conn.Write(s.pending)
	s.pending = s.pending[:0]
	if err != nil {
		return fmt.Errorf("writing to client: %w", err)
	}
	return nil
}
