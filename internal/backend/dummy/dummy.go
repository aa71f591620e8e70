// Package dummy implements a simulated imaging backend for tests and for the
// dummybackend CLI. It speaks the same framed request / line reply protocol as
// the real system and can inject delays and error bitmasks.
package dummy

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"remote_imaging/internal/logger"
	"remote_imaging/internal/models"

	"gopkg.in/yaml.v3"
)

// Config tunes the simulated behavior.
type Config struct {
	ErrorRate float64 // probability of an error reply [0.0, 1.0]
	DelayMin  time.Duration
	DelayMax  time.Duration
	Seed      int64 // 0 = time-based
}

// Server is a one-request-at-a-time imaging backend simulator.
type Server struct {
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	ln     net.Listener
	rnd    *rand.Rand
	script []string // queued canned replies, consumed before random behavior
	conns  map[net.Conn]struct{}
	closed bool

	wg sync.WaitGroup
}

// NewServer builds a simulator; call Start to bind it.
func NewServer(cfg Config, log *logger.Logger) *Server {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{
		cfg: cfg,
		log: log,
		rnd: rand.New(rand.NewSource(seed)),
	}
}

// Start binds the listener on addr (use "127.0.0.1:0" for an ephemeral port)
// and begins serving connections.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dummy backend listen: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.conns = make(map[net.Conn]struct{})
	s.closed = false
	s.mu.Unlock()

	s.log.Infow("dummy_backend_started", "addr", ln.Addr().String())
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Script queues canned reply lines that take priority over random behavior.
func (s *Server) Script(replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, replies...)
}

// Stop closes the listener and every accepted connection, then waits for the
// serving goroutines to drain. Idle clients are disconnected rather than
// waited on.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Infow("dummy_backend_stopped")
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	r := bufio.NewReader(conn)
	for {
		payload, err := readFramed(r)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if err != io.EOF && !closed {
				s.log.Warnw("dummy_backend_read_failed", "err", err)
			}
			return
		}

		reply := s.replyFor(payload)
		s.sleep()
		if _, err := conn.Write([]byte(reply + "\n")); err != nil {
			s.log.Warnw("dummy_backend_write_failed", "err", err)
			return
		}
	}
}

// replyFor picks the next scripted reply, or synthesizes one: parse the YAML
// request, echo the plant id back and either succeed with a fresh image
// directory or fail with a weighted random bitmask.
func (s *Server) replyFor(payload []byte) string {
	s.mu.Lock()
	if len(s.script) > 0 {
		reply := s.script[0]
		s.script = s.script[1:]
		s.mu.Unlock()
		return reply
	}
	roll := s.rnd.Float64()
	comboRoll := s.rnd.Float64()
	pick := s.rnd.Float64()
	s.mu.Unlock()

	plantID, ok := plantIDFrom(payload)
	if !ok {
		return strconv.Itoa(int(models.ErrFatalUnknown))
	}

	if roll < s.cfg.ErrorRate {
		return strconv.Itoa(int(randomError(comboRoll, pick)))
	}

	imageDir := "ImageSet_" + time.Now().Format("20060102_150405")
	return fmt.Sprintf("%d %s %s", models.ImageSuccess, plantID, imageDir)
}

func (s *Server) sleep() {
	if s.cfg.DelayMax <= 0 || s.cfg.DelayMax < s.cfg.DelayMin {
		return
	}
	s.mu.Lock()
	d := s.cfg.DelayMin + time.Duration(s.rnd.Int63n(int64(s.cfg.DelayMax-s.cfg.DelayMin)+1))
	s.mu.Unlock()
	time.Sleep(d)
}

// readFramed reads one length-prefixed request.
func readFramed(r *bufio.Reader) ([]byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("bad frame header %q", strings.TrimSpace(header))
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func plantIDFrom(payload []byte) (string, bool) {
	var doc struct {
		Required struct {
			PlantID string `yaml:"plant-id"`
		} `yaml:"required"`
	}
	if err := yaml.Unmarshal(payload, &doc); err != nil {
		return "", false
	}
	return doc.Required.PlantID, true
}

// randomError mirrors the observed failure distribution of the real backend:
// roughly a third of failures lose all three 3D cameras at once, the rest is
// a weighted single-bit error.
func randomError(comboRoll, pick float64) models.ImageError {
	if comboRoll < 0.3 {
		return models.ErrThreeD0Corrupt | models.ErrThreeD1Corrupt | models.ErrThreeD2Corrupt
	}

	weighted := []struct {
		err    models.ImageError
		weight float64
	}{
		{models.ErrMainCorrupt, 0.2},
		{models.ErrThreeD0Corrupt, 0.2},
		{models.ErrThreeD1Corrupt, 0.1},
		{models.ErrThreeD2Corrupt, 0.1},
		{models.ErrThermalCorrupt, 0.2},
		{models.ErrResetTimeout, 0.1},
		{models.ErrRebootTimeout, 0.05},
		{models.ErrFatalUnknown, 0.05},
	}

	total := 0.0
	for _, w := range weighted {
		total += w.weight
	}
	r := pick * total
	upto := 0.0
	for _, w := range weighted {
		upto += w.weight
		if upto >= r {
			return w.err
		}
	}
	return models.ErrFatalUnknown
}
