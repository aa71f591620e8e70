// Command dummybackend runs a simulated imaging backend for local development
// and end-to-end testing of the gateway.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remote_imaging/internal/backend/dummy"
	"remote_imaging/internal/logger"
)

func main() {
	var (
		addr      = flag.String("addr", ":5555", "address to listen on")
		errorRate = flag.Float64("error-rate", 0.2, "probability of an error reply (0.0-1.0)")
		delayMin  = flag.Duration("delay-min", 500*time.Millisecond, "minimum reply delay")
		delayMax  = flag.Duration("delay-max", 2*time.Second, "maximum reply delay")
		seed      = flag.Int64("seed", 0, "random seed (0 = time-based)")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := logger.InfoLevel
	if *debug {
		level = logger.DebugLevel
	}
	log := logger.Get(level)

	srv := dummy.NewServer(dummy.Config{
		ErrorRate: *errorRate,
		DelayMin:  *delayMin,
		DelayMax:  *delayMax,
		Seed:      *seed,
	}, log)
	if err := srv.Start(*addr); err != nil {
		log.Fatalw("failed to start dummy backend", "err", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	srv.Stop()
}
