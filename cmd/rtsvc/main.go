// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"go.rtcore.io/scheduler/config"
	"go.rtcore.io/scheduler/hostthread"
	"go.rtcore.io/scheduler/logging"
	"go.rtcore.io/scheduler/services"
)

type options struct {
	Config    string `long:"config" description:"YAML file with one block per service"`
	Service   string `long:"service" default:"Echo" description:"config block of the echo service"`
	EnvPrefix string `long:"env-prefix" default:"RTSVC_" description:"prefix of environment overrides, e.g. RTSVC_Echo__Timeout"`
	Listen    string `long:"listen" default:"127.0.0.1:7070" description:"echo TCP address"`
	HTTP      string `long:"http" default:"127.0.0.1:8080" description:"state browser address"`
	PollMs    uint64 `long:"poll-ms" default:"100" description:"bound of every blocking accept or read"`
	LogLevel  string `long:"log-level" default:"info" description:"log level"`
}

func main() {
	opts := getCLIArgs()
	logging.SetLogLevel(opts.LogLevel)

	block, err := loadServiceConfig(opts)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	listener, err := listenTCP(opts.Listen)
	if err != nil {
		log.WithError(err).Fatalf("Failed to listen on %s", opts.Listen)
	}

	echo := NewEchoServer(listener, time.Duration(opts.PollMs)*time.Millisecond)
	svc := services.NewMultiClientService(echo, services.WithName(opts.Service))
	if block.Exists(services.TimeoutKey) {
		if err := svc.Initialise(block); err != nil {
			log.WithError(err).Fatalf("Invalid configuration of %s", opts.Service)
		}
	} else {
		log.Warnf("No %s.%s configured, using defaults", opts.Service, services.TimeoutKey)
	}
	if err := svc.Start(); err != nil {
		log.WithError(err).Fatalf("Failed to start %s", opts.Service)
	}
	log.Infof("Echo service %s listening on %s", opts.Service, listener.Addr())

	srv := &http.Server{
		Addr:    opts.HTTP,
		Handler: NewHTTPRouter(svc, hostthread.DefaultDatabase),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("State browser failed")
		}
	}()
	log.Infof("State browser listening on %s", opts.HTTP)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("Shutting down")

	if err := svc.Close(); err != nil {
		log.WithError(err).Error("Service did not stop cleanly")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("State browser shutdown")
	}
	listener.Close()
}

func getCLIArgs() options {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}
	return opts
}

func loadServiceConfig(opts options) (*config.Database, error) {
	data, err := config.Load(opts.Config, opts.EnvPrefix)
	if err != nil {
		return nil, err
	}
	return data.Sub(opts.Service), nil
}

func listenTCP(address string) (*net.TCPListener, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, err
	}
	return net.ListenTCP("tcp", addr)
}
