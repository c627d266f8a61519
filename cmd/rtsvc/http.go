// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.rtcore.io/scheduler/errorkind"
	"go.rtcore.io/scheduler/hostthread"
	"go.rtcore.io/scheduler/statejson"
)

// Controlled is the part of a service the state browser drives.
type Controlled interface {
	Stop() error
	Describe() statejson.ServiceDescription
}

type errorResponse struct {
	ErrorType    string `json:"errorType"`
	ErrorMessage string `json:"errorMessage"`
}

// NewHTTPRouter serves the state of svc and of the threads registered in db.
func NewHTTPRouter(svc Controlled, db *hostthread.Database) *chi.Mux {
	r := chi.NewRouter()
	r.Use(accessLogDecorator)

	r.Get("/services", func(w http.ResponseWriter, r *http.Request) { ServicesHandler(w, r, svc) })
	r.Post("/services/stop", func(w http.ResponseWriter, r *http.Request) { StopHandler(w, r, svc) })
	r.Get("/threads", func(w http.ResponseWriter, r *http.Request) { ThreadsHandler(w, r, db) })
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func ServicesHandler(w http.ResponseWriter, r *http.Request, svc Controlled) {
	description := svc.Describe()
	w.Header().Set("Content-Type", "application/json")
	w.Write(description.AsJSON())
}

func ThreadsHandler(w http.ResponseWriter, r *http.Request, db *hostthread.Database) {
	render.JSON(w, r, db.List())
}

func StopHandler(w http.ResponseWriter, r *http.Request, svc Controlled) {
	err := svc.Stop()
	if err == nil {
		ServicesHandler(w, r, svc)
		return
	}

	status := http.StatusInternalServerError
	if errors.Is(err, errorkind.ErrTimeout) {
		status = http.StatusAccepted
	}
	render.Status(r, status)
	render.JSON(w, r, &errorResponse{
		ErrorType:    string(errorkind.KindOf(err)),
		ErrorMessage: err.Error(),
	})
}
