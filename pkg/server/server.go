package server

import (
	internalserver "github.com/SmitUplenchwar2687/Shield/internal/server"
	"github.com/SmitUplenchwar2687/Shield/pkg/limiter"
)

// Server exposes an Executor over HTTP.
type Server = internalserver.Server

// Options configures request defaults and optional server features.
type Options = internalserver.Options

// Hub manages WebSocket clients and broadcasts decision events.
type Hub = internalserver.Hub

// New creates a new Shield server.
func New(addr string, exec *limiter.Executor, opts Options) *Server {
	return internalserver.New(addr, exec, opts)
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return internalserver.NewHub()
}
