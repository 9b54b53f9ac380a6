package main

import (
	"github.com/agentsociety/runtime/internal/httpapi"
	"github.com/agentsociety/runtime/pkg/society"
)

func newHTTPServer(s *society.Society, addr string) *httpapi.Server {
	return httpapi.NewServer(s, addr)
}
