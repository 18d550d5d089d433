package server

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", s.health)
	r.Get("/catalog", s.getCatalog)

	// WebSocket JSON-RPC
	r.Get("/ipc", s.serveIPC)

	// Event streaming (SSE)
	r.Get("/events/stream", s.streamEvents)
}
