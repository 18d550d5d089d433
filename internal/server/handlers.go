package server

import (
	"net/http"

	"github.com/telnet2/go-practice/go-ipcbind/pkg/catalog"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/ipc"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Commands    int    `json:"commands"`
	Connections int    `json:"connections"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Commands:    len(s.host.Commands()),
		Connections: s.Connections(),
	})
}

// getCatalog serves the binding catalog. Without a loaded catalog it lists
// the commands registered on the host.
func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	if s.catalog != nil {
		writeJSON(w, http.StatusOK, s.catalog)
		return
	}

	cat := catalog.Catalog{
		Commands: []ipc.CommandDescriptor{},
		Events:   []ipc.EventDescriptor{},
	}
	for _, name := range s.host.Commands() {
		cat.Commands = append(cat.Commands, ipc.CommandDescriptor{Name: name})
	}
	writeJSON(w, http.StatusOK, cat)
}
