package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/telnet2/go-practice/go-ipcbind/internal/demo"
	"github.com/telnet2/go-practice/go-ipcbind/internal/logging"
	"github.com/telnet2/go-practice/go-ipcbind/internal/server"
	"github.com/telnet2/go-practice/go-ipcbind/pkg/host"
)

var (
	servePort     int
	serveHostname string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo IPC host",
	Long: `Start an IPC host that registers the demo commands and serves them,
together with the event bus, over WebSocket at /ipc.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Component("serve")

	cat, source, err := loadCatalog(afero.NewOsFs())
	if err != nil {
		return err
	}
	log.Info().Str("version", Version).Str("catalog", source).Str("directory", workDir).Msg("starting ipcbind host")

	h := host.New(host.WithLogger(logging.Component("host")), host.WithEvents(cat.EventNames()))
	defer h.Close()
	if err := demo.Register(h); err != nil {
		return err
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Hostname = appConfig.Server.Hostname
	serverConfig.Port = appConfig.Server.Port
	serverConfig.AllowedOrigins = appConfig.Server.AllowedOrigins
	serverConfig.OutboundBuffer = appConfig.Server.OutboundBuffer
	if serveHostname != "" {
		serverConfig.Hostname = serveHostname
	}
	if servePort != 0 {
		serverConfig.Port = servePort
	}

	srv := server.New(serverConfig, h, cat)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
	return nil
}
