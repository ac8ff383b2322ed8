/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the UID reconciliation server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Wire calendar, event bus and engine
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: uid_ops.db)
           Use ":memory:" for an in-memory database
  -tz      Business-calendar timezone (default: America/Chicago)
  -origin  Allowed CORS origin for scan stations (default: *)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/uid_ops.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run in a different warehouse timezone
  ./server -tz="America/New_York"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pinpoint/uid-ops/api"
	"github.com/pinpoint/uid-ops/reconcile"
	"github.com/pinpoint/uid-ops/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "uid_ops.db", "SQLite database path")
	tz := flag.String("tz", "America/Chicago", "business-calendar timezone")
	origin := flag.String("origin", "*", "allowed CORS origin")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Business calendar drives date stamping and week anchoring
	cal, err := reconcile.NewCalendar(*tz)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", *tz, err)
	}

	bus := reconcile.NewBus()
	engine := reconcile.NewEngine(store, bus, cal)
	handler := api.NewHandler(engine, bus, cal)
	router := api.NewRouter(handler, *origin)

	// Create server. WriteTimeout stays zero so the SSE stream is not
	// cut off mid-connection.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", *port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
