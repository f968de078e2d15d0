package main

import (
	"log/slog"
	"net/http"
	"os"

	mem "learnsync/adapters/memory"
	ws "learnsync/adapters/websocket"
	"learnsync/api/httpapi"
	"learnsync/core"
	"learnsync/platform"
)

// A self-contained demo: in-memory storage seeded with a demo tenant, the
// full API under /api, and the WebSocket stream at /api/ws. Pair it with
// examples/sdk-go.
func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	store := mem.New()
	seedDemoData(store)

	transport := ws.NewTransport(nil)
	p := platform.New(
		platform.WithUserStore(store),
		platform.WithContentStore(store),
		platform.WithNotificationStore(store),
		platform.WithTransport(transport),
	)
	p.Start()
	defer p.Close()

	wsHandler := ws.Handler(ws.Options{
		Registry:  p.Registry,
		Buffer:    p.Buffer,
		Transport: transport,
	})

	handler := httpapi.NewMux(p, wsHandler, httpapi.Options{
		PathPrefix:      "/api",
		AllowCORSOrigin: "*",
	})

	slog.Info("starting demo server on :8080", "tenant_code", "ACME")

	if err := http.ListenAndServe(":8080", handler); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

func seedDemoData(store *mem.Store) {
	store.PutTenant(core.Tenant{ID: "t-demo", Code: "ACME", Name: "Acme Learning", Active: true})
	store.PutUser(core.User{ID: "u-alice", TenantID: "t-demo", Name: "Alice", Email: "alice@acme.test", Active: true})
	store.PutUser(core.User{ID: "u-bob", TenantID: "t-demo", Name: "Bob", Email: "bob@acme.test", Active: true})
	store.PutModule(core.Module{ID: "m-101", TenantID: "t-demo", Title: "Onboarding Basics", Category: "onboarding", Active: true})
	store.PutModule(core.Module{ID: "m-102", TenantID: "t-demo", Title: "Security Essentials", Category: "security", Active: true})
	store.PutProgress(core.UserProgress{UserID: "u-alice", CompletedModules: 1, AverageScore: 92, TotalTimeSpentMinutes: 30})
}
