// cmd/server is the main entrypoint for a replicated KV store node.
//
// Configuration is entirely via flags so a single binary can serve any
// role in the cluster.
//
// Example — single node:
//
//	./server --id node1 --address 127.0.0.1 --port 8080 --data-dir /var/dynamokv/node1
//
// Example — 3-node cluster, node2 and node3 bootstrapping off node1:
//
//	./server --id node1 --address 127.0.0.1 --port 8080 --data-dir /tmp/n1
//	./server --id node2 --address 127.0.0.1 --port 8081 --data-dir /tmp/n2 --bootstrap-servers 127.0.0.1:8080
//	./server --id node3 --address 127.0.0.1 --port 8082 --data-dir /tmp/n3 --bootstrap-servers 127.0.0.1:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"dynamokv/internal/api"
	"dynamokv/internal/coordinator"
	"dynamokv/internal/failuredetector"
	"dynamokv/internal/handoff"
	"dynamokv/internal/membership"
	"dynamokv/internal/metrics"
	"dynamokv/internal/replica"
	"dynamokv/internal/ring"
	"dynamokv/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// ── Flags ──────────────────────────────────────────────────────────────
	nodeID := flag.String("id", "node1", "Unique node identifier")
	address := flag.String("address", "127.0.0.1", "Address peers use to reach this node")
	port := flag.Int("port", 8080, "Listen port")
	dataDir := flag.String("data-dir", "/tmp/dynamokv", "Directory for local storage and gossip state")
	bootstrapFlag := flag.String("bootstrap-servers", "", "Comma-separated host:port list of existing cluster members")
	tokens := flag.Int("tokens", 32, "Number of virtual nodes this node owns on the ring")
	replicationN := flag.Int("n", 3, "Replication factor (N)")
	writeQuorum := flag.Int("w", 2, "Write quorum (W)")
	readQuorum := flag.Int("r", 2, "Read quorum (R)")
	fdThreshold := flag.Int("threshold", 3, "Consecutive RPC failures before a peer is quarantined")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	nodeDataDir := filepath.Join(*dataDir, *nodeID)
	if err := os.MkdirAll(nodeDataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("create data dir")
	}

	// ── Storage ────────────────────────────────────────────────────────────
	dataEngine, err := storage.Open(filepath.Join(nodeDataDir, "main.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open data store")
	}
	defer dataEngine.Close()
	store := storage.NewStore(dataEngine)

	handoffEngine, err := storage.Open(filepath.Join(nodeDataDir, "handoff.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("open handoff store")
	}
	defer handoffEngine.Close()
	handoffStore := storage.NewHandoffStore(handoffEngine)

	// ── Ring + gossip membership ─────────────────────────────────────────────
	r := ring.New(*tokens)

	var bootstrapServers []string
	if *bootstrapFlag != "" {
		bootstrapServers = strings.Split(*bootstrapFlag, ",")
	}

	gossip := membership.NewGossip(*nodeID, *address, *port, *tokens, r, nodeDataDir, bootstrapServers)

	m := metrics.New()
	gossip.SetMetrics(m)

	// ── Failure detection ────────────────────────────────────────────────────
	detector := failuredetector.New(nil, *fdThreshold)
	defer detector.Close()
	gossip.OnJoin = func(n *membership.Node) { detector.AddPeer(n) }

	gossip.Start()
	defer gossip.Stop()

	// ── Coordinator + replica RPC handlers ───────────────────────────────────
	coord := coordinator.New(*nodeID, *replicationN, *writeQuorum, *readQuorum, r, detector, store, m)
	replicaHandlers := replica.New(store, handoffStore)

	handoffWorker := handoff.NewWorker(handoffStore, r, detector, m)
	handoffWorker.Start()
	defer handoffWorker.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(api.RequestID(), api.Logger(), api.Recovery())

	handler := api.NewHandler(*nodeID, r, coord, replicaHandlers, gossip, m)
	handler.Register(router)

	listenAddr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{
		Addr:         listenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// ── Graceful shutdown ──────────────────────────────────────────────────
	go func() {
		log.Info().Str("node", *nodeID).Str("addr", listenAddr).
			Int("n", *replicationN).Int("w", *writeQuorum).Int("r", *readQuorum).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Str("node", *nodeID).Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
}
