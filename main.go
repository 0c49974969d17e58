package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"example.com/tinysns/cmd/archiver"
	"example.com/tinysns/cmd/server"
	"example.com/tinysns/internal/broker"
	config "example.com/tinysns/internal/init"
	"example.com/tinysns/internal/store"
)

func main() {
	// Initialize application configuration
	cfg := config.Init()

	kafkaCfg := broker.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case "server":
		runServer(ctx, cfg, kafkaCfg)
	case "archiver":
		runArchiver(ctx, cfg, kafkaCfg)
	default:
		log.Fatalf("unknown mode: %s", cfg.Mode)
	}

	log.Println("Shutdown completed")
}

// runServer wires the in-memory store, the post-event bus and the HTTP/WS
// façade. With the archive enabled it replays the durable user and post
// logs first so the directory survives restarts.
func runServer(ctx context.Context, cfg *config.Config, kafkaCfg broker.KafkaConfig) {
	st := store.NewMemory()
	defer st.Close()

	if cfg.ArchiveEnabled && cfg.RestoreOnStart {
		if err := restore(st); err != nil {
			log.Fatalf("archive restore failed: %v", err)
		}
	}

	var bus broker.Bus
	switch cfg.Broker {
	case "kafka":
		writer, err := broker.NewKafkaWriter(kafkaCfg)
		if err != nil {
			log.Fatalf("Kafka writer init failed: %v", err)
		}
		kb := broker.NewKafkaBus(writer)
		// The pump gets its own consumer group so every server instance
		// sees every post event.
		pumpCfg := kafkaCfg
		pumpCfg.GroupID = ""
		go kb.Pump(ctx, broker.NewKafkaReader(pumpCfg))
		bus = kb
	default:
		bus = broker.NewMemoryBus()
	}
	defer bus.Close()

	server.Run(ctx, st, bus, cfg)
}

// runArchiver consumes post events from Kafka and persists them to
// Cassandra until the shutdown signal arrives.
func runArchiver(ctx context.Context, cfg *config.Config, kafkaCfg broker.KafkaConfig) {
	archive, err := store.NewCassandra()
	if err != nil {
		log.Fatalf("Cassandra connection failed: %v", err)
	}

	a := archiver.New(archive, broker.NewKafkaReader(kafkaCfg), 0, 0)
	a.Run(ctx)

	if err := a.Close(); err != nil {
		log.Printf("archiver close: %v", err)
	}
}

// restore replays archived users and posts into the fresh memory store.
func restore(st *store.MemoryStore) error {
	archive, err := store.NewCassandra()
	if err != nil {
		return err
	}
	defer archive.Close()

	users, err := archive.LoadUsers()
	if err != nil {
		return err
	}
	posts, err := archive.LoadPosts()
	if err != nil {
		return err
	}
	return st.Restore(users, posts)
}
