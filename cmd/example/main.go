// Command example wires a LogManager from a YAML config, tails a log and
// appends a message every second until interrupted.
package main

import (
	"expvar"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/INLOpen/nexuslog/backend"
	"github.com/INLOpen/nexuslog/backend/filestore"
	"github.com/INLOpen/nexuslog/backend/memstore"
	"github.com/INLOpen/nexuslog/config"
	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/hooks"
	"github.com/INLOpen/nexuslog/hooks/listeners"
	"github.com/INLOpen/nexuslog/log"
)

var (
	messagesAppended  = expvar.NewInt("nexuslog_messages_appended")
	messagesDelivered = expvar.NewInt("nexuslog_messages_delivered")
	readerFaults      = expvar.NewInt("nexuslog_reader_faults")
	checkpointWrites  = expvar.NewInt("nexuslog_checkpoint_writes")
)

type printingReader struct {
	logger *slog.Logger
}

func (r *printingReader) Read(msg core.Message) {
	r.logger.Info("Received message", "sender", msg.SenderID, "timestamp", msg.Timestamp.Format(time.RFC3339), "content", string(msg.Content))
}

func buildStore(cfg config.BackendConfig, logger *slog.Logger) (backend.Store, error) {
	switch cfg.Type {
	case "memory":
		return memstore.NewStore(), nil
	case "", "file":
		compression, err := core.ParseCompressionType(cfg.File.Compression)
		if err != nil {
			return nil, err
		}
		return filestore.Open(filestore.Options{
			Dir:            cfg.File.Dir,
			Compression:    compression,
			MaxSegmentSize: cfg.File.MaxSegmentSizeBytes,
			SyncMode:       filestore.SyncMode(cfg.File.SyncMode),
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "path to YAML configuration")
	logName := flag.String("log", "tx", "name of the log to append to and tail")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}

	store, err := buildStore(cfg.Backend, logger)
	if err != nil {
		return fmt.Errorf("build backend store: %w", err)
	}

	hookManager := hooks.NewHookManager(logger)
	hookManager.Register(hooks.EventOnReaderFault, listeners.NewReaderFaultAlerter(logger))
	hookManager.Register(hooks.EventOnDeliveryStall, listeners.NewDeliveryStallAlerter(logger))

	manager, err := log.NewLogManager(log.Options{
		SenderID:                cfg.Manager.SenderID,
		Store:                   store,
		OrderPreserving:         cfg.Manager.OrderPreserving,
		ReadPollInterval:        config.ParseDuration(cfg.Manager.ReadPollInterval, log.DefaultReadPollInterval, logger),
		CheckpointFlushInterval: config.ParseDuration(cfg.Manager.CheckpointFlushInterval, log.DefaultCheckpointFlushInterval, logger),
		Logger:                  logger,
		HookManager:             hookManager,
		MessagesAppended:        messagesAppended,
		MessagesDelivered:       messagesDelivered,
		ReaderFaults:            readerFaults,
		CheckpointWrites:        checkpointWrites,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	l, err := manager.OpenLog(*logName)
	if err != nil {
		return err
	}

	// Resume from the position this example last reached, so restarting the
	// binary does not replay the whole log.
	if err := l.RegisterReader(log.FromIdentifierOrNow("example-tail"), &printingReader{logger: logger}); err != nil {
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-stop:
			logger.Info("Shutting down")
			return nil
		case <-ticker.C:
			if _, err := l.Add([]byte(fmt.Sprintf("tick %d", i))); err != nil {
				return fmt.Errorf("append: %w", err)
			}
		}
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
