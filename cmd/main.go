package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lunchbot/internal/config"
	"lunchbot/internal/conversation"
	"lunchbot/internal/database"
	"lunchbot/internal/ledger"
	"lunchbot/internal/logger"
	"lunchbot/internal/menu"
	"lunchbot/internal/messaging"
	"lunchbot/internal/models"
	"lunchbot/internal/payments"
	"lunchbot/internal/store"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (bot, notification-subscriber)")
		configPath = flag.String("config", "config.yaml", "Path to config file")
		prefetch   = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "bot":
		if err := runBot(ctx, cfg, log, *prefetch); err != nil && err != context.Canceled {
			log.Error("service_failed", "Bot core failed", requestID, err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		if err := runNotificationSubscriber(ctx, cfg, log, *prefetch); err != nil && err != context.Canceled {
			log.Error("service_failed", "Notification subscriber failed", requestID, err, nil)
			os.Exit(1)
		}
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runBot runs the order-taking core: it consumes classified intents,
// drives the conversation machine and publishes replies.
func runBot(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	requestID := logger.GenerateRequestID()

	if err := ensureDataDirs(cfg); err != nil {
		return err
	}

	pending := store.OpenPendingOrders(cfg.Storage.OrdersFile, log)
	customers := store.OpenCustomers(cfg.Storage.UsersFile, log)
	addresses := store.OpenAddresses(cfg.Storage.AddressesFile, log)

	writer, reader, exportPath, cleanup, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	conn, err := messaging.New(cfg.RabbitMQURL(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)
	notifier := messaging.NewNotifier(publisher, customers, log)

	settler := ledger.NewSettler(pending, writer, log)
	paymentsClient := payments.NewClient(cfg.Payments.BaseURL, cfg.Payments.ShopID,
		cfg.Payments.SecretKey, cfg.Payments.ReturnURL)
	coordinator := payments.NewCoordinator(paymentsClient, settler, pending, notifier, log,
		time.Duration(cfg.Payments.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.Payments.TimeoutMinutes)*time.Minute)

	machine := conversation.NewMachine(ctx, conversation.Deps{
		Customers:   customers,
		Addresses:   addresses,
		Pending:     pending,
		Menu:        menu.NewSheetProvider(cfg.Menu.SheetURL),
		Payments:    paymentsClient,
		Coordinator: coordinator,
		Settler:     settler,
		History:     reader,
		ExportPath:  exportPath,
		Broadcaster: notifier,
		Logger:      log,
		CutoffHour:  cfg.Menu.CutoffHour,
	})

	consumer := messaging.NewConsumer(conn, log, messaging.IntentsQueue, "lunchbot-core", prefetch)
	return consumer.StartConsuming(ctx, func(msgCtx context.Context, body []byte) error {
		var intent models.IntentMessage
		if err := messaging.ParseMessage(body, &intent); err != nil {
			log.Error("intent_decode_failed", "Failed to decode intent message", "", err, nil)
			// Malformed messages would requeue forever; drop them.
			return nil
		}

		replies := machine.Handle(msgCtx, conversation.Event{
			Kind:   conversation.EventKind(intent.Kind),
			ChatID: intent.ChatID,
			Text:   intent.Text,
			Method: models.PaymentStatus(intent.Method),
		})
		return notifier.SendReplies(msgCtx, intent.ChatID, replies)
	})
}

// openLedger builds the configured settlement ledger backend. The CSV
// backend doubles as the admin export file; the postgres backend has no
// file to export.
func openLedger(ctx context.Context, cfg *config.Config, log *logger.Logger) (ledger.Writer, ledger.Reader, string, func(), error) {
	switch cfg.Ledger.Backend {
	case "postgres":
		db, err := database.New(cfg, log)
		if err != nil {
			return nil, nil, "", nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := db.RunMigrations(ctx, "migrations"); err != nil {
			db.Close()
			return nil, nil, "", nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		pg := ledger.NewPGLedger(db)
		return pg, pg, "", db.Close, nil
	default:
		csv := ledger.NewCSVLedger(cfg.Ledger.CSVFile)
		return csv, csv, csv.Path(), func() {}, nil
	}
}

// runNotificationSubscriber drains the notifications queue and logs each
// outbound message. A chat front end plugs in here.
func runNotificationSubscriber(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	conn, err := messaging.New(cfg.RabbitMQURL(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	consumer := messaging.NewConsumer(conn, log, messaging.NotificationsQueue, "lunchbot-notifications", prefetch)
	return consumer.StartConsuming(ctx, func(msgCtx context.Context, body []byte) error {
		var msg models.NotificationMessage
		if err := messaging.ParseMessage(body, &msg); err != nil {
			log.Error("notification_decode_failed", "Failed to decode notification", "", err, nil)
			return nil
		}

		log.Info("notification_delivered", msg.Text, "", map[string]interface{}{
			"chat_id":   msg.ChatID,
			"broadcast": msg.Broadcast,
			"document":  msg.Document,
			"timestamp": msg.Timestamp.Format(time.RFC3339),
		})
		return nil
	})
}

func ensureDataDirs(cfg *config.Config) error {
	paths := []string{
		cfg.Storage.OrdersFile,
		cfg.Storage.UsersFile,
		cfg.Storage.AddressesFile,
		cfg.Ledger.CSVFile,
	}
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return nil
}
