// Command sentimenta-devapi serves a local stand-in for the Sentimenta API so
// the dashboard can be exercised without a backend account.
//
// Run:
//
//	go run ./cmd/sentimenta-devapi -addr :8000 -runs 2
//
// It prints a credential pair for the seeded user. Store it with:
//
//	sentimenta session set --access <ACCESS> --refresh <REFRESH>
//	sentimenta runs
//	sentimenta watch <RUN_ID>
//
// With -redis-embedded an in-process Redis is started as well, and the
// environment needed to point the redis session backend at it is printed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/internal/devapi"
	"github.com/sentimenta/dashclient/internal/logging"
	"github.com/sentimenta/dashclient/jwt"
)

func main() {
	var (
		addr          = flag.String("addr", "127.0.0.1:8000", "listen address")
		secret        = flag.String("secret", "sentimenta-dev-secret", "HS256 signing secret (at least 16 bytes)")
		accessTTL     = flag.Duration("access-ttl", time.Hour, "access token lifetime")
		streamEvery   = flag.Duration("stream-interval", 2*time.Second, "delay between progress frames")
		stepEvery     = flag.Duration("step-interval", 2*time.Second, "how often running runs advance")
		runs          = flag.Int("runs", 1, "pipeline runs to seed for the demo user")
		redisEmbedded = flag.Bool("redis-embedded", false, "start an in-process Redis for the redis session backend")
		logLevel      = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	logger, err := logging.New(logging.Options{Level: *logLevel, Console: logging.IsTerminal(os.Stderr)})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     *accessTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(*secret),
		Issuer:        "sentimenta-devapi",
	})
	if err != nil {
		logger.Fatal("token manager", zap.Error(err))
	}

	srv, err := devapi.New(devapi.Config{
		Tokens:         tokens,
		StreamInterval: *streamEvery,
		StepInterval:   *stepEvery,
		Logger:         logger.Named("devapi"),
	})
	if err != nil {
		logger.Fatal("devapi", zap.Error(err))
	}
	defer func() { _ = srv.Close() }()

	name := "Demo User"
	demo := api.Identity{ID: "demo-user", Email: "demo@sentimenta.local", Name: &name, Plan: "pro"}
	srv.AddUser(demo)
	access, refresh, err := srv.IssueFor(demo.ID)
	if err != nil {
		logger.Fatal("issue tokens", zap.Error(err))
	}
	for i := 0; i < *runs; i++ {
		row := srv.CreateRun(demo.ID, fmt.Sprintf("demo-connection-%d", i+1), devapi.DefaultPlan)
		fmt.Printf("run:     %s\n", row.ID)
	}
	fmt.Printf("access:  %s\nrefresh: %s\n", access, refresh)
	fmt.Printf("export SENTIMENTA_API_URL=http://%s%s\n", *addr, devapi.BasePath)

	if *redisEmbedded {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal("miniredis", zap.Error(err))
		}
		defer mr.Close()
		fmt.Printf("export SENTIMENTA_SESSION_BACKEND=redis SENTIMENTA_REDIS_ADDR=%s\n", mr.Addr())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("listening", zap.String("addr", *addr))
	if err := srv.Start(ctx, *addr); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
