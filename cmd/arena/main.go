package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/borderland-games/arena/internal/collab"
	"github.com/borderland-games/arena/internal/game"
	"github.com/borderland-games/arena/internal/httpapi"
	"github.com/borderland-games/arena/internal/session"
	"github.com/borderland-games/arena/internal/transport"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("arena exited", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listen := envOr("ARENA_ADDR", ":8080")
	public := envOr("ARENA_PUBLIC_ADDR", "localhost"+listen)
	baseURL := envOr("ARENA_BASE_URL", "http://"+public)
	hostID := os.Getenv("ARENA_HOST") // empty: host a room ourselves
	name := envOr("ARENA_NAME", fmt.Sprintf("Cit. %d", rand.Intn(1000)))
	spectate := os.Getenv("ARENA_SPECTATE") == "1"

	var registry collab.Registry = collab.NewMemoryRegistry()
	if dsn := os.Getenv("ARENA_DB_DSN"); dsn != "" {
		pg, err := collab.OpenPostgresRegistry(dsn)
		if err != nil {
			// Registry failures degrade to "room not discoverable".
			log.Warn("room directory unavailable", zap.Error(err))
		} else {
			registry = pg
		}
	}

	var media transport.MediaStream
	if !spectate {
		source := collab.DeviceSource{}
		stream, err := source.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("camera access required to play (set ARENA_SPECTATE=1 to watch): %w", err)
		}
		media = stream
	}

	ws := transport.NewWS(public, log)
	opts := session.Options{
		Transport:  ws,
		LocalMedia: media,
		Logger:     log,
		Narrator:   collab.StaticNarrator{},
		Ledger:     collab.NewMemoryLedger(game.NewUserBonus),
		Registry:   registry,
		Config: game.Config{
			DiscussionTime: envIntOr("ARENA_DISCUSSION_SEC", game.DefaultDiscussionTime),
			JailTime:       envIntOr("ARENA_JAIL_SEC", game.DefaultJailTime),
		},
	}

	profile := game.Player{
		ID:          "p-" + uuid.NewString(),
		Name:        name,
		Avatar:      "https://api.dicebear.com/7.x/bottts/svg?seed=" + name,
		Balance:     game.InitialBalance,
		Reputation:  100,
		IsSpectator: spectate,
	}

	server := &http.Server{Addr: listen, Handler: httpapi.SetupRoutes(httpapi.Deps{
		WS:       ws,
		Registry: registry,
		BaseURL:  baseURL,
		Log:      log,
	})}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if hostID == "" {
		sess, err := session.Host(ctx, opts, profile)
		if err != nil {
			return err
		}
		log.Info("hosting room", zap.String("room", sess.RoomID()),
			zap.String("invite", baseURL+"?room="+sess.RoomID()))
	} else {
		sess, err := session.Join(ctx, opts, hostID, profile, game.BuyInAmount)
		if err != nil {
			return err
		}
		log.Info("joined room", zap.String("room", sess.RoomID()), zap.String("self", sess.ID()))
	}

	// The session tears itself down when ctx is cancelled.
	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	return g.Wait()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
