package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/api"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/cache"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/config"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/metrics"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/models"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/realtime"
	"github.com/Joe-EtubiGreatattai/one-mai-user-sub000/internal/session"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	cfg, err := config.Load(os.Getenv("MAI_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	groupID := os.Getenv("MAI_GROUP_ID")
	if groupID == "" {
		log.Fatal().Msg("MAI_GROUP_ID environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.New(cfg.Cache.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open local cache")
	}
	defer store.Close()

	apiCfg := api.DefaultConfig(cfg.API.BaseURL)
	if cfg.API.TimeoutSeconds > 0 {
		apiCfg.Timeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second
	}
	client := api.NewClient(apiCfg)

	user, err := signIn(ctx, client, store)
	if err != nil {
		log.Fatal().Err(err).Msg("sign in")
	}
	log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("signed in")

	m := metrics.New(prometheus.DefaultRegisterer)
	socket := realtime.NewSocket(realtime.DefaultConfig(cfg.Socket.URL), user.ID, nil, m)
	defer socket.Close()

	sess := session.New(*user, session.NewSocketTransport(socket), client, nil, m)
	if err := sess.Activate(ctx, groupID); err != nil {
		log.Fatal().Err(err).Str("group_id", groupID).Msg("activate group session")
	}
	defer sess.Deactivate()

	// Keep the cached group list warm for the next launch.
	if groups, err := client.Groups(ctx); err == nil {
		if err := store.SaveGroups(ctx, groups); err != nil {
			log.Warn().Err(err).Msg("cache group list")
		}
	}

	if snap, ok := sess.Snapshot(); ok {
		pos := snap.PositionOf(user.ID)
		paid, amount := snap.PaymentStatus(user.ID, snap.Group.CurrentCycle)
		log.Info().
			Str("group", snap.Group.Name).
			Int("cycle", snap.Group.CurrentCycle).
			Int("payout_position", pos).
			Bool("next_recipient", snap.IsNextRecipient(user.ID)).
			Bool("paid_this_cycle", paid).
			Float64("contribution", amount).
			Float64("next_payout_amount", snap.NextPayoutAmount).
			Msg("group snapshot")
	}

	if text := os.Getenv("MAI_SEND_TEXT"); text != "" {
		if err := waitReady(ctx, sess, 10*time.Second); err != nil {
			log.Fatal().Err(err).Msg("room never became ready")
		}
		msg, err := sess.Send(ctx, text)
		if err != nil {
			log.Fatal().Err(err).Msg("send message")
		}
		log.Info().Str("message_id", msg.ID).Msg("message sent")
	}

	log.Info().Msg("session running, ctrl-c to exit")
	<-ctx.Done()
}

// signIn restores a cached session when possible, otherwise logs in with
// the credentials from the environment.
func signIn(ctx context.Context, client *api.Client, store *cache.Store) (*models.User, error) {
	if user, tokens, err := store.LoadAuth(ctx); err == nil {
		client.SetTokens(tokens)
		if !client.TokenExpiringWithin(time.Minute) {
			return &user, nil
		}
		log.Debug().Msg("cached token near expiry, logging in again")
	} else if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	email := os.Getenv("MAI_EMAIL")
	password := os.Getenv("MAI_PASSWORD")
	if email == "" || password == "" {
		return nil, errors.New("MAI_EMAIL and MAI_PASSWORD environment variables are required")
	}

	user, err := client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := store.SaveAuth(ctx, *user, client.Tokens()); err != nil {
		log.Warn().Err(err).Msg("cache session")
	}
	return user, nil
}

// waitReady polls until the room join is confirmed or the deadline passes.
func waitReady(ctx context.Context, sess *session.Session, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if sess.Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return errors.New("timed out waiting for room confirmation")
}
