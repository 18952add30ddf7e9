package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	// Device drivers register themselves with mediadevices.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"

	"github.com/dkeye/VoiceClient/internal/adapters/capture"
	router "github.com/dkeye/VoiceClient/internal/adapters/http"
	"github.com/dkeye/VoiceClient/internal/adapters/rtc"
	sig "github.com/dkeye/VoiceClient/internal/adapters/signal"
	"github.com/dkeye/VoiceClient/internal/app/orch"
	"github.com/dkeye/VoiceClient/internal/config"
	"github.com/dkeye/VoiceClient/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("bad flags")
	}
	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	session, err := newSession(cfg, cancel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build session")
	}
	defer session.Close()

	var srv *http.Server
	if cfg.ControlPort > 0 {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.ControlPort)
		srv = &http.Server{
			Addr:    addr,
			Handler: router.SetupRouter(cfg.Mode, session),
		}
		go func() {
			log.Info().Str("addr", addr).Msg("control API started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("control API error")
			}
		}()
	}

	if cfg.Address != "" && cfg.Token != "" {
		if err := session.Join(ctx, cfg.Address, cfg.Token); err != nil {
			log.Error().Err(err).Msg("join failed")
			if srv == nil {
				return
			}
		}
	} else if srv == nil {
		log.Error().Msg("no address/token configured and control API disabled, nothing to do")
		return
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	session.Disconnect()
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("control API forced to shutdown")
		}
	}
	log.Info().Msg("Client exited gracefully")
}

func newSession(cfg *config.Config, stop context.CancelFunc) (*orch.Session, error) {
	engine, err := rtc.NewEngine(rtc.EngineOptions{
		ICEServers:     iceServers(cfg.ICEServers),
		AnswerAsServer: cfg.ForcePassiveSetup,
	})
	if err != nil {
		return nil, err
	}

	media, err := capture.New(capture.Options{
		VideoCodecs:  cfg.VideoCodecs,
		VideoBitrate: cfg.MaxVideoBitrateBPS(),
		AudioBitrate: cfg.AudioBitrate,
		Camera:       capture.Source(cfg.Camera),
		Screen:       capture.Source(cfg.Screen),
		Placeholder:  capture.Source(cfg.Placeholder),
	})
	if err != nil {
		return nil, err
	}

	dialer := sig.NewDialer(sig.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		Retries:    cfg.DialRetries,
	})

	notify := orch.Notifications{
		OnTrack: func(rt domain.RemoteTrack) {
			log.Info().Str("module", "client").Str("track_id", rt.ID).Str("kind", rt.Kind).Msg("remote track available")
		},
		OnTrackEnded: func(rt domain.RemoteTrack) {
			log.Info().Str("module", "client").Str("track_id", rt.ID).Msg("remote track ended")
		},
		OnRemoteMode: func(active bool) {
			log.Info().Str("module", "client").Bool("active", active).Msg("remote video mode")
		},
		OnDisconnect: func(err error) {
			log.Warn().Str("module", "client").AnErr("reason", err).Msg("disconnected by remote")
			if cfg.ControlPort == 0 {
				stop()
			}
		},
	}

	opts := orch.Options{
		HandshakeTimeout:   cfg.HandshakeTimeout,
		ForcePassiveSetup:  cfg.ForcePassiveSetup,
		MaxVideoBitrateBPS: cfg.MaxVideoBitrateBPS(),
		VideoCodecs:        cfg.VideoCodecs,
	}
	return orch.NewSession(dialer, engine, media, notify, opts, log.Logger), nil
}

func iceServers(in []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(in))
	for _, s := range in {
		out = append(out, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}
