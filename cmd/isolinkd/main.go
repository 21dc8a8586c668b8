package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/isolink/internal/config"
	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/logging"
	"github.com/danmuck/isolink/internal/observability"
	"github.com/danmuck/isolink/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to switch TOML config")
	addr := flag.String("addr", "", "listen address override")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("isolinkd")

	cfg := config.SwitchConfig{
		Name:    "isolinkd",
		Addr:    ":8583",
		Dialect: "iso87ascii",
		Framing: config.FramingConfig{Type: "binary", Width: 2},
	}
	if *configPath != "" {
		loaded, err := config.LoadSwitchConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("config")
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	packager, err := config.BuildPackager(cfg.Dialect)
	if err != nil {
		log.Fatal().Err(err).Msg("dialect")
	}

	srv, err := server.New(server.Config{
		Name:     cfg.Name,
		Addr:     cfg.Addr,
		Packager: packager,
		Framing:  config.BuildFraming(cfg.Framing),
		Workers:  cfg.Workers,
		Listener: server.ListenerFunc(respond),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
		_ = srv.Shutdown(5 * time.Second)
	}()

	log.Info().Str("addr", cfg.Addr).Str("dialect", packager.Name()).Msg("listening")
	if err := srv.Listen(ctx); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}

// respond answers requests with the matching response MTI, echoing the
// correlation fields and approving with response code 00.
func respond(src server.Source, m *iso.Message) bool {
	mti := m.MTI()
	if len(mti) != 4 || mti[3] != '0' {
		return false
	}
	resp := iso.NewMessage()
	r := []byte(mti)
	r[2]++
	resp.SetMTI(string(r))
	for _, id := range []int{3, 7, 11, 41, 70} {
		if v, ok := m.Get(id); ok {
			resp.Set(id, v)
		}
	}
	resp.SetString(39, "00")
	if err := src.Send(resp); err != nil {
		log.Warn().Err(err).Str("mti", mti).Msg("reply failed")
		return false
	}
	return true
}
