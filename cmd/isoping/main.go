package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/isolink/internal/channel"
	"github.com/danmuck/isolink/internal/config"
	"github.com/danmuck/isolink/internal/iso"
	"github.com/danmuck/isolink/internal/logging"
	"github.com/danmuck/isolink/internal/mux"
	"github.com/danmuck/isolink/internal/observability"
)

func main() {
	configPath := flag.String("config", "", "path to probe TOML config")
	addr := flag.String("addr", "", "switch address override")
	count := flag.Int("n", 1, "number of echo requests")
	flag.Parse()

	logging.ConfigureRuntime()
	observability.InitLogger("isoping")

	cfg := config.ProbeConfig{
		Terminal:  "ISOPROBE",
		TimeoutMS: 5000,
		Dialect:   "iso87ascii",
		Framing:   config.FramingConfig{Type: "binary", Width: 2},
	}
	if *configPath != "" {
		loaded, err := config.LoadProbeConfig(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("config")
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if cfg.Addr == "" {
		log.Fatal().Msg("switch address required (-addr or config)")
	}

	packager, err := config.BuildPackager(cfg.Dialect)
	if err != nil {
		log.Fatal().Err(err).Msg("dialect")
	}

	ch, err := channel.New(channel.Config{
		Name:     "isoping",
		Addr:     cfg.Addr,
		Packager: packager,
		Framing:  config.BuildFraming(cfg.Framing),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("channel")
	}
	if err := ch.Connect(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer func() { _ = ch.Disconnect() }()

	m, err := mux.New(mux.Config{Name: "isoping", Channel: ch})
	if err != nil {
		log.Fatal().Err(err).Msg("mux")
	}

	for i := 1; i <= *count; i++ {
		req := echoRequest(cfg.Terminal, i)
		start := time.Now()
		resp, err := m.Request(req, cfg.Timeout())
		rtt := time.Since(start)
		switch {
		case err == nil:
			fmt.Printf("echo %d: mti=%s code=%s rtt=%v\n", i, resp.MTI(), resp.GetString(39), rtt)
		case errors.Is(err, mux.ErrNoResponse):
			fmt.Printf("echo %d: no response after %v\n", i, rtt)
		default:
			log.Fatal().Err(err).Msg("request")
		}
	}
}

func echoRequest(terminal string, stan int) *iso.Message {
	m := iso.NewMessage()
	m.SetMTI("0800")
	m.SetString(7, time.Now().UTC().Format("0102150405"))
	m.SetString(11, fmt.Sprintf("%06d", stan))
	m.SetString(41, terminal)
	m.SetString(70, "301")
	return m
}
