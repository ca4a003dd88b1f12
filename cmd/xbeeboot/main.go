// Command xbeeboot opens a reliable byte-stream session to an
// STK500v1/optiboot bootloader over a local or remote XBee Series 2
// radio, and pipes stdin/stdout through it: a minimal driver for a
// programmer like avrdude to sit behind via a pty, or for interactive
// poking from a terminal.
package main

import (
	"flag"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/davidsainty/xbeeboot/xbeeboot"
)

var (
	flagPort     = flag.String("port", "", `port spec: "@/dev/ttyUSB0" for direct mode, "0013A20012345678@/dev/ttyUSB0" for OTA`)
	flagBaud     = flag.Int("baud", 0, "baud rate override (0 = mode default: 19200 direct, 9600 OTA)")
	flagResetPin = flag.String("xbeeresetpin", "", "OTA reset pin override, DIO 1-6 (default 3)")
	flagVerbose  = flag.Bool("v", false, "verbose (debug-level) logging")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *flagVerbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if *flagPort == "" {
		log.Fatal().Msg("missing -port")
	}

	opts := xbeeboot.OpenOptions{Baud: *flagBaud, Log: log.Logger}
	if *flagResetPin != "" {
		pin, err := xbeeboot.ParseResetPin(*flagResetPin)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid -xbeeresetpin")
		}
		opts.ResetPin = pin
	}

	session, err := xbeeboot.Open(*flagPort, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open xbeeboot session")
	}
	defer session.Close()

	log.Info().Str("port", *flagPort).Msg("session established, piping stdin/stdout")

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				if err := session.SendBytes(buf[:n]); err != nil {
					log.Error().Err(err).Msg("send failed")
					os.Exit(1)
				}
			}
			if err != nil {
				if err != io.EOF {
					log.Error().Err(err).Msg("stdin read failed")
				}
				return
			}
		}
	}()

	buf := make([]byte, 64)
	for {
		n, err := session.RecvBytes(buf[:1])
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			log.Error().Err(err).Msg("recv failed")
			break
		}
	}

	for _, s := range session.Stats().Summaries() {
		log.Debug().
			Str("group", s.Group.String()).
			Int("count", s.Count).
			Dur("min", s.Min).
			Dur("max", s.Max).
			Dur("mean", s.Mean).
			Msg("latency summary")
	}
}
