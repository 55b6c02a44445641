// sleuth is the terminal client. It reads operator commands from stdin and
// prints server notifications to stdout.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/cyberinferno/sleuthnet/client"
	"github.com/cyberinferno/sleuthnet/config"
	"github.com/cyberinferno/sleuthnet/discovery"
	"github.com/cyberinferno/sleuthnet/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	var browse bool
	flagSet := pflag.NewFlagSet("sleuth", pflag.ContinueOnError)
	flagSet.StringVarP(&cfg.ServerAddr, "server", "s", cfg.ServerAddr, "server address")
	flagSet.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "automatic reconnect attempts")
	flagSet.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "pause between reconnect attempts")
	flagSet.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "how long to wait for a reply (0 waits forever)")
	flagSet.StringVar(&cfg.DiscoveryAddr, "discovery", cfg.DiscoveryAddr, "UDP address receiving LAN announcements")
	flagSet.BoolVar(&browse, "browse", false, "collect games announced on the LAN (list them with /lan)")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.NewConsole("sleuth", level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var lan chan client.LANGame
	if browse && cfg.DiscoveryAddr != "" {
		conn, err := net.ListenPacket("udp4", cfg.DiscoveryAddr)
		if err != nil {
			log.Warn("LAN browsing disabled", logger.Err(err))
		} else {
			defer conn.Close()
			lan = make(chan client.LANGame, 16)
			go browseLAN(ctx, conn, lan, log)
		}
	}

	transport := client.TransportConfig{
		Address:      cfg.ServerAddr,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxPayload:   cfg.MaxPayload(),
	}

	c := client.New(client.Config{
		Dial: func(ctx context.Context) (client.Conn, error) {
			t, err := client.Dial(ctx, transport)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		ReconnectDelay: cfg.ReconnectDelay,
		MaxAttempts:    cfg.MaxAttempts,
		RequestTimeout: cfg.RequestTimeout,
		LAN:            lan,
		View:           textView{w: os.Stdout},
		Logger:         log,
	})

	err = c.Run(ctx, client.LineInput(os.Stdin))
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// browseLAN forwards announcements to the client. Announcements repeat, so
// one that arrives while the client is busy is dropped.
func browseLAN(ctx context.Context, conn net.PacketConn, out chan<- client.LANGame, log logger.Logger) {
	err := discovery.Browse(ctx, conn, func(a discovery.Announcement, from net.Addr) {
		g := client.LANGame{
			Addr:      a.ServerAddr(from),
			SessionID: a.SessionID,
			CaseTitle: a.CaseTitle,
			HostName:  a.HostName,
			Public:    a.Public,
			Code:      a.Code,
		}
		select {
		case out <- g:
		default:
		}
	})
	if err != nil {
		log.Warn("LAN browsing stopped", logger.Err(err))
	}
}
