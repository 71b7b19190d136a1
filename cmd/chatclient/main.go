package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/relaychat/reactorchat/internal/client"
	"github.com/relaychat/reactorchat/internal/replcli"
)

func main() {
	host := flag.String("host", "127.0.0.1", "chat server host")
	port := flag.Int("port", 8080, "chat server port")
	username := flag.String("user", "", "username to announce on connect")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	conn := client.New(logger, nil)
	interp := replcli.New(conn, os.Stdin, os.Stdout, logger)
	conn.AddCommunicationListener(interp)

	if err := conn.Connect(*host, *port); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	if *username != "" {
		if err := conn.SendUsername(*username); err != nil {
			logger.Error("send username failed", "error", err)
		}
	}

	interp.Start()
}
