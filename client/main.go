// client/main.go is a small bot for exercising a running lobby. It joins (or
// spectates), logs every line, and answers turn prompts: check, falling back
// to call and then fold when the server refuses.
package main

import (
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gorilla/websocket"

	"github.com/wfunc/pokerlobby/logger"
	"github.com/wfunc/pokerlobby/network"
)

var fallbacks = []network.Command{network.CmdCheck, network.CmdCall, network.CmdFold}

type CLI struct {
	Addr     string        `help:"Lobby address" default:"localhost:1337"`
	Name     string        `short:"n" help:"Display name" default:"bot"`
	Spectate bool          `help:"Watch instead of playing"`
	Think    time.Duration `help:"Delay before acting" default:"500ms"`
	LogLevel string        `help:"Log level" default:"info"`
}

func main() {
	var cli CLI
	kong.Parse(&cli, kong.Description("Lobby bot"))

	logger.InitLevel(cli.LogLevel)
	defer logger.Sync()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	u := url.URL{Scheme: "ws", Host: cli.Addr, Path: "/ws"}
	logger.Log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	outbound := make(chan string, 8)
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		attempt := -1 // index into fallbacks while a decision is pending
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				logger.Log.Infow("read stopped", "error", err)
				return
			}
			line := string(message)
			logger.Log.Infow("<- recv", "line", line)

			switch {
			case line == string(network.CmdTurnPrompt):
				attempt = 0
			case line == string(network.CmdUnrecognized) && attempt >= 0 && attempt+1 < len(fallbacks):
				attempt++
			case line == string(network.CmdGameOver):
				logger.Log.Info("game over, leaving")
				return
			default:
				continue
			}

			if attempt >= 0 {
				cmd := fallbacks[attempt]
				go func() {
					time.Sleep(cli.Think)
					outbound <- string(cmd)
				}()
				if cmd == network.CmdFold {
					attempt = -1
				}
			}
		}
	}()

	if cli.Spectate {
		outbound <- string(network.CmdSpectate)
	} else {
		outbound <- string(network.CmdJoin) + ":" + strings.TrimSpace(cli.Name)
	}

	// Write loop
	for {
		select {
		case <-done:
			return
		case text := <-outbound:
			logger.Log.Infow("-> send", "line", text)
			if err := c.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				logger.Log.Errorw("write failed", "error", err)
				return
			}
		case <-interrupt:
			logger.Log.Info("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				logger.Log.Warnw("write close failed", "error", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
