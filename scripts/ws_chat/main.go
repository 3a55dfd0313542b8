package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/roomcast/roomcast-server/internal/chat"
	"github.com/roomcast/roomcast-server/internal/client"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	nick := flag.String("nick", "cli-user", "nickname")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	mgr := client.New(client.Options{
		URL:      *addr,
		Room:     *room,
		Nickname: *nick,
		Backoff:  client.DefaultBackoff,
		Dialer:   client.WebSocketDialer{},
		OnState: func(s client.State) {
			fmt.Printf("* connection: %s\n", s)
		},
		OnMessages: func(msgs []chat.Message) {
			for _, m := range msgs {
				ts := time.UnixMilli(m.Timestamp).Format("15:04:05")
				if m.Type == chat.TypeSystem {
					fmt.Printf("[%s] * %s\n", ts, m.Text)
					continue
				}
				fmt.Printf("[%s] %s: %s\n", ts, m.Nickname, m.Text)
			}
		},
	})
	mgr.Start()
	defer mgr.Close()

	fmt.Printf("Connecting to %s as %s in room %s\n", *addr, *nick, *room)
	fmt.Println("Type messages and press Enter to send. /room <name> switches rooms. Ctrl+C to exit.")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-sigCh:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if target, found := strings.CutPrefix(line, "/room "); found {
				mgr.SetRoom(strings.TrimSpace(target))
				fmt.Printf("* switched to room %s\n", mgr.Room())
				continue
			}
			if err := mgr.SendMessage(line); err != nil {
				if errors.Is(err, client.ErrNotConnected) {
					fmt.Println("* not connected, message dropped")
					continue
				}
				log.Printf("send: %v", err)
			}
		}
	}
}
