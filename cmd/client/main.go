package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gookit/color"

	"chat-relay/client"
	"chat-relay/wire"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const maxInputLine = 1 << 20

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	config, err := loadConfig()
	if err != nil {
		return exitConfig, err
	}
	if len(os.Args) > 1 {
		config.Nickname = os.Args[1]
	}
	if config.Nickname == "" {
		return exitConfig, fmt.Errorf("usage: %s <nickname> (or set NICKNAME)", filepath.Base(os.Args[0]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := client.DialContext(ctx, config.ServerAddress, config.Nickname)
	if err != nil {
		return exitRuntime, err
	}
	defer func() { _ = conn.Close() }()

	// A signal unblocks both loops by closing the socket.
	unblock := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer unblock()

	color.Green.Printf(">>> Connected to %s as %s. Commands: .file <path>, .image <path>, .quit\n",
		config.ServerAddress, config.Nickname)

	go receiveLoop(ctx, conn, config)

	return inputLoop(ctx, conn, config)
}

// receiveLoop prints incoming texts and saves incoming files and
// images to their local directories, the way every peer of the relay
// does.
func receiveLoop(ctx context.Context, conn *client.Conn, config Config) {
	for {
		frame, err := conn.Receive()
		if err != nil {
			if ctx.Err() == nil {
				color.Red.Printf("Connection lost: %v\n", err)
			}
			return
		}
		switch f := frame.(type) {
		case wire.TextFrame:
			color.Cyan.Println(f.Text)
		case wire.FileFrame:
			saveIncoming(config.FilesDir, f.Filename, f.Data)
		case wire.ImageFrame:
			saveIncoming(config.ImagesDir, f.Filename, f.Data)
		}
	}
}

func saveIncoming(dir, filename string, data []byte) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		color.Red.Printf("Cannot create %s: %v\n", dir, err)
		return
	}
	// Base strips any path the sender smuggled into the name.
	target := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		color.Red.Printf("Cannot save %s: %v\n", target, err)
		return
	}
	color.Yellow.Printf("Received %s (%d bytes), saved to %s\n", filename, len(data), target)
}

func inputLoop(ctx context.Context, conn *client.Conn, config Config) (int, error) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxInputLine)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return exitOK, nil
		}
		line := scanner.Text()
		switch {
		case line == ".quit":
			_ = conn.Quit()
			return exitOK, nil
		case strings.HasPrefix(line, ".file "):
			if err := sendFile(conn, strings.TrimSpace(strings.TrimPrefix(line, ".file ")), false); err != nil {
				color.Red.Printf("Sending file failed: %v\n", err)
			}
		case strings.HasPrefix(line, ".image "):
			if err := sendFile(conn, strings.TrimSpace(strings.TrimPrefix(line, ".image ")), true); err != nil {
				color.Red.Printf("Sending image failed: %v\n", err)
			}
		case line == "":
			// Nothing to send.
		default:
			if err := conn.SendText(line); err != nil {
				return exitRuntime, fmt.Errorf("sending text: %w", err)
			}
		}
	}
	if ctx.Err() != nil {
		return exitOK, nil
	}
	if err := scanner.Err(); err != nil {
		return exitRuntime, fmt.Errorf("reading input: %w", err)
	}
	// Stdin closed: leave politely.
	_ = conn.Quit()
	return exitOK, nil
}

func sendFile(conn *client.Conn, path string, asImage bool) error {
	if path == "" {
		return fmt.Errorf("missing path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	filename := filepath.Base(path)
	if asImage {
		if detected := mimetype.Detect(data); !strings.HasPrefix(detected.String(), "image/") {
			color.Yellow.Printf("Warning: %s looks like %s, sending anyway\n", filename, detected.String())
		}
		return conn.SendImage(filename, data)
	}
	return conn.SendFile(filename, data)
}
