package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-ctap/keylink/pkg/device"
	"github.com/go-ctap/keylink/pkg/options"
)

func main() {
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelInfo)
	if os.Getenv("KEYLINK_DEBUG") != "" {
		lvl.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))

	dev, err := device.SelectDevice(
		// Uncomment on Windows when FIDO HID access requires the broker.
		//options.WithUseNamedPipes(),
		options.WithLogger(logger),
	)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = dev.Close()
	}()

	info := dev.Info()
	fmt.Printf("Device: %s\n", dev.Path)
	fmt.Printf("Firmware: %s\n", dev.Transport().Version())
	fmt.Printf("AAGUID: %s\n", info.AAGUID)
	fmt.Printf("Versions: %v\n", info.Versions)
	fmt.Printf("PIN/UV auth protocols: %v\n", info.PinUvAuthProtocols)
	for option, enabled := range info.Options {
		fmt.Printf("  option %s: %t\n", option, enabled)
	}

	if err := dev.Ping([]byte("keylink")); err != nil {
		panic(err)
	}
	fmt.Println("Ping: ok")

	if clientPin, ok := info.Options["clientPin"]; ok && clientPin {
		retries, powerCycleRequired, err := dev.Session().GetPINRetries(info.PinUvAuthProtocols[0])
		if err != nil {
			panic(err)
		}
		fmt.Printf("PIN retries: %d\n", retries)
		fmt.Printf("Power cycle required: %t\n", powerCycleRequired)
	}
}
