package device

import (
	"context"
	"errors"
	"sync"

	ghid "github.com/go-ctap/hid"
	"github.com/samber/lo"
	"github.com/samber/mo"

	"github.com/go-ctap/keylink/pkg/ctaptypes"
	"github.com/go-ctap/keylink/pkg/options"
)

// EnumerateFIDODevices lists the HID devices exposing the FIDO usage page.
func EnumerateFIDODevices(opts ...options.Option) ([]*ghid.DeviceInfo, error) {
	oo := options.NewOptions(opts...)
	ctx := context.WithValue(oo.Context, CtxKeyUseNamedPipe, oo.UseNamedPipe)

	devInfos := make([]*ghid.DeviceInfo, 0)
	for devInfo, err := range Enumerate(ctx) {
		if err != nil {
			return nil, err
		}
		if devInfo.UsagePage != fidoUsagePage || devInfo.Usage != fidoUsage {
			continue
		}
		devInfos = append(devInfos, devInfo)
	}

	return devInfos, nil
}

// SelectDevice picks a device by asking the user to touch one of the
// connected authenticators. Requires FIDO 2.1 (or 2.1 PRE) for the selection
// command; with a single candidate it is opened directly.
func SelectDevice(opts ...options.Option) (*Device, error) {
	oo := options.NewOptions(opts...)

	if oo.Paths == nil {
		devInfos, err := EnumerateFIDODevices(opts...)
		if err != nil {
			return nil, err
		}
		oo.Paths = lo.Map(devInfos, func(devInfo *ghid.DeviceInfo, _ int) string {
			return devInfo.Path
		})
	}

	if len(oo.Paths) == 1 {
		return New(oo.Paths[0], opts...)
	}

	devices := make([]*Device, 0)
	for _, p := range oo.Paths {
		dev, err := New(p, opts...)
		if err != nil {
			return nil, err
		}

		if !dev.info.Versions.Supports(ctaptypes.FIDO_2_1) &&
			!dev.info.Versions.Supports(ctaptypes.FIDO_2_1_PRE) {
			_ = dev.Close()
			continue
		}

		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	return raceSelection(oo.Context, devices)
}

// raceSelection runs the selection command on every device at once. The first
// device to see a touch wins; everyone else gets cancelled. Cancelling parent
// aborts the race, closes all devices and returns the context error.
func raceSelection(parent context.Context, devices []*Device) (*Device, error) {
	selection := make(chan mo.Either[*Device, error], len(devices))

	var wg sync.WaitGroup
	var once sync.Once

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	for _, dev := range devices {
		wg.Add(1)
		go func(dev *Device) {
			defer wg.Done()

			// Blocks until ctx is cancelled or this device is touched.
			err := dev.Selection(ctx)

			if !errors.Is(ctx.Err(), context.Canceled) {
				once.Do(func() {
					cancel()
					if err != nil {
						selection <- mo.Right[*Device, error](err)
						return
					}
					selection <- mo.Left[*Device, error](dev)
				})
			}
		}(dev)
	}

	wg.Wait()

	// The channel is buffered, so a winning goroutine has sent before its
	// wg.Done. An empty channel means parent was cancelled before any touch
	// and nobody won the race.
	var sel mo.Either[*Device, error]
	select {
	case sel = <-selection:
	default:
		for _, dev := range devices {
			_ = dev.Close()
		}
		return nil, parent.Err()
	}

	if err, ok := sel.Right(); ok {
		return nil, err
	}
	selected := sel.MustLeft()

	for _, dev := range devices {
		if dev.Path == selected.Path {
			continue
		}
		if err := dev.Close(); err != nil {
			return nil, err
		}
	}

	return selected, nil
}
