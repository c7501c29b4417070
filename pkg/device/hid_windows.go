package device

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/Microsoft/go-winio"
	"github.com/fxamacker/cbor/v2"
	ghid "github.com/go-ctap/hid"
	"github.com/sstallion/go-hid"

	"github.com/go-ctap/keylink/pkg/hidproxy"
)

type ctxKey int

// CtxKeyUseNamedPipe routes device access through the HID proxy pipe instead
// of the local HID stack.
const CtxKeyUseNamedPipe ctxKey = iota

// Enumerate yields every HID device visible either to the local HID stack or
// to the HID proxy broker.
func Enumerate(ctx context.Context) iter.Seq2[*ghid.DeviceInfo, error] {
	return func(yield func(*ghid.DeviceInfo, error) bool) {
		if v, ok := ctx.Value(CtxKeyUseNamedPipe).(bool); ok && v {
			enumerateProxy(ctx, yield)
			return
		}

		breakErr := errors.New("break")

		if err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
			if !yield(&ghid.DeviceInfo{
				Path:         info.Path,
				VendorID:     info.VendorID,
				ProductID:    info.ProductID,
				SerialNbr:    info.SerialNbr,
				ReleaseNbr:   info.ReleaseNbr,
				MfrStr:       info.MfrStr,
				ProductStr:   info.ProductStr,
				UsagePage:    info.UsagePage,
				Usage:        info.Usage,
				InterfaceNbr: info.InterfaceNbr,
			}, nil) {
				return breakErr
			}
			return nil
		}); err != nil && !errors.Is(err, breakErr) {
			yield(nil, err)
		}
	}
}

func enumerateProxy(ctx context.Context, yield func(*ghid.DeviceInfo, error) bool) {
	pipe, err := winio.DialPipeContext(ctx, hidproxy.NamedPipePath)
	if err != nil {
		yield(nil, err)
		return
	}
	defer pipe.Close()

	msg, err := hidproxy.NewMessage(hidproxy.CommandEnumerate, nil)
	if err != nil {
		yield(nil, err)
		return
	}
	if _, err := msg.WriteTo(pipe); err != nil {
		yield(nil, err)
		return
	}

	msg, err = hidproxy.ParseMessage(pipe)
	if err != nil {
		yield(nil, err)
		return
	}

	var devInfos []*ghid.DeviceInfo
	if err := cbor.Unmarshal(msg.Data, &devInfos); err != nil {
		yield(nil, err)
		return
	}

	for _, info := range devInfos {
		if !yield(info, nil) {
			return
		}
	}
}

func OpenPath(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	if v, ok := ctx.Value(CtxKeyUseNamedPipe).(bool); ok && v {
		pipe, err := winio.DialPipeContext(ctx, hidproxy.NamedPipePath)
		if err != nil {
			return nil, err
		}

		msg, err := hidproxy.NewMessage(hidproxy.CommandStart, path)
		if err != nil {
			return nil, err
		}
		if _, err := msg.WriteTo(pipe); err != nil {
			return nil, err
		}

		return pipe, nil
	}

	return hid.OpenPath(path)
}
