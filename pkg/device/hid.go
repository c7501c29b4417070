//go:build !windows

package device

import (
	"context"
	"errors"
	"io"
	"iter"

	ghid "github.com/go-ctap/hid"
	"github.com/sstallion/go-hid"
)

type ctxKey int

// CtxKeyUseNamedPipe routes device access through the HID proxy pipe instead
// of the local HID stack; only available on Windows.
const CtxKeyUseNamedPipe ctxKey = iota

// Enumerate yields every HID device visible to the local HID stack.
func Enumerate(ctx context.Context) iter.Seq2[*ghid.DeviceInfo, error] {
	return func(yield func(*ghid.DeviceInfo, error) bool) {
		if v, ok := ctx.Value(CtxKeyUseNamedPipe).(bool); ok && v {
			yield(nil, ErrNotSupported)
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

func OpenPath(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	if v, ok := ctx.Value(CtxKeyUseNamedPipe).(bool); ok && v {
		return nil, ErrNotSupported
	}

	return hid.OpenPath(path)
}
