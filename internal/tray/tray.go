// Package tray shows the pen connection in the system tray using getlantern/systray.
package tray

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"spenremote/pkg/spen"

	"github.com/getlantern/systray"
)

// Controller is what the tray menu drives.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// Tray manages the tray icon and its Connect / Disconnect / Quit menu.
type Tray struct {
	ctrl   Controller
	logger *slog.Logger
	onQuit func()

	mu         sync.Mutex
	ready      bool
	state      spen.ConnectionState
	status     *systray.MenuItem
	connect    *systray.MenuItem
	disconnect *systray.MenuItem
	quitCh     chan struct{}
}

// New creates a tray driving ctrl. onQuit runs when Quit is chosen.
func New(ctrl Controller, onQuit func(), logger *slog.Logger) *Tray {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tray{
		ctrl:   ctrl,
		logger: logger.With("component", "tray"),
		onQuit: onQuit,
		state:  spen.StateDisconnected,
		quitCh: make(chan struct{}),
	}
}

// Run starts the tray event loop. It blocks until Stop and must run on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.setupMenu, func() { close(t.quitCh) })
}

// Stop ends the tray event loop.
func (t *Tray) Stop() {
	systray.Quit()
}

// SetState updates the icon and menu for state. Safe to call before Run.
func (t *Tray) SetState(state spen.ConnectionState) {
	t.mu.Lock()
	t.state = state
	ready := t.ready
	t.mu.Unlock()
	if ready {
		t.render(state)
	}
}

func (t *Tray) setupMenu() {
	systray.SetTitle("S Pen")
	systray.SetTooltip("S Pen remote bridge")

	status := systray.AddMenuItem(statusLabel(spen.StateDisconnected), "")
	status.Disable()
	systray.AddSeparator()
	connect := systray.AddMenuItem("Connect", "Connect to the pen service")
	disconnect := systray.AddMenuItem("Disconnect", "Release the pen service")
	systray.AddSeparator()
	quit := systray.AddMenuItem("Quit", "Stop the bridge")

	t.mu.Lock()
	t.status, t.connect, t.disconnect = status, connect, disconnect
	t.ready = true
	state := t.state
	t.mu.Unlock()
	t.render(state)

	go t.loop(connect, disconnect, quit)
}

func (t *Tray) loop(connect, disconnect, quit *systray.MenuItem) {
	for {
		select {
		case <-connect.ClickedCh:
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := t.ctrl.Connect(ctx); err != nil {
					t.logger.Warn("connect from tray failed", "error", err)
				}
			}()
		case <-disconnect.ClickedCh:
			t.ctrl.Disconnect()
		case <-quit.ClickedCh:
			if t.onQuit != nil {
				t.onQuit()
			}
			systray.Quit()
			return
		case <-t.quitCh:
			return
		}
	}
}

func (t *Tray) render(state spen.ConnectionState) {
	t.mu.Lock()
	status, connect, disconnect := t.status, t.connect, t.disconnect
	t.mu.Unlock()

	systray.SetIcon(Icon(state))
	status.SetTitle(statusLabel(state))
	if state == spen.StateConnected {
		connect.Disable()
		disconnect.Enable()
	} else {
		connect.Enable()
		disconnect.Disable()
	}
}

func statusLabel(state spen.ConnectionState) string {
	switch state {
	case spen.StateConnected:
		return "Pen: connected"
	case spen.StateDisconnectedUnknownReason:
		return "Pen: connection lost"
	default:
		return "Pen: disconnected"
	}
}

// stateColor returns the BGRA fill of the icon for state.
func stateColor(state spen.ConnectionState) [4]byte {
	switch state {
	case spen.StateConnected:
		return [4]byte{0x50, 0xaf, 0x4c, 0xff}
	case spen.StateDisconnectedUnknownReason:
		return [4]byte{0x07, 0x98, 0xff, 0xff}
	default:
		return [4]byte{0x9e, 0x9e, 0x9e, 0xff}
	}
}

const iconSize = 16

// Icon renders a 16x16 32-bit ICO: a filled disc in the state colour.
func Icon(state spen.ConnectionState) []byte {
	const (
		headerLen = 6 + 16
		dibLen    = 40
		pixelLen  = iconSize * iconSize * 4
		maskLen   = iconSize * 4 // 1bpp rows padded to 32 bits
	)
	buf := make([]byte, headerLen+dibLen+pixelLen+maskLen)

	// ICONDIR + one ICONDIRENTRY
	binary.LittleEndian.PutUint16(buf[2:], 1)
	binary.LittleEndian.PutUint16(buf[4:], 1)
	buf[6], buf[7] = iconSize, iconSize
	binary.LittleEndian.PutUint16(buf[10:], 1)
	binary.LittleEndian.PutUint16(buf[12:], 32)
	binary.LittleEndian.PutUint32(buf[14:], dibLen+pixelLen+maskLen)
	binary.LittleEndian.PutUint32(buf[18:], headerLen)

	// BITMAPINFOHEADER; height covers image and mask
	dib := buf[headerLen:]
	binary.LittleEndian.PutUint32(dib[0:], dibLen)
	binary.LittleEndian.PutUint32(dib[4:], iconSize)
	binary.LittleEndian.PutUint32(dib[8:], iconSize*2)
	binary.LittleEndian.PutUint16(dib[12:], 1)
	binary.LittleEndian.PutUint16(dib[14:], 32)
	binary.LittleEndian.PutUint32(dib[20:], pixelLen)

	color := stateColor(state)
	pixels := dib[dibLen:]
	const c = (iconSize - 1) / 2.0
	for y := 0; y < iconSize; y++ {
		for x := 0; x < iconSize; x++ {
			dx, dy := float64(x)-c, float64(y)-c
			if dx*dx+dy*dy <= 6.5*6.5 {
				copy(pixels[(y*iconSize+x)*4:], color[:])
			}
		}
	}
	return buf
}
