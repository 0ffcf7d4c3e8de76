//go:build !windows
// +build !windows

package ptyattach

import (
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// osPTY adapts *os.File from creack/pty to the handle interface.
type osPTY struct {
	*os.File
}

func (p *osPTY) getSize() (cols, rows int, err error) {
	ws, err := pty.GetsizeFull(p.File)
	if err != nil {
		return 0, 0, err
	}
	return int(ws.Cols), int(ws.Rows), nil
}

func (p *osPTY) setSize(cols, rows int) error {
	return pty.Setsize(p.File, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// startWithPTY launches cmd with a PTY controlling terminal.
func startWithPTY(cmd *exec.Cmd) (handle, error) {
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, err
	}
	return &osPTY{File: f}, nil
}
