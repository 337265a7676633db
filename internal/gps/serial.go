// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
)

// OpenSerial opens a receiver on a serial port, 8N1.
// Typical ports: /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	rwc, err := serial.Open(serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("gps serial open %s: %w", port, err)
	}
	return rwc, nil
}

// Stream reads NMEA lines from r and delivers every completed Sample to out
// until ctx is cancelled or r is exhausted. Unparseable lines are reported
// through onError (may be nil) and skipped; a noisy receiver never stops the
// stream. Stream closes out when it returns.
func Stream(ctx context.Context, r io.Reader, out chan<- Sample, onError func(error)) error {
	defer close(out)

	var tracker Tracker
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s, ok, err := tracker.Feed(scanner.Text())
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- s:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("gps read: %w", err)
	}
	return nil
}
