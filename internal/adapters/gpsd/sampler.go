package gpsd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/waypulse/waypulse/internal/core/domain"
	"github.com/waypulse/waypulse/internal/core/ports"
	"github.com/waypulse/waypulse/internal/pkg/geospatial"
)

const (
	dialTimeout     = 5 * time.Second
	firstFixTimeout = 30 * time.Second
)

// Sampler implements ports.Sampler against a gpsd daemon speaking
// newline-delimited JSON over TCP. An unreachable daemon means position
// access is not granted on this host, so dial failures map to
// domain.ErrPermissionDenied rather than a transient error.
type Sampler struct {
	addr string
}

func New(addr string) *Sampler {
	return &Sampler{addr: addr}
}

// tpv is a gpsd time-position-velocity report. Mode 2 is a 2D fix, mode 3
// adds altitude.
type tpv struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

func (t tpv) usable(highAccuracy bool) bool {
	if t.Class != "TPV" {
		return false
	}
	if highAccuracy {
		return t.Mode >= 3
	}
	return t.Mode >= 2
}

func (s *Sampler) dial(ctx context.Context) (net.Conn, *bufio.Scanner, error) {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: gpsd unreachable at %s: %v",
			domain.ErrPermissionDenied, s.addr, err)
	}
	if _, err := conn.Write([]byte(`?WATCH={"enable":true,"json":true}` + "\n")); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("%w: enable watch: %v", domain.ErrPermissionDenied, err)
	}
	return conn, bufio.NewScanner(conn), nil
}

// Current returns a one-shot fix, waiting for the first usable TPV report.
func (s *Sampler) Current(ctx context.Context, opts ports.WatchOptions) (domain.Coordinate, error) {
	conn, scanner, err := s.dial(ctx)
	if err != nil {
		return domain.Coordinate{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(firstFixTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)

	for scanner.Scan() {
		var report tpv
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.usable(opts.HighAccuracy) {
			return domain.Coordinate{report.Lon, report.Lat}, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.Coordinate{}, err
	}
	return domain.Coordinate{}, fmt.Errorf("%w: no position fix from gpsd",
		domain.ErrPermissionDenied)
}

// Watch streams fixes to fn until the returned stop function is called.
// Reports closer than MinDistanceMeters to the last accepted fix, or sooner
// than MinIntervalMs after it, are dropped. Stop is synchronous.
func (s *Sampler) Watch(ctx context.Context, opts ports.WatchOptions, fn func(domain.Coordinate)) (func(), error) {
	conn, scanner, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer conn.Close()

		var last domain.Coordinate
		var lastAt time.Time
		have := false
		minInterval := time.Duration(opts.MinIntervalMs) * time.Millisecond

		for scanner.Scan() {
			var report tpv
			if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
				continue
			}
			if !report.usable(opts.HighAccuracy) {
				continue
			}
			fix := domain.Coordinate{report.Lon, report.Lat}
			now := time.Now()
			if have {
				if now.Sub(lastAt) < minInterval {
					continue
				}
				moved := geospatial.Haversine(last.Lat(), last.Lng(), fix.Lat(), fix.Lng())
				if moved < opts.MinDistanceMeters {
					continue
				}
			}
			last, lastAt, have = fix, now, true
			fn(fix)
		}
		if err := scanner.Err(); err != nil && err != io.EOF && ctx.Err() == nil {
			slog.Debug("gpsd watch ended", "err", err)
		}
	}()

	stopCtx := context.AfterFunc(ctx, func() { conn.Close() })
	stop := func() {
		stopCtx()
		conn.Close()
		<-done
	}
	return stop, nil
}
