// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/config"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/export"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/observability"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/session"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/sim"
)

// LiveOptions are the live run switches that are not part of the config
// file.
type LiveOptions struct {
	// Demo replaces the phone stream with a simulated crew in real time.
	Demo bool
	// StrokeCSV, when set, receives every stroke as it is detected.
	StrokeCSV string
}

// paced releases samples no faster than their timestamps.
type paced struct {
	ctx   context.Context
	src   imu.Source
	start time.Time
	t0    float64
	begun bool
}

func (p *paced) Next() (imu.RawSample, error) {
	s, err := p.src.Next()
	if err != nil {
		return s, err
	}
	if !p.begun {
		p.start, p.t0, p.begun = time.Now(), s.T, true
		return s, nil
	}
	due := p.start.Add(time.Duration((s.T - p.t0) * float64(time.Millisecond)))
	if wait := time.Until(due); wait > 0 {
		select {
		case <-time.After(wait):
		case <-p.ctx.Done():
			return s, p.ctx.Err()
		}
	}
	return s, nil
}

// openSource returns the sample source and a closer for it.
func openSource(ctx context.Context, cfg *config.Config, opts LiveOptions, logger *zap.Logger) (imu.Source, func(), error) {
	if opts.Demo {
		sc := sim.DefaultConfig()
		sc.Duration = 0
		sc.Mounting = cfg.Mounting
		sc.Start = float64(time.Now().UnixMilli())
		r, err := sim.NewRowing(sc)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("demo mode: simulated crew", zap.Float64("spm", sc.StrokeRate))
		return &paced{ctx: ctx, src: r}, func() {}, nil
	}
	if cfg.PhoneURL == "" {
		return nil, nil, errors.New("live: PHONE_URL is not set and demo mode is off")
	}
	ws, err := imu.DialWebSocket(ctx, cfg.PhoneURL)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to phone stream", zap.String("url", cfg.PhoneURL))
	return ws, func() { ws.Close() }, nil
}

// RunLive runs the pipeline on a live stream until ctx is done or the
// stream ends, then logs the session summary.
func RunLive(ctx context.Context, cfg *config.Config, opts LiveOptions, logger *zap.Logger) (session.Summary, error) {
	pcfg := cfg.Pipeline()
	if cfg.CalibrationFile != "" {
		rec, err := LoadCalibration(cfg.CalibrationFile)
		if err != nil {
			return session.Summary{}, err
		}
		pcfg.Calibration = rec
		logger.Info("calibration loaded", zap.String("file", cfg.CalibrationFile), zap.String("quality", rec.QualityLabel()))
	}

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return session.Summary{}, err
	}
	status := NewStatus(logger.Named("web"))
	rec := &pipeline.Recorder{}
	obs := pipeline.Observers{rec, metrics, status, NewLogObserver(logger.Named("pipeline"))}

	var pub *Publisher
	if cfg.MQTTBroker != "" {
		client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID, logger)
		if err != nil {
			return session.Summary{}, err
		}
		defer client.Disconnect(250)
		pub = NewPublisher(client, TopicsFrom(cfg), logger.Named("mqtt"))
		obs = append(obs, pub)
	}

	if opts.StrokeCSV != "" {
		f, err := os.Create(opts.StrokeCSV)
		if err != nil {
			return session.Summary{}, fmt.Errorf("csv create %s: %w", opts.StrokeCSV, err)
		}
		strokeLog, err := export.NewStrokeLog(f)
		if err != nil {
			f.Close()
			return session.Summary{}, err
		}
		defer strokeLog.W.Close()
		obs = append(obs, strokeLog)
	}

	p, err := pipeline.New(pcfg, obs)
	if err != nil {
		return session.Summary{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: status.Handler(metrics.Handler())}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("status server listening", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			shutdown, done := context.WithTimeout(context.Background(), time.Second)
			defer done()
			_ = srv.Shutdown(shutdown)
		}()
	}

	var (
		fixMu sync.Mutex
		fixes []gps.Sample
	)
	if cfg.GPSSerialPort != "" {
		port, err := gps.OpenSerial(cfg.GPSSerialPort, uint(cfg.GPSBaudRate))
		if err != nil {
			return session.Summary{}, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				<-ctx.Done()
				port.Close()
			}()
			err := FollowGPS(ctx, port, func(f gps.Sample) {
				fixMu.Lock()
				fixes = append(fixes, f)
				fixMu.Unlock()
				status.OnGPS(f)
				if pub != nil {
					pub.PublishGPS(f)
				}
			}, logger.Named("gps"))
			if err != nil {
				logger.Warn("gps stopped", zap.Error(err))
			}
		}()
	}

	src, closeSrc, err := openSource(ctx, cfg, opts, logger)
	if err != nil {
		cancel()
		wg.Wait()
		return session.Summary{}, err
	}
	go func() {
		<-ctx.Done()
		closeSrc()
	}()

	runErr := pipeline.Run(ctx, src, p)
	if ctx.Err() != nil {
		// shutdown; errors from the closed stream are expected
		runErr = nil
	}
	cancel()
	wg.Wait()

	fixMu.Lock()
	sum := session.Summarize(rec.Strokes, fixes)
	fixMu.Unlock()
	for _, line := range sum.Lines() {
		logger.Info(line)
	}
	return sum, runErr
}
