package app

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/config"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
)

// FollowGPS parses NMEA from r and hands every fix to onFix until ctx is
// done or r ends. Parse errors are logged at debug level and skipped.
func FollowGPS(ctx context.Context, r io.Reader, onFix func(gps.Sample), logger *zap.Logger) error {
	fixes := make(chan gps.Sample, 8)
	done := make(chan error, 1)
	go func() {
		done <- gps.Stream(ctx, r, fixes, func(err error) {
			// noisy receivers emit partial sentences all the time
			logger.Debug("NMEA parse error", zap.Error(err))
		})
	}()
	for s := range fixes {
		onFix(s)
	}
	err := <-done
	if ctx.Err() != nil {
		// cancelled, possibly by closing r under the reader
		return nil
	}
	return err
}

// RunGPSProducer opens the receiver on the configured serial port and
// publishes each fix to the GPS topic.
func RunGPSProducer(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	client, err := ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-gps", logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	pub := NewPublisher(client, Topics{GPS: cfg.TopicGPS}, logger)

	port, err := gps.OpenSerial(cfg.GPSSerialPort, uint(cfg.GPSBaudRate))
	if err != nil {
		return err
	}
	logger.Info("GPS serial port opened", zap.String("port", cfg.GPSSerialPort), zap.Int("baud", cfg.GPSBaudRate))

	// closing the port unblocks the reader on cancellation
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	return FollowGPS(ctx, port, func(s gps.Sample) {
		pub.PublishGPS(s)
		logger.Debug("published GPS fix",
			zap.Float64("lat", s.Lat),
			zap.Float64("lon", s.Lon),
			zap.Float64("speed", s.Speed))
	}, logger)
}
