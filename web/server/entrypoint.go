// Package server implements the entry point for running the simulated sensors and their web
// server.
package server

import (
	"context"
	"net"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/simsensors/rangecloud/config"
	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/robot"
	"github.com/simsensors/rangecloud/web"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile string `flag:"0,required,usage=robot config file"`
	Debug      bool   `flag:"debug"`
	WebProfile bool   `flag:"webprofile,usage=include profiler in http server"`
}

// RunServer is an entry point to starting the simulated devices and the web server that can be
// called by main in a code sample or otherwise be used to initialize the server.
func RunServer(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	initialReadCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	cfg, err := config.Read(initialReadCtx, argsParsed.ConfigFile, logger)
	cancel()
	if err != nil {
		return err
	}

	if argsParsed.Debug || cfg.Log.Debug {
		logger.SetLevel(logging.DEBUG)
	}
	if cfg.Log.File != "" {
		fileAppender := logging.NewFileAppender(cfg.Log.File, cfg.Log.MaxSizeMB)
		logger.AddAppender(fileAppender)
		defer func() {
			err = multierr.Combine(err, fileAppender.Close())
		}()
	}

	err = serveWeb(ctx, cfg, argsParsed, logger)
	if err != nil {
		logger.Errorw("error serving web", "error", err)
	}
	return err
}

func serveWeb(ctx context.Context, cfg *config.Config, argsParsed Arguments, logger logging.Logger) (err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	myRobot, err := robot.New(ctx, cfg, nil, logger.Sublogger("robot"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, myRobot.Close(context.Background()))
	}()
	myRobot.Start()

	if cfg.Network.Disabled {
		logger.Info("web server disabled, running devices only")
		<-ctx.Done()
		return nil
	}

	host, _, err := net.SplitHostPort(cfg.Network.BindAddress)
	if err != nil {
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		logger.Warn("binding to all interfaces")
	}
	return web.RunWeb(ctx, myRobot, web.Options{
		BindAddress: cfg.Network.BindAddress,
		Pprof:       argsParsed.WebProfile,
	}, logger.Sublogger("web"))
}
