// Package web serves the published range finder data over HTTP. Requests waiting for data are
// consumers like any other subscriber, so they switch the range finders on.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/rs/cors"
	goutils "go.viam.com/utils"
	"goji.io"
	"goji.io/pat"

	"github.com/simsensors/rangecloud/components/rangefinder"
	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/pointcloud"
	"github.com/simsensors/rangecloud/rimage/transform"
	"github.com/simsensors/rangecloud/robot"
	"github.com/simsensors/rangecloud/ros"
)

// DefaultWaitTimeout bounds how long a data request waits for the next message.
const DefaultWaitTimeout = 5 * time.Second

// Options configure the web server.
type Options struct {
	// BindAddress is the address to listen on, such as "localhost:8080".
	BindAddress string
	// Pprof mounts the pprof handlers under /debug/pprof.
	Pprof bool
	// WaitTimeout is the default wait of data requests. Zero uses DefaultWaitTimeout.
	WaitTimeout time.Duration
}

type webApp struct {
	theRobot *robot.Robot
	options  Options
	logger   logging.Logger
}

// NewHandler returns the HTTP handler serving the robot's range finders.
func NewHandler(theRobot *robot.Robot, options Options, logger logging.Logger) http.Handler {
	if options.WaitTimeout <= 0 {
		options.WaitTimeout = DefaultWaitTimeout
	}
	app := &webApp{theRobot: theRobot, options: options, logger: logger}

	api := goji.SubMux()
	api.HandleFunc(pat.Get("/rangefinders"), app.listRangeFinders)
	api.HandleFunc(pat.Get("/rangefinders/:name"), app.rangeFinderStatus)
	api.HandleFunc(pat.Get("/rangefinders/:name/camera_info"), app.cameraInfo)
	api.HandleFunc(pat.Get("/rangefinders/:name/image"), app.image)
	api.HandleFunc(pat.Get("/rangefinders/:name/point_cloud"), app.pointCloud)

	mux := goji.NewMux()
	corsHandler := cors.AllowAll()
	mux.Handle(pat.New("/api/v1/*"), corsHandler.Handler(api))
	if options.Pprof {
		mux.HandleFunc(pat.New("/debug/pprof/"), pprof.Index)
		mux.HandleFunc(pat.New("/debug/pprof/cmdline"), pprof.Cmdline)
		mux.HandleFunc(pat.New("/debug/pprof/profile"), pprof.Profile)
		mux.HandleFunc(pat.New("/debug/pprof/symbol"), pprof.Symbol)
		mux.HandleFunc(pat.New("/debug/pprof/trace"), pprof.Trace)
	}
	return mux
}

// RunWeb serves the robot on options.BindAddress. This function will block until the context is
// done.
func RunWeb(ctx context.Context, theRobot *robot.Robot, options Options, logger logging.Logger) error {
	listener, err := net.Listen("tcp", options.BindAddress)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              listener.Addr().String(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Handler:           NewHandler(theRobot, options, logger),
	}

	goutils.PanicCapturingGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("error shutting down", "error", err)
		}
	})

	logger.Infow("serving", "url", fmt.Sprintf("http://%s", listener.Addr().String()))
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type rangeFinderListResponse struct {
	SimTimeMs    int64         `json:"sim_time_ms"`
	Steps        uint64        `json:"steps"`
	RangeFinders []interface{} `json:"range_finders"`
}

func (app *webApp) listRangeFinders(w http.ResponseWriter, r *http.Request) {
	resp := rangeFinderListResponse{
		SimTimeMs:    app.theRobot.SimTime().Now().Milliseconds(),
		Steps:        app.theRobot.Steps(),
		RangeFinders: []interface{}{},
	}
	for _, name := range app.theRobot.RangeFinderNames() {
		rf, _ := app.theRobot.RangeFinderByName(name)
		resp.RangeFinders = append(resp.RangeFinders, rf.Status())
	}
	app.writeJSON(w, resp)
}

type rangeFinderStatusResponse struct {
	rangefinder.Status
	Intrinsics *transform.PinholeCameraIntrinsics `json:"intrinsics"`
}

func (app *webApp) rangeFinderStatus(w http.ResponseWriter, r *http.Request) {
	rf, ok := app.theRobot.RangeFinderByName(pat.Param(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	app.writeJSON(w, rangeFinderStatusResponse{Status: rf.Status(), Intrinsics: rf.Intrinsics()})
}

func (app *webApp) cameraInfo(w http.ResponseWriter, r *http.Request) {
	rf, ok := app.theRobot.RangeFinderByName(pat.Param(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	app.writeJSON(w, rf.CameraInfo())
}

func (app *webApp) image(w http.ResponseWriter, r *http.Request) {
	topics, ok := app.theRobot.Topics(pat.Param(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	ctx, cancel, ok := app.waitContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	sub := topics.Image.Subscribe()
	defer sub.Close()
	img, err := sub.Next(ctx)
	if err != nil {
		app.waitFailed(w, err)
		return
	}

	writeHeader(w, img.Header, img.Width, img.Height)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Encoding", img.Encoding)
	w.Header().Set("X-Step", strconv.FormatUint(uint64(img.Step), 10))
	if _, err := w.Write(img.Data); err != nil {
		app.logger.Debugw("error writing image", "error", err)
	}
}

func (app *webApp) pointCloud(w http.ResponseWriter, r *http.Request) {
	topics, ok := app.theRobot.Topics(pat.Param(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "pcd"
	}
	if format != "pcd" && format != "raw" {
		http.Error(w, fmt.Sprintf("unknown format %q, expected pcd or raw", format), http.StatusBadRequest)
		return
	}
	ctx, cancel, ok := app.waitContext(w, r)
	if !ok {
		return
	}
	defer cancel()

	// demand comes from the image topic
	demand := topics.Image.Subscribe()
	defer demand.Close()
	sub := topics.PointCloud.Subscribe()
	defer sub.Close()
	msg, err := sub.Next(ctx)
	if err != nil {
		app.waitFailed(w, err)
		return
	}

	writeHeader(w, msg.Header, msg.Width, msg.Height)
	if format == "raw" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Point-Step", strconv.FormatUint(uint64(msg.PointStep), 10))
		w.Header().Set("X-Row-Step", strconv.FormatUint(uint64(msg.RowStep), 10))
		if _, err := w.Write(msg.Data); err != nil {
			app.logger.Debugw("error writing point cloud", "error", err)
		}
		return
	}

	cloud := pointcloud.NewOrganized(int(msg.Width), int(msg.Height))
	if err := cloud.DecodeFrom(msg.Data); err != nil {
		http.Error(w, fmt.Sprintf("error decoding point cloud: %s", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/pcd")
	if err := cloud.ToPCD(w, pointcloud.PCDBinary); err != nil {
		app.logger.Debugw("error writing pcd", "error", err)
	}
}

// waitContext bounds a data request by the timeout query parameter, a Go duration such as
// "500ms".
func (app *webApp) waitContext(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc, bool) {
	timeout := app.options.WaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, fmt.Sprintf("invalid timeout %q", raw), http.StatusBadRequest)
			return nil, nil, false
		}
		timeout = parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	return ctx, cancel, true
}

func (app *webApp) waitFailed(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		http.Error(w, "timed out waiting for data", http.StatusGatewayTimeout)
		return
	}
	// the client went away
	app.logger.Debugw("request canceled while waiting for data", "error", err)
}

func writeHeader(w http.ResponseWriter, header ros.Header, width, height uint32) {
	w.Header().Set("X-Frame-Id", header.FrameID)
	w.Header().Set("X-Stamp", header.Stamp.UTC().Format(time.RFC3339Nano))
	w.Header().Set("X-Width", strconv.FormatUint(uint64(width), 10))
	w.Header().Set("X-Height", strconv.FormatUint(uint64(height), 10))
}

func (app *webApp) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.logger.Debugw("error writing json", "error", err)
	}
}
