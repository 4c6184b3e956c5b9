package web

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.viam.com/test"

	_ "github.com/simsensors/rangecloud/components/rangefinder/fake"
	"github.com/simsensors/rangecloud/config"
	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/robot"
)

func newTestRobot(t *testing.T, start bool) *robot.Robot {
	t.Helper()
	cfg := &config.Config{Devices: []config.DeviceConfig{{
		Name:       "depth",
		Type:       "range_finder",
		FrameID:    "depth_link",
		Attributes: map[string]interface{}{"width": 8, "height": 6},
	}}}
	test.That(t, cfg.Ensure(), test.ShouldBeNil)
	r, err := robot.New(context.Background(), cfg, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() {
		test.That(t, r.Close(context.Background()), test.ShouldBeNil)
	})
	if start {
		r.Start()
	}
	return r
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestListAndStatus(t *testing.T) {
	r := newTestRobot(t, false)
	server := httptest.NewServer(NewHandler(r, Options{}, logging.NewTestLogger(t)))
	defer server.Close()

	resp := get(t, server.URL+"/api/v1/rangefinders")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "application/json")
	var list struct {
		Steps        uint64 `json:"steps"`
		RangeFinders []struct {
			Name    string `json:"name"`
			FrameID string `json:"frame_id"`
			Enabled bool   `json:"enabled"`
		} `json:"range_finders"`
	}
	test.That(t, json.NewDecoder(resp.Body).Decode(&list), test.ShouldBeNil)
	test.That(t, list.Steps, test.ShouldEqual, 0)
	test.That(t, list.RangeFinders, test.ShouldHaveLength, 1)
	test.That(t, list.RangeFinders[0].Name, test.ShouldEqual, "depth")
	test.That(t, list.RangeFinders[0].FrameID, test.ShouldEqual, "depth_link")
	test.That(t, list.RangeFinders[0].Enabled, test.ShouldBeFalse)

	resp = get(t, server.URL+"/api/v1/rangefinders/depth")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var status struct {
		Name       string `json:"name"`
		Intrinsics struct {
			Width  int     `json:"width_px"`
			Height int     `json:"height_px"`
			Ppx    float64 `json:"ppx"`
		} `json:"intrinsics"`
	}
	test.That(t, json.NewDecoder(resp.Body).Decode(&status), test.ShouldBeNil)
	test.That(t, status.Name, test.ShouldEqual, "depth")
	test.That(t, status.Intrinsics.Width, test.ShouldEqual, 8)
	test.That(t, status.Intrinsics.Height, test.ShouldEqual, 6)
	test.That(t, status.Intrinsics.Ppx, test.ShouldEqual, 4)

	for _, path := range []string{
		"/api/v1/rangefinders/nope",
		"/api/v1/rangefinders/nope/image",
		"/api/v1/rangefinders/nope/point_cloud",
		"/api/v1/rangefinders/nope/camera_info",
		"/nothing",
	} {
		resp = get(t, server.URL+path)
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusNotFound)
	}
}

func TestCORS(t *testing.T) {
	r := newTestRobot(t, false)
	server := httptest.NewServer(NewHandler(r, Options{}, logging.NewTestLogger(t)))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/rangefinders", nil)
	test.That(t, err, test.ShouldBeNil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	test.That(t, resp.Header.Get("Access-Control-Allow-Origin"), test.ShouldEqual, "*")
}

func TestCameraInfo(t *testing.T) {
	r := newTestRobot(t, false)
	server := httptest.NewServer(NewHandler(r, Options{}, logging.NewTestLogger(t)))
	defer server.Close()

	// available before the first step
	resp := get(t, server.URL+"/api/v1/rangefinders/depth/camera_info")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	var info struct {
		Header struct {
			FrameID string `json:"frame_id"`
		} `json:"header"`
		Width           int       `json:"width"`
		Height          int       `json:"height"`
		DistortionModel string    `json:"distortion_model"`
		K               []float64 `json:"k"`
	}
	test.That(t, json.NewDecoder(resp.Body).Decode(&info), test.ShouldBeNil)
	test.That(t, info.Header.FrameID, test.ShouldEqual, "depth_link")
	test.That(t, info.Width, test.ShouldEqual, 8)
	test.That(t, info.Height, test.ShouldEqual, 6)
	test.That(t, info.DistortionModel, test.ShouldEqual, "plumb_bob")
	test.That(t, info.K, test.ShouldHaveLength, 9)
	test.That(t, info.K[2], test.ShouldEqual, 4)
	test.That(t, info.K[5], test.ShouldEqual, 3)

	// the served calibration is the one latched on the camera_info topic
	rf, ok := r.RangeFinderByName("depth")
	test.That(t, ok, test.ShouldBeTrue)
	topics, ok := r.Topics("depth")
	test.That(t, ok, test.ShouldBeTrue)
	sub := topics.CameraInfo.Subscribe()
	defer sub.Close()
	latched, err := sub.Next(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, latched, test.ShouldResemble, rf.CameraInfo())
}

func TestImage(t *testing.T) {
	r := newTestRobot(t, true)
	server := httptest.NewServer(NewHandler(r, Options{}, logging.NewTestLogger(t)))
	defer server.Close()

	resp := get(t, server.URL+"/api/v1/rangefinders/depth/image")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
	test.That(t, resp.Header.Get("X-Width"), test.ShouldEqual, "8")
	test.That(t, resp.Header.Get("X-Height"), test.ShouldEqual, "6")
	test.That(t, resp.Header.Get("X-Encoding"), test.ShouldEqual, "32FC1")
	test.That(t, resp.Header.Get("X-Step"), test.ShouldEqual, "32")
	test.That(t, resp.Header.Get("X-Frame-Id"), test.ShouldEqual, "depth_link")
	test.That(t, resp.Header.Get("X-Stamp"), test.ShouldNotBeEmpty)
	data, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, data, test.ShouldHaveLength, 4*8*6)
}

func TestPointCloud(t *testing.T) {
	r := newTestRobot(t, true)
	server := httptest.NewServer(NewHandler(r, Options{}, logging.NewTestLogger(t)))
	defer server.Close()

	t.Run("raw", func(t *testing.T) {
		resp := get(t, server.URL+"/api/v1/rangefinders/depth/point_cloud?format=raw")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		test.That(t, resp.Header.Get("X-Point-Step"), test.ShouldEqual, "12")
		test.That(t, resp.Header.Get("X-Row-Step"), test.ShouldEqual, "96")
		data, err := io.ReadAll(resp.Body)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, data, test.ShouldHaveLength, 12*8*6)
	})

	t.Run("pcd", func(t *testing.T) {
		resp := get(t, server.URL+"/api/v1/rangefinders/depth/point_cloud")
		test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusOK)
		test.That(t, resp.Header.Get("Content-Type"), test.ShouldEqual, "application/pcd")
		reader := bufio.NewReader(resp.Body)
		var header []string
		for {
			line, err := reader.ReadString('\n')
			test.That(t, err, test.ShouldBeNil)
			header = append(header, strings.TrimSpace(line))
			if strings.HasPrefix(line, "DATA") {
				break
			}
		}
		test.That(t, header, test.ShouldContain, "WIDTH 8")
		test.That(t, header, test.ShouldContain, "HEIGHT 6")
		test.That(t, header, test.ShouldContain, "POINTS 48")
		test.That(t, header, test.ShouldContain, "DATA binary")
		rest, err := io.ReadAll(reader)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, rest, test.ShouldHaveLength, 12*8*6)
	})
}

func TestBadRequests(t *testing.T) {
	r := newTestRobot(t, false)
	server := httptest.NewServer(NewHandler(r, Options{}, logging.NewTestLogger(t)))
	defer server.Close()

	resp := get(t, server.URL+"/api/v1/rangefinders/depth/point_cloud?format=ply")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	resp = get(t, server.URL+"/api/v1/rangefinders/depth/image?timeout=soon")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)
	resp = get(t, server.URL+"/api/v1/rangefinders/depth/image?timeout=-1s")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusBadRequest)

	// the loop is not running so nothing is ever published
	resp = get(t, server.URL+"/api/v1/rangefinders/depth/image?timeout=50ms")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusGatewayTimeout)
	resp = get(t, server.URL+"/api/v1/rangefinders/depth/point_cloud?timeout=50ms")
	test.That(t, resp.StatusCode, test.ShouldEqual, http.StatusGatewayTimeout)
}

func TestRunWeb(t *testing.T) {
	r := newTestRobot(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// returns once the server is shut down
	test.That(t, RunWeb(ctx, r, Options{BindAddress: "localhost:0"}, logging.NewTestLogger(t)), test.ShouldBeNil)

	err := RunWeb(context.Background(), r, Options{BindAddress: "nope"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
