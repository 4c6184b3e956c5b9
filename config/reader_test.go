package config

import (
	"context"
	"strings"
	"testing"

	"go.viam.com/test"

	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/sim"
)

func TestRead(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("RANGECLOUD_MAX_RANGE", "8.5")

	_, err := Read(context.Background(), "data/nonexistent.json", logger)
	test.That(t, err, test.ShouldNotBeNil)

	cfg, err := Read(context.Background(), "data/robot.json", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "data/robot.json")
	test.That(t, cfg.BasicTimeStepMs, test.ShouldEqual, 16)
	test.That(t, cfg.Network.BindAddress, test.ShouldEqual, "localhost:9090")
	test.That(t, cfg.Log.Debug, test.ShouldBeTrue)
	test.That(t, cfg.Devices, test.ShouldHaveLength, 2)

	depth := cfg.Devices[0]
	test.That(t, depth.Name, test.ShouldEqual, "depth")
	test.That(t, depth.Type, test.ShouldEqual, "range_finder")
	test.That(t, depth.FrameID, test.ShouldEqual, "depth")
	test.That(t, depth.TopicName, test.ShouldEqual, "/robot/depth")
	test.That(t, depth.UpdateRate, test.ShouldEqual, 20)
	test.That(t, depth.Attributes["max_range"], test.ShouldEqual, "8.5")

	lidar := cfg.Devices[1]
	test.That(t, lidar.Model, test.ShouldEqual, DefaultDeviceModel)
	test.That(t, lidar.TopicName, test.ShouldEqual, "/front_lidar")
}

func TestFromReaderDefaults(t *testing.T) {
	cfg, err := FromReader(context.Background(), "", strings.NewReader(`{"devices": [{"name": "a", "type": "range_finder"}]}`),
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.BasicTimeStepMs, test.ShouldEqual, 32)
	test.That(t, cfg.BasicTimeStep(), test.ShouldEqual, sim.DefaultBasicTimeStep)
	test.That(t, cfg.Network.BindAddress, test.ShouldEqual, DefaultBindAddress)
	test.That(t, cfg.Devices[0].AlwaysOn, test.ShouldBeFalse)
	test.That(t, cfg.Devices[0].UpdateRate, test.ShouldEqual, 0)
}

func TestFromReaderErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name     string
		json     string
		contains string
	}{
		{"bad json", `{"devices": [`, "decode"},
		{"unknown field", `{"robots": []}`, "unknown field"},
		{"missing name", `{"devices": [{"type": "range_finder"}]}`, `"name" is required`},
		{"missing type", `{"devices": [{"name": "a"}]}`, `"type" is required`},
		{"negative rate", `{"devices": [{"name": "a", "type": "range_finder", "update_rate": -1}]}`, "update_rate"},
		{
			"duplicate name",
			`{"devices": [{"name": "a", "type": "range_finder"}, {"name": "a", "type": "lidar", "topic_name": "b"}]}`,
			"not unique",
		},
		{
			"duplicate topic",
			`{"devices": [{"name": "a", "type": "range_finder"}, {"name": "b", "type": "range_finder", "topic_name": "/a"}]}`,
			"more than one device",
		},
		{"bad bind address", `{"network": {"bind_address": "nope"}}`, "bind_address"},
		{"negative log size", `{"log": {"max_size_mb": -1}}`, "max_size_mb"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader(context.Background(), "", strings.NewReader(tc.json), logger)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.contains)
		})
	}
}

func TestLogConfigDefaults(t *testing.T) {
	lc := LogConfig{File: "out.log"}
	test.That(t, lc.Validate("log"), test.ShouldBeNil)
	test.That(t, lc.MaxSizeMB, test.ShouldEqual, DefaultLogMaxSizeMB)
}

func TestDecodeAttributes(t *testing.T) {
	type attrs struct {
		Width       int     `json:"width"`
		FieldOfView float64 `json:"field_of_view"`
		Name        string  `json:"name"`
	}
	var out attrs
	unused, err := DecodeAttributes(map[string]interface{}{
		"width":         float64(64),
		"field_of_view": "1.5",
		"name":          "x",
		"colour":        "red",
	}, &out)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, attrs{Width: 64, FieldOfView: 1.5, Name: "x"})
	test.That(t, unused, test.ShouldResemble, []string{"colour"})

	_, err = DecodeAttributes(map[string]interface{}{"width": map[string]interface{}{"a": 1}}, &out)
	test.That(t, err, test.ShouldNotBeNil)
}
