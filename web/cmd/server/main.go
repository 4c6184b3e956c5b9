// Package main runs the simulated range finders and serves their data over HTTP.
package main

import (
	"go.viam.com/utils"

	// registers all device models.
	_ "github.com/simsensors/rangecloud/components/register"
	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/web/server"
)

var logger = logging.NewLogger("entrypoint")

func main() {
	utils.ContextualMain(server.RunServer, logger)
}
