// Package register registers all device models.
package register

import (
	// register range finder models.
	_ "github.com/simsensors/rangecloud/components/rangefinder/fake"
)
