package rangefinder

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/simsensors/rangecloud/logging"
	"github.com/simsensors/rangecloud/sim"
)

// DeviceConstructor builds a Device of one model from its config attributes. The clock is the
// simulation time the device samples on.
type DeviceConstructor func(
	ctx context.Context,
	name string,
	attributes map[string]interface{},
	clock *sim.Clock,
	logger logging.Logger,
) (Device, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]DeviceConstructor{}
)

// RegisterDevice registers a device model. It panics if the model is registered twice.
func RegisterDevice(model string, constructor DeviceConstructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[model]; ok {
		panic(fmt.Sprintf("range finder model %q already registered", model))
	}
	registry[model] = constructor
}

// LookupDevice returns the constructor of a device model.
func LookupDevice(model string) (DeviceConstructor, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	constructor, ok := registry[model]
	return constructor, ok
}

// RegisteredModels returns the registered device models, sorted.
func RegisteredModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := lo.Keys(registry)
	sort.Strings(models)
	return models
}
