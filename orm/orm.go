package orm

import (
	"context"
	"fmt"

	"github.com/astra-lucid/lucidorm/config"
	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/orm/cache"
)

// Orm is the top-level handle returned by New: the Metadata Registry,
// the connected Driver, and the Query Cache Manager, bound together
// for one configured database connection. Every QueryBuilder/
// Repository call threads back through this handle.
type Orm struct {
	registry   *Registry
	driver     Driver
	queryCache *queryCache
	config     config.Config
}

// DriverFactory builds a Driver for cfg. orm/driver/pgdriver and
// orm/driver/mysqldriver each expose one of these; New selects
// between them by cfg.Driver so this package never imports either
// (avoiding the import cycle driver->orm->driver would otherwise
// create).
type DriverFactory func(cfg config.Config) (Driver, error)

var driverFactories = map[contracts.DBType]DriverFactory{}

// RegisterDriver makes a dialect's driver constructor available to
// New. orm/driver/pgdriver and orm/driver/mysqldriver each call this
// from an init func.
func RegisterDriver(dbType contracts.DBType, factory DriverFactory) {
	driverFactories[dbType] = factory
}

// Registry returns the engine's Metadata Registry, for entity
// registration ahead of New (via RegisterEntity[T]).
func (o *Orm) Registry() *Registry { return o.registry }

// New connects a Driver for cfg.Driver and wires it to registry and
// an optional cache.Manager, returning a ready-to-use engine handle.
// Pass a nil cache.Manager to run without result caching.
func New(ctx context.Context, cfg config.Config, registry *Registry, cacheManager cache.Manager) (*Orm, error) {
	factory, ok := driverFactories[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("orm: no driver registered for %q (import orm/driver/pgdriver or orm/driver/mysqldriver)", cfg.Driver)
	}
	driver, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if err := driver.Connect(ctx); err != nil {
		return nil, err
	}

	return &Orm{
		registry:   registry,
		driver:     driver,
		queryCache: newQueryCache(cacheManager, cfg.Cache.InvalidateCacheOnWrite),
		config:     cfg,
	}, nil
}

// NewWithDriver wires an already-constructed Driver directly, bypassing
// the DriverFactory registry New uses. Intended for ormtest.FakeDriver
// in unit tests and for advanced callers that construct a Driver by
// some means other than config.Config.
func NewWithDriver(registry *Registry, driver Driver, cacheManager cache.Manager, invalidateOnWrite bool) *Orm {
	return &Orm{
		registry:   registry,
		driver:     driver,
		queryCache: newQueryCache(cacheManager, invalidateOnWrite),
	}
}

// Close disconnects the underlying driver.
func (o *Orm) Close(ctx context.Context) error {
	return o.driver.Disconnect(ctx)
}

// Driver exposes the underlying Driver, for callers that need the raw
// ExecuteSQL escape hatch.
func (o *Orm) Driver() Driver { return o.driver }
