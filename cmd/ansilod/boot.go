package main

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ansilo-run/ansilo/internal/api"
	"github.com/ansilo-run/ansilo/internal/catalog"
	"github.com/ansilo-run/ansilo/internal/config"
	"github.com/ansilo-run/ansilo/internal/connector"
	"github.com/ansilo-run/ansilo/internal/connector/avro"
	"github.com/ansilo-run/ansilo/internal/connector/memory"
	"github.com/ansilo-run/ansilo/internal/connector/postgres"
	"github.com/ansilo-run/ansilo/internal/fdwbridge"
	"github.com/ansilo-run/ansilo/internal/health"
	"github.com/ansilo-run/ansilo/internal/metrics"
	"github.com/ansilo-run/ansilo/internal/node"
)

const (
	healthCheckInterval = 30 * time.Second
	healthCheckTimeout  = 5 * time.Second
)

// runningNode is everything boot started, in start order, so Shutdown
// can tear it down in reverse — the same discipline the teacher's
// cmd/dbbouncer main applies to its proxy/API/health/pool quartet.
type runningNode struct {
	cfg     *config.Config
	cat     *catalog.Catalog
	metrics *metrics.Metrics
	node    *node.Node
	health  *health.Checker
	bridge  *fdwbridge.Server
	api     *api.Server
	watcher *config.Watcher
}

// newRegistry binds every connector type this build ships against its
// factory. Registering here (rather than via init()) keeps the set of
// supported connector types a single readable list instead of scattered
// side effects.
func newRegistry() (*connector.Registry, map[string]node.Capabilities) {
	reg := connector.NewRegistry()
	caps := map[string]node.Capabilities{}

	register := func(connectorType string, factory connector.Factory, capabilities node.Capabilities) {
		if err := reg.Register(connectorType, factory); err != nil {
			// only reachable if this list names the same type twice
			panic(err)
		}
		caps[connectorType] = capabilities
	}

	register("internal", memory.Factory, node.Capabilities{Compiler: memory.Compiler{}, Planner: memory.Planner{}})
	register("file.avro", avro.Factory, node.Capabilities{Compiler: avro.Compiler{}, Planner: avro.Planner{}})
	register("native.postgres", postgres.Factory, node.Capabilities{Compiler: postgres.Compiler{}, Planner: postgres.Planner{}})

	return reg, caps
}

func buildCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat := catalog.New()
	if err := loadCatalog(cat, cfg); err != nil {
		return nil, err
	}
	return cat, nil
}

// loadCatalog converts config into catalog values and loads them into
// an existing Catalog in place (atomic swap), used both at boot and on
// every hot-reload.
func loadCatalog(cat *catalog.Catalog, cfg *config.Config) error {
	entities, err := node.EntitiesFromConfig(cfg.Entities)
	if err != nil {
		return fmt.Errorf("converting entity config: %w", err)
	}
	if err := cat.Load(node.DataSourcesFromConfig(cfg.DataSources), entities); err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	return nil
}

// boot loads configuration and brings every long-running component up,
// in the order the teacher's main() does: config, metrics, routing
// state (here: catalog+registry+node), health checker, transport
// servers, REST API, then config hot-reload last so nothing reloads
// before it exists.
func boot(cfgPath string) (*runningNode, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Printf("configuration loaded from %s (%d data sources, %d entities)", cfgPath, len(cfg.DataSources), len(cfg.Entities))

	m := metrics.New()

	cat, err := buildCatalog(cfg)
	if err != nil {
		return nil, err
	}

	registry, caps := newRegistry()
	n := node.New(cat, registry, caps)

	hc := health.NewChecker(cat, n, m, healthCheckInterval, healthCheckTimeout)
	hc.Start()

	bridge := fdwbridge.NewServer(n, n, cfg.FDWBridge.SocketPath, cfg.FDWBridge.CancelGracePeriod)
	if err := bridge.Listen(); err != nil {
		hc.Stop()
		return nil, fmt.Errorf("starting fdw bridge: %w", err)
	}

	apiAddr := net.JoinHostPort(cfg.Listen.APIBind, strconv.Itoa(cfg.Listen.APIPort))
	apiServer := api.NewServer(apiAddr, hc, promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	if err := apiServer.Start(); err != nil {
		bridge.Stop()
		hc.Stop()
		return nil, fmt.Errorf("starting api server: %w", err)
	}

	rn := &runningNode{cfg: cfg, cat: cat, metrics: m, node: n, health: hc, bridge: bridge, api: apiServer}

	watcher, err := config.NewWatcher(cfgPath, func(newCfg *config.Config) {
		if err := loadCatalog(cat, newCfg); err != nil {
			log.Printf("config reload rejected: %v", err)
			return
		}
		rn.cfg = newCfg
		log.Printf("catalog reloaded from %s", cfgPath)
	})
	if err != nil {
		log.Printf("warning: config hot-reload not available: %v", err)
	}
	rn.watcher = watcher

	log.Printf("ansilo node %q ready - fdw:%s api:%s", cfg.Node.Name, cfg.FDWBridge.SocketPath, apiAddr)
	return rn, nil
}

// shutdown tears components down in reverse start order.
func (rn *runningNode) shutdown() {
	if rn.watcher != nil {
		if err := rn.watcher.Stop(); err != nil {
			log.Printf("config watcher stop: %v", err)
		}
	}
	if err := rn.api.Stop(); err != nil {
		log.Printf("api server stop: %v", err)
	}
	rn.bridge.Stop()
	rn.health.Stop()
	log.Printf("ansilo node %q stopped", rn.cfg.Node.Name)
}
