// Command iris-pgwire runs the PostgreSQL-wire-to-IRIS gateway (spec
// §3, §6): it accepts PostgreSQL wire protocol connections, translates
// queries into the IRIS SQL dialect, and executes them against a
// configured IRIS backend.
//
// This binary does not register an IRIS database/sql driver itself —
// no first-party or community IRIS database/sql driver appears
// anywhere in the example pack this gateway was built against, so
// deployments must blank-import whichever driver they use under the
// name backend.DriverName ("iris"), e.g.:
//
//	import _ "some/community/iris/driver"
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/intersystems-community/iris-pgwire-sub007/backend"
	"github.com/intersystems-community/iris-pgwire-sub007/cancel"
	"github.com/intersystems-community/iris-pgwire-sub007/catalog"
	"github.com/intersystems-community/iris-pgwire-sub007/config"
	"github.com/intersystems-community/iris-pgwire-sub007/metrics"
	"github.com/intersystems-community/iris-pgwire-sub007/oidgen"
	"github.com/intersystems-community/iris-pgwire-sub007/pgserver"
	"github.com/intersystems-community/iris-pgwire-sub007/translate"
	"github.com/intersystems-community/iris-pgwire-sub007/typecodec"
)

func main() {
	config.Init()
	logrus.SetLevel(logrus.Level(config.GetLogLevel()))

	pool, err := backend.Open(backend.Config{
		Host:      config.GetBackendHost(),
		Port:      config.GetBackendPort(),
		Namespace: config.GetBackendNamespace(),
		Username:  config.GetBackendUsername(),
		Password:  config.GetBackendPassword(),
		PoolSize:  config.GetBackendPoolSize(),
	})
	if err != nil {
		logrus.WithError(err).Fatal("could not open IRIS backend pool")
	}
	defer pool.Close()

	oids := oidgen.New()
	catalogEmu := catalog.New(pool, oids)
	metricsCollector := metrics.New()

	translator := translate.New(
		config.GetTranslationCacheSize(),
		time.Duration(config.GetTranslationCacheTTLSeconds())*time.Second,
		translate.WithBudgetLogger(func(sql string, elapsed time.Duration) {
			logrus.WithFields(logrus.Fields{"elapsed": elapsed, "sql": sql}).Warn("translation exceeded soft budget")
		}),
		translate.WithRegclassResolver(func(relation string) (uint32, error) {
			name := relation
			if i := strings.LastIndexByte(name, '.'); i >= 0 {
				name = name[i+1:]
			}
			return oids.OID("SQLUser", oidgen.KindTable, name), nil
		}),
	)

	cancelReg := cancel.New()

	authMethod := resolveAuthMethod()
	authCfg := pgserver.AuthConfig{
		Method:   authMethod,
		Password: config.GetBackendPassword(),
		TLSMode:  string(config.GetTLSMode()),
	}

	addr := fmt.Sprintf("%s:%d", config.GetListenHost(), config.GetListenPort())
	srv, err := pgserver.NewServer(addr, pgserver.Deps{
		Pool:         pool,
		Translator:   translator,
		CatalogEmu:   catalogEmu,
		TypeRegistry: typecodec.NewRegistry(),
		OIDs:         oids,
		CancelReg:    cancelReg,
		Metrics:      metricsCollector,
		Auth:         authCfg,
	})
	if err != nil {
		logrus.WithError(err).Fatal("could not start listener")
	}

	logrus.WithField("addr", addr).Info("iris-pgwire listening")
	if err := srv.Start(); err != nil {
		logrus.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

// resolveAuthMethod honors an explicit override, else auto-selects:
// Trust when no backend password is configured (nothing meaningful to
// authenticate against), SCRAM-SHA-256 otherwise (spec §4.10, §6).
func resolveAuthMethod() pgserver.AuthMethod {
	switch config.GetAuthMethod() {
	case "trust":
		return pgserver.AuthTrust
	case "cleartext":
		return pgserver.AuthCleartext
	case "scram":
		return pgserver.AuthSCRAM
	}
	if config.GetBackendPassword() == "" {
		return pgserver.AuthTrust
	}
	return pgserver.AuthSCRAM
}
