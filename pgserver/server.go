// Copyright 2024 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pgserver

import (
	"errors"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/intersystems-community/iris-pgwire-sub007/backend"
	"github.com/intersystems-community/iris-pgwire-sub007/cancel"
	"github.com/intersystems-community/iris-pgwire-sub007/catalog"
	"github.com/intersystems-community/iris-pgwire-sub007/metrics"
	"github.com/intersystems-community/iris-pgwire-sub007/oidgen"
	"github.com/intersystems-community/iris-pgwire-sub007/translate"
	"github.com/intersystems-community/iris-pgwire-sub007/typecodec"
)

// Server accepts PostgreSQL wire connections and spawns one
// ConnectionHandler per connection, all sharing the singletons below
// (spec §3 Gateway process, §5).
type Server struct {
	listener net.Listener

	pool             *backend.Pool
	translator       *translate.Translator
	catalogEmu       *catalog.Emulator
	typeRegistry     *typecodec.Registry
	oids             *oidgen.Generator
	cancelReg        *cancel.Registry
	metricsCollector *metrics.Collector
	authCfg          AuthConfig
}

// Deps bundles everything NewServer needs besides the listen address,
// so main only has to build each singleton once.
type Deps struct {
	Pool         *backend.Pool
	Translator   *translate.Translator
	CatalogEmu   *catalog.Emulator
	TypeRegistry *typecodec.Registry
	OIDs         *oidgen.Generator
	CancelReg    *cancel.Registry
	Metrics      *metrics.Collector
	Auth         AuthConfig
}

// NewServer binds a listener on addr and returns a Server ready to
// Start serving.
func NewServer(addr string, deps Deps) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:         ln,
		pool:             deps.Pool,
		translator:       deps.Translator,
		catalogEmu:       deps.CatalogEmu,
		typeRegistry:     deps.TypeRegistry,
		oids:             deps.OIDs,
		cancelReg:        deps.CancelReg,
		metricsCollector: deps.Metrics,
		authCfg:          deps.Auth,
	}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Start accepts connections until the listener is closed, handling each
// on its own goroutine. It returns the net.Listener's terminal error
// (nil on a clean Close).
func (s *Server) Start() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithError(err).Warn("accept failed")
			continue
		}
		if s.metricsCollector != nil {
			s.metricsCollector.ConnectionOpened()
		}
		go func() {
			defer func() {
				if s.metricsCollector != nil {
					s.metricsCollector.ConnectionClosed()
				}
			}()
			h := NewConnectionHandler(conn, s)
			h.HandleConnection()
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }
