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
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/intersystems-community/iris-pgwire-sub007/backend"
	"github.com/intersystems-community/iris-pgwire-sub007/catalog"
	"github.com/intersystems-community/iris-pgwire-sub007/translate"
)

// ReadyForQueryTransactionIndicator indicates the state of the
// transaction related to the query (spec §4.10 ReadyForQuery).
type ReadyForQueryTransactionIndicator byte

const (
	ReadyForQueryTransactionIndicator_Idle                   ReadyForQueryTransactionIndicator = 'I'
	ReadyForQueryTransactionIndicator_TransactionBlock       ReadyForQueryTransactionIndicator = 'T'
	ReadyForQueryTransactionIndicator_FailedTransactionBlock ReadyForQueryTransactionIndicator = 'E'
)

// PreparedStatement is the result of a Parse message: the translated
// SQL plus everything needed to answer a later Describe on it (spec
// §4.9).
type PreparedStatement struct {
	Name         string
	OriginalSQL  string
	Translated   translate.Result
	ParamOIDs    []uint32
	ReturnFields []pgproto3.FieldDescription
	IsCatalog    bool
	Closed       bool
}

// Portal is the result of a Bind message: one prepared statement bound
// to parameter values and result format codes, ready for Execute (spec
// §4.9).
type Portal struct {
	Name              string
	SourceStatement   string
	Translated        translate.Result
	Params            [][]byte
	ParamFormatCodes  []int16
	ResultFormatCodes []int16
	Fields            []pgproto3.FieldDescription
	IsCatalog         bool

	// Execution state, populated eagerly at Bind (database/sql offers
	// no separate prepare/plan step, so the statement is actually run
	// once bound) and reused across suspended Executes of the same
	// portal (spec §4.10 Execute: "up to row_limit rows are returned
	// followed by PortalSuspended, leaving the portal re-executable").
	// Exactly one of iterator/catalogRows is populated, per IsCatalog.
	iterator    *backend.RowIterator
	catalogRows []catalog.Row
	cancelFn    func()
	rowsSoFar   int64
	exhausted   bool
	Closed      bool
}
