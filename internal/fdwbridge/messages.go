package fdwbridge

import (
	"encoding/json"
	"fmt"

	"github.com/ansilo-run/ansilo/internal/ansierr"
	"github.com/ansilo-run/ansilo/internal/types"
)

// Message payloads are JSON-encoded. SQLIL's Expr/Query nodes are pure
// data (spec.md §4.C) but carry interface-typed fields, so query
// messages go through the wire* mirror types in querycodec.go (which
// route Expr leaves through marshalExpr/unmarshalExpr, itself reusing
// the Row Codec's byte encoding for Constant payloads) rather than
// relying on encoding/json to marshal an interface field directly. No
// third-party codec in the retrieval pack targets an ad hoc,
// internal-only AST better than this, so the boundary is carried on
// encoding/json rather than forcing the teacher's YAML/protobuf
// tooling onto a shape neither was built for (see DESIGN.md).

// AuthDataSourceRequest is the Client->Server TagAuthDataSource payload.
type AuthDataSourceRequest struct {
	DataSourceID string `json:"data_source_id"`
	Credentials  []byte `json:"credentials"`
}

// AuthAcceptedResponse is the Server->Client TagAuthAccepted payload.
type AuthAcceptedResponse struct {
	Username string `json:"username"`
}

// ErrorResponse is the Server->Client TagError payload, carrying enough
// of ansierr.Error to let the client decide whether to retry.
type ErrorResponse struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func errorResponse(err error) ErrorResponse {
	var ae *ansierr.Error
	if e, ok := err.(*ansierr.Error); ok {
		ae = e
	} else {
		ae = ansierr.New(ansierr.KindInternal, "%v", err)
	}
	return ErrorResponse{Kind: ae.Kind.String(), Message: ae.Message, Retryable: ae.Retryable()}
}

// SelectRequest/InsertRequest/UpdateRequest/DeleteRequest carry a built
// query for the Building state.
type SelectRequest struct {
	Query wireSelect `json:"query"`
}

type InsertRequest struct {
	Query wireInsert `json:"query"`
}

type BulkInsertRequest struct {
	Query wireBulkInsert `json:"query"`
}

type UpdateRequest struct {
	Query wireUpdate `json:"query"`
}

type DeleteRequest struct {
	Query wireDelete `json:"query"`
}

// EstimateSizeRequest is the Client->Server TagEstimateSize payload.
type EstimateSizeRequest struct {
	EntityID string `json:"entity_id"`
}

// EstimateResponse carries a connector.Cost estimate back; duplicated
// here rather than importing connector.Cost directly so this package's
// wire contract doesn't shift if the connector package's internal
// struct shape ever does.
type EstimateResponse struct {
	Rows        uint64  `json:"rows"`
	BytesPerRow uint64  `json:"bytes_per_row"`
	StartupCost float64 `json:"startup_cost"`
	TotalCost   float64 `json:"total_cost"`
}

// QueryPreparedResponse is the Server->Client TagQueryPrepared payload:
// the input parameter structure the client must honour when streaming
// WriteParams frames.
type QueryPreparedResponse struct {
	Params types.QueryInputStructure `json:"params"`
}

// QueryExecutedResponse is the Server->Client TagQueryExecuted payload:
// the row structure of the forthcoming Read stream.
type QueryExecutedResponse struct {
	Structure types.RowStructure `json:"structure"`
}

func encodeJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only programmer error (an unencodable field) reaches here;
		// every message type above is plain data.
		panic(fmt.Sprintf("fdwbridge: marshalling message: %v", err))
	}
	return b
}

func decodeJSON(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return ansierr.Wrap(ansierr.KindProtocolViolation, err, "decoding message payload")
	}
	return nil
}
