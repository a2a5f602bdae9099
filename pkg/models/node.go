package models

import (
	"encoding/json"
	"fmt"
)

// NodeType is the closed set of node kinds a workflow can contain.
type NodeType string

// Built-in node types.
const (
	NodeTypeStart       NodeType = "start"
	NodeTypeParameters  NodeType = "parameters"
	NodeTypeLogic       NodeType = "logic"
	NodeTypeMongoDB     NodeType = "mongodb"
	NodeTypeDatabase    NodeType = "database"
	NodeTypeJWTGenerate NodeType = "jwtGenerate"
	NodeTypeJWTVerify   NodeType = "jwtVerify"
	NodeTypeCondition   NodeType = "condition"
	NodeTypeLoop        NodeType = "loop"
	NodeTypeResponse    NodeType = "response"
)

// IsBranching reports whether the node selects its successor via nextEdgeId.
func (t NodeType) IsBranching() bool {
	return t == NodeTypeCondition || t == NodeTypeLoop
}

// Position is display metadata from the authoring canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one typed step in a workflow. Data holds the per-type configuration
// and is decoded into the matching typed struct with DecodeData.
// IsReservedNodeID reports whether id collides with a key the execution
// context or the placeholder resolver already owns.
func IsReservedNodeID(id string) bool {
	switch id {
	case LoopContextKey, "input", "context":
		return true
	default:
		return false
	}
}

type Node struct {
	ID       string         `json:"id"                 validate:"required"`
	Type     NodeType       `json:"type"               validate:"required"`
	Data     map[string]any `json:"data"`
	Label    string         `json:"label,omitempty"`
	Position *Position      `json:"position,omitempty"`
}

// DecodeData converts the node's free-form data into the typed shape T.
func DecodeData[T any](node *Node) (T, error) {
	var out T

	if node.Data == nil {
		return out, nil
	}

	raw, err := json.Marshal(node.Data)
	if err != nil {
		return out, fmt.Errorf("failed to encode data of node %s: %w", node.ID, err)
	}

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return out, fmt.Errorf("invalid data for %s node %s: %w", node.Type, node.ID, err)
	}

	return out, nil
}

// StartData seeds the pipeline; it is returned verbatim.
type StartData map[string]any

// ParameterSourceKind names where a parameters source reads from.
type ParameterSourceKind string

const (
	SourceParams  ParameterSourceKind = "params"
	SourceBody    ParameterSourceKind = "body"
	SourceQuery   ParameterSourceKind = "query"
	SourceHeaders ParameterSourceKind = "headers"
)

// ValidationRule constrains a single collected parameter.
type ValidationRule struct {
	Regex string   `json:"regex,omitempty"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Enum  []any    `json:"enum,omitempty"`
}

// ParameterSource declares one request section to collect parameters from.
type ParameterSource struct {
	From          ParameterSourceKind       `json:"from"                    validate:"required,oneof=params body query headers"`
	Required      []string                  `json:"required,omitempty"`
	Mapping       map[string]string         `json:"mapping,omitempty"`
	Validation    map[string]ValidationRule `json:"validation,omitempty"`
	CaseSensitive bool                      `json:"caseSensitive,omitempty"`
}

// ParametersData configures the parameters node. Sources are merged in the
// order listed and a later source overrides an earlier one on the same key,
// so the last source has the highest priority.
type ParametersData struct {
	Sources    []ParameterSource `json:"sources"              validate:"max=4,dive"`
	StrictMode bool              `json:"strictMode,omitempty"`
}

// LogicData configures the logic node.
type LogicData struct {
	Code      string `json:"code"                validate:"required"`
	TimeoutMs int    `json:"timeoutMs,omitempty" validate:"gte=0"`
}

// DatastoreOperation is one of the supported document operations.
type DatastoreOperation string

const (
	OpFindOne    DatastoreOperation = "findOne"
	OpFindMany   DatastoreOperation = "findMany"
	OpInsertOne  DatastoreOperation = "insertOne"
	OpInsertMany DatastoreOperation = "insertMany"
	OpUpdateOne  DatastoreOperation = "updateOne"
	OpUpdateMany DatastoreOperation = "updateMany"
	OpDeleteOne  DatastoreOperation = "deleteOne"
	OpDeleteMany DatastoreOperation = "deleteMany"
)

// IsWrite reports whether the operation inserts or updates documents.
func (o DatastoreOperation) IsWrite() bool {
	switch o {
	case OpInsertOne, OpInsertMany, OpUpdateOne, OpUpdateMany:
		return true
	default:
		return false
	}
}

// QueryOptions tunes read operations.
type QueryOptions struct {
	Limit int64          `json:"limit,omitempty" validate:"gte=0"`
	Skip  int64          `json:"skip,omitempty"  validate:"gte=0"`
	Sort  map[string]int `json:"sort,omitempty"`
}

// MongoDBData configures a node that talks to a tenant-owned MongoDB.
type MongoDBData struct {
	Provider   string             `json:"provider,omitempty"`
	Database   string             `json:"database,omitempty"`
	Collection string             `json:"collection"          validate:"required"`
	Operation  DatastoreOperation `json:"operation"           validate:"required,oneof=findOne findMany insertOne insertMany updateOne updateMany deleteOne deleteMany"`
	Query      any                `json:"query,omitempty"`
	Data       any                `json:"data,omitempty"`
	Options    *QueryOptions      `json:"options,omitempty"`
}

// DatabaseData configures a node that talks to the platform-managed datastore.
type DatabaseData struct {
	Collection string             `json:"collection"          validate:"required"`
	Operation  DatastoreOperation `json:"operation"           validate:"required,oneof=findOne findMany insertOne insertMany updateOne updateMany deleteOne deleteMany"`
	Query      any                `json:"query,omitempty"`
	Data       any                `json:"data,omitempty"`
	Options    *QueryOptions      `json:"options,omitempty"`
}

// JWTGenerateData configures token issuance.
type JWTGenerateData struct {
	Provider  string `json:"provider,omitempty"`
	Payload   any    `json:"payload"`
	ExpiresIn string `json:"expiresIn,omitempty"`
	Algorithm string `json:"algorithm,omitempty" validate:"omitempty,oneof=HS256 HS384 HS512"`
}

// JWTVerifyData configures token verification. TokenSource names the node
// whose result carries the authorization field; when empty the first
// recorded node is used.
type JWTVerifyData struct {
	Provider    string `json:"provider,omitempty"`
	TokenSource string `json:"tokenSource,omitempty"`
	Algorithm   string `json:"algorithm,omitempty"   validate:"omitempty,oneof=HS256 HS384 HS512"`
}

// ConditionData configures a two-way branch.
type ConditionData struct {
	Condition   string `json:"condition"           validate:"required"`
	TrueEdgeID  string `json:"trueEdgeId"          validate:"required"`
	FalseEdgeID string `json:"falseEdgeId"         validate:"required"`
	TimeoutMs   int    `json:"timeoutMs,omitempty" validate:"gte=0"`
}

// LoopData configures iteration over an items array.
type LoopData struct {
	Items       any    `json:"items"       validate:"required"`
	TrueEdgeID  string `json:"trueEdgeId"  validate:"required"`
	FalseEdgeID string `json:"falseEdgeId" validate:"required"`
}

// ResponseData configures the response node.
type ResponseData struct {
	Status int `json:"status,omitempty" validate:"omitempty,gte=100,lte=599"`
	Body   any `json:"body,omitempty"`
}
