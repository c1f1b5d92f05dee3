// Package protocol defines the JSON messages exchanged with the database
// worker.
//
// Every request is a single self-describing object tagged by "type":
//
//	{"type":"InitDbFile","database_file":"local_db.sqlite3"}
//	{"type":"Exec","statements":[{"sql":"...","bind":[...]}]}
//	{"type":"Query","sql":"...","bind":[...]}
//
// Every request yields exactly one response: {"type":"Ok"},
// {"type":"Rows","rows":[...]} or {"type":"Err","message":"..."}. The
// worker may additionally emit {"type":"Debug","message":"..."} packets out
// of band; a Debug packet is never the only reply to a request.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mealframe/localdb"
	"github.com/mealframe/localdb/config"
)

// Request kinds.
const (
	KindInitDbFile = "InitDbFile"
	KindExec       = "Exec"
	KindQuery      = "Query"
)

// Response types.
const (
	TypeOk    = "Ok"
	TypeRows  = "Rows"
	TypeErr   = "Err"
	TypeDebug = "Debug"
)

// Request is a decoded worker request. Kind selects which of the remaining
// fields are meaningful: Statements for Exec, SQL and Bind for Query.
type Request struct {
	Kind         string
	DatabaseFile string
	Statements   []localdb.Statement
	SQL          string
	Bind         []any
}

type wireStatement struct {
	SQL  string `json:"sql"`
	Bind []any  `json:"bind,omitempty"`
}

type wireRequest struct {
	Type         string          `json:"type"`
	DatabaseFile string          `json:"database_file,omitempty"`
	Statements   []wireStatement `json:"statements,omitempty"`
	SQL          string          `json:"sql,omitempty"`
	Bind         []any           `json:"bind,omitempty"`
}

// DecodeRequest decodes one request payload. A payload that is not valid
// JSON yields a ParseError; valid JSON with an unrecognised kind yields an
// UnknownRequestError. A missing database_file defaults to the well-known
// file name.
func DecodeRequest(data []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var wire wireRequest
	if err := dec.Decode(&wire); err != nil {
		return Request{}, localdb.ParseError{Cause: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Request{}, localdb.ParseError{Cause: fmt.Errorf("trailing data after request object")}
	}
	if wire.Type == "" {
		return Request{}, localdb.ParseError{Cause: fmt.Errorf("missing %q field", "type")}
	}

	file := wire.DatabaseFile
	if file == "" {
		file = config.DefaultDatabaseFile
	}

	switch wire.Type {
	case KindInitDbFile:
		return Request{Kind: KindInitDbFile, DatabaseFile: file}, nil
	case KindExec:
		stmts := make([]localdb.Statement, len(wire.Statements))
		for i, s := range wire.Statements {
			stmts[i] = localdb.Statement{SQL: s.SQL, Bind: localdb.NormalizeBind(s.Bind)}
		}
		return Request{Kind: KindExec, DatabaseFile: file, Statements: stmts}, nil
	case KindQuery:
		return Request{
			Kind:         KindQuery,
			DatabaseFile: file,
			SQL:          wire.SQL,
			Bind:         localdb.NormalizeBind(wire.Bind),
		}, nil
	default:
		return Request{}, localdb.UnknownRequestError{Kind: wire.Type}
	}
}

// EncodeInitRequest builds an InitDbFile request payload. An empty file
// name lets the worker fall back to the default database file.
func EncodeInitRequest(databaseFile string) ([]byte, error) {
	return json.Marshal(wireRequest{Type: KindInitDbFile, DatabaseFile: databaseFile})
}

// EncodeExecRequest builds an Exec request payload.
func EncodeExecRequest(databaseFile string, stmts []localdb.Statement) ([]byte, error) {
	wired := make([]wireStatement, len(stmts))
	for i, s := range stmts {
		wired[i] = wireStatement{SQL: s.SQL, Bind: s.Bind}
	}
	return json.Marshal(wireRequest{Type: KindExec, DatabaseFile: databaseFile, Statements: wired})
}

// EncodeQueryRequest builds a Query request payload.
func EncodeQueryRequest(databaseFile, sqlText string, bind []any) ([]byte, error) {
	return json.Marshal(wireRequest{Type: KindQuery, DatabaseFile: databaseFile, SQL: sqlText, Bind: bind})
}

// Response is a decoded worker response.
type Response struct {
	Type    string        `json:"type"`
	Rows    []localdb.Row `json:"rows,omitempty"`
	Message string        `json:"message,omitempty"`
}

// DecodeResponse decodes one response payload. Row column order is
// preserved.
func DecodeResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Type == "" {
		return Response{}, fmt.Errorf("response missing %q field", "type")
	}
	return resp, nil
}

// IsDebug reports whether the payload is an out-of-band Debug packet.
func IsDebug(data []byte) bool {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return false
	}
	return envelope.Type == TypeDebug
}

type okResponse struct {
	Type string `json:"type"`
}

type rowsResponse struct {
	Type string        `json:"type"`
	Rows []localdb.Row `json:"rows"`
}

type messageResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeOk encodes the Ok response.
func EncodeOk() []byte {
	b, _ := json.Marshal(okResponse{Type: TypeOk})
	return b
}

// EncodeRows encodes a Rows response. The rows field is always present,
// even when no rows matched.
func EncodeRows(rows []localdb.Row) ([]byte, error) {
	if rows == nil {
		rows = []localdb.Row{}
	}
	return json.Marshal(rowsResponse{Type: TypeRows, Rows: rows})
}

// EncodeErr encodes an Err response.
func EncodeErr(message string) []byte {
	b, _ := json.Marshal(messageResponse{Type: TypeErr, Message: message})
	return b
}

// EncodeDebug encodes an out-of-band Debug packet.
func EncodeDebug(message string) []byte {
	b, _ := json.Marshal(messageResponse{Type: TypeDebug, Message: message})
	return b
}
