package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealframe/localdb"
	"github.com/mealframe/localdb/config"
	"github.com/mealframe/localdb/protocol"
)

func TestDecodeInitRequest(t *testing.T) {
	req, err := protocol.DecodeRequest([]byte(`{"type":"InitDbFile","database_file":"pantry.sqlite3"}`))
	require.NoError(t, err)

	assert.Equal(t, protocol.KindInitDbFile, req.Kind)
	assert.Equal(t, "pantry.sqlite3", req.DatabaseFile)
}

func TestDecodeDefaultsDatabaseFile(t *testing.T) {
	req, err := protocol.DecodeRequest([]byte(`{"type":"InitDbFile"}`))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultDatabaseFile, req.DatabaseFile)
}

func TestDecodeExecRequest(t *testing.T) {
	payload := `{
		"type": "Exec",
		"statements": [
			{"sql": "CREATE TABLE t(id INTEGER PRIMARY KEY, name TEXT)"},
			{"sql": "INSERT INTO t(id,name) VALUES (?,?)", "bind": [1, "a"]}
		]
	}`
	req, err := protocol.DecodeRequest([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, protocol.KindExec, req.Kind)
	require.Len(t, req.Statements, 2)
	assert.Empty(t, req.Statements[0].Bind)
	assert.Equal(t, []any{int64(1), "a"}, req.Statements[1].Bind)
}

func TestDecodeQueryRequest(t *testing.T) {
	payload := `{"type":"Query","sql":"SELECT * FROM t WHERE f > ? AND id = ?","bind":[1.5, 2]}`
	req, err := protocol.DecodeRequest([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, protocol.KindQuery, req.Kind)
	assert.Equal(t, "SELECT * FROM t WHERE f > ? AND id = ?", req.SQL)
	// Integral JSON numbers bind as int64, decimals as float64.
	assert.Equal(t, []any{1.5, int64(2)}, req.Bind)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := protocol.DecodeRequest([]byte(`{"type":"Bogus"}`))
	require.Error(t, err)

	var unknown localdb.UnknownRequestError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Unknown request type: Bogus", err.Error())
}

func TestDecodeUnparsablePayload(t *testing.T) {
	for _, payload := range []string{"not json at all", `{"type":`, ""} {
		_, err := protocol.DecodeRequest([]byte(payload))
		require.Error(t, err, payload)

		var parseErr localdb.ParseError
		require.ErrorAs(t, err, &parseErr, payload)
		assert.Contains(t, err.Error(), "Failed to parse request: ", payload)
	}
}

func TestDecodeMissingType(t *testing.T) {
	_, err := protocol.DecodeRequest([]byte(`{"sql":"SELECT 1"}`))
	require.Error(t, err)

	var parseErr localdb.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := protocol.DecodeRequest([]byte(`{"type":"InitDbFile"}{"type":"Query"}`))
	require.Error(t, err)

	var parseErr localdb.ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestRequestEncodersRoundTrip(t *testing.T) {
	payload, err := protocol.EncodeExecRequest("", []localdb.Statement{
		{SQL: "INSERT INTO t VALUES (?)", Bind: []any{int64(5)}},
	})
	require.NoError(t, err)

	req, err := protocol.DecodeRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindExec, req.Kind)
	assert.Equal(t, config.DefaultDatabaseFile, req.DatabaseFile)
	require.Len(t, req.Statements, 1)
	assert.Equal(t, []any{int64(5)}, req.Statements[0].Bind)

	payload, err = protocol.EncodeQueryRequest("pantry.sqlite3", "SELECT 1", nil)
	require.NoError(t, err)

	req, err = protocol.DecodeRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindQuery, req.Kind)
	assert.Equal(t, "pantry.sqlite3", req.DatabaseFile)

	payload, err = protocol.EncodeInitRequest("")
	require.NoError(t, err)

	req, err = protocol.DecodeRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.KindInitDbFile, req.Kind)
}

func TestDecodeResponse(t *testing.T) {
	resp, err := protocol.DecodeResponse([]byte(`{"type":"Rows","rows":[{"id":1,"name":"a"}]}`))
	require.NoError(t, err)

	assert.Equal(t, protocol.TypeRows, resp.Type)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, localdb.Row{{Name: "id", Value: int64(1)}, {Name: "name", Value: "a"}}, resp.Rows[0])
}

func TestDecodeResponseRequiresType(t *testing.T) {
	_, err := protocol.DecodeResponse([]byte(`{"rows":[]}`))
	assert.Error(t, err)
}

func TestIsDebug(t *testing.T) {
	assert.True(t, protocol.IsDebug(protocol.EncodeDebug("tracing")))
	assert.False(t, protocol.IsDebug(protocol.EncodeOk()))
	assert.False(t, protocol.IsDebug([]byte("garbage")))
}
