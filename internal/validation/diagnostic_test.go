package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCollector(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c := NewCollector(zap.New(core))
	cause := errors.New("boom")

	c.Add(StructuralMismatch(2, 3))
	c.Extend([]Diagnostic{ColumnFailure("medhx", cause), ColumnIssue("10100004", "medhx")})
	c.Append(LookupMiss("x", cause))

	ds := c.Diagnostics()
	assert.Len(t, ds, 4)
	assert.Equal(t, 3, logs.Len(), "Append does not log")

	entries := logs.All()
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "max redcap_repeat_instance = 2; stub_repeat = 3", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "medhx", entries[1].ContextMap()["column"])
	assert.Equal(t, "10100004", entries[2].ContextMap()["subject"])

	ds[0].Message = "changed"
	assert.NotEqual(t, "changed", c.Diagnostics()[0].Message, "Diagnostics returns a copy")
}

func TestNilLoggerCollector(t *testing.T) {
	c := NewCollector(nil)
	c.Add(RecodeAnomaly("a", "b"))

	assert.Len(t, c.Diagnostics(), 1)
}

func TestDiagnosticError(t *testing.T) {
	cause := errors.New("bad coding")
	d := ColumnFailure("medhx", cause)

	assert.ErrorIs(t, d, cause)
	assert.Equal(t, "[ERROR] Column 'medhx' could not be recoded: bad coding", d.Error())
	assert.Equal(t, "[WARNING] Subject '1' has an issue with the column 'a'.", ColumnIssue("1", "a").Error())
}

func TestFilterAndFormat(t *testing.T) {
	ds := []Diagnostic{
		RecodeAnomaly("a", "x"),
		ColumnIssue("1", "a"),
		RecodeAnomaly("b", "y"),
	}

	assert.Len(t, Filter(ds, KindRecodeAnomaly), 2)
	assert.Empty(t, Filter(ds, KindLookupMiss))

	assert.Equal(t, "No diagnostics.", Format(nil))
	assert.Equal(t,
		"Conversion completed with 1 diagnostic(s):\n\n1. [WARNING] Column 'a' has an issue with the variable 'x'.\n",
		Format(ds[:1]))
}
