package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_StatementShapes(t *testing.T) {
	f, err := Parse("x.pro", []byte(`# comment
SOURCES += a.cpp \
    b.cpp
unix:!macx: LIBS += -lfoo
win32 { DEFINES += W } else: macx { DEFINES += M } else { DEFINES += O }
include(common.pri)
`))
	require.NoError(t, err)
	require.Len(t, f.stmts, 4)

	assign := f.stmts[0]
	assert.Equal(t, stmtAssign, assign.kind)
	assert.Equal(t, "SOURCES", assign.variable)
	assert.Equal(t, "+=", assign.op)
	assert.Equal(t, []string{"a.cpp", "b.cpp"}, splitWords(assign.rhs))

	scoped := f.stmts[1]
	require.Equal(t, stmtScope, scoped.kind)
	require.Len(t, scoped.cond, 2)
	assert.Equal(t, "unix", scoped.cond[0].fn)
	assert.True(t, scoped.cond[1].negate)
	assert.Equal(t, byte(':'), scoped.cond[1].op)

	chain := f.stmts[2]
	require.Equal(t, stmtScope, chain.kind)
	require.Len(t, chain.els, 1)
	elseIf := chain.els[0]
	assert.Equal(t, "macx", elseIf.cond[0].fn)
	require.Len(t, elseIf.els, 1)
	assert.Equal(t, "DEFINES", elseIf.els[0].variable)

	call := f.stmts[3]
	assert.Equal(t, stmtCall, call.kind)
	assert.Equal(t, "include", call.fn)
	assert.Equal(t, []string{"common.pri"}, call.args)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse("x.pro", []byte("unix {\nSOURCES = a.cpp\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Msg, "missing closing")

	_, err = Parse("x.pro", []byte("}\n"))
	require.Error(t, err)

	_, err = Parse("x.pro", []byte("else {\n}\n"))
	require.Error(t, err)
}

func TestParse_BracesInsideValues(t *testing.T) {
	f, err := Parse("x.pro", []byte("TARGET = $${NAME}_x\nunix { X = a }\n"))
	require.NoError(t, err)
	require.Len(t, f.stmts, 2)
	assert.Equal(t, "$${NAME}_x", f.stmts[0].rhs)
	require.Len(t, f.stmts[1].then, 1)
	assert.Equal(t, "a", f.stmts[1].then[0].rhs)
}
