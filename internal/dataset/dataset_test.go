package dataset

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	ds, err := Parse(strings.NewReader("\ufeffname, age\nana,31\n\nluis,\"40\"\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, ds.Columns)
	assert.Equal(t, [][]string{{"ana", "31"}, {"luis", "40"}}, ds.Rows)
}

func TestParse_HeaderOnly(t *testing.T) {
	ds, err := Parse(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Empty(t, ds.Rows)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoColumns)

	_, err = Parse(strings.NewReader("a,b\n1,2\n3\n"))
	var ragged *RaggedRowError
	require.True(t, errors.As(err, &ragged))
	assert.Equal(t, 2, ragged.Row)
	assert.Equal(t, 1, ragged.Got)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse(strings.NewReader("a,b\n\"1,2\n"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, (&Dataset{}).Validate(), ErrNoColumns)
	var nilDS *Dataset
	assert.ErrorIs(t, nilDS.Validate(), ErrNoColumns)
	assert.NoError(t, (&Dataset{Columns: []string{"x"}, Rows: [][]string{{"1"}}}).Validate())
}

func TestPreview(t *testing.T) {
	ds := &Dataset{Columns: []string{"x"}, Rows: [][]string{{"1"}, {"2"}, {"3"}}}
	assert.Len(t, ds.Preview(5), 3)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, ds.Preview(2))
	assert.Empty(t, ds.Preview(0))
}
