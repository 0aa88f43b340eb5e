package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesToCSVPadsShortRows(t *testing.T) {
	raw, err := ValuesToCSV([][]interface{}{
		{"respondent_id", "Idade", "Comentário"},
		{"r1", 22},
		{"r2", "19", "bom, mas caro"},
	})
	require.NoError(t, err)
	assert.Equal(t, "respondent_id,Idade,Comentário\nr1,22,\nr2,19,\"bom, mas caro\"\n", string(raw))
}
