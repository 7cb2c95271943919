package recipients

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	in := strings.Join([]string{
		"phone_number,name",
		" +251911000001 ,Abebe",
		"0911000002,Kebede",
		"not-a-phone,x",
		"",
		"+251911000001,dup",
		"0911000003",
	}, "\n")

	got, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"+251911000001", "0911000002", "0911000003"}, got)
}

func TestParseCSV_HeaderVariants(t *testing.T) {
	for _, h := range []string{"phone", "Phone", "PHONENUMBER", "mobile"} {
		got, err := ParseCSV(strings.NewReader(h + "\n0911000002\n"))
		require.NoError(t, err, h)
		assert.Equal(t, []string{"0911000002"}, got, h)
	}
}

func TestParseCSV_NoValidRows(t *testing.T) {
	got, err := ParseCSV(strings.NewReader("phone\nabc\n123\n"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseCSV_Malformed(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("\"unterminated\n"))
	assert.Error(t, err)
}
