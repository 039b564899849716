package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestReadSeedFile(t *testing.T) {
	doc := `
competitions:
  - name: Winter Math Sprint
    date: "2027-01-09"
    location: Riverside Middle School
    registration_fee: 12.5
  - name: Logic Puzzle Cup
    date: "2027-03-13"
    location: Public Library
    description: Puzzles only
`
	items, err := readSeedFile(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Winter Math Sprint", items[0].Name)
	assert.Equal(t, "2027-01-09", items[0].Date)
	assert.Equal(t, 12.5, items[0].RegistrationFee)
	assert.Equal(t, "Puzzles only", items[1].Description)
}

func TestReadSeedFileRejectsEmpty(t *testing.T) {
	_, err := readSeedFile(strings.NewReader("competitions: []\n"))
	assert.Error(t, err)

	_, err = readSeedFile(strings.NewReader("competitions: [\n"))
	assert.Error(t, err)
}

func TestSampleCompetitionsAreValid(t *testing.T) {
	for _, c := range sampleCompetitions {
		assert.NotEmpty(t, c.Name)
		assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, c.Date)
		assert.Positive(t, c.RegistrationFee)
	}
}

func TestNewAdmin(t *testing.T) {
	admin, err := newAdmin(" Ops@Example.com ", "", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", admin.Email)
	assert.Equal(t, "Ops@Example.com", admin.FullName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("correct-horse")))

	_, err = newAdmin("ops@example.com", "Ops", "short")
	assert.Error(t, err)
	_, err = newAdmin("not-an-email", "Ops", "correct-horse")
	assert.Error(t, err)
}

func TestMigrateListDoesNotNeedDatabase(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate", "--list"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "0001_init.sql")
}
