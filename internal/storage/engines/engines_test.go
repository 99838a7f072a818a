package engines

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenEveryEngine(t *testing.T) {
	dir := t.TempDir()
	paths := map[string]string{
		SQLite: filepath.Join(dir, "db.sqlite"),
		Bolt:   filepath.Join(dir, "db.bolt"),
		Badger: filepath.Join(dir, "badger"),
		Memory: "",
	}
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			eng, err := Open(name, paths[name])
			require.NoError(t, err)
			require.NotNil(t, eng)
			assert.NoError(t, eng.Close())
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open("leveldb", "x")
	assert.ErrorContains(t, err, `unknown storage engine "leveldb"`)

	eng, err := Open(SQLite, "")
	assert.ErrorContains(t, err, "needs a path")
	assert.Nil(t, eng)

	assert.True(t, Valid(Badger))
	assert.False(t, Valid("leveldb"))
}
