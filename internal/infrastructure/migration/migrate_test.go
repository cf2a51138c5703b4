package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestList(t *testing.T) {
	names, err := List()
	require.NoError(t, err)

	require.NotEmpty(t, names)
	assert.Equal(t, "000001_create_client_records", names[0])
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestEmbeddedMigrations_HaveRollbacks(t *testing.T) {
	names, err := List()
	require.NoError(t, err)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			up, err := fs.ReadFile(migrationFiles, migrationsDir+"/"+name+".up.sql")
			require.NoError(t, err)
			assert.NotEmpty(t, strings.TrimSpace(string(up)))

			down, err := fs.ReadFile(migrationFiles, migrationsDir+"/"+name+".down.sql")
			require.NoError(t, err)
			assert.NotEmpty(t, strings.TrimSpace(string(down)))
		})
	}
}

func TestNew_RejectsUnknownScheme(t *testing.T) {
	_, err := New("mysql://localhost/funnel", zap.NewNop())
	assert.Error(t, err)
}
