package persistence

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/lifecycle"
)

const repoMigrationsDir = "../../migrations"

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_rules.sql", "0001_init.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0003_dir.sql"), 0o700))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_rules.sql"}, files)
}

func TestMigrationFiles_Repository(t *testing.T) {
	files, err := migrationFiles(repoMigrationsDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_seed_sla_policies.sql"}, files)
}

func TestSeedSLAPolicies(t *testing.T) {
	content, err := os.ReadFile(filepath.Join(repoMigrationsDir, "0002_seed_sla_policies.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "WHERE NOT EXISTS")

	row := regexp.MustCompile(`\('[^']+', '(\w+)', (\d+), (\d+), (\d+)\)`)
	seeded := map[domain.ComplaintPriority][3]int{}
	for _, match := range row.FindAllStringSubmatch(string(content), -1) {
		var bounds [3]int
		for i := range bounds {
			bounds[i], err = strconv.Atoi(match[i+2])
			require.NoError(t, err)
		}
		seeded[domain.ComplaintPriority(match[1])] = bounds
	}

	want := map[domain.ComplaintPriority][3]int{
		domain.ComplaintPriorityLow:    {1440, 10080, 14400},
		domain.ComplaintPriorityMedium: {480, 4320, 5760},
		domain.ComplaintPriorityHigh:   {120, 1440, 2160},
		domain.ComplaintPriorityUrgent: {30, 240, 360},
	}
	assert.Equal(t, want, seeded)
	for priority, bounds := range seeded {
		assert.Equal(t, lifecycle.DefaultResolutionMinutes(priority), bounds[1], "resolution for %s", priority)
		assert.Greater(t, bounds[2], bounds[1], "escalation for %s", priority)
	}
}

func TestMigrationFiles_MissingDir(t *testing.T) {
	_, err := migrationFiles(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestRunMigrations_NoPool(t *testing.T) {
	applied, err := RunMigrations(t.Context(), nil, "ignored", nil)
	require.NoError(t, err)
	assert.Zero(t, applied)
}
