package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetting_TableName(t *testing.T) {
	s := Setting{}
	assert.Equal(t, "settings", s.TableName())
}

func TestSetting_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := Setting{Key: "theme", Value: "dark"}
		assert.NoError(t, s.Validate())
	})

	t.Run("empty value allowed", func(t *testing.T) {
		s := Setting{Key: "startup_channel"}
		assert.NoError(t, s.Validate())
	})

	t.Run("missing key", func(t *testing.T) {
		s := Setting{Value: "dark"}
		err := s.Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrKeyRequired)
	})

	t.Run("whitespace key trimmed", func(t *testing.T) {
		s := Setting{Key: " theme "}
		require.NoError(t, s.Validate())
		assert.Equal(t, "theme", s.Key)
	})
}

func TestDefaultSettings(t *testing.T) {
	defaults := DefaultSettings()

	// The restore-on-startup keys must always be present.
	for _, key := range []string{"last_playlist", "last_epg", "theme"} {
		_, ok := defaults[key]
		assert.True(t, ok, "missing default %q", key)
	}
	assert.Equal(t, "dark", defaults["theme"])
}
