package config

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	content := `
log-level = "debug"
lock-timeout = "2s"

[[fragment]]
name = "north"
db-path = "/tmp/tinybank-test/north.db"
cities = ["Kisumu", "Eldoret"]

[[fragment]]
name = "coast"
db-path = "/tmp/tinybank-test/coast.db"
cities = ["Mombasa"]
`
	f, err := ioutil.TempFile("", "tinybank-conf")
	require.NoError(t, err)
	defer os.Remove(f.Name())
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	conf, err := Load(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "debug", conf.LogLevel)
	assert.Equal(t, 2*time.Second, conf.LockTimeout.Duration)
	require.Len(t, conf.Fragments, 2)
	assert.Equal(t, "north", conf.Fragments[0].Name)
	assert.Equal(t, []string{"Mombasa"}, conf.Fragments[1].Cities)
}

func TestValidate(t *testing.T) {
	conf := NewDefaultConfig()
	require.NoError(t, conf.Validate())

	empty := &Config{LockTimeout: Duration{time.Second}}
	assert.Error(t, empty.Validate())

	noTimeout := NewDefaultConfig()
	noTimeout.LockTimeout = Duration{0}
	assert.Error(t, noTimeout.Validate())

	dupName := NewDefaultConfig()
	dupName.Fragments[1].Name = dupName.Fragments[0].Name
	assert.Error(t, dupName.Validate())

	dupCity := NewDefaultConfig()
	dupCity.Fragments[1].Cities = append(dupCity.Fragments[1].Cities, dupCity.Fragments[0].Cities[0])
	assert.Error(t, dupCity.Validate())

	dupPath := NewDefaultConfig()
	dupPath.Fragments[1].DBPath = dupPath.Fragments[0].DBPath
	assert.Error(t, dupPath.Validate())
}

func TestFragmentForCity(t *testing.T) {
	conf := NewDefaultConfig()
	assert.Equal(t, "north", conf.FragmentForCity("Kisumu"))
	assert.Equal(t, "coast", conf.FragmentForCity("Mombasa"))
	assert.Equal(t, "", conf.FragmentForCity("Atlantis"))
}
